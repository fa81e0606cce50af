package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rainergb/omni-chat-app-sub001/internal/bus"
	"github.com/rainergb/omni-chat-app-sub001/internal/chat"
	"github.com/rainergb/omni-chat-app-sub001/internal/instance"
	"github.com/rainergb/omni-chat-app-sub001/internal/model"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.db")
	db, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := testDB(t)

	result, err := db.Migrate()
	if err != nil {
		t.Fatal(err)
	}
	if result.Changed {
		t.Error("second Migrate() should report Changed=false")
	}
	if result.Version != 1 || result.Dirty {
		t.Errorf("version = %d dirty = %v, want 1 clean", result.Version, result.Dirty)
	}
}

func TestInstancesRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	created := time.UnixMilli(1700000000000)

	in := []model.Instance{
		{ID: "b", Name: "suporte", Type: model.PlatformTelegram, Status: model.StatusConnected, MessagesCount: 9, CreatedAt: created, QRCode: "2@qr"},
		{ID: "a", Name: "vendas", Type: model.PlatformWhatsApp, Status: model.StatusError},
	}
	if err := db.SaveInstances(ctx, in); err != nil {
		t.Fatal(err)
	}
	got, err := db.LoadInstances(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].ID != "b" || got[1].ID != "a" {
		t.Fatalf("order not kept: %+v", got)
	}
	if got[0].Type != model.PlatformTelegram || got[0].MessagesCount != 9 || !got[0].CreatedAt.Equal(created) {
		t.Errorf("first = %+v", got[0])
	}
	if got[0].QRCode != "" {
		t.Error("pairing codes must not be persisted")
	}
	if got[1].Status != model.StatusError || !got[1].CreatedAt.IsZero() {
		t.Errorf("second = %+v", got[1])
	}

	// Saving again replaces rather than appends.
	if err := db.SaveInstances(ctx, in[:1]); err != nil {
		t.Fatal(err)
	}
	if got, _ := db.LoadInstances(ctx); len(got) != 1 {
		t.Errorf("len = %d after replace", len(got))
	}
}

func TestChatsRoundTrip(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	snap := chat.Snapshot{
		Chats: []model.Chat{
			{ID: "c1", InstanceID: "i1", ContactName: "Ana", UnreadCount: 2, Participants: []string{"x", "y"}, IsPinned: true},
			{ID: "c2", InstanceID: "i1", IsGroup: true},
		},
		Messages: map[string][]model.Message{
			"c1": {
				{ID: "m1", Content: "oi", Type: model.TypeText, Timestamp: time.UnixMilli(1000), Sender: model.Sender{ID: "u1", Name: "Ana"}, Status: model.MessageDelivered},
				{ID: "m2", Content: "doc", Type: model.TypeDocument, Sender: model.Sender{IsMe: true}, Status: model.MessageSent, Metadata: &model.MessageMetadata{FileName: "a.pdf", FileSize: 42}},
			},
		},
	}
	if err := db.SaveChats(ctx, snap); err != nil {
		t.Fatal(err)
	}
	got, err := db.LoadChats(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(got.Chats) != 2 || got.Chats[0].ID != "c1" {
		t.Fatalf("chats = %+v", got.Chats)
	}
	if c := got.Chats[0]; c.UnreadCount != 2 || !c.IsPinned || len(c.Participants) != 2 {
		t.Errorf("c1 = %+v", c)
	}
	if !got.Chats[1].IsGroup {
		t.Error("c2 should be a group")
	}
	msgs := got.Messages["c1"]
	if len(msgs) != 2 || msgs[0].ID != "m1" || msgs[1].ID != "m2" {
		t.Fatalf("messages = %+v", msgs)
	}
	if msgs[1].Metadata == nil || msgs[1].Metadata.FileName != "a.pdf" || !msgs[1].Sender.IsMe {
		t.Errorf("m2 = %+v", msgs[1])
	}
	if msgs[0].ChatID != "c1" || msgs[0].Timestamp.UnixMilli() != 1000 {
		t.Errorf("m1 = %+v", msgs[0])
	}
}

func TestPersisterFlushesAndHydrates(t *testing.T) {
	db := testDB(t)
	b := bus.New()
	instances := instance.New(b)
	chats := chat.New(b)

	p := NewPersister(db, instances, chats, b, nil, 10*time.Millisecond)
	p.Start(context.Background())

	instances.Insert(model.Instance{ID: "i1", Name: "vendas"})
	chats.SetChats([]model.Chat{{ID: "c1", InstanceID: "i1"}})
	chats.AddMessage("c1", model.MessageDraft{Content: "oi"})

	deadline := time.Now().Add(2 * time.Second)
	for {
		list, _ := db.LoadInstances(context.Background())
		if len(list) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("instances never flushed")
		}
		time.Sleep(10 * time.Millisecond)
	}
	p.Stop()

	b2 := bus.New()
	instances2 := instance.New(b2)
	chats2 := chat.New(b2)
	if err := Hydrate(context.Background(), db, instances2, chats2); err != nil {
		t.Fatal(err)
	}
	if inst, ok := instances2.Get("i1"); !ok || inst.Name != "vendas" {
		t.Errorf("hydrated instance = %+v", inst)
	}
	if c, ok := chats2.Chat("c1"); !ok || c.LastMessage != "oi" || c.UnreadCount != 1 {
		t.Errorf("hydrated chat = %+v", c)
	}
	if msgs := chats2.Messages("c1"); len(msgs) != 1 || msgs[0].Content != "oi" {
		t.Errorf("hydrated messages = %+v", msgs)
	}
}

func TestHydrateEmptyCacheLeavesStoresAlone(t *testing.T) {
	db := testDB(t)
	instances := instance.New(nil)
	instances.Insert(model.Instance{ID: "keep"})
	chats := chat.New(nil)

	if err := Hydrate(context.Background(), db, instances, chats); err != nil {
		t.Fatal(err)
	}
	if instances.Len() != 1 {
		t.Error("empty cache must not wipe the store")
	}
}

func TestPersisterStopWithoutStart(t *testing.T) {
	db := testDB(t)
	p := NewPersister(db, instance.New(nil), chat.New(nil), bus.New(), nil, 0)
	p.Stop()
}
