package instance

import (
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/rainergb/omni-chat-app-sub001/internal/bus"
	"github.com/rainergb/omni-chat-app-sub001/internal/model"
)

func countConnected(list []model.Instance) int {
	n := 0
	for _, inst := range list {
		if inst.Status == model.StatusConnected {
			n++
		}
	}
	return n
}

func TestCreateAssignsIDAndTimestamp(t *testing.T) {
	s := New(nil)
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s.now = func() time.Time { return fixed }

	inst := s.Create(model.InstanceDraft{Name: "Vendas", Type: model.PlatformWhatsApp})
	if inst.ID == "" {
		t.Fatal("Create() left id empty")
	}
	if !inst.CreatedAt.Equal(fixed) {
		t.Errorf("CreatedAt = %v, want %v", inst.CreatedAt, fixed)
	}
	if inst.Status != model.StatusDisconnected {
		t.Errorf("Status = %s, want DISCONNECTED default", inst.Status)
	}

	other := s.Create(model.InstanceDraft{Name: "Suporte"})
	if other.ID == inst.ID {
		t.Error("Create() reused an id")
	}

	list := s.List()
	if len(list) != 2 || list[0].Name != "Vendas" || list[1].Name != "Suporte" {
		t.Errorf("List() = %+v, want insertion order [Vendas Suporte]", list)
	}
}

func TestUpdateMissingIsNoop(t *testing.T) {
	s := New(nil)
	s.Create(model.InstanceDraft{Name: "a"})
	before := s.List()

	if s.Update("missing", model.InstancePatch{Name: model.Ptr("x")}) {
		t.Error("Update(missing) = true, want false")
	}
	after := s.List()
	if len(after) != len(before) || after[0].Name != before[0].Name {
		t.Errorf("store changed after no-op update: %+v", after)
	}
}

func TestUpdateNeverLowersMessageCount(t *testing.T) {
	s := New(nil)
	inst := s.Create(model.InstanceDraft{Name: "a", MessagesCount: 10})

	s.Update(inst.ID, model.InstancePatch{MessagesCount: model.Ptr(3)})
	got, _ := s.Get(inst.ID)
	if got.MessagesCount != 10 {
		t.Errorf("MessagesCount = %d, want 10 (monotonic)", got.MessagesCount)
	}

	s.Update(inst.ID, model.InstancePatch{MessagesCount: model.Ptr(12)})
	got, _ = s.Get(inst.ID)
	if got.MessagesCount != 12 {
		t.Errorf("MessagesCount = %d, want 12", got.MessagesCount)
	}

	// A full reload is authoritative.
	s.ReplaceAll([]model.Instance{{ID: inst.ID, MessagesCount: 1}})
	got, _ = s.Get(inst.ID)
	if got.MessagesCount != 1 {
		t.Errorf("MessagesCount after reload = %d, want 1", got.MessagesCount)
	}
}

func TestDeleteIsIdempotent(t *testing.T) {
	s := New(nil)
	a := s.Create(model.InstanceDraft{Name: "a"})
	s.Create(model.InstanceDraft{Name: "b"})

	if !s.Delete(a.ID) {
		t.Fatal("first Delete() = false")
	}
	snapshot := s.List()
	if s.Delete(a.ID) {
		t.Error("second Delete() = true, want false")
	}
	if got := s.List(); len(got) != len(snapshot) || got[0].ID != snapshot[0].ID {
		t.Errorf("second Delete() changed state: %+v", got)
	}
}

func TestDeleteClearsSelection(t *testing.T) {
	s := New(nil)
	a := s.Create(model.InstanceDraft{Name: "a"})
	b := s.Create(model.InstanceDraft{Name: "b"})

	s.Select(a.ID)
	s.Delete(b.ID)
	if sel, ok := s.Selected(); !ok || sel.ID != a.ID {
		t.Errorf("Selected() = %v,%v; deleting another record must keep selection", sel.ID, ok)
	}

	s.Delete(a.ID)
	if _, ok := s.Selected(); ok {
		t.Error("Selected() still set after deleting the selected record")
	}
}

func TestSelectUnknownIsNoop(t *testing.T) {
	s := New(nil)
	a := s.Create(model.InstanceDraft{Name: "a"})
	s.Select(a.ID)
	if s.Select("nope") {
		t.Error("Select(unknown) = true")
	}
	if sel, _ := s.Selected(); sel.ID != a.ID {
		t.Errorf("selection = %q, want %q", sel.ID, a.ID)
	}
	s.Select("")
	if _, ok := s.Selected(); ok {
		t.Error("Select(\"\") should clear selection")
	}
}

func TestViewMode(t *testing.T) {
	s := New(nil)
	if s.ViewMode() != model.ViewGrid {
		t.Errorf("default view mode = %s, want grid", s.ViewMode())
	}
	s.SetViewMode(model.ViewList)
	if s.ViewMode() != model.ViewList {
		t.Errorf("view mode = %s, want list", s.ViewMode())
	}
}

// TestConnectedCountInvariant runs random create/update/delete sequences and
// checks the aggregate after every step.
func TestConnectedCountInvariant(t *testing.T) {
	statuses := []model.InstanceStatus{
		model.StatusConnected, model.StatusDisconnected, model.StatusConnecting, model.StatusError,
	}
	rng := rand.New(rand.NewSource(42))
	s := New(nil)
	var ids []string

	for i := 0; i < 500; i++ {
		switch op := rng.Intn(3); {
		case op == 0 || len(ids) == 0:
			inst := s.Create(model.InstanceDraft{
				Name:          "i" + strconv.Itoa(i),
				Status:        statuses[rng.Intn(len(statuses))],
				MessagesCount: rng.Intn(5),
			})
			ids = append(ids, inst.ID)
		case op == 1:
			id := ids[rng.Intn(len(ids))]
			s.Update(id, model.InstancePatch{Status: model.Ptr(statuses[rng.Intn(len(statuses))])})
		default:
			idx := rng.Intn(len(ids))
			s.Delete(ids[idx])
			ids = append(ids[:idx], ids[idx+1:]...)
		}

		list := s.List()
		if got, want := s.ConnectedCount(), countConnected(list); got != want {
			t.Fatalf("step %d: ConnectedCount() = %d, want %d", i, got, want)
		}
		total := 0
		for _, inst := range list {
			total += inst.MessagesCount
		}
		if got := s.TotalMessages(); got != total {
			t.Fatalf("step %d: TotalMessages() = %d, want %d", i, got, total)
		}
	}
}

func TestAddMessages(t *testing.T) {
	s := New(nil)
	inst := s.Create(model.InstanceDraft{Name: "a"})
	later := inst.LastActivity.Add(time.Minute)

	if !s.AddMessages(inst.ID, 2, later) {
		t.Fatal("AddMessages() = false")
	}
	got, _ := s.Get(inst.ID)
	if got.MessagesCount != 2 || !got.LastActivity.Equal(later) {
		t.Errorf("got count=%d activity=%v", got.MessagesCount, got.LastActivity)
	}
	if s.AddMessages("missing", 1, later) {
		t.Error("AddMessages(missing) = true")
	}
}

func TestInsertReplacesInPlace(t *testing.T) {
	s := New(nil)
	s.Insert(model.Instance{ID: "1", Name: "one"})
	s.Insert(model.Instance{ID: "2", Name: "two"})
	s.Insert(model.Instance{ID: "1", Name: "uno"})

	list := s.List()
	if len(list) != 2 || list[0].Name != "uno" || list[1].ID != "2" {
		t.Errorf("List() = %+v, want [uno two]", list)
	}
}

func TestReplaceAllClearsStaleSelection(t *testing.T) {
	s := New(nil)
	s.Insert(model.Instance{ID: "1"})
	s.Select("1")
	s.ReplaceAll([]model.Instance{{ID: "2"}, {ID: "2"}, {ID: ""}})

	if _, ok := s.Selected(); ok {
		t.Error("selection should be cleared when the record disappears on reload")
	}
	if n := s.Len(); n != 1 {
		t.Errorf("Len() = %d, want 1 (duplicates and empty ids skipped)", n)
	}
}

func TestMutationsPublishEvents(t *testing.T) {
	b := bus.New()
	ch, unsub := b.Subscribe("instance.", 10)
	defer unsub()

	s := New(b)
	inst := s.Create(model.InstanceDraft{Name: "a"})
	s.Update(inst.ID, model.InstancePatch{Status: model.Ptr(model.StatusConnected)})
	s.Delete(inst.ID)

	want := []string{bus.InstanceCreated, bus.InstanceUpdated, bus.InstanceDeleted}
	for _, kind := range want {
		select {
		case evt := <-ch:
			if evt.Kind != kind {
				t.Errorf("event kind = %q, want %q", evt.Kind, kind)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for %s", kind)
		}
	}
}
