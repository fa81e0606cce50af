package instance

import (
	"testing"

	"github.com/rainergb/omni-chat-app-sub001/internal/model"
)

func TestApplyCommit(t *testing.T) {
	s := New(nil)
	s.Insert(model.Instance{ID: "1", Name: "a", Status: model.StatusDisconnected})

	p, ok := s.Apply("1", model.InstancePatch{Status: model.Ptr(model.StatusConnecting)})
	if !ok {
		t.Fatal("Apply() = false")
	}
	if !s.IsPending("1") {
		t.Error("IsPending(1) = false after Apply")
	}
	got, _ := s.Get("1")
	if got.Status != model.StatusConnecting {
		t.Errorf("optimistic status = %s, want CONNECTING", got.Status)
	}

	if !s.Commit(p, &model.Instance{ID: "1", Name: "a", Status: model.StatusConnected}) {
		t.Fatal("Commit() = false")
	}
	got, _ = s.Get("1")
	if got.Status != model.StatusConnected {
		t.Errorf("committed status = %s, want CONNECTED", got.Status)
	}
	if s.IsPending("1") {
		t.Error("IsPending(1) = true after Commit")
	}
	if s.Commit(p, nil) || s.Revert(p) {
		t.Error("resolving an already resolved pending should report false")
	}
}

func TestApplyRevert(t *testing.T) {
	s := New(nil)
	s.Insert(model.Instance{ID: "1", Name: "a", Status: model.StatusConnected})

	p, _ := s.Apply("1", model.InstancePatch{Name: model.Ptr("b"), Status: model.Ptr(model.StatusDisconnected)})
	s.Revert(p)

	got, _ := s.Get("1")
	if got.Name != "a" || got.Status != model.StatusConnected {
		t.Errorf("after Revert got name=%q status=%s, want a/CONNECTED", got.Name, got.Status)
	}
	if s.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d, want 0", s.PendingCount())
	}
}

// TestRevertKeepsRemoteChange covers a realtime status event landing between the
// optimistic apply and the failed request: the remote value must survive.
func TestRevertKeepsRemoteChange(t *testing.T) {
	s := New(nil)
	s.Insert(model.Instance{ID: "1", Name: "a", Status: model.StatusConnected})

	p, _ := s.Apply("1", model.InstancePatch{Name: model.Ptr("b"), Status: model.Ptr(model.StatusDisconnected)})
	s.Update("1", model.InstancePatch{Status: model.Ptr(model.StatusError)})
	s.Revert(p)

	got, _ := s.Get("1")
	if got.Status != model.StatusError {
		t.Errorf("status = %s, want ERROR (remote change kept)", got.Status)
	}
	if got.Name != "a" {
		t.Errorf("name = %q, want a (optimistic value reverted)", got.Name)
	}
}

func TestApplyCreateCommitRenames(t *testing.T) {
	s := New(nil)
	p, tmp := s.ApplyCreate(model.InstanceDraft{Name: "novo"})
	if tmp.Status != model.StatusConnecting {
		t.Errorf("provisional status = %s, want CONNECTING", tmp.Status)
	}
	s.Select(tmp.ID)

	s.Commit(p, &model.Instance{ID: "srv-1", Name: "novo", Status: model.StatusDisconnected})

	if _, ok := s.Get(tmp.ID); ok {
		t.Error("provisional id still present after Commit")
	}
	got, ok := s.Get("srv-1")
	if !ok {
		t.Fatal("server id missing after Commit")
	}
	if got.CreatedAt.IsZero() {
		t.Error("CreatedAt lost on Commit")
	}
	if sel, _ := s.Selected(); sel.ID != "srv-1" {
		t.Errorf("selection = %q, want srv-1 (follows rename)", sel.ID)
	}
}

func TestApplyCreateCommitWhenRecordAlreadyArrived(t *testing.T) {
	s := New(nil)
	p, tmp := s.ApplyCreate(model.InstanceDraft{Name: "novo"})
	s.Insert(model.Instance{ID: "srv-1", Name: "novo"})

	s.Commit(p, &model.Instance{ID: "srv-1"})

	if _, ok := s.Get(tmp.ID); ok {
		t.Error("provisional record should be dropped when the real one is present")
	}
	if s.Len() != 1 {
		t.Errorf("Len() = %d, want 1", s.Len())
	}
}

func TestApplyCreateRevert(t *testing.T) {
	s := New(nil)
	p, tmp := s.ApplyCreate(model.InstanceDraft{Name: "novo"})
	s.Revert(p)
	if _, ok := s.Get(tmp.ID); ok {
		t.Error("provisional record survived Revert")
	}
}

func TestApplyDeleteRevertRestoresPosition(t *testing.T) {
	s := New(nil)
	s.Insert(model.Instance{ID: "1"})
	s.Insert(model.Instance{ID: "2"})
	s.Insert(model.Instance{ID: "3"})

	p, ok := s.ApplyDelete("2")
	if !ok {
		t.Fatal("ApplyDelete() = false")
	}
	if _, ok := s.Get("2"); ok {
		t.Fatal("record still visible after ApplyDelete")
	}

	s.Revert(p)
	list := s.List()
	if len(list) != 3 || list[1].ID != "2" {
		t.Errorf("List() = %+v, want 2 back in the middle", list)
	}
}

// TestReplaceAllHonorsPending verifies a full reload arriving mid-flight neither
// resurrects an optimistically deleted record nor drops a provisional one.
func TestReplaceAllHonorsPending(t *testing.T) {
	s := New(nil)
	s.Insert(model.Instance{ID: "1"})
	s.Insert(model.Instance{ID: "2"})

	s.ApplyDelete("1")
	_, tmp := s.ApplyCreate(model.InstanceDraft{Name: "novo"})

	s.ReplaceAll([]model.Instance{{ID: "1"}, {ID: "2"}})

	if _, ok := s.Get("1"); ok {
		t.Error("reload resurrected an optimistically deleted record")
	}
	if _, ok := s.Get(tmp.ID); !ok {
		t.Error("reload dropped a provisional record")
	}
	if _, ok := s.Get("2"); !ok {
		t.Error("reload lost server record 2")
	}
}

func TestApplyMissing(t *testing.T) {
	s := New(nil)
	if _, ok := s.Apply("x", model.InstancePatch{}); ok {
		t.Error("Apply(missing) = true")
	}
	if _, ok := s.ApplyDelete("x"); ok {
		t.Error("ApplyDelete(missing) = true")
	}
}

func TestCommitPatchMergesOnlyEchoedFields(t *testing.T) {
	s := New(nil)
	s.Insert(model.Instance{ID: "1", Name: "a", Type: model.PlatformTelegram, Status: model.StatusConnected, WebhookURL: "http://hook", MessagesCount: 4})

	p, _ := s.Apply("1", model.InstancePatch{Name: model.Ptr("b")})
	if !s.CommitPatch(p, model.InstancePatch{Name: model.Ptr("B")}) {
		t.Fatal("CommitPatch() = false")
	}
	got, _ := s.Get("1")
	if got.Name != "B" {
		t.Errorf("name = %q, want server value B", got.Name)
	}
	if got.Type != model.PlatformTelegram || got.Status != model.StatusConnected || got.WebhookURL != "http://hook" || got.MessagesCount != 4 {
		t.Errorf("unechoed fields changed: %+v", got)
	}
	if s.CommitPatch(p, model.InstancePatch{}) {
		t.Error("CommitPatch on a resolved pending should report false")
	}
}

func TestCommitPatchEmptyEchoKeepsOptimistic(t *testing.T) {
	s := New(nil)
	s.Insert(model.Instance{ID: "1", Name: "a"})

	p, _ := s.Apply("1", model.InstancePatch{Name: model.Ptr("b")})
	s.CommitPatch(p, model.InstancePatch{})
	if got, _ := s.Get("1"); got.Name != "b" {
		t.Errorf("name = %q, want b", got.Name)
	}
	if s.PendingCount() != 0 {
		t.Errorf("PendingCount() = %d", s.PendingCount())
	}
}
