package instance

import (
	"github.com/google/uuid"
	"github.com/rainergb/omni-chat-app-sub001/internal/bus"
	"github.com/rainergb/omni-chat-app-sub001/internal/model"
)

type opKind int

const (
	opUpdate opKind = iota
	opCreate
	opDelete
)

// Pending identifies an optimistic mutation awaiting Commit or Revert.
type Pending struct {
	// CorrelationID ties the local change to the remote request that confirms it.
	CorrelationID string
	InstanceID    string
}

type pendingOp struct {
	kind       opKind
	instanceID string
	prior      model.Instance
	optimistic model.Instance
	index      int
}

// Apply merges patch into id as an optimistic change. The returned Pending must be
// resolved with Commit or Revert.
func (s *Store) Apply(id string, patch model.InstancePatch) (Pending, bool) {
	s.mu.Lock()
	inst, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return Pending{}, false
	}
	prior := *inst
	applyPatch(inst, patch)
	p := s.trackLocked(&pendingOp{kind: opUpdate, instanceID: id, prior: prior, optimistic: *inst})
	out := *inst
	s.mu.Unlock()

	s.bus.Emit(bus.InstanceUpdated, out)
	return p, true
}

// ApplyCreate appends a provisional record for draft. Commit swaps in the
// server-assigned id; Revert removes the record.
func (s *Store) ApplyCreate(draft model.InstanceDraft) (Pending, model.Instance) {
	s.mu.Lock()
	if draft.Status == "" {
		draft.Status = model.StatusConnecting
	}
	inst := s.createLocked(draft)
	p := s.trackLocked(&pendingOp{kind: opCreate, instanceID: inst.ID, optimistic: inst})
	s.mu.Unlock()

	s.bus.Emit(bus.InstanceCreated, inst)
	return p, inst
}

// ApplyDelete removes id optimistically. Revert puts the record back at its
// former position.
func (s *Store) ApplyDelete(id string) (Pending, bool) {
	s.mu.Lock()
	inst, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return Pending{}, false
	}
	prior := *inst
	idx, _ := s.removeLocked(id)
	p := s.trackLocked(&pendingOp{kind: opDelete, instanceID: id, prior: prior, index: idx})
	s.mu.Unlock()

	s.bus.Emit(bus.InstanceDeleted, id)
	return p, true
}

func (s *Store) trackLocked(op *pendingOp) Pending {
	cid := uuid.NewString()
	s.pending[cid] = op
	return Pending{CorrelationID: cid, InstanceID: op.instanceID}
}

// Commit finalizes an optimistic mutation. confirmed, when non-nil, is the
// server's view of the record and replaces the local one. Returns false if p is
// unknown or already resolved.
func (s *Store) Commit(p Pending, confirmed *model.Instance) bool {
	s.mu.Lock()
	op, ok := s.pending[p.CorrelationID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.pending, p.CorrelationID)

	var (
		kind string
		out  model.Instance
	)
	switch op.kind {
	case opUpdate:
		if cur, ok := s.byID[op.instanceID]; ok && confirmed != nil {
			mergeConfirmed(cur, *confirmed)
			kind, out = bus.InstanceUpdated, *cur
		}
	case opCreate:
		cur, ok := s.byID[op.instanceID]
		if ok && confirmed != nil && confirmed.ID != "" && confirmed.ID != op.instanceID {
			if _, exists := s.byID[confirmed.ID]; exists {
				// A refresh or realtime event already brought in the real record.
				s.removeLocked(op.instanceID)
				s.mu.Unlock()
				s.bus.Emit(bus.InstanceDeleted, op.instanceID)
				return true
			}
			s.renameLocked(op.instanceID, confirmed.ID)
			mergeConfirmed(cur, *confirmed)
			kind, out = bus.InstanceUpdated, *cur
		} else if ok && confirmed != nil {
			mergeConfirmed(cur, *confirmed)
			kind, out = bus.InstanceUpdated, *cur
		}
	}
	s.mu.Unlock()

	if kind != "" {
		s.bus.Emit(kind, out)
	}
	return true
}

// CommitPatch finalizes an optimistic update with the server's echo of it.
// Only the fields present in echo are merged; the rest of the record keeps its
// current value. Other mutations are committed as by Commit(p, nil).
func (s *Store) CommitPatch(p Pending, echo model.InstancePatch) bool {
	s.mu.Lock()
	op, ok := s.pending[p.CorrelationID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.pending, p.CorrelationID)

	cur, ok := s.byID[op.instanceID]
	if op.kind != opUpdate || !ok || echo.Empty() {
		s.mu.Unlock()
		return true
	}
	applyPatch(cur, echo)
	out := *cur
	s.mu.Unlock()

	s.bus.Emit(bus.InstanceUpdated, out)
	return true
}

// Revert undoes an optimistic mutation. For updates only fields that still hold
// the optimistic value are restored, so a remote change that arrived in between
// is preserved. Returns false if p is unknown or already resolved.
func (s *Store) Revert(p Pending) bool {
	s.mu.Lock()
	op, ok := s.pending[p.CorrelationID]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.pending, p.CorrelationID)

	var (
		kind    string
		payload any
	)
	switch op.kind {
	case opUpdate:
		if cur, ok := s.byID[op.instanceID]; ok {
			restoreFields(cur, op.prior, op.optimistic)
			kind, payload = bus.InstanceUpdated, *cur
		}
	case opCreate:
		if _, ok := s.removeLocked(op.instanceID); ok {
			kind, payload = bus.InstanceDeleted, op.instanceID
		}
	case opDelete:
		if _, exists := s.byID[op.instanceID]; !exists {
			s.insertAtLocked(op.prior, op.index)
			kind, payload = bus.InstanceCreated, op.prior
		}
	}
	s.mu.Unlock()

	if kind != "" {
		s.bus.Emit(kind, payload)
	}
	return true
}

// IsPending reports whether id has an unresolved optimistic mutation.
func (s *Store) IsPending(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, op := range s.pending {
		if op.instanceID == id {
			return true
		}
	}
	return false
}

// PendingCount returns the number of unresolved optimistic mutations.
func (s *Store) PendingCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

func (s *Store) renameLocked(from, to string) {
	inst := s.byID[from]
	delete(s.byID, from)
	inst.ID = to
	s.byID[to] = inst
	for i, id := range s.order {
		if id == from {
			s.order[i] = to
		}
	}
	if s.selected == from {
		s.selected = to
	}
}

func (s *Store) insertAtLocked(inst model.Instance, idx int) {
	c := inst
	s.byID[inst.ID] = &c
	if idx < 0 || idx > len(s.order) {
		idx = len(s.order)
	}
	s.order = append(s.order, "")
	copy(s.order[idx+1:], s.order[idx:])
	s.order[idx] = inst.ID
}

func mergeConfirmed(cur *model.Instance, confirmed model.Instance) {
	count := cur.MessagesCount
	created := cur.CreatedAt
	id := cur.ID
	*cur = confirmed
	cur.ID = id
	if cur.MessagesCount < count {
		cur.MessagesCount = count
	}
	if cur.CreatedAt.IsZero() {
		cur.CreatedAt = created
	}
}

// restoreFields puts prior values back into cur wherever cur still holds the
// optimistic value. Message counts are never rolled back.
func restoreFields(cur *model.Instance, prior, optimistic model.Instance) {
	if cur.Name == optimistic.Name {
		cur.Name = prior.Name
	}
	if cur.Type == optimistic.Type {
		cur.Type = prior.Type
	}
	if cur.Status == optimistic.Status {
		cur.Status = prior.Status
	}
	if cur.LastActivity.Equal(optimistic.LastActivity) {
		cur.LastActivity = prior.LastActivity
	}
	if cur.WebhookURL == optimistic.WebhookURL {
		cur.WebhookURL = prior.WebhookURL
	}
	if cur.Avatar == optimistic.Avatar {
		cur.Avatar = prior.Avatar
	}
	if cur.QRCode == optimistic.QRCode {
		cur.QRCode = prior.QRCode
	}
}
