package instance

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rainergb/omni-chat-app-sub001/internal/bus"
	"github.com/rainergb/omni-chat-app-sub001/internal/model"
)

// Store is the in-memory owner of instance records. All operations are
// synchronous and serialized by a single mutex. Operations on unknown ids are
// no-ops that report false; the store never returns errors.
type Store struct {
	mu       sync.Mutex
	order    []string
	byID     map[string]*model.Instance
	selected string
	viewMode model.ViewMode
	pending  map[string]*pendingOp
	bus      *bus.Bus
	now      func() time.Time
}

// New creates an empty store. b may be nil.
func New(b *bus.Bus) *Store {
	return &Store{
		byID:     make(map[string]*model.Instance),
		viewMode: model.ViewGrid,
		pending:  make(map[string]*pendingOp),
		bus:      b,
		now:      time.Now,
	}
}

// List returns copies of all instances in insertion order.
func (s *Store) List() []model.Instance {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Instance, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id])
	}
	return out
}

// Get returns the instance with the given id.
func (s *Store) Get(id string) (model.Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inst, ok := s.byID[id]
	if !ok {
		return model.Instance{}, false
	}
	return *inst, true
}

// Len returns the number of instances.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Create assigns a fresh id and creation timestamp to draft and appends it.
func (s *Store) Create(draft model.InstanceDraft) model.Instance {
	s.mu.Lock()
	inst := s.createLocked(draft)
	s.mu.Unlock()

	s.bus.Emit(bus.InstanceCreated, inst)
	return inst
}

func (s *Store) createLocked(draft model.InstanceDraft) model.Instance {
	inst := model.Instance{
		ID:            uuid.NewString(),
		Name:          draft.Name,
		Type:          draft.Type,
		Status:        draft.Status,
		LastActivity:  draft.LastActivity,
		MessagesCount: draft.MessagesCount,
		CreatedAt:     s.now(),
		WebhookURL:    draft.WebhookURL,
		Avatar:        draft.Avatar,
	}
	if inst.Type == "" {
		inst.Type = model.PlatformWhatsApp
	}
	if inst.Status == "" {
		inst.Status = model.StatusDisconnected
	}
	if inst.LastActivity.IsZero() {
		inst.LastActivity = inst.CreatedAt
	}
	s.appendLocked(inst)
	return inst
}

func (s *Store) appendLocked(inst model.Instance) {
	c := inst
	s.byID[inst.ID] = &c
	s.order = append(s.order, inst.ID)
}

// Insert adds a server-confirmed record. A record with the same id is replaced
// in place, keeping its position.
func (s *Store) Insert(inst model.Instance) model.Instance {
	s.mu.Lock()
	if inst.ID == "" {
		inst.ID = uuid.NewString()
	}
	if inst.CreatedAt.IsZero() {
		inst.CreatedAt = s.now()
	}
	kind := bus.InstanceCreated
	if cur, ok := s.byID[inst.ID]; ok {
		*cur = inst
		kind = bus.InstanceUpdated
	} else {
		s.appendLocked(inst)
	}
	s.mu.Unlock()

	s.bus.Emit(kind, inst)
	return inst
}

// ReplaceAll swaps the whole mapping for a fresh server listing. This is the only
// operation that may lower a message count. Records with an unresolved optimistic
// create are kept, and records with an unresolved optimistic delete stay deleted.
func (s *Store) ReplaceAll(instances []model.Instance) {
	s.mu.Lock()
	deleting := make(map[string]bool)
	var creating []model.Instance
	for _, op := range s.pending {
		switch op.kind {
		case opDelete:
			deleting[op.instanceID] = true
		case opCreate:
			if cur, ok := s.byID[op.instanceID]; ok {
				creating = append(creating, *cur)
			}
		}
	}

	s.order = s.order[:0]
	s.byID = make(map[string]*model.Instance, len(instances))
	for _, inst := range instances {
		if inst.ID == "" || deleting[inst.ID] {
			continue
		}
		if _, dup := s.byID[inst.ID]; dup {
			continue
		}
		s.appendLocked(inst)
	}
	for _, inst := range creating {
		if _, ok := s.byID[inst.ID]; !ok {
			s.appendLocked(inst)
		}
	}
	if _, ok := s.byID[s.selected]; !ok {
		s.selected = ""
	}
	n := len(s.order)
	s.mu.Unlock()

	s.bus.Emit(bus.InstanceReloaded, n)
}

// Update merges patch into the record with the given id. MessagesCount is only
// ever raised through Update. Returns false if id is unknown.
func (s *Store) Update(id string, patch model.InstancePatch) bool {
	s.mu.Lock()
	inst, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	applyPatch(inst, patch)
	out := *inst
	s.mu.Unlock()

	s.bus.Emit(bus.InstanceUpdated, out)
	return true
}

// AddMessages raises the message count of id by n and bumps its last activity.
func (s *Store) AddMessages(id string, n int, at time.Time) bool {
	if n <= 0 {
		return false
	}
	s.mu.Lock()
	inst, ok := s.byID[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	inst.MessagesCount += n
	if at.After(inst.LastActivity) {
		inst.LastActivity = at
	}
	out := *inst
	s.mu.Unlock()

	s.bus.Emit(bus.InstanceUpdated, out)
	return true
}

// Delete removes the record. Clears selection if it pointed at id.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	_, ok := s.removeLocked(id)
	s.mu.Unlock()
	if !ok {
		return false
	}

	s.bus.Emit(bus.InstanceDeleted, id)
	return true
}

func (s *Store) removeLocked(id string) (int, bool) {
	if _, ok := s.byID[id]; !ok {
		return -1, false
	}
	delete(s.byID, id)
	idx := -1
	for i, oid := range s.order {
		if oid == id {
			idx = i
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	if s.selected == id {
		s.selected = ""
	}
	return idx, true
}

// Select sets the selected instance. An empty id clears the selection; an
// unknown id leaves it unchanged and returns false.
func (s *Store) Select(id string) bool {
	s.mu.Lock()
	if id != "" {
		if _, ok := s.byID[id]; !ok {
			s.mu.Unlock()
			return false
		}
	}
	s.selected = id
	s.mu.Unlock()

	s.bus.Emit(bus.InstanceSelected, id)
	return true
}

// Selected returns the selected instance, if any.
func (s *Store) Selected() (model.Instance, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == "" {
		return model.Instance{}, false
	}
	inst, ok := s.byID[s.selected]
	if !ok {
		return model.Instance{}, false
	}
	return *inst, true
}

// ViewMode returns the presentation preference.
func (s *Store) ViewMode() model.ViewMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewMode
}

// SetViewMode sets the presentation preference.
func (s *Store) SetViewMode(m model.ViewMode) {
	s.mu.Lock()
	s.viewMode = m
	s.mu.Unlock()
}

// ConnectedCount returns the number of instances whose status is CONNECTED.
func (s *Store) ConnectedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, inst := range s.byID {
		if inst.Status == model.StatusConnected {
			n++
		}
	}
	return n
}

// TotalMessages returns the sum of message counts across all instances.
func (s *Store) TotalMessages() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, inst := range s.byID {
		total += inst.MessagesCount
	}
	return total
}

func applyPatch(inst *model.Instance, p model.InstancePatch) {
	if p.Name != nil {
		inst.Name = *p.Name
	}
	if p.Type != nil {
		inst.Type = *p.Type
	}
	if p.Status != nil {
		inst.Status = *p.Status
	}
	if p.LastActivity != nil {
		inst.LastActivity = *p.LastActivity
	}
	if p.MessagesCount != nil && *p.MessagesCount > inst.MessagesCount {
		inst.MessagesCount = *p.MessagesCount
	}
	if p.WebhookURL != nil {
		inst.WebhookURL = *p.WebhookURL
	}
	if p.Avatar != nil {
		inst.Avatar = *p.Avatar
	}
	if p.QRCode != nil {
		inst.QRCode = *p.QRCode
	}
}
