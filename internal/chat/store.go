package chat

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rainergb/omni-chat-app-sub001/internal/bus"
	"github.com/rainergb/omni-chat-app-sub001/internal/model"
)

// Filter selects which chats Visible returns. Zero values match everything.
type Filter struct {
	InstanceID string
	Platform   model.Platform
	UnreadOnly bool
	Search     string
}

// FilterPatch is merged into the current Filter. Nil fields are left untouched.
type FilterPatch struct {
	InstanceID *string
	Platform   *model.Platform
	UnreadOnly *bool
	Search     *string
}

// Snapshot is a point-in-time copy of the store used for persistence.
type Snapshot struct {
	Chats    []model.Chat
	Messages map[string][]model.Message
}

type typingKey struct {
	chatID string
	userID string
}

// Store owns the chat list and the per-chat message sequences. Messages for a
// chat are kept in the order they were added; the store never re-sorts them.
type Store struct {
	mu               sync.Mutex
	order            []string
	chats            map[string]*model.Chat
	messages         map[string][]model.Message
	selectedChat     string
	selectedInstance string
	filter           Filter
	typing           map[typingKey]model.TypingIndicator
	bus              *bus.Bus
	now              func() time.Time
}

// New creates an empty chat store. b may be nil.
func New(b *bus.Bus) *Store {
	return &Store{
		chats:    make(map[string]*model.Chat),
		messages: make(map[string][]model.Message),
		typing:   make(map[typingKey]model.TypingIndicator),
		bus:      b,
		now:      time.Now,
	}
}

// SetChats replaces the chat list. Message sequences are kept.
func (s *Store) SetChats(chats []model.Chat) {
	s.mu.Lock()
	s.order = s.order[:0]
	s.chats = make(map[string]*model.Chat, len(chats))
	for _, c := range chats {
		if _, dup := s.chats[c.ID]; dup {
			continue
		}
		cc := c
		s.chats[c.ID] = &cc
		s.order = append(s.order, c.ID)
	}
	if _, ok := s.chats[s.selectedChat]; !ok {
		s.selectedChat = ""
	}
	n := len(s.order)
	s.mu.Unlock()

	s.bus.Emit(bus.ChatsReplaced, n)
}

// Chats returns copies of every chat in list order.
func (s *Store) Chats() []model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Chat, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.chats[id])
	}
	return out
}

// Chat returns the chat with the given id.
func (s *Store) Chat(id string) (model.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[id]
	if !ok {
		return model.Chat{}, false
	}
	return *c, true
}

// Visible returns the chats matching the current filter.
func (s *Store) Visible() []model.Chat {
	s.mu.Lock()
	defer s.mu.Unlock()
	f := s.filter
	search := strings.ToLower(strings.TrimSpace(f.Search))
	var out []model.Chat
	for _, id := range s.order {
		c := s.chats[id]
		if f.InstanceID != "" && c.InstanceID != f.InstanceID {
			continue
		}
		if f.Platform != "" && c.Platform != f.Platform {
			continue
		}
		if f.UnreadOnly && c.UnreadCount == 0 {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(c.ContactName), search) &&
			!strings.Contains(strings.ToLower(c.ContactPhone), search) &&
			!strings.Contains(strings.ToLower(c.LastMessage), search) {
			continue
		}
		out = append(out, *c)
	}
	return out
}

// SelectChat makes id the selected chat and zeroes its unread count. An empty id
// clears the selection. An unknown id is a no-op returning false.
func (s *Store) SelectChat(id string) bool {
	s.mu.Lock()
	if id == "" {
		s.selectedChat = ""
		s.mu.Unlock()
		s.bus.Emit(bus.ChatSelected, "")
		return true
	}
	c, ok := s.chats[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	s.selectedChat = id
	c.UnreadCount = 0
	s.mu.Unlock()

	s.bus.Emit(bus.ChatSelected, id)
	return true
}

// SelectedChat returns the selected chat, if any.
func (s *Store) SelectedChat() (model.Chat, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[s.selectedChat]
	if !ok {
		return model.Chat{}, false
	}
	return *c, true
}

// SelectInstance switches the active instance and clears the chat selection.
func (s *Store) SelectInstance(id string) {
	s.mu.Lock()
	s.selectedInstance = id
	s.selectedChat = ""
	s.mu.Unlock()

	s.bus.Emit(bus.ChatSelected, "")
}

// SelectedInstance returns the id of the active instance, or "".
func (s *Store) SelectedInstance() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedInstance
}

// SetFilter merges p into the current filter.
func (s *Store) SetFilter(p FilterPatch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p.InstanceID != nil {
		s.filter.InstanceID = *p.InstanceID
	}
	if p.Platform != nil {
		s.filter.Platform = *p.Platform
	}
	if p.UnreadOnly != nil {
		s.filter.UnreadOnly = *p.UnreadOnly
	}
	if p.Search != nil {
		s.filter.Search = *p.Search
	}
}

// Filter returns the current filter.
func (s *Store) Filter() Filter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.filter
}

// SetMessages replaces the message sequence of chatID.
func (s *Store) SetMessages(chatID string, msgs []model.Message) {
	s.mu.Lock()
	cp := make([]model.Message, len(msgs))
	copy(cp, msgs)
	s.messages[chatID] = cp
	s.mu.Unlock()

	s.bus.Emit(bus.ChatMessagesSet, chatID)
}

// Messages returns a copy of the message sequence of chatID.
func (s *Store) Messages(chatID string) []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[chatID]
	out := make([]model.Message, len(msgs))
	copy(out, msgs)
	return out
}

// AddMessage assigns an id and the current time to draft, appends it to chatID
// and refreshes the chat's preview. Unread grows by one unless the sender is self.
func (s *Store) AddMessage(chatID string, draft model.MessageDraft) model.Message {
	s.mu.Lock()
	msg := model.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Content:   draft.Content,
		Type:      draft.Type,
		Timestamp: s.now(),
		Sender:    draft.Sender,
		Status:    draft.Status,
		ReplyTo:   draft.ReplyTo,
		Metadata:  draft.Metadata,
	}
	if msg.Type == "" {
		msg.Type = model.TypeText
	}
	if msg.Status == "" {
		msg.Status = model.MessageSending
	}
	s.appendLocked(msg)
	s.mu.Unlock()

	s.bus.Emit(bus.ChatMessageAdded, msg)
	return msg
}

func (s *Store) appendLocked(msg model.Message) {
	s.messages[msg.ChatID] = append(s.messages[msg.ChatID], msg)
	c, ok := s.chats[msg.ChatID]
	if !ok {
		return
	}
	c.LastMessage = msg.Content
	c.LastMessageTime = msg.Timestamp
	if !msg.Sender.IsMe {
		c.UnreadCount++
	}
}

// MarkAsRead zeroes the unread count of chatID.
func (s *Store) MarkAsRead(chatID string) bool {
	s.mu.Lock()
	c, ok := s.chats[chatID]
	if ok {
		c.UnreadCount = 0
	}
	s.mu.Unlock()
	if ok {
		s.bus.Emit(bus.ChatRead, chatID)
	}
	return ok
}

// UnreadTotal returns the sum of unread counts across all chats.
func (s *Store) UnreadTotal() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.chats {
		n += c.UnreadCount
	}
	return n
}

// MessageStatusChange is the payload published when a message status moves.
type MessageStatusChange struct {
	ChatID    string
	MessageID string
	Status    model.MessageStatus
}

// UpdateMessageStatus sets the status of the first message with the given id,
// searching every chat. Message ids are assumed globally unique. Moves that are
// not forward (see model.MessageStatus.CanAdvanceTo) and unknown ids are no-ops.
func (s *Store) UpdateMessageStatus(messageID string, status model.MessageStatus) bool {
	s.mu.Lock()
	for chatID, msgs := range s.messages {
		for i := range msgs {
			if msgs[i].ID != messageID {
				continue
			}
			if !msgs[i].Status.CanAdvanceTo(status) {
				s.mu.Unlock()
				return false
			}
			msgs[i].Status = status
			s.mu.Unlock()
			s.bus.Emit(bus.ChatMessageState, MessageStatusChange{ChatID: chatID, MessageID: messageID, Status: status})
			return true
		}
	}
	s.mu.Unlock()
	return false
}

// AddTypingIndicator records that a user is typing. A second indicator for the
// same chat and user replaces the first.
func (s *Store) AddTypingIndicator(ti model.TypingIndicator) {
	if ti.StartedAt.IsZero() {
		ti.StartedAt = s.now()
	}
	s.mu.Lock()
	s.typing[typingKey{ti.ChatID, ti.UserID}] = ti
	s.mu.Unlock()

	s.bus.Emit(bus.ChatTyping, ti)
}

// RemoveTypingIndicator clears the indicator for the given chat and user.
func (s *Store) RemoveTypingIndicator(chatID, userID string) {
	s.mu.Lock()
	delete(s.typing, typingKey{chatID, userID})
	s.mu.Unlock()

	s.bus.Emit(bus.ChatTyping, model.TypingIndicator{ChatID: chatID, UserID: userID})
}

// TypingIndicators returns the active indicators for chatID.
func (s *Store) TypingIndicators(chatID string) []model.TypingIndicator {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.TypingIndicator
	for k, ti := range s.typing {
		if k.chatID == chatID {
			out = append(out, ti)
		}
	}
	return out
}

// Snapshot copies the chats and message sequences.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Chats:    make([]model.Chat, 0, len(s.order)),
		Messages: make(map[string][]model.Message, len(s.messages)),
	}
	for _, id := range s.order {
		snap.Chats = append(snap.Chats, *s.chats[id])
	}
	for id, msgs := range s.messages {
		cp := make([]model.Message, len(msgs))
		copy(cp, msgs)
		snap.Messages[id] = cp
	}
	return snap
}
