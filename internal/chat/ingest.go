package chat

import (
	"time"

	"github.com/rainergb/omni-chat-app-sub001/internal/bus"
	"github.com/rainergb/omni-chat-app-sub001/internal/model"
)

// Inbound is a server-originated message together with the chat it belongs to.
type Inbound struct {
	Chat    model.Chat
	Message model.Message
	// CorrelationID is the local id of the outgoing message this one echoes.
	CorrelationID string
}

// IngestMessage stores a message that already carries a server id and timestamp.
// The chat is created from in.Chat when missing. Ingesting the same message id
// twice is a no-op returning false, as is a message without id. The echo of a
// message sent from this client, matched by id or CorrelationID, only advances
// the local copy's status.
func (s *Store) IngestMessage(in Inbound) bool {
	msg := in.Message
	if msg.ID == "" {
		return false
	}
	msg.ChatID = in.Chat.ID
	if msg.Timestamp.IsZero() {
		msg.Timestamp = time.Now()
	}
	if msg.Status == "" {
		msg.Status = model.MessageDelivered
	}

	s.mu.Lock()
	for _, m := range s.messages[msg.ChatID] {
		echo := in.CorrelationID != "" && m.ID == in.CorrelationID && m.Sender.IsMe
		if m.ID != msg.ID && !echo {
			continue
		}
		s.mu.Unlock()
		if m.Sender.IsMe && msg.Sender.IsMe {
			s.UpdateMessageStatus(m.ID, msg.Status)
		}
		return false
	}
	created := false
	if _, ok := s.chats[msg.ChatID]; !ok {
		c := in.Chat
		c.UnreadCount = 0
		s.chats[c.ID] = &c
		s.order = append(s.order, c.ID)
		created = true
	}
	s.appendLocked(msg)
	c := s.chats[msg.ChatID]
	if c.ContactName == "" {
		c.ContactName = in.Chat.ContactName
	}
	n := len(s.order)
	s.mu.Unlock()

	if created {
		s.bus.Emit(bus.ChatsReplaced, n)
	}
	s.bus.Emit(bus.ChatMessageAdded, msg)
	return true
}
