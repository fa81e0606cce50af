package outbox

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rainergb/omni-chat-app-sub001/internal/bus"
	"github.com/rainergb/omni-chat-app-sub001/internal/chat"
	"github.com/rainergb/omni-chat-app-sub001/internal/model"
	"github.com/rainergb/omni-chat-app-sub001/internal/realtime"
	"go.uber.org/zap"
)

// Emitter carries an outbound event over the realtime channel.
type Emitter interface {
	Emit(ctx context.Context, event string, data any) error
}

// Self is the sender attached to messages written from this client.
var Self = model.Sender{ID: "me", Name: "Você", IsMe: true}

// Result is the payload of message.send_ack and message.send_failed.
type Result struct {
	ChatID    string
	MessageID string
	Err       string
}

// Sender writes outgoing messages optimistically: the message shows up in the
// chat store as sending before the channel is touched, then moves to sent or
// failed. Nothing is queued while the channel is down.
type Sender struct {
	chats   *chat.Store
	emitter Emitter
	bus     *bus.Bus
	logger  *zap.Logger
}

// NewSender creates a new outbox sender.
func NewSender(chats *chat.Store, emitter Emitter, b *bus.Bus, logger *zap.Logger) *Sender {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sender{
		chats:   chats,
		emitter: emitter,
		bus:     b,
		logger:  logger.Named("outbox"),
	}
}

// Send appends content to chatID and emits it. The returned message carries
// its final status; err is non-nil when it failed.
func (s *Sender) Send(ctx context.Context, chatID, content string) (model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return model.Message{}, errors.New("empty message")
	}
	instanceID, to := route(s.chats, chatID)

	msg := s.chats.AddMessage(chatID, model.MessageDraft{
		Content: content,
		Type:    model.TypeText,
		Sender:  Self,
		Status:  model.MessageSending,
	})

	err := s.emitter.Emit(ctx, realtime.EventSendMessage, realtime.SendPayload{
		ID:         msg.ID,
		InstanceID: instanceID,
		ChatID:     chatID,
		To:         to,
		Body:       content,
		Type:       string(model.TypeText),
	})
	if err != nil {
		s.logger.Error("failed to send message", zap.Error(err), zap.String("chat_id", chatID), zap.String("msg_id", msg.ID))
		s.chats.UpdateMessageStatus(msg.ID, model.MessageFailed)
		msg.Status = model.MessageFailed
		s.bus.Emit(bus.MessageSendFailed, Result{ChatID: chatID, MessageID: msg.ID, Err: err.Error()})
		return msg, fmt.Errorf("send message: %w", err)
	}

	s.chats.UpdateMessageStatus(msg.ID, model.MessageSent)
	msg.Status = model.MessageSent
	s.logger.Info("message sent", zap.String("chat_id", chatID), zap.String("msg_id", msg.ID))
	s.bus.Emit(bus.MessageSendAck, Result{ChatID: chatID, MessageID: msg.ID})
	return msg, nil
}

// route resolves the instance and recipient of chatID. Chat ids have the form
// "<instance>:<jid>"; a known chat's InstanceID takes precedence.
func route(chats *chat.Store, chatID string) (instanceID, to string) {
	instanceID, to, _ = strings.Cut(chatID, ":")
	if c, ok := chats.Chat(chatID); ok {
		if c.InstanceID != "" {
			instanceID = c.InstanceID
			to = strings.TrimPrefix(chatID, c.InstanceID+":")
		}
		if c.ContactPhone != "" && to == "" {
			to = c.ContactPhone
		}
	}
	return instanceID, to
}
