// Package wa turns realtime payloads from WhatsApp-backed instances into
// chat store records.
package wa

import (
	"errors"
	"fmt"
	"strings"

	"github.com/rainergb/omni-chat-app-sub001/internal/chat"
	"github.com/rainergb/omni-chat-app-sub001/internal/model"
	"github.com/rainergb/omni-chat-app-sub001/internal/realtime"
	"go.mau.fi/whatsmeow/types"
)

// ChatID builds the store id of the chat between an instance and a counterpart.
func ChatID(instanceID string, jid types.JID) string {
	return instanceID + ":" + jid.String()
}

// NormalizeJID parses s into a non-AD JID. Bare phone numbers are accepted and
// the legacy c.us server is folded into s.whatsapp.net.
func NormalizeJID(s string) (types.JID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return types.EmptyJID, errors.New("empty JID")
	}
	if !strings.ContainsRune(s, '@') {
		digits := strings.Map(func(r rune) rune {
			if r >= '0' && r <= '9' {
				return r
			}
			return -1
		}, s)
		if digits == "" {
			return types.EmptyJID, fmt.Errorf("invalid phone %q", s)
		}
		return types.NewJID(digits, types.DefaultUserServer), nil
	}
	jid, err := types.ParseJID(s)
	if err != nil {
		return types.EmptyJID, fmt.Errorf("parse JID %q: %w", s, err)
	}
	jid = jid.ToNonAD()
	if jid.Server == types.LegacyUserServer {
		jid.Server = types.DefaultUserServer
	}
	if jid.User == "" {
		return types.EmptyJID, fmt.Errorf("JID %q has no user", s)
	}
	return jid, nil
}

// ParseInbound converts a "mensagem" payload into an ingestible message and the
// chat it belongs to. The counterpart is the sender, or the recipient when the
// message was sent from the instance itself. For such echoes the payload id is
// kept as the correlation id, since it carries the id this client sent with
// enviarMensagem.
func ParseInbound(p realtime.MessagePayload) (chat.Inbound, error) {
	if p.InstanceID == "" {
		return chat.Inbound{}, errors.New("message without instance id")
	}
	id := p.MessageID
	if id == "" {
		id = p.ID
	}
	if id == "" {
		return chat.Inbound{}, errors.New("message without id")
	}
	raw := p.From
	if p.FromMe {
		raw = p.To
	}
	peer, err := NormalizeJID(raw)
	if err != nil {
		return chat.Inbound{}, fmt.Errorf("counterpart: %w", err)
	}

	isGroup := peer.Server == types.GroupServer
	phone := ""
	if !isGroup {
		phone = peer.User
	}

	sender := model.Sender{IsMe: p.FromMe, Name: p.PushName}
	if from, err := NormalizeJID(p.From); err == nil {
		sender.ID = from.String()
		if sender.Name == "" {
			sender.Name = from.User
		}
	}

	contact := phone
	if !p.FromMe && !isGroup && p.PushName != "" {
		contact = p.PushName
	}
	if isGroup {
		contact = peer.User
	}

	status := model.MessageDelivered
	if p.FromMe {
		status = model.MessageSent
	}

	c := model.Chat{
		ID:           ChatID(p.InstanceID, peer),
		InstanceID:   p.InstanceID,
		Platform:     model.PlatformWhatsApp,
		ContactName:  contact,
		ContactPhone: phone,
		IsGroup:      isGroup,
	}
	correlation := ""
	if p.FromMe && p.ID != id {
		correlation = p.ID
	}
	return chat.Inbound{
		Chat:          c,
		CorrelationID: correlation,
		Message: model.Message{
			ID:        id,
			ChatID:    c.ID,
			Content:   p.Body,
			Type:      model.ParseMessageType(p.Type),
			Timestamp: p.Timestamp.Time(),
			Sender:    sender,
			Status:    status,
		},
	}, nil
}
