package wa

import (
	"testing"

	"github.com/rainergb/omni-chat-app-sub001/internal/model"
	"github.com/rainergb/omni-chat-app-sub001/internal/realtime"
)

func TestNormalizeJID(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"5511999990000@s.whatsapp.net", "5511999990000@s.whatsapp.net", false},
		{"5511999990000@c.us", "5511999990000@s.whatsapp.net", false},
		{"5511999990000:12@s.whatsapp.net", "5511999990000@s.whatsapp.net", false},
		{"+55 (11) 99999-0000", "5511999990000@s.whatsapp.net", false},
		{"120363025246125888@g.us", "120363025246125888@g.us", false},
		{"", "", true},
		{"abc", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeJID(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && got.String() != tt.want {
				t.Errorf("NormalizeJID(%q) = %q, want %q", tt.in, got.String(), tt.want)
			}
		})
	}
}

func TestParseInboundDirect(t *testing.T) {
	in, err := ParseInbound(realtime.MessagePayload{
		ID:         "evt-1",
		MessageID:  "3EB0ABC",
		InstanceID: "i1",
		From:       "5511999990000@c.us",
		To:         "5511888880000@c.us",
		Body:       "olá",
		Type:       "chat",
		Timestamp:  1700000000,
		PushName:   "Ana",
	})
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}

	if in.Chat.ID != "i1:5511999990000@s.whatsapp.net" {
		t.Errorf("chat id = %q", in.Chat.ID)
	}
	if in.Chat.ContactPhone != "5511999990000" || in.Chat.ContactName != "Ana" || in.Chat.IsGroup {
		t.Errorf("chat = %+v", in.Chat)
	}
	if in.Message.ID != "3EB0ABC" || in.Message.ChatID != in.Chat.ID {
		t.Errorf("message ids = %q / %q", in.Message.ID, in.Message.ChatID)
	}
	if in.Message.Type != model.TypeText || in.Message.Status != model.MessageDelivered {
		t.Errorf("message = %+v", in.Message)
	}
	if in.Message.Sender.IsMe || in.Message.Sender.Name != "Ana" {
		t.Errorf("sender = %+v", in.Message.Sender)
	}
	if in.Message.Timestamp.Unix() != 1700000000 {
		t.Errorf("timestamp = %v", in.Message.Timestamp)
	}
}

func TestParseInboundFromMeUsesRecipient(t *testing.T) {
	in, err := ParseInbound(realtime.MessagePayload{
		ID:         "m2",
		InstanceID: "i1",
		From:       "5511888880000@s.whatsapp.net",
		To:         "5511999990000@s.whatsapp.net",
		Body:       "oi",
		FromMe:     true,
		Timestamp:  1700000000123,
	})
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if in.Chat.ID != "i1:5511999990000@s.whatsapp.net" {
		t.Errorf("chat id = %q", in.Chat.ID)
	}
	if !in.Message.Sender.IsMe || in.Message.Status != model.MessageSent {
		t.Errorf("message = %+v", in.Message)
	}
	if in.Message.ID != "m2" {
		t.Errorf("message id should fall back to payload id, got %q", in.Message.ID)
	}
	if in.Message.Timestamp.UnixMilli() != 1700000000123 {
		t.Errorf("timestamp = %v", in.Message.Timestamp)
	}
}

func TestParseInboundGroup(t *testing.T) {
	in, err := ParseInbound(realtime.MessagePayload{
		ID:         "m3",
		InstanceID: "i1",
		From:       "120363025246125888@g.us",
		Body:       "bom dia",
		Type:       "image",
	})
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if !in.Chat.IsGroup || in.Chat.ContactPhone != "" {
		t.Errorf("chat = %+v", in.Chat)
	}
	if in.Message.Type != model.TypeImage {
		t.Errorf("type = %q", in.Message.Type)
	}
}

func TestParseInboundRejects(t *testing.T) {
	if _, err := ParseInbound(realtime.MessagePayload{From: "5511@s.whatsapp.net"}); err == nil {
		t.Error("expected error without instance id")
	}
	if _, err := ParseInbound(realtime.MessagePayload{ID: "m1", InstanceID: "i1"}); err == nil {
		t.Error("expected error without counterpart")
	}
	if _, err := ParseInbound(realtime.MessagePayload{InstanceID: "i1", From: "5511999990000@s.whatsapp.net", Body: "oi"}); err == nil {
		t.Error("expected error without message id")
	}
}

func TestParseInboundEchoKeepsCorrelationID(t *testing.T) {
	in, err := ParseInbound(realtime.MessagePayload{
		ID:         "local-uuid",
		MessageID:  "3EB0ECHO",
		InstanceID: "i1",
		From:       "5511888880000@s.whatsapp.net",
		To:         "5511999990000@s.whatsapp.net",
		Body:       "oi",
		FromMe:     true,
	})
	if err != nil {
		t.Fatalf("ParseInbound: %v", err)
	}
	if in.Message.ID != "3EB0ECHO" || in.CorrelationID != "local-uuid" {
		t.Errorf("id = %q correlation = %q", in.Message.ID, in.CorrelationID)
	}

	in, _ = ParseInbound(realtime.MessagePayload{ID: "evt-1", MessageID: "3EB0IN", InstanceID: "i1", From: "5511999990000@s.whatsapp.net"})
	if in.CorrelationID != "" {
		t.Errorf("incoming message got correlation %q", in.CorrelationID)
	}
}
