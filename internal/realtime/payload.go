package realtime

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rainergb/omni-chat-app-sub001/internal/model"
)

// Channel event names exchanged with the server.
const (
	EventMessage       = "mensagem"
	EventConnected     = "conectado"
	EventDisconnected  = "desconectado"
	EventStatusSession = "statusSession"
	EventSendMessage   = "enviarMensagem"
)

// Frame is one message on the wire.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Timestamp decodes a unix time sent as a JSON number or numeric string, in
// seconds or milliseconds.
type Timestamp int64

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	if s == "" || s == "null" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if parsed, perr := time.Parse(time.RFC3339Nano, s); perr == nil {
			*t = Timestamp(parsed.UnixMilli())
		}
		return nil
	}
	*t = Timestamp(int64(f))
	return nil
}

// Time converts t, returning the zero time when unset.
func (t Timestamp) Time() time.Time {
	if t == 0 {
		return time.Time{}
	}
	return model.UnixAuto(int64(t))
}

// MessagePayload is the data of a "mensagem" event.
type MessagePayload struct {
	ID         string    `json:"id"`
	InstanceID string    `json:"instanceId"`
	From       string    `json:"from"`
	To         string    `json:"to"`
	Body       string    `json:"body"`
	Type       string    `json:"type"`
	Timestamp  Timestamp `json:"timestamp"`
	MessageID  string    `json:"messageId"`
	FromMe     bool      `json:"fromMe,omitempty"`
	PushName   string    `json:"pushName,omitempty"`
}

// StatusPayload is the data of "conectado", "desconectado" and "statusSession".
type StatusPayload struct {
	// Event is the channel event the payload arrived with.
	Event      string    `json:"-"`
	InstanceID string    `json:"instanceId"`
	Status     string    `json:"status"`
	Timestamp  Timestamp `json:"timestamp"`
}

// Resolve returns the instance status the event stands for. "conectado" and
// "desconectado" imply their status when the payload carries none.
func (p StatusPayload) Resolve() model.InstanceStatus {
	if strings.TrimSpace(p.Status) != "" {
		return model.MapRemoteStatus(p.Status)
	}
	switch p.Event {
	case EventConnected:
		return model.StatusConnected
	default:
		return model.StatusDisconnected
	}
}

// Disconnect is published with bus.RealtimeDisconnected.
type Disconnect struct {
	ServerInitiated bool
	Reason          string
}

// SendPayload is the data of an outgoing "enviarMensagem" event.
type SendPayload struct {
	ID         string `json:"id"`
	InstanceID string `json:"instanceId"`
	ChatID     string `json:"chatId"`
	To         string `json:"to"`
	Body       string `json:"body"`
	Type       string `json:"type"`
}
