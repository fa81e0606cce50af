package gateway

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/rainergb/omni-chat-app-sub001/internal/model"
)

// Webhook suffixes appended to the configured base URL on create.
const (
	WebhookMessage      = "/mensagem"
	WebhookStatus       = "/statuschat"
	WebhookConnected    = "/conectado"
	WebhookDisconnected = "/desconectado"
)

// CreateRequest is the body of POST /instancia.
type CreateRequest struct {
	Canal               string `json:"canal"`
	TempoEnvio          int    `json:"tempoEnvio"`
	WebHookMensagem     string `json:"webHookMensagem"`
	WebHookStatusChat   string `json:"webHookStatusChat"`
	WebHookConectado    string `json:"webHookConectado"`
	WebHookDesconectado string `json:"webHookDesconectado"`
}

// CreateResponse is returned by POST /instancia.
type CreateResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
	Success bool   `json:"success"`
}

// QRCodeResponse is returned by GET /instancia/qrcode/{id}.
type QRCodeResponse struct {
	QRCode  string `json:"qrcode"`
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// Ack is the generic {success, message} acknowledgement.
type Ack struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// flexString accepts a JSON string or number.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	*f = flexString(string(b))
	return nil
}

// flexTime accepts RFC 3339 strings and unix timestamps in seconds or milliseconds.
type flexTime time.Time

func (f *flexTime) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		if s == "" {
			return nil
		}
		if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
			*f = flexTime(t)
			return nil
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			*f = flexTime(model.UnixAuto(n))
		}
		return nil
	}
	n, err := strconv.ParseFloat(string(b), 64)
	if err != nil {
		return nil
	}
	*f = flexTime(model.UnixAuto(int64(n)))
	return nil
}

// remoteInstance is the instance shape reported by the service. Field names vary
// between deployments, hence the aliases.
type remoteInstance struct {
	ID            flexString `json:"id"`
	Name          string     `json:"name"`
	Canal         string     `json:"canal"`
	Type          string     `json:"type"`
	Status        string     `json:"status"`
	LastActivity  flexTime   `json:"lastActivity"`
	MessagesCount int        `json:"messagesCount"`
	CreatedAt     flexTime   `json:"createdAt"`
	WebhookURL    string     `json:"webhookUrl"`
	WebHook       string     `json:"webHookMensagem"`
	Avatar        string     `json:"avatar"`
	QRCode        string     `json:"qrCode"`
}

func (r remoteInstance) toModel() model.Instance {
	name := r.Name
	if name == "" {
		name = r.Canal
	}
	webhook := r.WebhookURL
	if webhook == "" {
		webhook = r.WebHook
	}
	return model.Instance{
		ID:            strings.TrimSpace(string(r.ID)),
		Name:          name,
		Type:          model.ParsePlatform(r.Type),
		Status:        model.MapRemoteStatus(r.Status),
		LastActivity:  time.Time(r.LastActivity),
		MessagesCount: r.MessagesCount,
		CreatedAt:     time.Time(r.CreatedAt),
		WebhookURL:    webhook,
		Avatar:        r.Avatar,
		QRCode:        r.QRCode,
	}
}

// remoteEcho decodes an update response. Deployments answer with the full
// record, only the changed fields, or a bare acknowledgement, so every field
// is optional and absent ones stay nil.
type remoteEcho struct {
	Name          *string   `json:"name"`
	Canal         *string   `json:"canal"`
	Type          *string   `json:"type"`
	Status        *string   `json:"status"`
	LastActivity  *flexTime `json:"lastActivity"`
	MessagesCount *int      `json:"messagesCount"`
	WebhookURL    *string   `json:"webhookUrl"`
	WebHook       *string   `json:"webHookMensagem"`
	Avatar        *string   `json:"avatar"`
	Success       *bool     `json:"success"`
	Message       string    `json:"message"`
}

func (r remoteEcho) toPatch() model.InstancePatch {
	var p model.InstancePatch
	switch {
	case r.Name != nil && *r.Name != "":
		p.Name = r.Name
	case r.Canal != nil && *r.Canal != "":
		p.Name = r.Canal
	}
	if r.Type != nil && *r.Type != "" {
		p.Type = model.Ptr(model.ParsePlatform(*r.Type))
	}
	if r.Status != nil && *r.Status != "" {
		p.Status = model.Ptr(model.MapRemoteStatus(*r.Status))
	}
	if r.LastActivity != nil && !time.Time(*r.LastActivity).IsZero() {
		p.LastActivity = model.Ptr(time.Time(*r.LastActivity))
	}
	p.MessagesCount = r.MessagesCount
	switch {
	case r.WebhookURL != nil:
		p.WebhookURL = r.WebhookURL
	case r.WebHook != nil:
		p.WebhookURL = r.WebHook
	}
	p.Avatar = r.Avatar
	return p
}

// patchBody renders a partial update as the JSON object sent on PUT.
func patchBody(p model.InstancePatch) map[string]any {
	body := make(map[string]any)
	if p.Name != nil {
		body["name"] = *p.Name
	}
	if p.Type != nil {
		body["type"] = string(*p.Type)
	}
	if p.Status != nil {
		body["status"] = string(*p.Status)
	}
	if p.WebhookURL != nil {
		body["webhookUrl"] = *p.WebhookURL
	}
	if p.Avatar != nil {
		body["avatar"] = *p.Avatar
	}
	return body
}
