package model

import (
	"strings"
	"time"
)

// Platform identifies the messaging platform an instance connects to.
type Platform string

const (
	PlatformWhatsApp  Platform = "whatsapp"
	PlatformInstagram Platform = "instagram"
	PlatformFacebook  Platform = "facebook"
	PlatformTelegram  Platform = "telegram"
)

// InstanceStatus is the canonical connection status of an instance.
type InstanceStatus string

const (
	StatusConnected    InstanceStatus = "CONNECTED"
	StatusDisconnected InstanceStatus = "DISCONNECTED"
	StatusConnecting   InstanceStatus = "CONNECTING"
	StatusError        InstanceStatus = "ERROR"
)

// ViewMode is the presentation preference for the instance list.
type ViewMode string

const (
	ViewGrid ViewMode = "grid"
	ViewList ViewMode = "list"
)

// Instance is a configured connection to a messaging platform account.
type Instance struct {
	ID            string         `json:"id"`
	Name          string         `json:"name"`
	Type          Platform       `json:"type"`
	Status        InstanceStatus `json:"status"`
	LastActivity  time.Time      `json:"lastActivity"`
	MessagesCount int            `json:"messagesCount"`
	CreatedAt     time.Time      `json:"createdAt"`
	WebhookURL    string         `json:"webhookUrl,omitempty"`
	Avatar        string         `json:"avatar,omitempty"`
	// QRCode is only set while the instance waits for pairing.
	QRCode string `json:"qrCode,omitempty"`
}

// InstanceDraft holds the caller-supplied fields of a new instance.
type InstanceDraft struct {
	Name          string
	Type          Platform
	Status        InstanceStatus
	LastActivity  time.Time
	MessagesCount int
	WebhookURL    string
	Avatar        string
}

// InstancePatch is a partial update. Nil fields are left untouched.
type InstancePatch struct {
	Name          *string
	Type          *Platform
	Status        *InstanceStatus
	LastActivity  *time.Time
	MessagesCount *int
	WebhookURL    *string
	Avatar        *string
	QRCode        *string
}

// Empty reports whether the patch changes nothing.
func (p InstancePatch) Empty() bool {
	return p.Name == nil && p.Type == nil && p.Status == nil && p.LastActivity == nil &&
		p.MessagesCount == nil && p.WebhookURL == nil && p.Avatar == nil && p.QRCode == nil
}

// Ptr returns a pointer to v. Handy for building patches.
func Ptr[T any](v T) *T {
	return &v
}

// MapRemoteStatus translates a status string reported by the remote service into
// the canonical status. Matching ignores case and surrounding whitespace.
// Unrecognized values map to StatusDisconnected.
func MapRemoteStatus(s string) InstanceStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open", "connected":
		return StatusConnected
	case "initializing", "connecting":
		return StatusConnecting
	case "closed", "disconnected":
		return StatusDisconnected
	case "failed", "error":
		return StatusError
	default:
		return StatusDisconnected
	}
}

// ParsePlatform returns the platform named by s, defaulting to WhatsApp.
func ParsePlatform(s string) Platform {
	switch p := Platform(strings.ToLower(strings.TrimSpace(s))); p {
	case PlatformWhatsApp, PlatformInstagram, PlatformFacebook, PlatformTelegram:
		return p
	default:
		return PlatformWhatsApp
	}
}
