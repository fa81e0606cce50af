package model

import (
	"strings"
	"time"
)

// MessageType is the content kind of a message.
type MessageType string

const (
	TypeText     MessageType = "text"
	TypeImage    MessageType = "image"
	TypeAudio    MessageType = "audio"
	TypeVideo    MessageType = "video"
	TypeDocument MessageType = "document"
	TypeLocation MessageType = "location"
	TypeContact  MessageType = "contact"
	TypeSticker  MessageType = "sticker"
)

// ParseMessageType maps a remote type name onto a MessageType. Unknown names are text.
func ParseMessageType(s string) MessageType {
	switch t := MessageType(strings.ToLower(strings.TrimSpace(s))); t {
	case TypeText, TypeImage, TypeAudio, TypeVideo, TypeDocument, TypeLocation, TypeContact, TypeSticker:
		return t
	case "ptt":
		return TypeAudio
	case "chat", "conversation":
		return TypeText
	default:
		return TypeText
	}
}

// MessageStatus is the delivery status of a message.
type MessageStatus string

const (
	MessageSending   MessageStatus = "sending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

var statusRank = map[MessageStatus]int{
	MessageSending:   0,
	MessageSent:      1,
	MessageDelivered: 2,
	MessageRead:      3,
}

// CanAdvanceTo reports whether a message in status s may move to next.
// Statuses only move forward; failed is terminal and only follows sending or sent.
func (s MessageStatus) CanAdvanceTo(next MessageStatus) bool {
	if s == MessageFailed {
		return false
	}
	if next == MessageFailed {
		return s == MessageSending || s == MessageSent
	}
	cur, ok := statusRank[s]
	if !ok {
		return false
	}
	n, ok := statusRank[next]
	return ok && n > cur
}

// Chat is a conversation thread tied to one instance.
type Chat struct {
	ID              string    `json:"id"`
	InstanceID      string    `json:"instanceId"`
	Platform        Platform  `json:"platform,omitempty"`
	ContactName     string    `json:"contactName"`
	ContactPhone    string    `json:"contactPhone"`
	Avatar          string    `json:"avatar,omitempty"`
	LastMessage     string    `json:"lastMessage"`
	LastMessageTime time.Time `json:"lastMessageTime"`
	UnreadCount     int       `json:"unreadCount"`
	IsGroup         bool      `json:"isGroup"`
	Participants    []string  `json:"participants,omitempty"`
	IsPinned        bool      `json:"isPinned"`
	IsMuted         bool      `json:"isMuted"`
}

// Sender describes the author of a message.
type Sender struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
	IsMe   bool   `json:"isMe"`
}

// MessageMetadata holds type-specific attributes.
type MessageMetadata struct {
	FileName  string  `json:"fileName,omitempty"`
	FileSize  int64   `json:"fileSize,omitempty"`
	Duration  int     `json:"duration,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
	Thumbnail string  `json:"thumbnail,omitempty"`
}

// Message is a single message within a chat.
type Message struct {
	ID        string           `json:"id"`
	ChatID    string           `json:"chatId"`
	Content   string           `json:"content"`
	Type      MessageType      `json:"type"`
	Timestamp time.Time        `json:"timestamp"`
	Sender    Sender           `json:"sender"`
	Status    MessageStatus    `json:"status"`
	ReplyTo   string           `json:"replyTo,omitempty"`
	Metadata  *MessageMetadata `json:"metadata,omitempty"`
}

// MessageDraft is a message before the store assigns its id and timestamp.
type MessageDraft struct {
	Content  string
	Type     MessageType
	Sender   Sender
	Status   MessageStatus
	ReplyTo  string
	Metadata *MessageMetadata
}

// TypingIndicator marks a user as currently typing in a chat.
type TypingIndicator struct {
	ChatID    string
	UserID    string
	UserName  string
	StartedAt time.Time
}
