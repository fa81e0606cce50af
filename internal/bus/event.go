package bus

import "time"

// Event kinds published inside a session. Subscribers filter by namespace prefix
// ("rt.", "instance.", "chat.", ...).
const (
	RealtimeConnected    = "rt.connected"
	RealtimeDisconnected = "rt.disconnected"
	RealtimeError        = "rt.error"
	RealtimeMessage      = "rt.message"
	RealtimeStatus       = "rt.status"
	RealtimeState        = "rt.state_changed"

	InstanceCreated  = "instance.created"
	InstanceUpdated  = "instance.updated"
	InstanceDeleted  = "instance.deleted"
	InstanceReloaded = "instance.reloaded"
	InstanceSelected = "instance.selected"

	ChatsReplaced    = "chat.replaced"
	ChatSelected     = "chat.selected"
	ChatRead         = "chat.read"
	ChatMessageAdded = "chat.message_added"
	ChatMessageState = "chat.message_status"
	ChatMessagesSet  = "chat.messages_set"
	ChatTyping       = "chat.typing"

	MessageSendAck    = "message.send_ack"
	MessageSendFailed = "message.send_failed"

	NotifyError = "notify.error"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
