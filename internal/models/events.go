package models

// Realtime event types pushed to websocket subscribers and mirrored to the
// event exchange.
const (
	EventMessageCreated = "message.created"
	EventMessageDeleted = "message.deleted"
	EventMemberAdded    = "member.added"
	EventMemberRemoved  = "member.removed"
	EventTyping         = "typing"
)

// Event is the envelope delivered to subscribers of a chat topic. Delivery
// is at-least-once; clients de-duplicate by message id.
type Event struct {
	Type       string      `json:"type"`
	ChatID     int64       `json:"chat_id"`
	Message    *Message    `json:"message,omitempty"`
	MessageID  int64       `json:"message_id,omitempty"`
	Membership *Membership `json:"membership,omitempty"`
	UserID     int64       `json:"user_id,omitempty"`
	Typing     *bool       `json:"typing,omitempty"`
}
