package models

import "time"

// Message content types.
const (
	MessageTypeText  = "text"
	MessageTypeImage = "image"
	MessageTypeVideo = "video"
	MessageTypeFile  = "file"
)

// Message is an append-only chat message. Content holds either text or a
// blob-store URL for media types. Ordering is (created_at, id); the id
// tie-break makes same-timestamp messages sort deterministically.
type Message struct {
	ID        int64     `db:"id" json:"id"`
	ChatID    int64     `db:"chat_id" json:"chat_id"`
	SenderID  int64     `db:"sender_id" json:"sender_id"`
	Content   string    `db:"content" json:"content"`
	Type      string    `db:"type" json:"type"`
	ReplyTo   *int64    `db:"reply_to" json:"reply_to,omitempty"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Cursor is the store-assigned ordering token used for keyset pagination.
// The zero value means "from the beginning".
type Cursor struct {
	CreatedAt time.Time
	ID        int64
}

// IsZero reports whether the cursor points at the start of the log.
func (c Cursor) IsZero() bool {
	return c.ID == 0 && c.CreatedAt.IsZero()
}
