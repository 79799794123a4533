package models

import "time"

// Chat kinds.
const (
	ChatKindDirect = "direct"
	ChatKindGroup  = "group"
)

// Membership roles.
const (
	RoleMember = "member"
	RoleAdmin  = "admin"
)

// Chat is a conversation container, direct (two-party) or group (N-party).
type Chat struct {
	ID          int64     `db:"id" json:"id"`
	Kind        string    `db:"kind" json:"kind"`
	Name        string    `db:"name" json:"name,omitempty"`
	Description string    `db:"description" json:"description,omitempty"`
	AvatarURL   string    `db:"avatar_url" json:"avatar_url,omitempty"`
	CreatorID   int64     `db:"creator_id" json:"creator_id"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Membership grants a user access to a chat with a role.
// Unique per (chat, user) pair.
type Membership struct {
	ChatID   int64     `db:"chat_id" json:"chat_id"`
	UserID   int64     `db:"user_id" json:"user_id"`
	Role     string    `db:"role" json:"role"`
	JoinedAt time.Time `db:"joined_at" json:"joined_at"`
}
