package access

import (
	"context"
	"errors"

	"chat-backend/internal/models"
)

// MembershipReader is the slice of the membership store the guard needs.
// Both checks are primary-key lookups; the guard never queries through
// another authorization layer, which is what keeps policy evaluation
// non-recursive.
type MembershipReader interface {
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
	Role(ctx context.Context, chatID, userID int64) (string, error)
}

// Guard evaluates whether a user may read, write, or manage a chat's data.
// It holds no state of its own.
type Guard struct {
	members MembershipReader
}

// NewGuard constructs a Guard over the membership store.
func NewGuard(members MembershipReader) *Guard {
	return &Guard{members: members}
}

// CanRead reports whether the user currently belongs to the chat.
func (g *Guard) CanRead(ctx context.Context, userID, chatID int64) (bool, error) {
	return g.members.IsMember(ctx, chatID, userID)
}

// CanWrite is identical to CanRead; messages carry no separate write role.
func (g *Guard) CanWrite(ctx context.Context, userID, chatID int64) (bool, error) {
	return g.members.IsMember(ctx, chatID, userID)
}

// CanManage reports whether the user holds the admin role in the chat.
func (g *Guard) CanManage(ctx context.Context, userID, chatID int64) (bool, error) {
	role, err := g.members.Role(ctx, chatID, userID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return role == models.RoleAdmin, nil
}

// CanDeleteMessage reports whether the user authored the message.
func (g *Guard) CanDeleteMessage(userID int64, msg models.Message) bool {
	return msg.SenderID == userID
}
