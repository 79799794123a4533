package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-backend/internal/models"
)

const pqUniqueViolation = "23505"

// MembershipRepository is the single source of truth for who belongs to
// which chat. Existence and role checks are primary-key lookups on
// chat_members; nothing here evaluates access control, which keeps the
// authorization path free of self-referential queries.
type MembershipRepository interface {
	AddMember(ctx context.Context, chatID, userID int64, role string) (models.Membership, error)
	RemoveMember(ctx context.Context, chatID, userID int64) error
	ListMembers(ctx context.Context, chatID int64) ([]models.Membership, error)
	MemberIDs(ctx context.Context, chatID int64) ([]int64, error)
	IsMember(ctx context.Context, chatID, userID int64) (bool, error)
	Role(ctx context.Context, chatID, userID int64) (string, error)
}

// MembershipRepo is a sqlx implementation of MembershipRepository.
type MembershipRepo struct {
	db *sqlx.DB
}

// NewMembershipRepo constructs a MembershipRepo.
func NewMembershipRepo(db *sqlx.DB) *MembershipRepo {
	return &MembershipRepo{db: db}
}

// AddMember inserts a membership. It locks the chat row so the two-member
// cap on direct chats holds under concurrent joins.
func (r *MembershipRepo) AddMember(ctx context.Context, chatID, userID int64, role string) (models.Membership, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Membership{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var kind string
	err = tx.GetContext(ctx, &kind, `SELECT kind FROM chats WHERE id=$1 FOR UPDATE`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		err = models.ErrNotFound
		return models.Membership{}, err
	}
	if err != nil {
		return models.Membership{}, err
	}

	if kind == models.ChatKindDirect {
		var count int
		if err = tx.GetContext(ctx, &count, `SELECT COUNT(*) FROM chat_members WHERE chat_id=$1`, chatID); err != nil {
			return models.Membership{}, err
		}
		if count >= 2 {
			err = models.ErrCapacityExceeded
			return models.Membership{}, err
		}
	}

	var m models.Membership
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO chat_members (chat_id, user_id, role) VALUES ($1, $2, $3)
         RETURNING chat_id, user_id, role, joined_at`, chatID, userID, role).StructScan(&m)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			err = models.ErrConflict
		}
		return models.Membership{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Membership{}, err
	}
	return m, nil
}

// RemoveMember deletes a membership. The chat row is retained even when the
// last member leaves. Removing the only admin of a group that still has
// other members returns ErrConflict so every populated group keeps at
// least one admin; the last remaining member may always leave.
func (r *MembershipRepo) RemoveMember(ctx context.Context, chatID, userID int64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var kind string
	err = tx.GetContext(ctx, &kind, `SELECT kind FROM chats WHERE id=$1 FOR UPDATE`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		err = models.ErrNotFound
		return err
	}
	if err != nil {
		return err
	}

	var role string
	err = tx.GetContext(ctx, &role,
		`SELECT role FROM chat_members WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		err = models.ErrNotFound
		return err
	}
	if err != nil {
		return err
	}

	if kind == models.ChatKindGroup && role == models.RoleAdmin {
		var counts struct {
			Admins int `db:"admins"`
			Total  int `db:"total"`
		}
		if err = tx.GetContext(ctx, &counts,
			`SELECT COUNT(*) FILTER (WHERE role='admin') AS admins, COUNT(*) AS total
	         FROM chat_members WHERE chat_id=$1`, chatID); err != nil {
			return err
		}
		if counts.Admins == 1 && counts.Total > 1 {
			err = models.ErrConflict
			return err
		}
	}

	if _, err = tx.ExecContext(ctx,
		`DELETE FROM chat_members WHERE chat_id=$1 AND user_id=$2`, chatID, userID); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return err
	}
	return nil
}

// ListMembers returns all memberships of a chat.
func (r *MembershipRepo) ListMembers(ctx context.Context, chatID int64) ([]models.Membership, error) {
	var members []models.Membership
	err := r.db.SelectContext(ctx, &members,
		`SELECT chat_id, user_id, role, joined_at FROM chat_members WHERE chat_id=$1 ORDER BY joined_at ASC`, chatID)
	return members, err
}

// MemberIDs returns the current member id set, used by the dispatcher to
// filter delivery at publish time.
func (r *MembershipRepo) MemberIDs(ctx context.Context, chatID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids, `SELECT user_id FROM chat_members WHERE chat_id=$1`, chatID)
	return ids, err
}

// IsMember checks membership via the primary key.
func (r *MembershipRepo) IsMember(ctx context.Context, chatID, userID int64) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM chat_members WHERE chat_id=$1 AND user_id=$2)`, chatID, userID)
	return exists, err
}

// Role returns the member's role or ErrNotFound.
func (r *MembershipRepo) Role(ctx context.Context, chatID, userID int64) (string, error) {
	var role string
	err := r.db.GetContext(ctx, &role,
		`SELECT role FROM chat_members WHERE chat_id=$1 AND user_id=$2`, chatID, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", models.ErrNotFound
	}
	return role, err
}
