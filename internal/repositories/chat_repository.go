package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"chat-backend/internal/models"
)

// ChatRepository abstracts chat lifecycle persistence.
type ChatRepository interface {
	GetOrCreateDirectChat(ctx context.Context, userID, friendID int64) (models.Chat, error)
	CreateGroupChat(ctx context.Context, creatorID int64, name, description string, memberIDs []int64) (models.Chat, error)
	GetChat(ctx context.Context, chatID int64) (models.Chat, error)
	ListChats(ctx context.Context, userID int64) ([]models.Chat, error)
}

// ChatRepo is a sqlx implementation of ChatRepository.
type ChatRepo struct {
	db *sqlx.DB
}

// NewChatRepo constructs a ChatRepo.
func NewChatRepo(db *sqlx.DB) *ChatRepo {
	return &ChatRepo{db: db}
}

const chatColumns = `id, kind, name, description, avatar_url, creator_id, created_at`

// GetOrCreateDirectChat returns the direct chat between the two users,
// creating it if necessary. Concurrent callers are serialized on the unique
// direct_key, so exactly one chat row ever exists per pair; the loser of the
// race gets the winner's row back.
func (r *ChatRepo) GetOrCreateDirectChat(ctx context.Context, userID, friendID int64) (models.Chat, error) {
	if userID == friendID {
		return models.Chat{}, errors.New("cannot create chat with self")
	}
	lo, hi := userID, friendID
	if lo > hi {
		lo, hi = hi, lo
	}
	key := fmt.Sprintf("%d:%d", lo, hi)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var chat models.Chat
	err = tx.QueryRowxContext(ctx,
		`INSERT INTO chats (kind, creator_id, direct_key) VALUES ('direct', $1, $2)
         ON CONFLICT (direct_key) DO NOTHING
         RETURNING `+chatColumns, userID, key).StructScan(&chat)
	if errors.Is(err, sql.ErrNoRows) {
		err = tx.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE direct_key=$1`, key)
	}
	if err != nil {
		return models.Chat{}, err
	}

	// Re-adding is a no-op for an existing pair; it also revives an
	// orphaned direct chat whose members both left.
	if _, err = tx.ExecContext(ctx,
		`INSERT INTO chat_members (chat_id, user_id, role) VALUES ($1, $2, 'member'), ($1, $3, 'member')
         ON CONFLICT (chat_id, user_id) DO NOTHING`, chat.ID, userID, friendID); err != nil {
		return models.Chat{}, err
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// CreateGroupChat creates a group chat and its members atomically. The
// creator always joins with the admin role.
func (r *ChatRepo) CreateGroupChat(ctx context.Context, creatorID int64, name, description string, memberIDs []int64) (models.Chat, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.Chat{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var chat models.Chat
	if err = tx.QueryRowxContext(ctx,
		`INSERT INTO chats (kind, name, description, creator_id) VALUES ('group', $1, $2, $3)
         RETURNING `+chatColumns, name, description, creatorID).StructScan(&chat); err != nil {
		return models.Chat{}, err
	}

	memberSet := map[int64]struct{}{}
	for _, id := range memberIDs {
		if id != creatorID {
			memberSet[id] = struct{}{}
		}
	}
	ids := make([]int64, 0, len(memberSet))
	for id := range memberSet {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	if _, err = tx.ExecContext(ctx,
		`INSERT INTO chat_members (chat_id, user_id, role) VALUES ($1, $2, 'admin')`, chat.ID, creatorID); err != nil {
		return models.Chat{}, err
	}
	for _, id := range ids {
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO chat_members (chat_id, user_id, role) VALUES ($1, $2, 'member')`, chat.ID, id); err != nil {
			return models.Chat{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.Chat{}, err
	}
	return chat, nil
}

// GetChat fetches a chat by id.
func (r *ChatRepo) GetChat(ctx context.Context, chatID int64) (models.Chat, error) {
	var chat models.Chat
	err := r.db.GetContext(ctx, &chat, `SELECT `+chatColumns+` FROM chats WHERE id=$1`, chatID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Chat{}, models.ErrNotFound
	}
	return chat, err
}

// ListChats returns the chats the user currently belongs to.
func (r *ChatRepo) ListChats(ctx context.Context, userID int64) ([]models.Chat, error) {
	var chats []models.Chat
	err := r.db.SelectContext(ctx, &chats,
		`SELECT c.id, c.kind, c.name, c.description, c.avatar_url, c.creator_id, c.created_at
         FROM chats c INNER JOIN chat_members cm ON cm.chat_id = c.id
         WHERE cm.user_id=$1 ORDER BY c.created_at DESC`, userID)
	return chats, err
}
