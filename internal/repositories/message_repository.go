package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"chat-backend/internal/models"
)

// MessageRepository is the append-only per-chat message log.
type MessageRepository interface {
	Append(ctx context.Context, chatID, senderID int64, content, msgType string, replyTo *int64) (models.Message, error)
	ListSince(ctx context.Context, chatID int64, cursor models.Cursor, limit int) ([]models.Message, error)
	GetMessage(ctx context.Context, messageID int64) (models.Message, error)
	Delete(ctx context.Context, messageID int64) error
	DeleteAllBySender(ctx context.Context, chatID, senderID int64) ([]int64, error)
}

// MessageRepo is a sqlx-backed repository.
type MessageRepo struct {
	db *sqlx.DB
}

// NewMessageRepo constructs MessageRepo.
func NewMessageRepo(db *sqlx.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

const messageColumns = `id, chat_id, sender_id, content, type, reply_to, created_at`

// Append stores a message. The assigned (created_at, id) pair is the
// authoritative ordering token; id is a serial, so two messages committed in
// the same instant still order deterministically.
func (r *MessageRepo) Append(ctx context.Context, chatID, senderID int64, content, msgType string, replyTo *int64) (models.Message, error) {
	var msg models.Message
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO messages (chat_id, sender_id, content, type, reply_to) VALUES ($1, $2, $3, $4, $5)
         RETURNING `+messageColumns, chatID, senderID, content, msgType, replyTo).StructScan(&msg)
	return msg, err
}

// ListSince returns messages strictly after the cursor in (created_at, id)
// order. Repeated calls with the same cursor return the same sequence.
func (r *MessageRepo) ListSince(ctx context.Context, chatID int64, cursor models.Cursor, limit int) ([]models.Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var msgs []models.Message
	var err error
	if cursor.IsZero() {
		err = r.db.SelectContext(ctx, &msgs,
			`SELECT `+messageColumns+` FROM messages WHERE chat_id=$1
             ORDER BY created_at ASC, id ASC LIMIT $2`, chatID, limit)
	} else {
		err = r.db.SelectContext(ctx, &msgs,
			`SELECT `+messageColumns+` FROM messages WHERE chat_id=$1 AND (created_at, id) > ($2, $3)
             ORDER BY created_at ASC, id ASC LIMIT $4`, chatID, cursor.CreatedAt, cursor.ID, limit)
	}
	return msgs, err
}

// GetMessage retrieves a single message.
func (r *MessageRepo) GetMessage(ctx context.Context, messageID int64) (models.Message, error) {
	var msg models.Message
	err := r.db.GetContext(ctx, &msg, `SELECT `+messageColumns+` FROM messages WHERE id=$1`, messageID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Message{}, models.ErrNotFound
	}
	return msg, err
}

// Delete removes a message. Sender-only authorization is enforced by the
// guard before this is called.
func (r *MessageRepo) Delete(ctx context.Context, messageID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM messages WHERE id=$1`, messageID)
	if err != nil {
		return err
	}
	count, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if count == 0 {
		return models.ErrNotFound
	}
	return nil
}

// DeleteAllBySender removes every message the sender wrote in the chat and
// returns the removed ids so deletion events can be fanned out.
func (r *MessageRepo) DeleteAllBySender(ctx context.Context, chatID, senderID int64) ([]int64, error) {
	var ids []int64
	err := r.db.SelectContext(ctx, &ids,
		`DELETE FROM messages WHERE chat_id=$1 AND sender_id=$2 RETURNING id`, chatID, senderID)
	return ids, err
}
