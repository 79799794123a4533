package repositories

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"chat-backend/internal/models"
)

// FriendRepository manages friend requests and the symmetric friendship
// relation derived from accepted requests.
type FriendRepository interface {
	CreateRequest(ctx context.Context, senderID, receiverID int64) (models.FriendRequest, error)
	GetRequest(ctx context.Context, requestID int64) (models.FriendRequest, error)
	Accept(ctx context.Context, requestID, receiverID int64) (models.FriendRequest, error)
	Decline(ctx context.Context, requestID, receiverID int64) (models.FriendRequest, error)
	ListIncoming(ctx context.Context, receiverID int64) ([]models.FriendRequest, error)
	ListFriendships(ctx context.Context, userID int64) ([]models.Friendship, error)
	AreFriends(ctx context.Context, userID, otherID int64) (bool, error)
}

// FriendRepo is a sqlx implementation of FriendRepository.
type FriendRepo struct {
	db *sqlx.DB
}

// NewFriendRepo constructs a FriendRepo.
func NewFriendRepo(db *sqlx.DB) *FriendRepo {
	return &FriendRepo{db: db}
}

const friendRequestColumns = `id, sender_id, receiver_id, status, created_at`

// CreateRequest records a pending request, unique per ordered pair.
func (r *FriendRepo) CreateRequest(ctx context.Context, senderID, receiverID int64) (models.FriendRequest, error) {
	if senderID == receiverID {
		return models.FriendRequest{}, errors.New("cannot befriend self")
	}

	already, err := r.AreFriends(ctx, senderID, receiverID)
	if err != nil {
		return models.FriendRequest{}, err
	}
	if already {
		return models.FriendRequest{}, models.ErrConflict
	}

	var req models.FriendRequest
	err = r.db.QueryRowxContext(ctx,
		`INSERT INTO friend_requests (sender_id, receiver_id) VALUES ($1, $2)
         RETURNING `+friendRequestColumns, senderID, receiverID).StructScan(&req)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return models.FriendRequest{}, models.ErrConflict
		}
		return models.FriendRequest{}, err
	}
	return req, nil
}

// GetRequest fetches a single request.
func (r *FriendRepo) GetRequest(ctx context.Context, requestID int64) (models.FriendRequest, error) {
	var req models.FriendRequest
	err := r.db.GetContext(ctx, &req,
		`SELECT `+friendRequestColumns+` FROM friend_requests WHERE id=$1`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		return models.FriendRequest{}, models.ErrNotFound
	}
	return req, err
}

// Accept transitions a request to accepted and creates the friendship row
// exactly once. Duplicate accepts are idempotent; a declined request cannot
// be revived.
func (r *FriendRepo) Accept(ctx context.Context, requestID, receiverID int64) (models.FriendRequest, error) {
	return r.resolve(ctx, requestID, receiverID, models.FriendRequestAccepted)
}

// Decline marks a pending request declined. Accepted requests stay accepted.
func (r *FriendRepo) Decline(ctx context.Context, requestID, receiverID int64) (models.FriendRequest, error) {
	return r.resolve(ctx, requestID, receiverID, models.FriendRequestDeclined)
}

func (r *FriendRepo) resolve(ctx context.Context, requestID, receiverID int64, status string) (models.FriendRequest, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return models.FriendRequest{}, err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	var req models.FriendRequest
	err = tx.GetContext(ctx, &req,
		`SELECT `+friendRequestColumns+` FROM friend_requests WHERE id=$1 FOR UPDATE`, requestID)
	if errors.Is(err, sql.ErrNoRows) {
		err = models.ErrNotFound
		return models.FriendRequest{}, err
	}
	if err != nil {
		return models.FriendRequest{}, err
	}
	if req.ReceiverID != receiverID {
		err = models.ErrForbidden
		return models.FriendRequest{}, err
	}
	if req.Status != models.FriendRequestPending && req.Status != status {
		err = models.ErrConflict
		return models.FriendRequest{}, err
	}

	if req.Status != status {
		if _, err = tx.ExecContext(ctx,
			`UPDATE friend_requests SET status=$1 WHERE id=$2`, status, requestID); err != nil {
			return models.FriendRequest{}, err
		}
		req.Status = status
	}

	if status == models.FriendRequestAccepted {
		lo, hi := req.SenderID, req.ReceiverID
		if lo > hi {
			lo, hi = hi, lo
		}
		if _, err = tx.ExecContext(ctx,
			`INSERT INTO friendships (user1_id, user2_id) VALUES ($1, $2)
             ON CONFLICT (user1_id, user2_id) DO NOTHING`, lo, hi); err != nil {
			return models.FriendRequest{}, err
		}
	}

	if err = tx.Commit(); err != nil {
		return models.FriendRequest{}, err
	}
	return req, nil
}

// ListIncoming returns pending requests addressed to the user.
func (r *FriendRepo) ListIncoming(ctx context.Context, receiverID int64) ([]models.FriendRequest, error) {
	var reqs []models.FriendRequest
	err := r.db.SelectContext(ctx, &reqs,
		`SELECT `+friendRequestColumns+` FROM friend_requests
         WHERE receiver_id=$1 AND status='pending' ORDER BY created_at DESC`, receiverID)
	return reqs, err
}

// ListFriendships returns the user's friendships.
func (r *FriendRepo) ListFriendships(ctx context.Context, userID int64) ([]models.Friendship, error) {
	var friendships []models.Friendship
	err := r.db.SelectContext(ctx, &friendships,
		`SELECT user1_id, user2_id, created_at FROM friendships
         WHERE user1_id=$1 OR user2_id=$1 ORDER BY created_at DESC`, userID)
	return friendships, err
}

// AreFriends checks the sorted-pair primary key.
func (r *FriendRepo) AreFriends(ctx context.Context, userID, otherID int64) (bool, error) {
	lo, hi := userID, otherID
	if lo > hi {
		lo, hi = hi, lo
	}
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM friendships WHERE user1_id=$1 AND user2_id=$2)`, lo, hi)
	return exists, err
}
