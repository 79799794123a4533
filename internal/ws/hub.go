package ws

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"chat-backend/internal/models"
	"chat-backend/internal/observability"
)

// MemberReader is the live membership view consulted on every publish.
type MemberReader interface {
	MemberIDs(ctx context.Context, chatID int64) ([]int64, error)
}

// ChatAuthorizer gates topic subscription.
type ChatAuthorizer interface {
	CanRead(ctx context.Context, userID, chatID int64) (bool, error)
}

// Hub is the realtime dispatcher. It fans committed store mutations out to
// subscribers of the affected chat topic, filtered by the current member
// set. Per-chat ordering is preserved because publishes enqueue under the
// hub lock in commit order; delivery is at-least-once and clients reconcile
// through the message log after a reconnect.
type Hub struct {
	mu          sync.Mutex
	subscribers map[*Subscriber]bool
	byChat      map[int64]map[*Subscriber]bool

	members MemberReader
	guard   ChatAuthorizer
}

// NewHub creates an empty hub.
func NewHub(members MemberReader, guard ChatAuthorizer) *Hub {
	return &Hub{
		subscribers: make(map[*Subscriber]bool),
		byChat:      make(map[int64]map[*Subscriber]bool),
		members:     members,
		guard:       guard,
	}
}

// Register adds a connected subscriber.
func (h *Hub) Register(s *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[s] = true
}

// Unregister removes the subscriber and every topic interest it holds, then
// closes its send channel. Safe to call more than once.
func (h *Hub) Unregister(s *Subscriber) {
	h.mu.Lock()
	if _, ok := h.subscribers[s]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.subscribers, s)
	h.detachLocked(s)
	h.mu.Unlock()
	s.close()
}

func (h *Hub) detachLocked(s *Subscriber) {
	for chatID, subs := range h.byChat {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.byChat, chatID)
		}
	}
}

// Subscribe registers topic interest after an access check.
func (h *Hub) Subscribe(ctx context.Context, s *Subscriber, chatID int64) error {
	allowed, err := h.guard.CanRead(ctx, s.info.UserID, chatID)
	if err != nil {
		return err
	}
	if !allowed {
		return models.ErrForbidden
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[s]; !ok {
		return models.ErrNotFound
	}
	if _, ok := h.byChat[chatID]; !ok {
		h.byChat[chatID] = make(map[*Subscriber]bool)
	}
	h.byChat[chatID][s] = true
	return nil
}

// Unsubscribe drops topic interest.
func (h *Hub) Unsubscribe(s *Subscriber, chatID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.byChat[chatID]; ok {
		delete(subs, s)
		if len(subs) == 0 {
			delete(h.byChat, chatID)
		}
	}
}

// DropMember severs a user's subscriptions to a chat. Called synchronously
// after a membership removal commits so no further events reach the removed
// member even before the next publish re-checks the member set.
func (h *Hub) DropMember(chatID, userID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subs, ok := h.byChat[chatID]; ok {
		for s := range subs {
			if s.info.UserID == userID {
				delete(subs, s)
			}
		}
		if len(subs) == 0 {
			delete(h.byChat, chatID)
		}
	}
}

// Publish delivers the event to every subscriber of the chat topic whose
// user is in the chat's member set right now. A subscriber whose buffer is
// full is disconnected rather than allowed to stall the others.
func (h *Hub) Publish(ctx context.Context, event models.Event) {
	memberIDs, err := h.members.MemberIDs(ctx, event.ChatID)
	if err != nil {
		log.Error().Err(err).Int64("chat_id", event.ChatID).Msg("member set lookup failed, skipping dispatch")
		return
	}
	memberSet := make(map[int64]struct{}, len(memberIDs))
	for _, id := range memberIDs {
		memberSet[id] = struct{}{}
	}

	var slow []*Subscriber
	h.mu.Lock()
	for s := range h.byChat[event.ChatID] {
		if _, ok := memberSet[s.info.UserID]; !ok {
			continue
		}
		select {
		case s.send <- event:
			observability.IncEventDelivered(event.Type)
		default:
			slow = append(slow, s)
		}
	}
	h.mu.Unlock()

	for _, s := range slow {
		observability.IncSlowSubscriberDropped()
		log.Warn().Str("conn_id", s.info.ConnID).Int64("user_id", s.info.UserID).Msg("dropping slow subscriber")
		h.Unregister(s)
	}
}

func (h *Hub) handleFrame(s *Subscriber, frame Frame) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch frame.Action {
	case "subscribe":
		if err := h.Subscribe(ctx, s, frame.ChatID); err != nil {
			if errors.Is(err, models.ErrForbidden) {
				s.writeAck(ack{Type: "error", ChatID: frame.ChatID, Error: "not authorized for chat"})
				return
			}
			log.Error().Err(err).Int64("chat_id", frame.ChatID).Str("conn_id", s.info.ConnID).Msg("subscribe failed")
			s.writeAck(ack{Type: "error", ChatID: frame.ChatID, Error: "subscribe failed, retry"})
			return
		}
		s.writeAck(ack{Type: "subscribed", ChatID: frame.ChatID})
	case "unsubscribe":
		h.Unsubscribe(s, frame.ChatID)
		s.writeAck(ack{Type: "unsubscribed", ChatID: frame.ChatID})
	default:
		s.writeAck(ack{Type: "error", Error: "unknown action"})
	}
}

// SubscriberCount reports active subscribers, for debug endpoints.
func (h *Hub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}

// TopicCount reports chats with at least one subscriber, for debug endpoints.
func (h *Hub) TopicCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.byChat)
}
