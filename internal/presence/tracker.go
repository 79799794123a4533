package presence

import (
	"sync"
	"time"
)

type key struct {
	chatID int64
	userID int64
}

// Tracker holds ephemeral typing state per (chat, user) with a soft TTL:
// an entry that is not refreshed within the idle window reads as not
// typing even before the sweeper removes it.
type Tracker struct {
	mu      sync.Mutex
	entries map[key]time.Time
	ttl     time.Duration
	stop    chan struct{}
	now     func() time.Time
}

// NewTracker constructs a Tracker with the given idle window.
func NewTracker(ttl time.Duration) *Tracker {
	return &Tracker{
		entries: make(map[key]time.Time),
		ttl:     ttl,
		stop:    make(chan struct{}),
		now:     time.Now,
	}
}

// Set upserts the typing flag. Membership is checked by the caller through
// the access guard before this is reached.
func (t *Tracker) Set(chatID, userID int64, typing bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key{chatID: chatID, userID: userID}
	if typing {
		t.entries[k] = t.now()
		return
	}
	delete(t.entries, k)
}

// ListTyping returns users currently typing in the chat, always excluding
// the querying user. Stale entries are treated as not typing.
func (t *Tracker) ListTyping(chatID, exceptUser int64) []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-t.ttl)
	var users []int64
	for k, ts := range t.entries {
		if k.chatID != chatID || k.userID == exceptUser {
			continue
		}
		if ts.Before(cutoff) {
			continue
		}
		users = append(users, k.userID)
	}
	return users
}

// DropUser clears any typing state the user holds in the chat, used when a
// membership is removed.
func (t *Tracker) DropUser(chatID, userID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.entries, key{chatID: chatID, userID: userID})
}

// Run sweeps expired entries until Stop is called.
func (t *Tracker) Run() {
	ticker := time.NewTicker(t.ttl)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			t.sweep()
		}
	}
}

// Stop terminates the sweep loop.
func (t *Tracker) Stop() {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
}

func (t *Tracker) sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-t.ttl)
	for k, ts := range t.entries {
		if ts.Before(cutoff) {
			delete(t.entries, k)
		}
	}
}
