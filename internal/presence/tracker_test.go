package presence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestListTypingExcludesCaller(t *testing.T) {
	tr := NewTracker(3 * time.Second)
	tr.Set(1, 10, true)
	tr.Set(1, 11, true)

	assert.ElementsMatch(t, []int64{11}, tr.ListTyping(1, 10))
	assert.ElementsMatch(t, []int64{10}, tr.ListTyping(1, 11))
}

func TestListTypingScopedToChat(t *testing.T) {
	tr := NewTracker(3 * time.Second)
	tr.Set(1, 10, true)
	tr.Set(2, 10, true)

	assert.ElementsMatch(t, []int64{10}, tr.ListTyping(1, 99))
	assert.ElementsMatch(t, []int64{10}, tr.ListTyping(2, 99))
	assert.Empty(t, tr.ListTyping(3, 99))
}

func TestStaleEntriesReadAsNotTyping(t *testing.T) {
	tr := NewTracker(3 * time.Second)
	current := time.Now()
	tr.now = func() time.Time { return current }

	tr.Set(1, 10, true)
	assert.ElementsMatch(t, []int64{10}, tr.ListTyping(1, 99))

	current = current.Add(2 * time.Second)
	assert.ElementsMatch(t, []int64{10}, tr.ListTyping(1, 99))

	current = current.Add(2 * time.Second)
	assert.Empty(t, tr.ListTyping(1, 99))
}

func TestRefreshExtendsWindow(t *testing.T) {
	tr := NewTracker(3 * time.Second)
	current := time.Now()
	tr.now = func() time.Time { return current }

	tr.Set(1, 10, true)
	current = current.Add(2 * time.Second)
	tr.Set(1, 10, true)
	current = current.Add(2 * time.Second)

	assert.ElementsMatch(t, []int64{10}, tr.ListTyping(1, 99))
}

func TestExplicitClearAndDropUser(t *testing.T) {
	tr := NewTracker(3 * time.Second)
	tr.Set(1, 10, true)
	tr.Set(1, 10, false)
	assert.Empty(t, tr.ListTyping(1, 99))

	tr.Set(1, 11, true)
	tr.DropUser(1, 11)
	assert.Empty(t, tr.ListTyping(1, 99))
}

func TestSweepRemovesExpired(t *testing.T) {
	tr := NewTracker(3 * time.Second)
	current := time.Now()
	tr.now = func() time.Time { return current }

	tr.Set(1, 10, true)
	current = current.Add(5 * time.Second)
	tr.sweep()

	tr.mu.Lock()
	remaining := len(tr.entries)
	tr.mu.Unlock()
	assert.Zero(t, remaining)
}
