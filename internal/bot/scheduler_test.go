package bot

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type deletions struct {
	mu   sync.Mutex
	keys []messageKey
	hit  chan struct{}
}

func newDeletions() *deletions {
	return &deletions{hit: make(chan struct{}, 16)}
}

func (d *deletions) delete(chatID int64, messageID int) {
	d.mu.Lock()
	d.keys = append(d.keys, messageKey{chatID: chatID, messageID: messageID})
	d.mu.Unlock()
	d.hit <- struct{}{}
}

func (d *deletions) snapshot() []messageKey {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]messageKey(nil), d.keys...)
}

func waitHit(t *testing.T, d *deletions) {
	t.Helper()
	select {
	case <-d.hit:
	case <-time.After(2 * time.Second):
		t.Fatal("deletion did not fire")
	}
}

func TestScheduler_Fires(t *testing.T) {
	d := newDeletions()
	s := NewScheduler(d.delete)

	s.Schedule(1, 10, 10*time.Millisecond)
	waitHit(t, d)

	assert.Equal(t, []messageKey{{chatID: 1, messageID: 10}}, d.snapshot())
	assert.Equal(t, 0, s.Pending())
}

func TestScheduler_RescheduleReplaces(t *testing.T) {
	d := newDeletions()
	s := NewScheduler(d.delete)

	s.Schedule(1, 10, time.Hour)
	s.Schedule(1, 10, 10*time.Millisecond)
	require.Equal(t, 1, s.Pending())

	waitHit(t, d)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, d.snapshot(), 1)
}

func TestScheduler_Cancel(t *testing.T) {
	d := newDeletions()
	s := NewScheduler(d.delete)

	s.Schedule(1, 10, 20*time.Millisecond)
	assert.True(t, s.Cancel(1, 10))
	assert.False(t, s.Cancel(1, 10))

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, d.snapshot())
}

func TestScheduler_Stop(t *testing.T) {
	d := newDeletions()
	s := NewScheduler(d.delete)

	s.Schedule(1, 10, 20*time.Millisecond)
	s.Schedule(2, 20, 20*time.Millisecond)
	s.Stop()
	s.Schedule(3, 30, time.Millisecond)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, d.snapshot())
	assert.Equal(t, 0, s.Pending())
}
