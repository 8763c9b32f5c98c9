package bot

import (
	"sync"
	"time"
)

type messageKey struct {
	chatID    int64
	messageID int
}

// Scheduler deletes messages after a delay. Each (chat, message) pair has at
// most one pending deletion; scheduling it again replaces the old timer.
type Scheduler struct {
	mu      sync.Mutex
	timers  map[messageKey]*time.Timer
	del     func(chatID int64, messageID int)
	stopped bool
}

func NewScheduler(del func(chatID int64, messageID int)) *Scheduler {
	return &Scheduler{
		timers: make(map[messageKey]*time.Timer),
		del:    del,
	}
}

func (s *Scheduler) Schedule(chatID int64, messageID int, after time.Duration) {
	key := messageKey{chatID: chatID, messageID: messageID}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}
	if old, ok := s.timers[key]; ok {
		old.Stop()
	}

	var t *time.Timer
	t = time.AfterFunc(after, func() {
		s.mu.Lock()
		if s.timers[key] != t {
			s.mu.Unlock()
			return
		}
		delete(s.timers, key)
		s.mu.Unlock()
		s.del(chatID, messageID)
	})
	s.timers[key] = t
}

// Cancel drops a pending deletion and reports whether there was one.
func (s *Scheduler) Cancel(chatID int64, messageID int) bool {
	key := messageKey{chatID: chatID, messageID: messageID}

	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.timers[key]
	if !ok {
		return false
	}
	t.Stop()
	delete(s.timers, key)
	return true
}

func (s *Scheduler) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

// Stop cancels every pending deletion. Later Schedule calls are ignored.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopped = true
	for key, t := range s.timers {
		t.Stop()
		delete(s.timers, key)
	}
}
