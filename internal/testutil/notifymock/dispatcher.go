// Package notifymock records notifications so tests can assert on them.
package notifymock

import (
	"context"
	"sync"

	"coopfund-backend/internal/external/notify"
)

var _ notify.Dispatcher = (*Recorder)(nil)

type Sent struct {
	UserID  uint64
	Message string
	Level   notify.Level
}

// Recorder satisfies notify.Dispatcher and keeps everything dispatched.
type Recorder struct {
	mu   sync.Mutex
	sent []Sent
}

func New() *Recorder { return &Recorder{} }

func (r *Recorder) Notify(_ context.Context, userID uint64, message string, level notify.Level) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, Sent{UserID: userID, Message: message, Level: level})
}

func (r *Recorder) NotifyMany(_ context.Context, userIDs []uint64, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range userIDs {
		r.sent = append(r.sent, Sent{UserID: id, Message: message, Level: notify.LevelInfo})
	}
}

// All returns a copy of everything sent so far.
func (r *Recorder) All() []Sent {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Sent, len(r.sent))
	copy(out, r.sent)
	return out
}

// CountFor reports how many notifications went to one user.
func (r *Recorder) CountFor(userID uint64) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.sent {
		if s.UserID == userID {
			n++
		}
	}
	return n
}
