package delivery

import (
	"context"
	"log/slog"
	"sync"

	"github.com/open-rails/emailchange/core"
)

// Log writes challenges to the logger instead of sending them. Development only.
type Log struct {
	logger *slog.Logger
}

func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) Deliver(ctx context.Context, to string, p core.Payload) error {
	l.logger.InfoContext(ctx, "[emailchange/dev-email] email change challenge",
		"to", to, "code", p.Code, "url", p.VerificationURL, "expires_at", p.ExpiresAt)
	return nil
}

// Recorder keeps delivered payloads in memory so tests can read them back.
type Recorder struct {
	mu   sync.Mutex
	sent map[string][]core.Payload
	// Err, when set, is returned from Deliver and nothing is recorded.
	Err error
}

func NewRecorder() *Recorder { return &Recorder{sent: make(map[string][]core.Payload)} }

func (r *Recorder) Deliver(ctx context.Context, to string, p core.Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.Err != nil {
		return r.Err
	}
	r.sent[to] = append(r.sent[to], p)
	return nil
}

// Last returns the most recent payload sent to addr.
func (r *Recorder) Last(addr string) (core.Payload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	ps := r.sent[addr]
	if len(ps) == 0 {
		return core.Payload{}, false
	}
	return ps[len(ps)-1], true
}

// Count returns how many payloads were sent to addr.
func (r *Recorder) Count(addr string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent[addr])
}

// SetErr changes the failure returned by Deliver.
func (r *Recorder) SetErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Err = err
}
