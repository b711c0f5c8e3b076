package core

import (
	"context"
	"log/slog"
	"time"
)

// EmailChangeEventType identifies an email change lifecycle event.
type EmailChangeEventType string

const (
	EventRequested     EmailChangeEventType = "email_change_requested"
	EventSuperseded    EmailChangeEventType = "email_change_superseded"
	EventVerified      EmailChangeEventType = "email_change_verified"
	EventCommitted     EmailChangeEventType = "email_change_committed"
	EventPartialCommit EmailChangeEventType = "email_change_partial_commit"
	EventFailed        EmailChangeEventType = "email_change_failed"
	EventExpired       EmailChangeEventType = "email_change_expired"
	EventCancelled     EmailChangeEventType = "email_change_cancelled"
	EventRepaired      EmailChangeEventType = "email_change_repaired"
)

// EmailChangeEvent is a best-effort, append-only record intended for external sinks.
// It never carries challenge secrets.
type EmailChangeEvent struct {
	OccurredAt     time.Time
	RequestID      string
	PrincipalID    string
	Event          EmailChangeEventType
	Method         Method
	CurrentEmail   string
	CandidateEmail string
	Reason         Reason
}

// EventLogger records email change events to an external sink.
// Implementations should be non-blocking and best-effort.
type EventLogger interface {
	LogEmailChangeEvent(ctx context.Context, e EmailChangeEvent) error
}

// WithEventLogger sets the sink for lifecycle events.
func (s *Service) WithEventLogger(l EventLogger) *Service { s.events = l; return s }

func (s *Service) logEvent(ctx context.Context, typ EmailChangeEventType, rec *pendingRecord, reason Reason) {
	level := slog.LevelInfo
	switch typ {
	case EventPartialCommit:
		level = slog.LevelError
	case EventFailed:
		level = slog.LevelWarn
	}
	s.log().Log(ctx, level, "email change event",
		"event", string(typ),
		"request_id", rec.ID,
		"principal_id", rec.PrincipalID,
		"method", string(rec.Challenge.Method),
		"candidate_email", rec.CandidateEmail,
		"reason", string(reason),
	)
	if s.events == nil {
		return
	}
	e := EmailChangeEvent{
		OccurredAt:     s.now(),
		RequestID:      rec.ID,
		PrincipalID:    rec.PrincipalID,
		Event:          typ,
		Method:         rec.Challenge.Method,
		CurrentEmail:   rec.CurrentEmail,
		CandidateEmail: rec.CandidateEmail,
		Reason:         reason,
	}
	if err := s.events.LogEmailChangeEvent(context.WithoutCancel(ctx), e); err != nil {
		s.log().Warn("email change event sink failed", "event", string(typ), "error", err)
	}
}
