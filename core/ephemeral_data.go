package core

import (
	"context"
	"fmt"
	"time"
)

const keyPendingEmailChange = "emailchange:pending:"

func pendingKey(principalID string) string { return keyPendingEmailChange + principalID }

// recordTTL keeps Issued records until their challenge expires plus the
// retention window, so an Expired status stays visible for a while.
func (s *Service) recordTTL(rec *pendingRecord) time.Duration {
	ttl := s.opts.RecordRetention
	if rec.Status == StatusIssued {
		if remaining := rec.Challenge.ExpiresAt.Sub(s.now()); remaining > 0 {
			ttl += remaining
		}
	}
	return ttl
}

func (s *Service) storePending(ctx context.Context, rec *pendingRecord) error {
	rec.UpdatedAt = s.now()
	if err := s.ephemSetJSON(ctx, pendingKey(rec.PrincipalID), rec, s.recordTTL(rec)); err != nil {
		return fmt.Errorf("store pending email change: %w", err)
	}
	return nil
}

func (s *Service) loadPending(ctx context.Context, principalID string) (*pendingRecord, bool, error) {
	var rec pendingRecord
	ok, err := s.ephemGetJSON(ctx, pendingKey(principalID), &rec)
	if err != nil {
		return nil, false, fmt.Errorf("load pending email change: %w", err)
	}
	if !ok {
		return nil, false, nil
	}
	return &rec, true, nil
}

func (s *Service) deletePending(ctx context.Context, principalID string) error {
	if err := s.ephemDel(ctx, pendingKey(principalID)); err != nil {
		return fmt.Errorf("delete pending email change: %w", err)
	}
	return nil
}

// expireIfDue moves an Issued record past its deadline to Expired and persists it.
func (s *Service) expireIfDue(ctx context.Context, rec *pendingRecord) (bool, error) {
	if rec.Status != StatusIssued || s.now().Before(rec.Challenge.ExpiresAt) {
		return false, nil
	}
	rec.Status = StatusExpired
	rec.FailureReason = ReasonChallengeExpired
	if err := s.storePending(ctx, rec); err != nil {
		return true, err
	}
	s.logEvent(ctx, EventExpired, rec, ReasonChallengeExpired)
	return true, nil
}
