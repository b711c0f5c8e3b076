package riverjobs

import (
	"context"
	"errors"
	"time"

	"github.com/riverqueue/river"
)

// ProfileRepairer is implemented by *core.Service.
type ProfileRepairer interface {
	RepairProfileEmail(ctx context.Context, principalID string) error
}

type SyncProfileEmailArgs struct {
	PrincipalID string `json:"principal_id"`
}

func (SyncProfileEmailArgs) Kind() string { return "emailchange_sync_profile_email" }

func (args SyncProfileEmailArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue:       river.QueueDefault,
		MaxAttempts: 25,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: 10 * time.Minute,
			ByQueue:  true,
		},
	}
}

// SyncProfileEmailWorker copies the identity provider email into the profile
// store after a partially committed email change. River retries with backoff
// until the profile store accepts the write.
type SyncProfileEmailWorker struct {
	river.WorkerDefaults[SyncProfileEmailArgs]
	svc ProfileRepairer
}

func NewSyncProfileEmailWorker(svc ProfileRepairer) *SyncProfileEmailWorker {
	return &SyncProfileEmailWorker{svc: svc}
}

func (w *SyncProfileEmailWorker) Timeout(*river.Job[SyncProfileEmailArgs]) time.Duration {
	return time.Minute
}

func (w *SyncProfileEmailWorker) Work(ctx context.Context, job *river.Job[SyncProfileEmailArgs]) error {
	if w == nil || w.svc == nil {
		return errors.New("emailchange sync: service not configured")
	}
	if job.Args.PrincipalID == "" {
		return river.JobCancel(errors.New("emailchange sync: principal id required"))
	}
	return w.svc.RepairProfileEmail(ctx, job.Args.PrincipalID)
}

// Scheduler enqueues profile repairs through a River client. It implements
// core.RepairScheduler.
type Scheduler[T any] struct {
	client *river.Client[T]
}

func NewScheduler[T any](client *river.Client[T]) *Scheduler[T] {
	return &Scheduler[T]{client: client}
}

func (s *Scheduler[T]) ScheduleProfileSync(ctx context.Context, principalID string) error {
	_, err := s.client.Insert(ctx, SyncProfileEmailArgs{PrincipalID: principalID}, nil)
	return err
}
