package riverjobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/riverqueue/river"

	"github.com/open-rails/emailchange/core"
)

// Reconciler is implemented by *core.Service.
type Reconciler interface {
	ReconcileProfiles(ctx context.Context, lister core.DivergenceLister, limit int) (int, error)
}

type ReconcileProfileEmailsArgs struct {
	BatchSize int `json:"batch_size,omitempty"`
}

func (ReconcileProfileEmailsArgs) Kind() string { return "emailchange_reconcile_profile_emails" }

func (args ReconcileProfileEmailsArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{
		Queue: river.QueueDefault,
		UniqueOpts: river.UniqueOpts{
			ByArgs:   true,
			ByPeriod: time.Hour,
			ByQueue:  true,
		},
	}
}

// ReconcileProfileEmailsWorker repairs profiles whose email drifted from the
// identity provider, catching partial commits whose repair job was lost.
type ReconcileProfileEmailsWorker struct {
	river.WorkerDefaults[ReconcileProfileEmailsArgs]
	svc    Reconciler
	lister core.DivergenceLister
}

func NewReconcileProfileEmailsWorker(svc Reconciler, lister core.DivergenceLister) *ReconcileProfileEmailsWorker {
	return &ReconcileProfileEmailsWorker{svc: svc, lister: lister}
}

func (w *ReconcileProfileEmailsWorker) Timeout(*river.Job[ReconcileProfileEmailsArgs]) time.Duration {
	return 10 * time.Minute
}

func (w *ReconcileProfileEmailsWorker) Work(ctx context.Context, job *river.Job[ReconcileProfileEmailsArgs]) error {
	if w == nil || w.svc == nil || w.lister == nil {
		return errors.New("emailchange reconcile: service not configured")
	}
	batch := job.Args.BatchSize
	if batch <= 0 {
		batch = 500
	}
	n, err := w.svc.ReconcileProfiles(ctx, w.lister, batch)
	if n > 0 {
		slog.InfoContext(ctx, "emailchange reconcile", "repaired", n)
	}
	return err
}
