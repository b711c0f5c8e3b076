package riverjobs

import (
	"fmt"

	"github.com/riverqueue/river"
	"github.com/robfig/cron/v3"

	"github.com/open-rails/emailchange/core"
)

// RegisterWorkers registers the repair and reconcile workers into a River
// workers registry. lister may be nil, in which case only repair runs.
func RegisterWorkers(ws *river.Workers, svc *core.Service, lister core.DivergenceLister) {
	river.AddWorker(ws, NewSyncProfileEmailWorker(svc))
	if lister != nil {
		river.AddWorker(ws, NewReconcileProfileEmailsWorker(svc, lister))
	}
}

// AddReconcilePeriodicJob adds a periodic job that enqueues the reconcile job on a cron schedule.
//
// Example cron: "*/15 * * * *" (every 15 minutes).
func AddReconcilePeriodicJob[T any](client *river.Client[T], cronSpec string, args ReconcileProfileEmailsArgs, runOnStart bool) error {
	schedule, err := parseSchedule(cronSpec)
	if err != nil {
		return err
	}
	opts := args.InsertOpts()
	client.PeriodicJobs().Add(
		river.NewPeriodicJob(
			schedule,
			func() (river.JobArgs, *river.InsertOpts) { return args, &opts },
			&river.PeriodicJobOpts{RunOnStart: runOnStart},
		),
	)
	return nil
}

func parseSchedule(cronSpec string) (cron.Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(cronSpec)
	if err != nil {
		return nil, fmt.Errorf("invalid cron schedule '%s': %w", cronSpec, err)
	}
	return schedule, nil
}
