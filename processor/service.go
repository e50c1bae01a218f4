package processor

import (
	"context"
	"fmt"
	"log"
	"time"

	"encore.app/processor/imageprocessor"
	"encore.app/processor/serpprocessor"
	sharedpubsub "encore.app/pkg/pubsub"
	"encore.app/pkg/reqlog"
	"encore.app/responsecache"
	"encore.dev/cron"
	"encore.dev/pubsub"
	"encore.dev/storage/sqldb"
)

// SweepCompletedTopic announces the outcome of every runner's sweep.
// Declared next to the event it carries, mirroring taskqueue's
// WebhookDeliveredTopic.
var SweepCompletedTopic = pubsub.NewTopic[*sharedpubsub.ProcessorSweepCompletedEvent](
	sharedpubsub.TopicProcessorSweepCompleted,
	pubsub.TopicConfig{
		DeliveryGuarantee: pubsub.AtLeastOnce,
	},
)

//encore:service
type Service struct {
	Runners []*Runner
}

// db holds the processor framework's own destination tables, separate
// from responsecache's per-client response tables (spec §4.8: "one per
// processor"). Same sqldb.Named idiom as responsecache/service.go.
var db = sqldb.Named("processor_db")

func initService() (*Service, error) {
	manager, err := responsecache.CurrentManager()
	if err != nil {
		return nil, fmt.Errorf("processor: %w", err)
	}
	store := NewResponseStore(manager.Repo())

	// Worked examples from the spec: one processor per endpoint family,
	// wired against the dataforseo client. Real onboarding of additional
	// clients/processors happens wherever owns deployment configuration,
	// the same non-goal responsecache/service.go documents for client
	// registration.
	runners := []*Runner{
		NewRunner(store, "dataforseo", serpprocessor.New(db, "serp/*/organic/task_get")),
		NewRunner(store, "dataforseo", imageprocessor.New(db, "serp/*/images/task_get")),
	}

	return &Service{Runners: runners}, nil
}

// SweepAll runs ProcessResponsesAll for every configured runner, logging
// (not failing) individual runner errors so one broken processor doesn't
// block the others in the same sweep.
func (s *Service) SweepAll(ctx context.Context, batchSize int) {
	for _, r := range s.Runners {
		requestID := reqlog.NewRequestID()
		stats, err := r.ProcessResponsesAll(ctx, batchSize)
		event := &sharedpubsub.ProcessorSweepCompletedEvent{
			Version:     sharedpubsub.EventVersion1,
			Processor:   r.Processor.Name(),
			Client:      r.Client,
			CompletedAt: time.Now(),
			RequestID:   requestID,
		}
		if err != nil {
			reqlog.LogEvent(requestID, "processor sweep failed", map[string]any{
				"processor": r.Processor.Name(),
				"client":    r.Client,
				"error":     err.Error(),
			})
			event.Status = "failed"
			event.Error = err.Error()
		} else {
			event.Scanned = stats.Scanned
			event.Processed = stats.Processed
			event.Upserted = stats.Upserted
			event.Errors = stats.Errors
			if stats.Errors > 0 {
				event.Status = "partial"
			} else {
				event.Status = "success"
			}
			if stats.Processed > 0 {
				reqlog.LogEvent(requestID, "processor sweep completed", map[string]any{
					"processor": r.Processor.Name(),
					"client":    r.Client,
					"processed": stats.Processed,
					"upserted":  stats.Upserted,
					"errors":    stats.Errors,
				})
			}
		}
		if _, pubErr := SweepCompletedTopic.Publish(ctx, event); pubErr != nil {
			log.Printf("processor: publish sweep completed event failed for %s/%s: %v", r.Client, r.Processor.Name(), pubErr)
		}
	}
}

// ScheduledSweep runs every configured processor to exhaustion on a fixed
// interval, mirroring the teacher's warming/cron.go scheduled-job pattern
// generalized from cache-warming schedules to processor sweeps.
var _ = cron.NewJob("processor-sweep", cron.JobConfig{
	Title:    "Response Processor Sweep",
	Schedule: "*/15 * * * *",
	Endpoint: ScheduledSweep,
})

//encore:api private
func ScheduledSweep(ctx context.Context) error {
	if svc == nil {
		return nil
	}
	svc.SweepAll(ctx, 100)
	return nil
}

var svc *Service

func init() {
	var err error
	svc, err = initService()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize processor service: %v", err))
	}
}
