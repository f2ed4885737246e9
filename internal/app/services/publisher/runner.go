package publisher

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/inkpress/inkpress/internal/app/system"
	"github.com/inkpress/inkpress/pkg/logger"
)

var _ system.Service = (*Runner)(nil)

// Runner triggers reconciliation passes on a cron schedule so publication does
// not depend on inbound HTTP traffic. The HTTP trigger endpoint remains
// available for external cron callers and operators.
type Runner struct {
	service  *Service
	log      *logger.Logger
	schedule cron.Schedule

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewRunner creates a lifecycle-managed publish runner firing once a minute.
func NewRunner(service *Service, log *logger.Logger) *Runner {
	if log == nil {
		log = logger.NewDefault("publish-runner")
	}
	schedule, _ := cron.ParseStandard("* * * * *")
	return &Runner{
		service:  service,
		log:      log,
		schedule: schedule,
	}
}

// WithSchedule replaces the tick schedule with a standard five-field cron
// expression. Call before Start.
func (r *Runner) WithSchedule(spec string) error {
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return err
	}
	r.mu.Lock()
	r.schedule = schedule
	r.mu.Unlock()
	return nil
}

func (r *Runner) Name() string { return "publish-runner" }

func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	schedule := r.schedule
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			next := schedule.Next(time.Now())
			timer := time.NewTimer(time.Until(next))
			select {
			case <-runCtx.Done():
				timer.Stop()
				return
			case <-timer.C:
				r.tick(runCtx)
			}
		}
	}()

	r.log.Info("publish runner started")
	return nil
}

func (r *Runner) Stop(ctx context.Context) error {
	r.mu.Lock()
	if !r.running {
		r.mu.Unlock()
		return nil
	}
	cancel := r.cancel
	r.running = false
	r.cancel = nil
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.wg.Wait()
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return ctx.Err()
	}

	r.log.Info("publish runner stopped")
	return nil
}

func (r *Runner) tick(ctx context.Context) {
	if r.service == nil {
		return
	}
	summary, err := r.service.Reconcile(ctx)
	if err != nil {
		r.log.WithError(err).Warn("scheduled reconciliation pass failed")
		return
	}
	if summary.Published > 0 || len(summary.Errors) > 0 {
		r.log.WithField("published", summary.Published).
			WithField("item_errors", len(summary.Errors)).
			Info("scheduled reconciliation pass")
	}
}
