package donations

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/Van103/fun-charity-sub001/internal/app/domain/donation"
	"github.com/Van103/fun-charity-sub001/internal/app/system"
	"github.com/Van103/fun-charity-sub001/pkg/logger"
)

var _ system.Service = (*Reconciler)(nil)

// Reconciler periodically expires pending donations that were never
// confirmed on chain. The schedule is a cron spec ("@every 5m" style) so
// deployments share the format the rest of the platform uses for intervals.
type Reconciler struct {
	service  *Service
	log      *logger.Logger
	schedule cron.Schedule
	maxAge   time.Duration

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
}

// NewReconciler creates a lifecycle-managed donation reconciler. spec is a
// cron expression; maxAge is how long a donation may stay pending.
func NewReconciler(service *Service, spec string, maxAge time.Duration, log *logger.Logger) (*Reconciler, error) {
	if log == nil {
		log = logger.NewDefault("donation-reconciler")
	}
	if spec == "" {
		spec = "@every 5m"
	}
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return nil, fmt.Errorf("parse reconcile schedule %q: %w", spec, err)
	}
	return &Reconciler{
		service:  service,
		log:      log,
		schedule: schedule,
		maxAge:   maxAge,
	}, nil
}

func (r *Reconciler) Name() string { return "donation-reconciler" }

func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running {
		r.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.running = true
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		for {
			next := r.schedule.Next(time.Now())
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

	r.log.Info("donation reconciler started")
	return nil
}

func (r *Reconciler) Stop(ctx context.Context) error {
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

	r.log.Info("donation reconciler stopped")
	return nil
}

func (r *Reconciler) tick(ctx context.Context) {
	if r.service == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	pending, err := r.service.store.ListDonationsByStatus(ctx, donation.StatusPending)
	if err != nil {
		r.log.WithError(err).Warn("donation reconciler tick failed")
		return
	}

	cutoff := time.Now().Add(-r.maxAge)
	for _, d := range pending {
		if d.CreatedAt.After(cutoff) {
			continue
		}
		if _, err := r.service.Expire(ctx, d.ID); err != nil {
			r.log.WithError(err).
				WithField("donation_id", d.ID).
				Warn("expire stale donation failed")
		}
	}
}
