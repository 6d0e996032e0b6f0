package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"esign-sync/internal/common/errors"
	"esign-sync/internal/common/logging"
	"esign-sync/internal/locks"
	"esign-sync/internal/models"
)

// PollerLockKey keeps one replica polling at a time.
const PollerLockKey = "scheduler:status-poller"

// Poller refreshes active, non-terminal envelopes on a cron schedule.
type Poller struct {
	reconciler *Reconciler
	store      Store
	locks      locks.LockManagerInterface
	schedule   string
	timeout    time.Duration
	logger     logging.Logger

	mu   sync.Mutex
	cron *cron.Cron
}

func NewPoller(reconciler *Reconciler, store Store, lm locks.LockManagerInterface, schedule string, logger logging.Logger) *Poller {
	if lm == nil {
		lm = locks.NewLocalManager()
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Poller{
		reconciler: reconciler,
		store:      store,
		locks:      lm,
		schedule:   schedule,
		timeout:    5 * time.Minute,
		logger:     logger.WithFields(logging.String("component", "status-poller")),
	}
}

// Start registers the job and starts the scheduler.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron != nil {
		return nil
	}
	c := cron.New()
	if _, err := c.AddFunc(p.schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		p.RunOnce(ctx)
	}); err != nil {
		return errors.ConfigError("invalid status poll schedule: " + err.Error())
	}
	c.Start()
	p.cron = c

	p.logger.Info("Status poller started", logging.String("schedule", p.schedule))
	return nil
}

// Stop halts the scheduler and waits for a running pass.
func (p *Poller) Stop(ctx context.Context) {
	p.mu.Lock()
	c := p.cron
	p.cron = nil
	p.mu.Unlock()

	if c == nil {
		return
	}
	select {
	case <-c.Stop().Done():
	case <-ctx.Done():
	}
	p.logger.Info("Status poller stopped")
}

// RunOnce refreshes every pollable envelope and returns how many refreshed.
// It does nothing when another replica holds the poller lock.
func (p *Poller) RunOnce(ctx context.Context) int {
	lock, err := p.locks.TryAcquireLock(ctx, PollerLockKey, p.timeout)
	if err != nil {
		p.logger.Debug("Status poll skipped, lock held elsewhere", logging.Err(err))
		return 0
	}
	defer func() {
		if err := lock.Release(context.Background()); err != nil {
			p.logger.Warn("Failed to release poller lock", logging.Err(err))
		}
	}()

	envelopes, err := p.store.ListPollable(ctx, 0)
	if err != nil {
		p.logger.Error("Failed to list pollable envelopes", err)
		return 0
	}

	refreshed := 0
	for _, env := range envelopes {
		if ctx.Err() != nil {
			break
		}
		if env.Sender == "" {
			continue
		}
		_, err := p.reconciler.Refresh(ctx, Request{
			Actor:      models.SystemActor(),
			HostKey:    env.HostKey,
			EnvelopeID: env.EnvelopeID,
		})
		if err != nil {
			p.logger.Warn("Scheduled refresh failed",
				logging.String("host_key", env.HostKey),
				logging.String("envelope_id", env.EnvelopeID),
				logging.Err(err),
			)
			continue
		}
		refreshed++
	}

	if len(envelopes) > 0 {
		p.logger.Info("Status poll finished",
			logging.Int("candidates", len(envelopes)),
			logging.Int("refreshed", refreshed),
		)
	}
	return refreshed
}
