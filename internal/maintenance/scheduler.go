package maintenance

import (
	"context"
	"fmt"
	"sync"
	"time"

	rcron "github.com/robfig/cron/v3"
	"github.com/roylee0704/gron"

	"memoryd/internal/maintenance/interfaces"
	"memoryd/internal/providers"
	"memoryd/internal/structures"
)

const (
	jobTimeout   = 5 * time.Minute
	drainTimeout = 30 * time.Second
)

// Scheduler runs the periodic jobs: fixed-interval ones on gron, calendar
// ones on cron specs. Jobs never overlap.
type Scheduler struct {
	config  *structures.Config
	logger  providers.Logger
	metrics providers.MetricsProviderInterface
	target  interfaces.MaintenanceInterface
	now     func() time.Time

	ticker *gron.Cron
	cron   *rcron.Cron
	opsMu  sync.Mutex
}

func NewScheduler(config *structures.Config, logger providers.Logger, metrics providers.MetricsProviderInterface, target interfaces.MaintenanceInterface) interfaces.SchedulerInterface {
	return &Scheduler{
		config:  config,
		logger:  logger,
		metrics: metrics,
		target:  target,
		now:     time.Now,
	}
}

func (s *Scheduler) Init() error {
	s.cron = rcron.New(rcron.WithSeconds(), rcron.WithLocation(time.UTC))
	if spec := s.config.Retention.Schedule; spec != "" && s.config.Retention.MaxAge > 0 {
		if _, err := s.cron.AddFunc(spec, func() { s.runJob("retention", s.retention) }); err != nil {
			return fmt.Errorf("invalid retention schedule %q: %w", spec, err)
		}
	}
	if spec := s.config.Engagement.RefreshSchedule; spec != "" {
		if _, err := s.cron.AddFunc(spec, func() { s.runJob("engagement refresh", s.refreshEngagement) }); err != nil {
			return fmt.Errorf("invalid engagement refresh schedule %q: %w", spec, err)
		}
	}

	s.ticker = gron.New()
	if interval := s.config.Erasure.SweepInterval; interval > 0 {
		s.ticker.AddFunc(gron.Every(interval), func() { s.runJob("erasure sweep", s.sweepErasures) })
	}
	if interval := s.config.Metrics.SampleInterval; s.config.Metrics.Enabled && interval > 0 {
		s.ticker.AddFunc(gron.Every(interval), s.sample)
	}

	s.cron.Start()
	s.ticker.Start()
	s.logger.Infof(providers.TypeApp, "Maintenance scheduler started")
	return nil
}

func (s *Scheduler) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Restore finishes erasures left pending by a previous run.
func (s *Scheduler) Restore() error {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()
	return s.sweepErasures(ctx)
}

// Persist lets queued learning tasks reach the store before shutdown.
func (s *Scheduler) Persist() error {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	defer cancel()
	s.logger.Infof(providers.TypeApp, "Draining %d queued learning tasks...", s.target.QueueDepth())
	if err := s.target.Drain(ctx); err != nil {
		s.logger.Errorf(providers.TypeApp, "Error while draining learning tasks: %s", err)
		return err
	}
	return nil
}

func (s *Scheduler) runJob(name string, job func(ctx context.Context) error) {
	s.opsMu.Lock()
	defer s.opsMu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	started := s.now()
	if err := job(ctx); err != nil {
		s.logger.Errorf(providers.TypeApp, "Maintenance job %s failed: %s", name, err)
		return
	}
	s.logger.Debugf(providers.TypeApp, "Maintenance job %s finished in %s", name, s.now().Sub(started))
}

func (s *Scheduler) retention(ctx context.Context) error {
	cutoff := s.now().Add(-s.config.Retention.MaxAge)
	n, err := s.target.CleanupOlderThan(ctx, cutoff)
	if err != nil {
		return err
	}
	s.logger.Infof(providers.TypeApp, "Retention removed %d interactions", n)
	return nil
}

func (s *Scheduler) refreshEngagement(ctx context.Context) error {
	window := s.config.Engagement.ActiveWindow
	if window <= 0 {
		window = 24 * time.Hour
	}
	n, err := s.target.RefreshEngagement(ctx, s.now().Add(-window))
	if err != nil {
		return err
	}
	s.logger.Infof(providers.TypeApp, "Refreshed engagement of %d pairs", n)
	return nil
}

func (s *Scheduler) sweepErasures(ctx context.Context) error {
	n, err := s.target.CompletePendingErasures(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.logger.Infof(providers.TypeAudit, "Completed %d pending erasure requests", n)
	}
	return nil
}

func (s *Scheduler) sample() {
	s.metrics.SetQueueDepth(s.target.QueueDepth())
}
