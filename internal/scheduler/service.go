package scheduler

import (
	"context"

	"github.com/domage/github-trend-analyzer/internal/config"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// DigestRunner runs one digest
type DigestRunner interface {
	RunDigest(ctx context.Context) error
}

// Service handles scheduling of digest runs
type Service struct {
	config *config.Config
	runner DigestRunner
	cron   *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, runner DigestRunner) *Service {
	return &Service{
		config: cfg,
		runner: runner,
		cron:   cron.New(cron.WithSeconds()),
	}
}

// Start registers the digest job and starts the cron loop. Nothing is scheduled
// when the digest is disabled.
func (s *Service) Start() error {
	if !s.config.DigestEnabled {
		logrus.Info("Digest disabled, scheduler not started")
		return nil
	}

	_, err := s.cron.AddFunc(s.config.DigestSchedule, func() {
		logrus.Info("Starting scheduled digest run")
		if err := s.runner.RunDigest(context.Background()); err != nil {
			logrus.Errorf("Scheduled digest run failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with schedule %q for %d terms", s.config.DigestSchedule, len(s.config.WatchTerms))
	return nil
}

// Entries reports the number of registered jobs
func (s *Service) Entries() int {
	return len(s.cron.Entries())
}

// Stop stops the scheduler and waits for a running digest to finish
func (s *Service) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
		logrus.Info("Scheduler stopped")
	}
}
