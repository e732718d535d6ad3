// Package syncer replays the repository outbox on a schedule and whenever
// connectivity comes back.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/R3E-Network/bankline/internal/repository"
	"github.com/R3E-Network/bankline/pkg/logger"
)

// DefaultSchedule runs a sync every 30 seconds.
const DefaultSchedule = "@every 30s"

// Target replays pending operations. *repository.Reconciler satisfies it.
type Target interface {
	SyncPending(ctx context.Context) (repository.SyncReport, error)
}

// Notifier publishes connectivity changes.
type Notifier interface {
	Subscribe() (<-chan bool, func())
}

// Config configures a Syncer.
type Config struct {
	Target   Target
	Schedule string
	// Notifier is optional; with it a reconnect triggers an immediate sync.
	Notifier Notifier
	Log      *logger.Logger
}

// Syncer drives Target.SyncPending.
type Syncer struct {
	target   Target
	schedule string
	notifier Notifier
	log      *logger.Logger

	mu          sync.Mutex
	cron        *cron.Cron
	unsubscribe func()
	wg          sync.WaitGroup
}

// New validates the schedule and creates a syncer.
func New(cfg Config) (*Syncer, error) {
	if cfg.Target == nil {
		return nil, fmt.Errorf("syncer: target is required")
	}
	if cfg.Schedule == "" {
		cfg.Schedule = DefaultSchedule
	}
	if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
		return nil, fmt.Errorf("syncer: invalid schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.Log == nil {
		cfg.Log = logger.NewDefault("syncer")
	}
	return &Syncer{
		target:   cfg.Target,
		schedule: cfg.Schedule,
		notifier: cfg.Notifier,
		log:      cfg.Log,
	}, nil
}

func (s *Syncer) Name() string { return "syncer" }

// RunNow performs one sync. A sync already in flight is not an error.
func (s *Syncer) RunNow(ctx context.Context) (repository.SyncReport, error) {
	report, err := s.target.SyncPending(ctx)
	switch {
	case errors.Is(err, repository.ErrSyncInProgress):
		s.log.WithField("op", "sync").Debug("sync already running")
		return report, nil
	case err != nil:
		s.log.WithError(err).Warn("sync failed")
		return report, err
	}
	if report.Synced > 0 || report.Dropped > 0 {
		s.log.WithFields(map[string]interface{}{
			"synced":    report.Synced,
			"dropped":   report.Dropped,
			"remaining": report.Remaining,
		}).Info("pending operations synced")
	}
	return report, nil
}

// Start schedules periodic syncs and listens for reconnects.
func (s *Syncer) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cron != nil {
		return fmt.Errorf("syncer already running")
	}

	c := cron.New(
		cron.WithLogger(cronLogger{s.log}),
		cron.WithChain(cron.SkipIfStillRunning(cronLogger{s.log})),
	)
	if _, err := c.AddFunc(s.schedule, func() { _, _ = s.RunNow(ctx) }); err != nil {
		return fmt.Errorf("schedule sync: %w", err)
	}
	c.Start()
	s.cron = c

	if s.notifier != nil {
		ch, unsubscribe := s.notifier.Subscribe()
		s.unsubscribe = unsubscribe
		s.wg.Add(1)
		go s.watch(ctx, ch)
	}
	s.log.WithField("schedule", s.schedule).Info("syncer started")
	return nil
}

// Stop halts scheduling and waits for a running sync or ctx, whichever ends
// first.
func (s *Syncer) Stop(ctx context.Context) error {
	s.mu.Lock()
	c, unsubscribe := s.cron, s.unsubscribe
	s.cron, s.unsubscribe = nil, nil
	s.mu.Unlock()
	if c == nil {
		return nil
	}

	if unsubscribe != nil {
		unsubscribe()
	}
	s.wg.Wait()

	select {
	case <-c.Stop().Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Syncer) watch(ctx context.Context, ch <-chan bool) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case connected, ok := <-ch:
			if !ok {
				return
			}
			if connected {
				s.log.Info("connectivity restored, syncing")
				_, _ = s.RunNow(ctx)
			}
		}
	}
}

// cronLogger routes cron's own messages into the component logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.WithFields(fields(keysAndValues)).Debug("cron: " + msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.WithError(err).WithFields(fields(keysAndValues)).Error("cron: " + msg)
}

func fields(kv []interface{}) logrus.Fields {
	out := make(logrus.Fields, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		out[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return out
}
