/*
scheduler.go - Automated reconciliation sweep scheduler

PURPOSE:
  Periodically runs the full reconciliation sweep (pollution cleanup
  followed by per-customer balance repair) in the background.

DESIGN:
  - Runs a background goroutine with configurable sweep interval
  - Skips a tick when the previous sweep is still running
  - Stop cancels an in-flight sweep and waits for it to exit

CONFIGURATION:
  - SweepInterval: How often to sweep (default: 1 hour)
  - Enabled: Whether scheduler is active (default: true)

USAGE:
  scheduler := NewSweepScheduler(sweep, logger)
  scheduler.Start()
  // ... later
  scheduler.Stop()

SEE ALSO:
  - handlers.go: Reconcile endpoint (manual sweep)
  - ledger/sweep.go: Sweep implementation
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ironstore/ledger-engine/ledger"
)

// SweepScheduler runs reconciliation sweeps on a fixed interval.
type SweepScheduler struct {
	Sweep         *ledger.Sweep
	Logger        logrus.FieldLogger
	SweepInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	cancel context.CancelFunc
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	// runMu guards running without blocking Start/Stop
	runMu   sync.Mutex
	running bool
}

// NewSweepScheduler creates a new scheduler.
func NewSweepScheduler(sweep *ledger.Sweep, logger logrus.FieldLogger) *SweepScheduler {
	return &SweepScheduler{
		Sweep:         sweep,
		Logger:        logger,
		SweepInterval: 1 * time.Hour,
		Enabled:       true,
		stop:          make(chan struct{}),
	}
}

// Start begins the scheduler.
func (s *SweepScheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.Enabled {
		s.log().Info("sweep scheduler disabled, not starting")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.ticker = time.NewTicker(s.SweepInterval)
	s.wg.Add(1)

	go s.run(ctx)

	s.log().WithField("interval", s.SweepInterval).Info("sweep scheduler started")
}

// Stop stops the scheduler and waits for an in-flight sweep to exit.
func (s *SweepScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ticker == nil {
		return
	}
	s.ticker.Stop()
	s.cancel()
	close(s.stop)
	s.wg.Wait()
	s.log().Info("sweep scheduler stopped")
}

func (s *SweepScheduler) run(ctx context.Context) {
	defer s.wg.Done()

	// Run immediately on start
	s.sweepOnce(ctx)

	for {
		select {
		case <-s.ticker.C:
			s.sweepOnce(ctx)
		case <-s.stop:
			return
		}
	}
}

func (s *SweepScheduler) sweepOnce(ctx context.Context) {
	s.runMu.Lock()
	if s.running {
		s.runMu.Unlock()
		s.log().Warn("previous sweep still running, skipping tick")
		return
	}
	s.running = true
	s.runMu.Unlock()

	defer func() {
		s.runMu.Lock()
		s.running = false
		s.runMu.Unlock()
	}()

	report, err := s.Sweep.ReconcileAll(ctx)
	if err != nil {
		s.log().WithError(err).Error("scheduled sweep failed")
		return
	}
	s.log().WithFields(logrus.Fields{
		"run_id":    report.RunID,
		"processed": report.CustomersProcessed,
		"fixed":     report.BalancesFixed,
		"removed":   report.Cleanup.Total(),
		"failures":  len(report.Failures),
	}).Info("scheduled sweep complete")
}

// RunNow triggers an immediate sweep (for testing/admin).
func (s *SweepScheduler) RunNow() {
	s.sweepOnce(context.Background())
}

func (s *SweepScheduler) log() logrus.FieldLogger {
	if s.Logger != nil {
		return s.Logger
	}
	return logrus.StandardLogger()
}
