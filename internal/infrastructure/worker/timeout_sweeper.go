package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/approval-gateway/internal/domain/entity"
	"github.com/garyjia/approval-gateway/internal/metrics"
)

// OverdueFinder lists pending approvals past their deadline
type OverdueFinder interface {
	FindTimedOutPending(ctx context.Context, now time.Time, limit int) ([]*entity.Approval, error)
}

// Expirer resolves one overdue approval as timed out
type Expirer interface {
	ExpireApproval(ctx context.Context, approval *entity.Approval) error
}

// SweeperConfig holds configuration for the timeout sweeper
type SweeperConfig struct {
	Interval  time.Duration
	BatchSize int
	// TickTimeout bounds one sweep
	TickTimeout time.Duration
}

// DefaultSweeperConfig returns default configuration
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:    time.Minute,
		BatchSize:   100,
		TickTimeout: 5 * time.Minute,
	}
}

// TimeoutSweeper periodically resolves approvals nobody answered in time.
// It competes with responders through the store's compare-and-set, so a
// concurrent response and sweep resolve an approval exactly once.
type TimeoutSweeper struct {
	config  SweeperConfig
	finder  OverdueFinder
	expirer Expirer
	logger  *zap.Logger
	now     func() time.Time

	mu           sync.Mutex
	isRunning    bool
	cancel       context.CancelFunc
	done         chan struct{}
	lastRun      time.Time
	totalExpired int
}

// NewTimeoutSweeper creates a new timeout sweeper
func NewTimeoutSweeper(config SweeperConfig, finder OverdueFinder, expirer Expirer, logger *zap.Logger) *TimeoutSweeper {
	defaults := DefaultSweeperConfig()
	if config.Interval <= 0 {
		config.Interval = defaults.Interval
	}
	if config.BatchSize <= 0 {
		config.BatchSize = defaults.BatchSize
	}
	if config.TickTimeout <= 0 {
		config.TickTimeout = defaults.TickTimeout
	}
	return &TimeoutSweeper{
		config:  config,
		finder:  finder,
		expirer: expirer,
		logger:  logger,
		now:     time.Now,
	}
}

// Name returns the worker name for identification
func (s *TimeoutSweeper) Name() string {
	return "TimeoutSweeper"
}

// Start runs one sweep immediately and then one per interval
func (s *TimeoutSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("timeout sweeper already running")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	s.isRunning = true

	s.logger.Info("TimeoutSweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Int("batch_size", s.config.BatchSize))

	go s.loop(runCtx, s.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight sweep to finish
func (s *TimeoutSweeper) Stop() error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	cancel, done := s.cancel, s.done
	s.mu.Unlock()

	cancel()
	<-done

	s.mu.Lock()
	total := s.totalExpired
	s.mu.Unlock()
	s.logger.Info("TimeoutSweeper stopped", zap.Int("total_expired", total))
	return nil
}

func (s *TimeoutSweeper) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *TimeoutSweeper) tick(ctx context.Context) {
	tickCtx, cancel := context.WithTimeout(ctx, s.config.TickTimeout)
	defer cancel()

	if _, err := s.RunOnce(tickCtx); err != nil && ctx.Err() == nil {
		s.logger.Error("Timeout sweep failed", zap.Error(err))
	}
}

// RunOnce expires every overdue approval in one batch and returns how many
// were processed without error. A failing approval does not stop the batch.
func (s *TimeoutSweeper) RunOnce(ctx context.Context) (int, error) {
	now := s.now().UTC()
	due, err := s.finder.FindTimedOutPending(ctx, now, s.config.BatchSize)
	if err != nil {
		metrics.RecordSweep(0, err)
		return 0, fmt.Errorf("find timed out approvals: %w", err)
	}

	expired := 0
	for _, approval := range due {
		if ctx.Err() != nil {
			break
		}
		if err := s.expirer.ExpireApproval(ctx, approval); err != nil {
			s.logger.Error("Failed to expire approval",
				zap.String("approval_id", approval.ApprovalID),
				zap.Error(err))
			continue
		}
		expired++
	}

	s.mu.Lock()
	s.lastRun = now
	s.totalExpired += expired
	s.mu.Unlock()

	metrics.RecordSweep(expired, nil)
	if len(due) > 0 {
		s.logger.Info("Timeout sweep completed",
			zap.Int("candidates", len(due)),
			zap.Int("expired", expired))
	}
	return expired, nil
}

// LastRun returns when the sweeper last looked for overdue approvals
func (s *TimeoutSweeper) LastRun() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
