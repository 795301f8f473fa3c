// Package scheduler runs background reconciliation work on a timer.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/chessreg/backend/internal/application/reconcile"
	"github.com/chessreg/backend/internal/domain/invoice"
	"github.com/chessreg/backend/internal/domain/shared"
	"github.com/chessreg/backend/internal/infrastructure/config"
)

// InvoiceRefresher refreshes the payment status of one invoice
type InvoiceRefresher interface {
	RefreshInvoiceStatus(ctx context.Context, invoiceID string) (*reconcile.StatusSnapshot, error)
}

// SweeperConfig holds status sweeper configuration
type SweeperConfig struct {
	Enabled    bool
	Interval   time.Duration
	Workers    int
	JobTimeout time.Duration
	BatchSize  int
}

// DefaultSweeperConfig returns default sweeper configuration
func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Enabled:    true,
		Interval:   15 * time.Minute,
		Workers:    3,
		JobTimeout: 30 * time.Second,
		BatchSize:  100,
	}
}

// SweeperConfigFrom maps the application sweep settings, keeping defaults for
// unset values
func SweeperConfigFrom(cfg config.SweepConfig) SweeperConfig {
	out := DefaultSweeperConfig()
	out.Enabled = cfg.Enabled
	if cfg.Interval > 0 {
		out.Interval = cfg.Interval
	}
	if cfg.Workers > 0 {
		out.Workers = cfg.Workers
	}
	if cfg.JobTimeout > 0 {
		out.JobTimeout = cfg.JobTimeout
	}
	if cfg.BatchSize > 0 {
		out.BatchSize = cfg.BatchSize
	}
	return out
}

// Validate checks the configuration
func (c SweeperConfig) Validate() error {
	if c.Interval <= 0 || c.Workers <= 0 || c.JobTimeout <= 0 || c.BatchSize <= 0 {
		return fmt.Errorf("%w: interval, workers, job timeout and batch size must be positive", ErrInvalidConfig)
	}
	return nil
}

// SweepResult summarizes one sweep
type SweepResult struct {
	Checked  int
	Changed  int
	Failed   int
	Duration time.Duration
}

// StatusSweeper periodically refreshes every invoice whose status is not
// terminal. Refreshes go through the same per-invoice lock as on-demand
// refreshes.
type StatusSweeper struct {
	config    SweeperConfig
	summaries invoice.SummaryRepository
	refresher InvoiceRefresher
	logger    *zap.Logger

	sweeping  atomic.Bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewStatusSweeper creates a new status sweeper
func NewStatusSweeper(config SweeperConfig, summaries invoice.SummaryRepository, refresher InvoiceRefresher, logger *zap.Logger) *StatusSweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StatusSweeper{
		config:    config,
		summaries: summaries,
		refresher: refresher,
		logger:    logger,
	}
}

// Start starts the periodic sweep
func (s *StatusSweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Status sweeper is disabled")
		return nil
	}
	if err := s.config.Validate(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.isRunning = true
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)

	s.logger.Info("Status sweeper started",
		zap.Duration("interval", s.config.Interval),
		zap.Int("workers", s.config.Workers),
	)
	return nil
}

// Stop stops the sweeper and waits for a running sweep to finish
func (s *StatusSweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Status sweeper stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Status sweeper stop timed out")
		return ctx.Err()
	}
}

// IsRunning reports whether the periodic sweep is active
func (s *StatusSweeper) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

func (s *StatusSweeper) loop(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("Status sweep failed", zap.Error(err))
			}
		}
	}
}

// RunOnce refreshes every open invoice once with bounded parallelism. The
// open set is read in full before refreshing so invoices that become
// terminal mid-sweep do not shift the pages.
func (s *StatusSweeper) RunOnce(ctx context.Context) (SweepResult, error) {
	if !s.sweeping.CompareAndSwap(false, true) {
		return SweepResult{}, ErrSweepInProgress
	}
	defer s.sweeping.Store(false)

	start := time.Now()
	ids, err := s.openInvoiceIDs(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	var changed, failed atomic.Int64
	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < s.config.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for id := range jobs {
				changedStatus, err := s.refreshOne(ctx, id)
				if err != nil {
					failed.Add(1)
					s.logger.Warn("Invoice refresh failed",
						zap.Int("worker_id", workerID),
						zap.String("invoice_id", id),
						zap.String("kind", string(reconcile.Classify(err))),
						zap.Error(err))
					continue
				}
				if changedStatus {
					changed.Add(1)
				}
			}
		}(i)
	}

	dispatched := 0
dispatch:
	for _, id := range ids {
		select {
		case <-ctx.Done():
			break dispatch
		case jobs <- id:
			dispatched++
		}
	}
	close(jobs)
	wg.Wait()

	result := SweepResult{
		Checked:  dispatched,
		Changed:  int(changed.Load()),
		Failed:   int(failed.Load()),
		Duration: time.Since(start),
	}
	s.logger.Info("Status sweep finished",
		zap.Int("open", len(ids)),
		zap.Int("checked", result.Checked),
		zap.Int("changed", result.Changed),
		zap.Int("failed", result.Failed),
		zap.Duration("duration", result.Duration))
	return result, ctx.Err()
}

func (s *StatusSweeper) openInvoiceIDs(ctx context.Context) ([]string, error) {
	filter := shared.DefaultFilter()
	filter.PageSize = s.config.BatchSize

	var ids []string
	for {
		page, err := s.summaries.FindOpen(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("list open invoices: %w", err)
		}
		for _, summary := range page {
			ids = append(ids, summary.ID)
		}
		if len(page) < filter.PageSize {
			return ids, nil
		}
		filter.Page++
	}
}

// refreshOne refreshes an invoice and reports whether it left its status
func (s *StatusSweeper) refreshOne(ctx context.Context, id string) (bool, error) {
	before, err := s.summaries.FindByID(ctx, id)
	if err != nil {
		return false, err
	}
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	snapshot, err := s.refresher.RefreshInvoiceStatus(jobCtx, id)
	if err != nil {
		return false, err
	}
	return snapshot.Status != before.Status, nil
}
