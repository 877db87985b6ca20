package ledger

import (
	"context"
	"log/slog"
	"time"

	"github.com/congo-pay/wallet_ledger/internal/store"
)

// Sweeper periodically fails pending rows that outlived maxAge.
type Sweeper struct {
	ledger   *Service
	tx       store.Manager
	interval time.Duration
	maxAge   time.Duration
	logger   *slog.Logger
}

// NewSweeper builds a reconciliation sweeper.
func NewSweeper(ledger *Service, tx store.Manager, interval, maxAge time.Duration, logger *slog.Logger) *Sweeper {
	return &Sweeper{ledger: ledger, tx: tx, interval: interval, maxAge: maxAge, logger: logger}
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("ledger sweeper started", slog.Duration("interval", s.interval), slog.Duration("max_age", s.maxAge))
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("ledger sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logger.Error("ledger sweep failed", slog.Any("error", err))
			}
		}
	}
}

// SweepOnce runs a single pass and returns how many rows were failed.
func (s *Sweeper) SweepOnce(ctx context.Context) (int64, error) {
	var n int64
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.ledger.ExpireStale(ctx, s.maxAge)
		return err
	})
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Warn("failed stale pending transactions", slog.Int64("count", n))
	}
	return n, nil
}
