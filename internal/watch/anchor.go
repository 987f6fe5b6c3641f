package watch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/Block-Logic/ping-thing-client/internal/domain/model"
	"github.com/Block-Logic/ping-thing-client/internal/freshness"
	"github.com/Block-Logic/ping-thing-client/internal/metrics"
)

// AnchorSource fetches the latest blockhash anchor from the cluster.
type AnchorSource interface {
	FetchAnchor(ctx context.Context) (model.Anchor, error)
}

// AnchorConfig controls the polling cadence of the anchor watcher.
type AnchorConfig struct {
	// Interval between polls. The fetch itself is bounded by Timeout.
	Interval time.Duration
	Timeout  time.Duration
	// FailureCeiling is the number of consecutive failed polls after
	// which the watcher gives up and the process shuts down.
	FailureCeiling int
}

func (c *AnchorConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = 5 * time.Second
	}
	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}
	if c.FailureCeiling <= 0 {
		c.FailureCeiling = 5
	}
}

// AnchorWatcher polls the cluster for the latest blockhash and keeps
// the shared anchor cell fresh. Every failed or empty poll invalidates
// the cell so the probe loop never signs against a hash the watcher
// could not re-confirm.
type AnchorWatcher struct {
	source AnchorSource
	cell   *freshness.Value[model.Anchor]
	cfg    AnchorConfig
	budget *Budget
	logger *slog.Logger

	sleepFn func(ctx context.Context, d time.Duration) error
}

func NewAnchorWatcher(source AnchorSource, cell *freshness.Value[model.Anchor], cfg AnchorConfig, logger *slog.Logger) *AnchorWatcher {
	cfg.applyDefaults()
	return &AnchorWatcher{
		source:  source,
		cell:    cell,
		cfg:     cfg,
		budget:  NewBudget("anchor watcher", cfg.FailureCeiling),
		logger:  logger.With("component", "anchor_watcher"),
		sleepFn: SleepContext,
	}
}

// Run polls until ctx is cancelled or the failure budget is exhausted.
func (w *AnchorWatcher) Run(ctx context.Context) error {
	w.logger.Info("anchor watcher started",
		"interval_ms", w.cfg.Interval.Milliseconds(),
		"timeout_ms", w.cfg.Timeout.Milliseconds(),
		"failure_ceiling", w.cfg.FailureCeiling,
	)

	for {
		if err := w.poll(ctx); err != nil {
			return err
		}
		if err := w.sleepFn(ctx, w.cfg.Interval); err != nil {
			return err
		}
	}
}

func (w *AnchorWatcher) poll(ctx context.Context) error {
	fetchCtx, cancel := context.WithTimeout(ctx, w.cfg.Timeout)
	anchor, err := w.source.FetchAnchor(fetchCtx)
	cancel()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	switch {
	case err != nil:
		return w.fail("anchor fetch failed", err)
	case anchor.IsZero():
		return w.fail("anchor source returned no blockhash", nil)
	default:
		w.cell.Write(anchor)
		w.budget.Reset()
		metrics.WatcherUpdates.WithLabelValues("anchor").Inc()
		w.logger.Debug("anchor refreshed",
			"blockhash", anchor.Blockhash.String(),
			"last_valid_block_height", anchor.LastValidBlockHeight,
		)
		return nil
	}
}

func (w *AnchorWatcher) fail(msg string, err error) error {
	w.cell.Invalidate()
	metrics.WatcherFailures.WithLabelValues("anchor").Inc()

	attrs := []any{"consecutive_failures", w.budget.Count() + 1}
	if err != nil {
		attrs = append(attrs, "error", err)
	}
	w.logger.Error(msg, attrs...)

	if berr := w.budget.Fail(); berr != nil {
		return fmt.Errorf("anchor watcher giving up: %w", berr)
	}
	return nil
}
