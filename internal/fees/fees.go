// Package fees keeps a background-refreshed view of the cluster's
// recent prioritization fees so the probe loop can price its compute
// budget without an RPC call on the hot path.
package fees

import (
	"context"
	"log/slog"
	"time"

	"github.com/Block-Logic/ping-thing-client/internal/freshness"
	"github.com/Block-Logic/ping-thing-client/internal/metrics"
	"github.com/Block-Logic/ping-thing-client/internal/watch"
)

// Source samples the cluster fee market at a given percentile.
type Source interface {
	RecentPriorityFee(ctx context.Context, percentileBps uint16) (uint64, error)
}

type Config struct {
	// PercentileBps selects the fee percentile in basis points.
	PercentileBps uint16
	// FloorMicroLamports is used whenever no fresh sample is available.
	FloorMicroLamports uint64
	PollInterval       time.Duration
	// MaxAge bounds how stale a sample the probe loop will still apply.
	MaxAge     time.Duration
	PingerName string
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = 350 * time.Millisecond
	}
	if c.MaxAge <= 0 {
		c.MaxAge = 10 * time.Second
	}
}

// Watcher polls the fee source and serves the freshest sample. Fee
// fetch failures are logged and skipped; the probe keeps running on
// the configured floor.
type Watcher struct {
	source Source
	cell   *freshness.Value[uint64]
	cfg    Config
	logger *slog.Logger

	sleepFn func(ctx context.Context, d time.Duration) error
}

func NewWatcher(source Source, cfg Config, logger *slog.Logger) *Watcher {
	cfg.applyDefaults()
	return &Watcher{
		source:  source,
		cell:    freshness.New[uint64](),
		cfg:     cfg,
		logger:  logger.With("component", "fee_watcher"),
		sleepFn: watch.SleepContext,
	}
}

// Run polls until ctx is cancelled. Fee trouble never takes the probe
// down, so Run only returns the context error.
func (w *Watcher) Run(ctx context.Context) error {
	w.logger.Info("fee watcher started",
		"percentile_bps", w.cfg.PercentileBps,
		"floor_micro_lamports", w.cfg.FloorMicroLamports,
		"poll_interval_ms", w.cfg.PollInterval.Milliseconds(),
	)

	for {
		fee, err := w.source.RecentPriorityFee(ctx, w.cfg.PercentileBps)
		switch {
		case ctx.Err() != nil:
			return ctx.Err()
		case err != nil:
			w.logger.Warn("fee sample failed, keeping previous value", "error", err)
		default:
			w.cell.Write(fee)
			metrics.PriorityFeeMicroLamports.WithLabelValues(w.cfg.PingerName).Set(float64(w.applied(fee)))
		}

		if err := w.sleepFn(ctx, w.cfg.PollInterval); err != nil {
			return err
		}
	}
}

// CurrentFee returns the fee to attach to the next probe: the freshest
// sample when one exists and beats the floor, the floor otherwise.
func (w *Watcher) CurrentFee() uint64 {
	sample, ok := w.cell.Snapshot(w.cfg.MaxAge)
	if !ok {
		return w.cfg.FloorMicroLamports
	}
	return w.applied(sample)
}

func (w *Watcher) applied(sample uint64) uint64 {
	if sample < w.cfg.FloorMicroLamports {
		return w.cfg.FloorMicroLamports
	}
	return sample
}
