package watch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Block-Logic/ping-thing-client/internal/domain/model"
	"github.com/Block-Logic/ping-thing-client/internal/freshness"
	"github.com/Block-Logic/ping-thing-client/internal/metrics"
)

// PositionFeed opens a slot update subscription against the cluster.
type PositionFeed interface {
	Subscribe(ctx context.Context) (Subscription, error)
}

// Subscription yields slot updates until Unsubscribe or a stream error.
type Subscription interface {
	Recv(ctx context.Context) (model.SlotUpdate, error)
	Unsubscribe()
}

// PositionConfig controls the slot watcher's resubscribe behaviour.
type PositionConfig struct {
	// SilenceWindow is how long the watcher tolerates no accepted
	// update before tearing the subscription down and redialing.
	SilenceWindow time.Duration
	// RedialDelay is the cool-down applied after an explicit stream or
	// subscribe error, before the next attempt.
	RedialDelay time.Duration
	// FailureCeiling bounds consecutive errors before giving up.
	FailureCeiling int
	// TrackCompleted accepts "completed" updates in addition to
	// "firstShredReceived". Completed arrives later in the slot's life,
	// trading measurement tightness for fewer invalidations.
	TrackCompleted bool
}

func (c *PositionConfig) applyDefaults() {
	if c.SilenceWindow <= 0 {
		c.SilenceWindow = 3 * time.Second
	}
	if c.RedialDelay <= 0 {
		c.RedialDelay = 4 * time.Second
	}
	if c.FailureCeiling <= 0 {
		c.FailureCeiling = 100
	}
}

// errSilence signals a quiet stream, handled by prompt resubscribe
// without touching the failure budget.
var errSilence = errors.New("slot feed silent")

// PositionWatcher keeps the shared slot cell at the newest slot the
// cluster has started producing. It consumes a slot update stream,
// accepting only the leading edge of each slot, and resubscribes when
// the stream goes quiet or errors out.
type PositionWatcher struct {
	feed   PositionFeed
	cell   *freshness.Value[uint64]
	cfg    PositionConfig
	budget *Budget
	logger *slog.Logger

	sleepFn func(ctx context.Context, d time.Duration) error
}

func NewPositionWatcher(feed PositionFeed, cell *freshness.Value[uint64], cfg PositionConfig, logger *slog.Logger) *PositionWatcher {
	cfg.applyDefaults()
	return &PositionWatcher{
		feed:    feed,
		cell:    cell,
		cfg:     cfg,
		budget:  NewBudget("position watcher", cfg.FailureCeiling),
		logger:  logger.With("component", "position_watcher"),
		sleepFn: SleepContext,
	}
}

// Run consumes subscriptions until ctx is cancelled or the failure
// budget is exhausted.
func (w *PositionWatcher) Run(ctx context.Context) error {
	w.logger.Info("position watcher started",
		"silence_window_ms", w.cfg.SilenceWindow.Milliseconds(),
		"redial_delay_ms", w.cfg.RedialDelay.Milliseconds(),
		"failure_ceiling", w.cfg.FailureCeiling,
		"track_completed", w.cfg.TrackCompleted,
	)

	for {
		err := w.consume(ctx)
		switch {
		case err == nil || errors.Is(err, errSilence):
			// Quiet stream: the cell is already stale by the silence
			// window, so redial immediately.
			metrics.WatcherResubscribes.WithLabelValues("silence").Inc()
			w.logger.Warn("slot feed silent, resubscribing",
				"silence_window_ms", w.cfg.SilenceWindow.Milliseconds())
		case errors.Is(err, ErrBudgetExhausted):
			return fmt.Errorf("position watcher giving up: %w", err)
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			metrics.WatcherResubscribes.WithLabelValues("error").Inc()
			w.logger.Error("slot feed failed, backing off before resubscribe",
				"error", err,
				"consecutive_failures", w.budget.Count(),
				"redial_delay_ms", w.cfg.RedialDelay.Milliseconds(),
			)
			if serr := w.sleepFn(ctx, w.cfg.RedialDelay); serr != nil {
				return serr
			}
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// consume opens one subscription and drains it until silence, a stream
// error, or budget exhaustion. A nil or errSilence return asks the
// caller to resubscribe promptly; any other error applies the redial
// cool-down first.
func (w *PositionWatcher) consume(ctx context.Context) error {
	sub, err := w.feed.Subscribe(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		w.cell.Invalidate()
		metrics.WatcherFailures.WithLabelValues("position").Inc()
		if berr := w.budget.Fail(); berr != nil {
			return berr
		}
		return fmt.Errorf("subscribe slot updates: %w", err)
	}
	defer sub.Unsubscribe()

	for {
		recvCtx, cancel := context.WithTimeout(ctx, w.cfg.SilenceWindow)
		upd, err := sub.Recv(recvCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if errors.Is(err, context.DeadlineExceeded) {
				return errSilence
			}
			w.cell.Invalidate()
			metrics.WatcherFailures.WithLabelValues("position").Inc()
			if berr := w.budget.Fail(); berr != nil {
				return berr
			}
			return fmt.Errorf("slot update stream: %w", err)
		}

		if w.accepts(upd.Type) {
			w.cell.Write(upd.Slot)
			w.budget.Reset()
			metrics.WatcherUpdates.WithLabelValues("position").Inc()
			continue
		}

		// A notification we do not track still proves the stream is
		// alive, but the cell must not advertise a slot edge the
		// cluster has already moved past.
		w.cell.Invalidate()
		if berr := w.budget.Fail(); berr != nil {
			return berr
		}
	}
}

func (w *PositionWatcher) accepts(t model.SlotUpdateType) bool {
	if t == model.SlotUpdateFirstShredReceived {
		return true
	}
	return w.cfg.TrackCompleted && t == model.SlotUpdateCompleted
}
