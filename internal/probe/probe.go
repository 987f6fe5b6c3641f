// Package probe drives the measurement loop: wait for a fresh anchor
// and slot edge, sign a minimal self-transfer, race submission against
// the confirmation wait, then report how long the cluster took.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"go.opentelemetry.io/otel/attribute"

	"github.com/Block-Logic/ping-thing-client/internal/domain/model"
	"github.com/Block-Logic/ping-thing-client/internal/freshness"
	"github.com/Block-Logic/ping-thing-client/internal/metrics"
	"github.com/Block-Logic/ping-thing-client/internal/tracing"
	"github.com/Block-Logic/ping-thing-client/internal/watch"
)

// Backend is the chain surface one probe attempt needs.
type Backend interface {
	Submit(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error)
	AwaitConfirmation(ctx context.Context, sig solanago.Signature) error
	Lookup(ctx context.Context, sig solanago.Signature) (slot uint64, found bool, err error)
}

// Reporter delivers finished measurements.
type Reporter interface {
	Report(ctx context.Context, m model.Measurement) error
}

// Recorder persists each signed probe before submission. Optional.
type Recorder interface {
	Append(slotSent, seq uint64, signature string) error
}

// FeeSource prices the compute budget of the next probe. Optional.
type FeeSource interface {
	CurrentFee() uint64
}

// Limiter paces probe submissions. Optional.
type Limiter interface {
	Wait(ctx context.Context) error
}

type Config struct {
	Commitment model.Commitment
	// LoopDelay is slept at the top of every iteration.
	LoopDelay time.Duration
	// AwaitPollInterval is the freshness-gate spin interval.
	AwaitPollInterval time.Duration
	// AnchorMaxAge and SlotMaxAge bound how stale a cached anchor or
	// slot edge a probe may be built against.
	AnchorMaxAge time.Duration
	SlotMaxAge   time.Duration
	// ConfirmationTimeout bounds submit-to-confirmation; past it the
	// probe is recorded as expired.
	ConfirmationTimeout time.Duration
	// RetryInterval is the resend cadence while awaiting confirmation.
	RetryInterval time.Duration
	// SettleDelay is waited before looking up the landed slot, giving
	// the RPC node time to index the transaction.
	SettleDelay time.Duration

	TransferLamports uint64
	ComputeUnitLimit uint32
	// PriorityFeePercentile is recorded with each measurement.
	PriorityFeePercentile uint16

	PingerName string
	// FailureCeiling ends the run after that many consecutive
	// iteration failures.
	FailureCeiling int
}

func (c *Config) applyDefaults() {
	if c.AwaitPollInterval <= 0 {
		c.AwaitPollInterval = time.Millisecond
	}
	if c.AnchorMaxAge <= 0 {
		c.AnchorMaxAge = 10 * time.Second
	}
	if c.SlotMaxAge <= 0 {
		c.SlotMaxAge = 50 * time.Millisecond
	}
	if c.ConfirmationTimeout <= 0 {
		c.ConfirmationTimeout = 20 * time.Second
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 2 * time.Second
	}
	if c.SettleDelay <= 0 {
		c.SettleDelay = 2 * time.Second
	}
	if c.TransferLamports == 0 {
		c.TransferLamports = 5000
	}
	if c.ComputeUnitLimit == 0 {
		c.ComputeUnitLimit = 500
	}
	if c.FailureCeiling <= 0 {
		c.FailureCeiling = 3
	}
}

// errVoid marks iterations that produced no measurement for an
// expected reason; they neither reset nor advance the failure count.
var errVoid = errors.New("void iteration")

// Probe is the measurement loop. Not safe for concurrent Run calls.
type Probe struct {
	backend  Backend
	reporter Reporter
	recorder Recorder
	fees     FeeSource
	limiter  Limiter

	anchors *freshness.Value[model.Anchor]
	slots   *freshness.Value[uint64]

	wallet solanago.PrivateKey
	cfg    Config
	budget *watch.Budget
	logger *slog.Logger
	seq    uint64

	sleepFn func(ctx context.Context, d time.Duration) error
}

func New(
	backend Backend,
	reporter Reporter,
	anchors *freshness.Value[model.Anchor],
	slots *freshness.Value[uint64],
	wallet solanago.PrivateKey,
	cfg Config,
	logger *slog.Logger,
) *Probe {
	cfg.applyDefaults()
	return &Probe{
		backend:  backend,
		reporter: reporter,
		anchors:  anchors,
		slots:    slots,
		wallet:   wallet,
		cfg:      cfg,
		budget:   watch.NewBudget("probe loop", cfg.FailureCeiling),
		logger:   logger.With("component", "probe"),
		sleepFn:  watch.SleepContext,
	}
}

// WithRecorder persists signed probes before submission.
func (p *Probe) WithRecorder(r Recorder) *Probe { p.recorder = r; return p }

// WithFees prices probes from a live fee source.
func (p *Probe) WithFees(f FeeSource) *Probe { p.fees = f; return p }

// WithLimiter paces submissions.
func (p *Probe) WithLimiter(l Limiter) *Probe { p.limiter = l; return p }

// Run iterates until ctx is cancelled or the consecutive-failure
// ceiling is hit.
func (p *Probe) Run(ctx context.Context) error {
	p.logger.Info("probe loop started",
		"pinger_name", p.cfg.PingerName,
		"wallet", p.wallet.PublicKey().String(),
		"commitment", p.cfg.Commitment.String(),
		"confirmation_timeout_ms", p.cfg.ConfirmationTimeout.Milliseconds(),
	)

	for {
		if err := p.sleepFn(ctx, p.cfg.LoopDelay); err != nil {
			return err
		}
		if p.limiter != nil {
			if err := p.limiter.Wait(ctx); err != nil {
				return err
			}
		}

		err := p.runIteration(ctx)
		switch {
		case err == nil:
			p.budget.Reset()
		case errors.Is(err, errVoid):
			// Already logged where it happened.
		case ctx.Err() != nil:
			return ctx.Err()
		default:
			p.logger.Error("probe iteration failed",
				"error", err,
				"consecutive_failures", p.budget.Count()+1,
			)
			if berr := p.budget.Fail(); berr != nil {
				return fmt.Errorf("probe loop giving up: %w", errors.Join(berr, err))
			}
		}
	}
}

func (p *Probe) runIteration(ctx context.Context) error {
	ctx, span := tracing.Tracer("probe").Start(ctx, "probe.iteration")
	defer span.End()

	anchor, slotSent, err := p.awaitFresh(ctx)
	if err != nil {
		return err
	}
	span.SetAttributes(
		attribute.Int64("probe.slot_sent", int64(slotSent)),
		attribute.String("probe.blockhash", anchor.Blockhash.String()),
	)

	fee := p.currentFee()
	tx, err := p.buildSigned(anchor, fee)
	if err != nil {
		return fmt.Errorf("build and sign probe: %w", err)
	}
	sig := tx.Signatures[0]

	seq := p.seq
	p.seq++
	if p.recorder != nil {
		if err := p.recorder.Append(slotSent, seq, sig.String()); err != nil {
			return fmt.Errorf("record probe: %w", err)
		}
	}

	sentAt := time.Now()
	outcome := p.submitAndAwait(ctx, tx, sig)
	elapsed := time.Since(sentAt)
	metrics.ProbeOutcomes.WithLabelValues(p.cfg.PingerName, outcome.String()).Inc()
	span.SetAttributes(attribute.String("probe.outcome", outcome.String()))

	switch outcome {
	case model.OutcomeAnchorInvalid, model.OutcomeErrored:
		return errVoid
	}

	m := model.Measurement{
		TimeMS:                   elapsed.Milliseconds(),
		Signature:                sig.String(),
		Success:                  outcome == model.OutcomeConfirmed,
		Outcome:                  outcome,
		Commitment:               p.cfg.Commitment,
		SlotSent:                 slotSent,
		PriorityFeeMicroLamports: fee,
		PriorityFeePercentile:    p.cfg.PriorityFeePercentile,
	}

	if outcome == model.OutcomeExpired {
		m.Signature = model.SentinelSignature
		p.logger.Warn("probe expired before confirmation",
			"signature", sig.String(),
			"slot_sent", slotSent,
			"timeout_ms", p.cfg.ConfirmationTimeout.Milliseconds(),
		)
	} else {
		landed, err := p.awaitLanding(ctx, sig, slotSent)
		if err != nil {
			return err
		}
		if landed == nil {
			return errVoid
		}
		m.SlotLanded = landed

		metrics.ConfirmationLatency.WithLabelValues(p.cfg.PingerName).Observe(float64(m.TimeMS))
		metrics.SlotLatency.WithLabelValues(p.cfg.PingerName).Observe(float64(*landed - slotSent))
		p.logger.Info("probe confirmed",
			"signature", sig.String(),
			"time_ms", m.TimeMS,
			"slot_sent", slotSent,
			"slot_landed", *landed,
			"slot_latency", *landed-slotSent,
			"priority_fee_micro_lamports", fee,
		)
	}

	if err := p.reporter.Report(ctx, m); err != nil {
		return fmt.Errorf("report measurement: %w", err)
	}
	return nil
}

// awaitFresh spins until both the anchor and the slot edge are within
// their freshness windows.
func (p *Probe) awaitFresh(ctx context.Context) (model.Anchor, uint64, error) {
	start := time.Now()
	for {
		anchor, anchorOK := p.anchors.Snapshot(p.cfg.AnchorMaxAge)
		slot, slotOK := p.slots.Snapshot(p.cfg.SlotMaxAge)
		if anchorOK && slotOK {
			metrics.FreshnessWaitDuration.WithLabelValues(p.cfg.PingerName).
				Observe(float64(time.Since(start).Milliseconds()))
			return anchor, slot, nil
		}
		if err := p.sleepFn(ctx, p.cfg.AwaitPollInterval); err != nil {
			return model.Anchor{}, 0, err
		}
	}
}

func (p *Probe) currentFee() uint64 {
	if p.fees == nil {
		return 0
	}
	return p.fees.CurrentFee()
}

// submitAndAwait sends the transaction and races periodic resends
// against the confirmation wait until confirmation, the lifetime
// timeout, or an unrecoverable submit error.
func (p *Probe) submitAndAwait(parent context.Context, tx *solanago.Transaction, sig solanago.Signature) model.Outcome {
	ctx, cancel := context.WithTimeout(parent, p.cfg.ConfirmationTimeout)
	defer cancel()
	start := time.Now()

	if err := p.submitOnce(ctx, tx, sig, 0); err != nil {
		if outcome, done := p.classifySubmitError(sig, err); done {
			return outcome
		}
	}

	confirmCh := make(chan error, 1)
	go func() { confirmCh <- p.backend.AwaitConfirmation(ctx, sig) }()

	ticker := time.NewTicker(p.cfg.RetryInterval)
	defer ticker.Stop()

	attempt := 0
	for {
		select {
		case err := <-confirmCh:
			switch {
			case err == nil:
				return model.OutcomeConfirmed
			case ctx.Err() != nil:
				return p.timeoutOutcome(parent)
			case isBlockhashNotFound(err):
				p.logger.Info("anchor rejected by cluster, discarding probe",
					"signature", sig.String(), "error", err)
				return model.OutcomeAnchorInvalid
			case isLifetimeExpired(err):
				p.logger.Info("anchor lifetime ran out before confirmation",
					"signature", sig.String(), "error", err)
				return model.OutcomeExpired
			default:
				p.logger.Error("confirmation wait failed",
					"signature", sig.String(),
					"error", err,
					"error_detail", fmt.Sprintf("%+v", err),
				)
				return model.OutcomeErrored
			}

		case <-ticker.C:
			attempt++
			p.logger.Debug("resending probe",
				"signature", sig.String(),
				"attempt", attempt,
				"elapsed_ms", time.Since(start).Milliseconds(),
			)
			if err := p.submitOnce(ctx, tx, sig, attempt); err != nil {
				if outcome, done := p.classifySubmitError(sig, err); done {
					return outcome
				}
				continue
			}
			metrics.ProbesResent.WithLabelValues(p.cfg.PingerName).Inc()

		case <-ctx.Done():
			return p.timeoutOutcome(parent)
		}
	}
}

func (p *Probe) submitOnce(ctx context.Context, tx *solanago.Transaction, sig solanago.Signature, attempt int) error {
	if _, err := p.backend.Submit(ctx, tx); err != nil {
		return err
	}
	if attempt == 0 {
		metrics.ProbesSent.WithLabelValues(p.cfg.PingerName).Inc()
		p.logger.Debug("probe submitted", "signature", sig.String())
	}
	return nil
}

// classifySubmitError decides whether a failed send already settles the
// attempt's outcome. Transient send failures are logged and the race
// keeps going; an earlier delivery may still confirm.
func (p *Probe) classifySubmitError(sig solanago.Signature, err error) (model.Outcome, bool) {
	if isBlockhashNotFound(err) {
		p.logger.Info("anchor rejected by cluster, discarding probe",
			"signature", sig.String(), "error", err)
		return model.OutcomeAnchorInvalid, true
	}
	if isLifetimeExpired(err) {
		p.logger.Info("anchor lifetime ran out before confirmation",
			"signature", sig.String(), "error", err)
		return model.OutcomeExpired, true
	}
	p.logger.Warn("probe submission failed, confirmation race continues",
		"signature", sig.String(), "error", err)
	return 0, false
}

// timeoutOutcome separates the probe's own lifetime deadline from a
// process shutdown arriving through the parent context.
func (p *Probe) timeoutOutcome(parent context.Context) model.Outcome {
	if parent.Err() != nil {
		return model.OutcomeErrored
	}
	return model.OutcomeExpired
}

// awaitLanding waits out the settle delay and fetches the landed slot.
// A nil slot with nil error means the measurement must be discarded.
func (p *Probe) awaitLanding(ctx context.Context, sig solanago.Signature, slotSent uint64) (*uint64, error) {
	if err := p.sleepFn(ctx, p.cfg.SettleDelay); err != nil {
		return nil, err
	}

	slot, found, err := p.backend.Lookup(ctx, sig)
	if err != nil {
		return nil, fmt.Errorf("landing lookup: %w", err)
	}
	if !found {
		p.logger.Warn("confirmed probe not yet queryable, discarding measurement",
			"signature", sig.String())
		return nil, nil
	}
	if slot < slotSent {
		p.logger.Error("landed slot precedes sent slot, discarding measurement",
			"signature", sig.String(),
			"slot_sent", slotSent,
			"slot_landed", slot,
		)
		return nil, nil
	}
	return &slot, nil
}
