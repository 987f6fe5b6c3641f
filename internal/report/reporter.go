// Package report delivers finished measurements to the validators.app
// collection endpoint.
package report

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/Block-Logic/ping-thing-client/internal/domain/model"
	"github.com/Block-Logic/ping-thing-client/internal/metrics"
)

const defaultTimeout = 10 * time.Second

type Config struct {
	// Endpoint is the full URL measurements are POSTed to.
	Endpoint string
	APIKey   string
	Region   string
	// PingerName labels metrics; the endpoint identifies the pinger by
	// its API key.
	PingerName string
	// Skip suppresses delivery entirely; measurements are only logged.
	Skip    bool
	Timeout time.Duration
}

type Reporter struct {
	cfg    Config
	client *http.Client
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Reporter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Reporter{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: logger.With("component", "reporter"),
	}
}

// payload mirrors the collection endpoint's schema. Slots and the fee
// travel as strings, the percentile is scaled from basis points to
// percent, and slot_landed is absent for probes that never landed.
type payload struct {
	Time                     int64   `json:"time"`
	Signature                string  `json:"signature"`
	TransactionType          string  `json:"transaction_type"`
	Success                  bool    `json:"success"`
	Application              string  `json:"application"`
	CommitmentLevel          string  `json:"commitment_level"`
	SlotSent                 string  `json:"slot_sent"`
	SlotLanded               *string `json:"slot_landed"`
	PriorityFeeMicroLamports string  `json:"priority_fee_micro_lamports"`
	PriorityFeePercentile    uint16  `json:"priority_fee_percentile"`
	PingerRegion             string  `json:"pinger_region"`
}

func newPayload(m model.Measurement, region string) payload {
	p := payload{
		Time:                     m.TimeMS,
		Signature:                m.Signature,
		TransactionType:          "transfer",
		Success:                  m.Success,
		Application:              "web3",
		CommitmentLevel:          m.Commitment.String(),
		SlotSent:                 strconv.FormatUint(m.SlotSent, 10),
		PriorityFeeMicroLamports: strconv.FormatUint(m.PriorityFeeMicroLamports, 10),
		PriorityFeePercentile:    m.PriorityFeePercentile / 100,
		PingerRegion:             region,
	}
	if m.SlotLanded != nil {
		landed := strconv.FormatUint(*m.SlotLanded, 10)
		p.SlotLanded = &landed
	}
	return p
}

// Report posts one measurement. A non-2xx status is an error so the
// probe loop's failure accounting sees rejected measurements.
func (r *Reporter) Report(ctx context.Context, m model.Measurement) error {
	if r.cfg.Skip {
		r.logger.Info("reporting disabled, dropping measurement",
			"signature", m.Signature,
			"outcome", m.Outcome.String(),
			"time_ms", m.TimeMS,
		)
		return nil
	}

	body, err := json.Marshal(newPayload(m, r.cfg.Region))
	if err != nil {
		return fmt.Errorf("marshal measurement: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Token", r.cfg.APIKey)

	resp, err := r.client.Do(req)
	if err != nil {
		metrics.ReportFailures.WithLabelValues(r.cfg.PingerName).Inc()
		return fmt.Errorf("post measurement: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		metrics.ReportFailures.WithLabelValues(r.cfg.PingerName).Inc()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("collection endpoint returned %d: %s", resp.StatusCode, snippet)
	}

	metrics.ReportsSent.WithLabelValues(r.cfg.PingerName).Inc()
	r.logger.Debug("measurement reported",
		"signature", m.Signature,
		"outcome", m.Outcome.String(),
		"time_ms", m.TimeMS,
	)
	return nil
}
