package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/Block-Logic/ping-thing-client/internal/alert"
	"github.com/Block-Logic/ping-thing-client/internal/chain/ratelimit"
	"github.com/Block-Logic/ping-thing-client/internal/chain/solana"
	"github.com/Block-Logic/ping-thing-client/internal/config"
	"github.com/Block-Logic/ping-thing-client/internal/domain/model"
	"github.com/Block-Logic/ping-thing-client/internal/fees"
	"github.com/Block-Logic/ping-thing-client/internal/freshness"
	"github.com/Block-Logic/ping-thing-client/internal/probe"
	"github.com/Block-Logic/ping-thing-client/internal/record"
	"github.com/Block-Logic/ping-thing-client/internal/report"
	"github.com/Block-Logic/ping-thing-client/internal/tracing"
	"github.com/Block-Logic/ping-thing-client/internal/watch"
)

func main() {
	logLevel := slog.LevelInfo
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	switch cfg.Log.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	runID := uuid.NewString()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})).
		With("run_id", runID)
	slog.SetDefault(logger)

	wallet, err := solanago.PrivateKeyFromBase58(cfg.Wallet.PrivateKey)
	if err != nil {
		logger.Error("failed to parse wallet keypair", "error", err)
		os.Exit(1)
	}

	logger.Info("starting ping-thing-client",
		"pinger_name", cfg.Report.PingerName,
		"region", cfg.Report.Region,
		"rpc_endpoint", cfg.RPC.Endpoint,
		"ws_endpoint", cfg.RPC.WSEndpoint,
		"send_endpoint", cfg.RPC.SendEndpoint,
		"commitment", cfg.Probe.Commitment,
		"wallet", wallet.PublicKey().String(),
		"priority_fees", cfg.Fees.Enabled,
		"skip_reporting", cfg.Report.Skip,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, cfg.Tracing.Endpoint, cfg.Tracing.Insecure, runID)
	if err != nil {
		logger.Error("failed to initialize tracing", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown error", "error", err)
		}
	}()

	commitment := cfg.Commitment()
	client := solana.NewClient(cfg.RPC.Endpoint, cfg.RPC.SendEndpoint, commitment, logger)

	feed, err := solana.ConnectFeed(ctx, cfg.RPC.WSEndpoint, commitment, logger)
	if err != nil {
		logger.Error("failed to connect slot feed", "error", err)
		os.Exit(1)
	}
	defer feed.Close()

	anchors := freshness.New[model.Anchor]()
	slots := freshness.New[uint64]()

	anchorWatcher := watch.NewAnchorWatcher(client, anchors, watch.AnchorConfig{
		Interval:       time.Duration(cfg.Watch.AnchorIntervalMs) * time.Millisecond,
		Timeout:        time.Duration(cfg.Watch.AnchorTimeoutMs) * time.Millisecond,
		FailureCeiling: cfg.Watch.AnchorFailureCeiling,
	}, logger)

	positionWatcher := watch.NewPositionWatcher(feed, slots, watch.PositionConfig{
		SilenceWindow:  time.Duration(cfg.Watch.SlotSilenceMs) * time.Millisecond,
		RedialDelay:    time.Duration(cfg.Watch.SlotRedialDelayMs) * time.Millisecond,
		FailureCeiling: cfg.Watch.SlotFailureCeiling,
		TrackCompleted: cfg.Watch.TrackCompleted,
	}, logger)

	reporter := report.New(report.Config{
		Endpoint:   cfg.Report.Endpoint,
		APIKey:     cfg.Report.APIKey,
		Region:     cfg.Report.Region,
		PingerName: cfg.Report.PingerName,
		Skip:       cfg.Report.Skip,
	}, logger)

	p := probe.New(
		solana.NewBackend(client, feed),
		reporter,
		anchors,
		slots,
		wallet,
		probe.Config{
			Commitment:            commitment,
			LoopDelay:             cfg.Probe.LoopDelay(),
			AwaitPollInterval:     cfg.Probe.AwaitPollInterval(),
			AnchorMaxAge:          cfg.Probe.AnchorMaxAge(),
			SlotMaxAge:            cfg.Probe.SlotMaxAge(),
			ConfirmationTimeout:   cfg.Probe.ConfirmationTimeout(),
			RetryInterval:         cfg.Probe.RetryInterval(),
			SettleDelay:           cfg.Probe.SettleDelay(),
			TransferLamports:      uint64(cfg.Probe.TransferLamports),
			ComputeUnitLimit:      uint32(cfg.Probe.ComputeUnitLimit),
			PriorityFeePercentile: uint16(cfg.Fees.PercentileBps),
			PingerName:            cfg.Report.PingerName,
			FailureCeiling:        cfg.Probe.FailureCeiling,
		},
		logger,
	)

	var feeWatcher *fees.Watcher
	if cfg.Fees.Enabled {
		feeWatcher = fees.NewWatcher(client, fees.Config{
			PercentileBps:      uint16(cfg.Fees.PercentileBps),
			FloorMicroLamports: uint64(cfg.Fees.MicroLamports),
			PollInterval:       time.Duration(cfg.Fees.PollIntervalMs) * time.Millisecond,
			MaxAge:             time.Duration(cfg.Fees.MaxAgeMs) * time.Millisecond,
			PingerName:         cfg.Report.PingerName,
		}, logger)
		p.WithFees(feeWatcher)
	}

	if cfg.Probe.TxsPerMinuteLimit > 0 {
		p.WithLimiter(ratelimit.PerMinute(cfg.Probe.TxsPerMinuteLimit))
	}

	var recorder *record.Writer
	if cfg.Record.Dir != "" {
		recorder, err = record.NewWriter(cfg.Record.Dir, time.Now(), runID)
		if err != nil {
			logger.Error("failed to open probe record", "error", err)
			os.Exit(1)
		}
		defer recorder.Close()
		logger.Info("recording signed probes", "path", recorder.Path())
		p.WithRecorder(recorder)
	}

	var alerter alert.Alerter = &alert.NoopAlerter{}
	if cfg.Alert.WebhookURL != "" {
		alerter = alert.NewCooldownAlerter(
			alert.NewWebhookAlerter(cfg.Alert.WebhookURL),
			time.Duration(cfg.Alert.CooldownSec)*time.Second,
			logger,
		)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return runHealthServer(gCtx, cfg.Server.HealthPort, logger)
	})
	g.Go(func() error {
		return anchorWatcher.Run(gCtx)
	})
	g.Go(func() error {
		return positionWatcher.Run(gCtx)
	})
	if feeWatcher != nil {
		g.Go(func() error {
			return feeWatcher.Run(gCtx)
		})
	}
	g.Go(func() error {
		return p.Run(gCtx)
	})

	// Signal handler
	g.Go(func() error {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig)
			cancel()
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("pinger exited with error", "error", err)
		sendFatalAlert(alerter, cfg.Report.PingerName, err, logger)
		os.Exit(1)
	}

	logger.Info("pinger shut down gracefully")
}

func sendFatalAlert(alerter alert.Alerter, pinger string, cause error, logger *slog.Logger) {
	alertType := alert.AlertTypeWatcherDown
	if errors.Is(cause, watch.ErrBudgetExhausted) && probeStall(cause) {
		alertType = alert.AlertTypeProbeStalled
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := alerter.Send(ctx, alert.Alert{
		Type:    alertType,
		Pinger:  pinger,
		Title:   "ping-thing-client terminated",
		Message: cause.Error(),
	}); err != nil {
		logger.Warn("failed to send fatal alert", "error", err)
	}
}

func probeStall(err error) bool {
	return err != nil && strings.Contains(err.Error(), "probe loop")
}

func runHealthServer(ctx context.Context, port int, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("ok")); err != nil {
			logger.Warn("failed to write health response", "error", err)
		}
	})
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && err != http.ErrServerClosed {
			logger.Warn("health server shutdown error", "error", err)
		}
	}()

	logger.Info("health server started", "port", port)
	if err := server.ListenAndServe(); err != http.ErrServerClosed {
		return fmt.Errorf("health server: %w", err)
	}
	return nil
}
