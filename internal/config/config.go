package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Block-Logic/ping-thing-client/internal/domain/model"
)

type Config struct {
	RPC     RPCConfig     `yaml:"rpc"`
	Wallet  WalletConfig  `yaml:"wallet"`
	Probe   ProbeConfig   `yaml:"probe"`
	Watch   WatchConfig   `yaml:"watch"`
	Fees    FeeConfig     `yaml:"fees"`
	Report  ReportConfig  `yaml:"report"`
	Record  RecordConfig  `yaml:"record"`
	Server  ServerConfig  `yaml:"server"`
	Alert   AlertConfig   `yaml:"alert"`
	Tracing TracingConfig `yaml:"tracing"`
	Log     LogConfig     `yaml:"log"`
}

type RPCConfig struct {
	// Endpoint serves reads: blockhashes, fee samples, lookups.
	Endpoint string `yaml:"endpoint"`
	// SendEndpoint optionally routes sendTransaction elsewhere.
	SendEndpoint string `yaml:"send_endpoint"`
	// WSEndpoint is derived from Endpoint when empty.
	WSEndpoint string `yaml:"ws_endpoint"`
}

type WalletConfig struct {
	// PrivateKey is the base58-encoded keypair funding the probes.
	PrivateKey string `yaml:"private_key"`
}

type ProbeConfig struct {
	Commitment             string `yaml:"commitment"`
	LoopDelayMs            int    `yaml:"loop_delay_ms"`
	TxsPerMinuteLimit      int    `yaml:"txs_per_minute_limit"`
	ConfirmationTimeoutSec int    `yaml:"confirmation_timeout_sec"`
	RetryIntervalMs        int    `yaml:"retry_interval_ms"`
	SettleDelayMs          int    `yaml:"settle_delay_ms"`
	AwaitPollIntervalMs    int    `yaml:"await_poll_interval_ms"`
	AnchorMaxAgeMs         int    `yaml:"anchor_max_age_ms"`
	SlotMaxAgeMs           int    `yaml:"slot_max_age_ms"`
	TransferLamports       int    `yaml:"transfer_lamports"`
	ComputeUnitLimit       int    `yaml:"compute_unit_limit"`
	FailureCeiling         int    `yaml:"failure_ceiling"`
}

type WatchConfig struct {
	AnchorIntervalMs     int  `yaml:"anchor_interval_ms"`
	AnchorTimeoutMs      int  `yaml:"anchor_timeout_ms"`
	AnchorFailureCeiling int  `yaml:"anchor_failure_ceiling"`
	SlotSilenceMs        int  `yaml:"slot_silence_ms"`
	SlotRedialDelayMs    int  `yaml:"slot_redial_delay_ms"`
	SlotFailureCeiling   int  `yaml:"slot_failure_ceiling"`
	TrackCompleted       bool `yaml:"track_completed"`
}

type FeeConfig struct {
	Enabled        bool `yaml:"enabled"`
	MicroLamports  int  `yaml:"micro_lamports"`
	PercentileBps  int  `yaml:"percentile_bps"`
	PollIntervalMs int  `yaml:"poll_interval_ms"`
	MaxAgeMs       int  `yaml:"max_age_ms"`
}

type ReportConfig struct {
	Endpoint   string `yaml:"endpoint"`
	APIKey     string `yaml:"api_key"`
	Region     string `yaml:"region"`
	PingerName string `yaml:"pinger_name"`
	Skip       bool   `yaml:"skip"`
}

type RecordConfig struct {
	// Dir receives per-run CSVs of signed probes. Empty disables it.
	Dir string `yaml:"dir"`
}

type ServerConfig struct {
	HealthPort int `yaml:"health_port"`
}

type AlertConfig struct {
	WebhookURL  string `yaml:"webhook_url"`
	CooldownSec int    `yaml:"cooldown_sec"`
}

type TracingConfig struct {
	// Endpoint is the OTLP gRPC collector address. Empty disables tracing.
	Endpoint string `yaml:"endpoint"`
	Insecure bool   `yaml:"insecure"`
}

type LogConfig struct {
	Level string `yaml:"level"`
}

// Load builds the configuration in three layers: defaults, an optional
// YAML file named by PING_CONFIG_FILE, then environment variables.
func Load() (*Config, error) {
	cfg := defaults()

	if path := os.Getenv("PING_CONFIG_FILE"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if cfg.RPC.WSEndpoint == "" {
		cfg.RPC.WSEndpoint = deriveWSEndpoint(cfg.RPC.Endpoint)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		RPC: RPCConfig{
			Endpoint: "https://api.mainnet-beta.solana.com",
		},
		Probe: ProbeConfig{
			Commitment:             string(model.CommitmentConfirmed),
			LoopDelayMs:            10,
			ConfirmationTimeoutSec: 20,
			RetryIntervalMs:        2000,
			SettleDelayMs:          2000,
			AwaitPollIntervalMs:    1,
			AnchorMaxAgeMs:         10000,
			SlotMaxAgeMs:           50,
			TransferLamports:       5000,
			ComputeUnitLimit:       500,
			FailureCeiling:         3,
		},
		Watch: WatchConfig{
			AnchorIntervalMs:     5000,
			AnchorTimeoutMs:      5000,
			AnchorFailureCeiling: 5,
			SlotSilenceMs:        3000,
			SlotRedialDelayMs:    4000,
			SlotFailureCeiling:   100,
		},
		Fees: FeeConfig{
			MicroLamports:  5000,
			PercentileBps:  5000,
			PollIntervalMs: 350,
			MaxAgeMs:       10000,
		},
		Report: ReportConfig{
			Endpoint: "https://www.validators.app/api/v1/ping-thing/mainnet",
		},
		Alert: AlertConfig{
			CooldownSec: 300,
		},
		Server: ServerConfig{
			HealthPort: 8080,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func (c *Config) applyEnv() {
	c.RPC.Endpoint = getEnv("RPC_ENDPOINT", c.RPC.Endpoint)
	c.RPC.SendEndpoint = getEnv("SEND_TX_ENDPOINT", c.RPC.SendEndpoint)
	c.RPC.WSEndpoint = getEnv("WS_ENDPOINT", c.RPC.WSEndpoint)

	c.Wallet.PrivateKey = getEnv("WALLET_PRIVATE_KEYPAIR", c.Wallet.PrivateKey)

	c.Probe.Commitment = getEnv("COMMITMENT", c.Probe.Commitment)
	c.Probe.LoopDelayMs = getEnvInt("SLEEP_MS_LOOP", c.Probe.LoopDelayMs)
	c.Probe.TxsPerMinuteLimit = getEnvInt("TXS_PER_MINUTE_LIMIT", c.Probe.TxsPerMinuteLimit)
	c.Probe.ConfirmationTimeoutSec = getEnvInt("TX_CONFIRMATION_TIMEOUT", c.Probe.ConfirmationTimeoutSec)
	c.Probe.RetryIntervalMs = getEnvInt("TX_RETRY_INTERVAL_MS", c.Probe.RetryIntervalMs)
	c.Probe.SettleDelayMs = getEnvInt("TX_SETTLE_DELAY_MS", c.Probe.SettleDelayMs)
	c.Probe.AnchorMaxAgeMs = getEnvInt("ANCHOR_MAX_AGE_MS", c.Probe.AnchorMaxAgeMs)
	c.Probe.SlotMaxAgeMs = getEnvInt("SLOT_MAX_AGE_MS", c.Probe.SlotMaxAgeMs)
	c.Probe.TransferLamports = getEnvInt("TRANSFER_LAMPORTS", c.Probe.TransferLamports)
	c.Probe.ComputeUnitLimit = getEnvInt("COMPUTE_UNIT_LIMIT", c.Probe.ComputeUnitLimit)
	c.Probe.FailureCeiling = getEnvInt("PROBE_FAILURE_CEILING", c.Probe.FailureCeiling)

	c.Watch.AnchorIntervalMs = getEnvInt("ANCHOR_INTERVAL_MS", c.Watch.AnchorIntervalMs)
	c.Watch.AnchorTimeoutMs = getEnvInt("ANCHOR_TIMEOUT_MS", c.Watch.AnchorTimeoutMs)
	c.Watch.AnchorFailureCeiling = getEnvInt("ANCHOR_FAILURE_CEILING", c.Watch.AnchorFailureCeiling)
	c.Watch.SlotSilenceMs = getEnvInt("SLOT_SILENCE_MS", c.Watch.SlotSilenceMs)
	c.Watch.SlotRedialDelayMs = getEnvInt("SLOT_REDIAL_DELAY_MS", c.Watch.SlotRedialDelayMs)
	c.Watch.SlotFailureCeiling = getEnvInt("SLOT_FAILURE_CEILING", c.Watch.SlotFailureCeiling)
	c.Watch.TrackCompleted = getEnvBool("TRACK_COMPLETED_SLOTS", c.Watch.TrackCompleted)

	c.Fees.Enabled = getEnvBool("USE_PRIORITY_FEE", c.Fees.Enabled)
	c.Fees.MicroLamports = getEnvInt("PRIORITY_FEE_MICRO_LAMPORTS", c.Fees.MicroLamports)
	c.Fees.PercentileBps = getEnvInt("PRIORITY_FEE_PERCENTILE", c.Fees.PercentileBps)
	c.Fees.PollIntervalMs = getEnvInt("PRIORITY_FEE_POLL_INTERVAL_MS", c.Fees.PollIntervalMs)
	c.Fees.MaxAgeMs = getEnvInt("PRIORITY_FEE_MAX_AGE_MS", c.Fees.MaxAgeMs)

	c.Report.Endpoint = getEnv("VA_ENDPOINT", c.Report.Endpoint)
	c.Report.APIKey = getEnv("VA_API_KEY", c.Report.APIKey)
	c.Report.Region = getEnv("PINGER_REGION", c.Report.Region)
	c.Report.PingerName = getEnv("PINGER_NAME", c.Report.PingerName)
	c.Report.Skip = getEnvBool("SKIP_VALIDATORS_APP", c.Report.Skip)

	c.Record.Dir = getEnv("RECORD_DIR", c.Record.Dir)

	c.Server.HealthPort = getEnvInt("HEALTH_PORT", c.Server.HealthPort)

	c.Alert.WebhookURL = getEnv("ALERT_WEBHOOK_URL", c.Alert.WebhookURL)
	c.Alert.CooldownSec = getEnvInt("ALERT_COOLDOWN_SEC", c.Alert.CooldownSec)

	c.Tracing.Endpoint = getEnv("OTLP_ENDPOINT", c.Tracing.Endpoint)
	c.Tracing.Insecure = getEnvBool("OTLP_INSECURE", c.Tracing.Insecure)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	if getEnvBool("VERBOSE_LOG", false) {
		c.Log.Level = "debug"
	}
}

func (c *Config) validate() error {
	if c.RPC.Endpoint == "" {
		return fmt.Errorf("RPC_ENDPOINT is required")
	}
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("WALLET_PRIVATE_KEYPAIR is required")
	}
	if c.Report.PingerName == "" {
		return fmt.Errorf("PINGER_NAME is required")
	}
	if !c.Report.Skip {
		if c.Report.APIKey == "" {
			return fmt.Errorf("VA_API_KEY is required unless SKIP_VALIDATORS_APP is set")
		}
		if c.Report.Region == "" {
			return fmt.Errorf("PINGER_REGION is required unless SKIP_VALIDATORS_APP is set")
		}
	}
	if _, err := model.ParseCommitment(c.Probe.Commitment); err != nil {
		return fmt.Errorf("COMMITMENT: %w", err)
	}
	if c.Probe.ConfirmationTimeoutSec <= 0 {
		return fmt.Errorf("TX_CONFIRMATION_TIMEOUT must be positive")
	}
	if c.Fees.PercentileBps < 0 || c.Fees.PercentileBps > 10000 {
		return fmt.Errorf("PRIORITY_FEE_PERCENTILE must be within 0..10000")
	}
	return nil
}

// Commitment returns the validated commitment level.
func (c *Config) Commitment() model.Commitment {
	commitment, _ := model.ParseCommitment(c.Probe.Commitment)
	return commitment
}

// deriveWSEndpoint rewrites an HTTP RPC URL to its websocket sibling.
func deriveWSEndpoint(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	default:
		return endpoint
	}
}

// Duration helpers keep the wiring in main readable.

func (p ProbeConfig) LoopDelay() time.Duration {
	return time.Duration(p.LoopDelayMs) * time.Millisecond
}

func (p ProbeConfig) ConfirmationTimeout() time.Duration {
	return time.Duration(p.ConfirmationTimeoutSec) * time.Second
}

func (p ProbeConfig) RetryInterval() time.Duration {
	return time.Duration(p.RetryIntervalMs) * time.Millisecond
}

func (p ProbeConfig) SettleDelay() time.Duration {
	return time.Duration(p.SettleDelayMs) * time.Millisecond
}

func (p ProbeConfig) AwaitPollInterval() time.Duration {
	return time.Duration(p.AwaitPollIntervalMs) * time.Millisecond
}

func (p ProbeConfig) AnchorMaxAge() time.Duration {
	return time.Duration(p.AnchorMaxAgeMs) * time.Millisecond
}

func (p ProbeConfig) SlotMaxAge() time.Duration {
	return time.Duration(p.SlotMaxAgeMs) * time.Millisecond
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}
