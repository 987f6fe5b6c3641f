package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Block-Logic/ping-thing-client/internal/domain/model"
)

// setRequiredEnv supplies the minimum a valid config needs.
func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("WALLET_PRIVATE_KEYPAIR", "base58-secret")
	t.Setenv("PINGER_NAME", "pinger-test")
	t.Setenv("VA_API_KEY", "token")
	t.Setenv("PINGER_REGION", "fra")
}

func TestLoadDefaults(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.mainnet-beta.solana.com", cfg.RPC.Endpoint)
	assert.Equal(t, "wss://api.mainnet-beta.solana.com", cfg.RPC.WSEndpoint)
	assert.Empty(t, cfg.RPC.SendEndpoint)

	assert.Equal(t, model.CommitmentConfirmed, cfg.Commitment())
	assert.Equal(t, 20, cfg.Probe.ConfirmationTimeoutSec)
	assert.Equal(t, 2000, cfg.Probe.RetryIntervalMs)
	assert.Equal(t, 2000, cfg.Probe.SettleDelayMs)
	assert.Equal(t, 10000, cfg.Probe.AnchorMaxAgeMs)
	assert.Equal(t, 50, cfg.Probe.SlotMaxAgeMs)
	assert.Equal(t, 5000, cfg.Probe.TransferLamports)
	assert.Equal(t, 500, cfg.Probe.ComputeUnitLimit)
	assert.Equal(t, 3, cfg.Probe.FailureCeiling)

	assert.Equal(t, 5000, cfg.Watch.AnchorIntervalMs)
	assert.Equal(t, 5, cfg.Watch.AnchorFailureCeiling)
	assert.Equal(t, 3000, cfg.Watch.SlotSilenceMs)
	assert.Equal(t, 4000, cfg.Watch.SlotRedialDelayMs)
	assert.Equal(t, 100, cfg.Watch.SlotFailureCeiling)

	assert.False(t, cfg.Fees.Enabled)
	assert.Equal(t, 5000, cfg.Fees.MicroLamports)
	assert.Equal(t, 5000, cfg.Fees.PercentileBps)
	assert.Equal(t, 350, cfg.Fees.PollIntervalMs)

	assert.Equal(t, 8080, cfg.Server.HealthPort)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestLoadEnvOverrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("RPC_ENDPOINT", "http://localhost:8899")
	t.Setenv("SEND_TX_ENDPOINT", "http://localhost:8900")
	t.Setenv("COMMITMENT", "finalized")
	t.Setenv("TXS_PER_MINUTE_LIMIT", "30")
	t.Setenv("USE_PRIORITY_FEE", "true")
	t.Setenv("VERBOSE_LOG", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8899", cfg.RPC.Endpoint)
	assert.Equal(t, "ws://localhost:8899", cfg.RPC.WSEndpoint, "websocket endpoint follows the RPC endpoint")
	assert.Equal(t, "http://localhost:8900", cfg.RPC.SendEndpoint)
	assert.Equal(t, model.CommitmentFinalized, cfg.Commitment())
	assert.Equal(t, 30, cfg.Probe.TxsPerMinuteLimit)
	assert.True(t, cfg.Fees.Enabled)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadConfigFileThenEnvWins(t *testing.T) {
	setRequiredEnv(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
rpc:
  endpoint: http://file-endpoint:8899
probe:
  commitment: processed
  txs_per_minute_limit: 10
report:
  region: ams
`), 0o644))
	t.Setenv("PING_CONFIG_FILE", path)
	t.Setenv("COMMITMENT", "confirmed")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://file-endpoint:8899", cfg.RPC.Endpoint)
	assert.Equal(t, 10, cfg.Probe.TxsPerMinuteLimit)
	assert.Equal(t, model.CommitmentConfirmed, cfg.Commitment(), "env overrides the file")
	assert.Equal(t, "fra", cfg.Report.Region, "env overrides the file")
}

func TestLoadMissingWallet(t *testing.T) {
	t.Setenv("WALLET_PRIVATE_KEYPAIR", "")
	t.Setenv("PINGER_NAME", "pinger-test")
	t.Setenv("VA_API_KEY", "token")
	t.Setenv("PINGER_REGION", "fra")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "WALLET_PRIVATE_KEYPAIR")
}

func TestLoadSkipReportingRelaxesAPIKey(t *testing.T) {
	t.Setenv("WALLET_PRIVATE_KEYPAIR", "base58-secret")
	t.Setenv("PINGER_NAME", "pinger-test")
	t.Setenv("SKIP_VALIDATORS_APP", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.Report.Skip)
}

func TestLoadRejectsBadCommitment(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("COMMITMENT", "recent")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COMMITMENT")
}

func TestLoadRejectsBadPercentile(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PRIORITY_FEE_PERCENTILE", "20000")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PRIORITY_FEE_PERCENTILE")
}
