package solana

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/programs/system"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Block-Logic/ping-thing-client/internal/domain/model"
)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      json.RawMessage   `json:"id"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
}

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewClient(server.URL, "", model.CommitmentConfirmed, slog.Default())
}

func decodeRequest(t *testing.T, r *http.Request) rpcRequest {
	t.Helper()
	body, err := io.ReadAll(r.Body)
	require.NoError(t, err)
	var req rpcRequest
	require.NoError(t, json.Unmarshal(body, &req))
	return req
}

func writeResult(t *testing.T, w http.ResponseWriter, id json.RawMessage, result string) {
	t.Helper()
	_, err := fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":%s}`, id, result)
	require.NoError(t, err)
}

func signedSelfTransfer(t *testing.T) *solanago.Transaction {
	t.Helper()
	wallet := solanago.NewWallet()
	tx, err := solanago.NewTransaction(
		[]solanago.Instruction{
			system.NewTransferInstruction(5000, wallet.PublicKey(), wallet.PublicKey()).Build(),
		},
		solanago.Hash{},
		solanago.TransactionPayer(wallet.PublicKey()),
	)
	require.NoError(t, err)
	_, err = tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(wallet.PublicKey()) {
			return &wallet.PrivateKey
		}
		return nil
	})
	require.NoError(t, err)
	return tx
}

func TestFetchAnchor(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, "getLatestBlockhash", req.Method)
		writeResult(t, w, req.ID, `{
			"context": {"slot": 2792},
			"value": {
				"blockhash": "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N",
				"lastValidBlockHeight": 3090
			}
		}`)
	})

	anchor, err := client.FetchAnchor(context.Background())
	require.NoError(t, err)
	assert.False(t, anchor.IsZero())
	assert.Equal(t, uint64(3090), anchor.LastValidBlockHeight)
	assert.Equal(t, "EkSnNWid2cvwEVnVx9aBqawnmiCNiDgp3gUdkDPTKN1N", anchor.Blockhash.String())
}

func TestFetchAnchorRPCError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		_, err := fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32005,"message":"Node is behind"}}`, req.ID)
		require.NoError(t, err)
	})

	_, err := client.FetchAnchor(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "getLatestBlockhash")
}

func TestSubmitReturnsLocalSignature(t *testing.T) {
	tx := signedSelfTransfer(t)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, "sendTransaction", req.Method)

		// Preflight must be skipped and node-side retries disabled.
		var opts struct {
			SkipPreflight bool  `json:"skipPreflight"`
			MaxRetries    *uint `json:"maxRetries"`
		}
		require.Len(t, req.Params, 2)
		require.NoError(t, json.Unmarshal(req.Params[1], &opts))
		assert.True(t, opts.SkipPreflight)
		require.NotNil(t, opts.MaxRetries)
		assert.Zero(t, *opts.MaxRetries)

		writeResult(t, w, req.ID, fmt.Sprintf("%q", tx.Signatures[0].String()))
	})

	sig, err := client.Submit(context.Background(), tx)
	require.NoError(t, err)
	assert.Equal(t, tx.Signatures[0], sig)
}

func TestSubmitSignatureMismatch(t *testing.T) {
	tx := signedSelfTransfer(t)
	other := signedSelfTransfer(t)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		writeResult(t, w, req.ID, fmt.Sprintf("%q", other.Signatures[0].String()))
	})

	_, err := client.Submit(context.Background(), tx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "locally signed")
}

func TestLookupNotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, "getTransaction", req.Method)
		writeResult(t, w, req.ID, `null`)
	})

	_, found, err := client.Lookup(context.Background(), solanago.Signature{})
	require.NoError(t, err)
	assert.False(t, found)
}

func TestLookupReturnsSlot(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		writeResult(t, w, req.ID, `{"slot": 430, "meta": null, "transaction": null}`)
	})

	slot, found, err := client.Lookup(context.Background(), solanago.Signature{})
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, uint64(430), slot)
}

func TestRecentPriorityFeePercentile(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		assert.Equal(t, "getRecentPrioritizationFees", req.Method)
		writeResult(t, w, req.ID, `[
			{"slot": 100, "prioritizationFee": 500},
			{"slot": 101, "prioritizationFee": 0},
			{"slot": 102, "prioritizationFee": 100},
			{"slot": 103, "prioritizationFee": 9000}
		]`)
	})

	// 5000 bps = median of the sorted sample {0, 100, 500, 9000}.
	fee, err := client.RecentPriorityFee(context.Background(), 5000)
	require.NoError(t, err)
	assert.Equal(t, uint64(500), fee)
}

func TestRecentPriorityFeeEmptySample(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		writeResult(t, w, req.ID, `[]`)
	})

	fee, err := client.RecentPriorityFee(context.Background(), 5000)
	require.NoError(t, err)
	assert.Zero(t, fee)
}
