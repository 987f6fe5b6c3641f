// Package solana adapts the cluster RPC and websocket APIs to the
// narrow surface the watchers and the probe loop consume.
package solana

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"

	"github.com/Block-Logic/ping-thing-client/internal/domain/model"
)

// Client wraps the JSON-RPC endpoints. Submissions may be routed to a
// dedicated send endpoint while reads stay on the main one.
type Client struct {
	reads      *rpc.Client
	sends      *rpc.Client
	commitment rpc.CommitmentType
	logger     *slog.Logger
}

// NewClient connects reads to rpcEndpoint. sendEndpoint optionally
// routes sendTransaction elsewhere (e.g. a staked forwarder); empty or
// identical values reuse the read client.
func NewClient(rpcEndpoint, sendEndpoint string, commitment model.Commitment, logger *slog.Logger) *Client {
	reads := rpc.New(rpcEndpoint)
	sends := reads
	if sendEndpoint != "" && sendEndpoint != rpcEndpoint {
		sends = rpc.New(sendEndpoint)
		logger.Info("routing transaction submission to dedicated endpoint", "endpoint", sendEndpoint)
	}
	return &Client{
		reads:      reads,
		sends:      sends,
		commitment: commitment.RPC(),
		logger:     logger.With("component", "solana_client"),
	}
}

// FetchAnchor implements watch.AnchorSource.
func (c *Client) FetchAnchor(ctx context.Context) (model.Anchor, error) {
	out, err := c.reads.GetLatestBlockhash(ctx, c.commitment)
	if err != nil {
		return model.Anchor{}, fmt.Errorf("getLatestBlockhash: %w", err)
	}
	if out == nil || out.Value == nil {
		return model.Anchor{}, nil
	}
	return model.Anchor{
		Blockhash:            out.Value.Blockhash,
		LastValidBlockHeight: out.Value.LastValidBlockHeight,
	}, nil
}

// Submit sends a signed transaction with preflight disabled and node
// retries off, so every delivery attempt is under the caller's control.
func (c *Client) Submit(ctx context.Context, tx *solanago.Transaction) (solanago.Signature, error) {
	maxRetries := uint(0)
	sig, err := c.sends.SendTransactionWithOpts(ctx, tx, rpc.TransactionOpts{
		SkipPreflight: true,
		MaxRetries:    &maxRetries,
	})
	if err != nil {
		return solanago.Signature{}, fmt.Errorf("sendTransaction: %w", err)
	}
	if len(tx.Signatures) > 0 && sig != tx.Signatures[0] {
		return solanago.Signature{}, fmt.Errorf("endpoint returned signature %s for locally signed %s", sig, tx.Signatures[0])
	}
	return sig, nil
}

// Lookup fetches the landed transaction and returns the slot it was
// recorded in. found is false while the ledger has not caught up yet.
func (c *Client) Lookup(ctx context.Context, sig solanago.Signature) (slot uint64, found bool, err error) {
	version := uint64(0)
	out, err := c.reads.GetTransaction(ctx, sig, &rpc.GetTransactionOpts{
		Commitment:                     c.commitment,
		MaxSupportedTransactionVersion: &version,
	})
	if err != nil {
		if errors.Is(err, rpc.ErrNotFound) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("getTransaction: %w", err)
	}
	if out == nil {
		return 0, false, nil
	}
	return out.Slot, true, nil
}

// RecentPriorityFee samples the cluster's recent prioritization fees
// and picks the requested percentile (basis points, 0-10000) from the
// sorted sample. Zero samples yield a zero fee, not an error.
func (c *Client) RecentPriorityFee(ctx context.Context, percentileBps uint16) (uint64, error) {
	samples, err := c.reads.GetRecentPrioritizationFees(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("getRecentPrioritizationFees: %w", err)
	}
	if len(samples) == 0 {
		return 0, nil
	}

	fees := make([]uint64, 0, len(samples))
	for _, s := range samples {
		fees = append(fees, s.PrioritizationFee)
	}
	sort.Slice(fees, func(i, j int) bool { return fees[i] < fees[j] })

	if percentileBps > 10000 {
		percentileBps = 10000
	}
	idx := int(percentileBps) * len(fees) / 10000
	if idx >= len(fees) {
		idx = len(fees) - 1
	}
	return fees[idx], nil
}
