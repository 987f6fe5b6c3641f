package solana

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	solanago "github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/ws"

	"github.com/Block-Logic/ping-thing-client/internal/domain/model"
	"github.com/Block-Logic/ping-thing-client/internal/watch"
)

// Feed owns the websocket connection used for slot update streaming
// and per-signature confirmation waits.
type Feed struct {
	ws         *ws.Client
	commitment rpc.CommitmentType
	logger     *slog.Logger
}

func ConnectFeed(ctx context.Context, wsEndpoint string, commitment model.Commitment, logger *slog.Logger) (*Feed, error) {
	client, err := ws.Connect(ctx, wsEndpoint)
	if err != nil {
		return nil, fmt.Errorf("connect websocket %s: %w", wsEndpoint, err)
	}
	return &Feed{
		ws:         client,
		commitment: commitment.RPC(),
		logger:     logger.With("component", "solana_feed"),
	}, nil
}

func (f *Feed) Close() {
	f.ws.Close()
}

// Subscribe implements watch.PositionFeed over slotsUpdatesSubscribe.
func (f *Feed) Subscribe(ctx context.Context) (watch.Subscription, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sub, err := f.ws.SlotsUpdatesSubscribe()
	if err != nil {
		return nil, fmt.Errorf("slotsUpdatesSubscribe: %w", err)
	}
	return &slotSubscription{sub: sub}, nil
}

type slotSubscription struct {
	sub *ws.SlotsUpdatesSubscription
}

func (s *slotSubscription) Recv(ctx context.Context) (model.SlotUpdate, error) {
	res, err := s.sub.Recv(ctx)
	if err != nil {
		return model.SlotUpdate{}, err
	}
	if res == nil {
		return model.SlotUpdate{}, io.EOF
	}
	return model.SlotUpdate{
		Slot: res.Slot,
		Type: model.SlotUpdateType(res.Type),
	}, nil
}

func (s *slotSubscription) Unsubscribe() {
	s.sub.Unsubscribe()
}

// AwaitConfirmation blocks until sig reaches the feed's commitment or
// ctx expires. An on-chain execution error still counts as landed for
// latency purposes but is surfaced so the caller can log it.
func (f *Feed) AwaitConfirmation(ctx context.Context, sig solanago.Signature) error {
	sub, err := f.ws.SignatureSubscribe(sig, f.commitment)
	if err != nil {
		return fmt.Errorf("signatureSubscribe: %w", err)
	}
	defer sub.Unsubscribe()

	res, err := sub.Recv(ctx)
	if err != nil {
		return err
	}
	if res == nil {
		return io.EOF
	}
	if res.Value.Err != nil {
		return fmt.Errorf("transaction failed on chain: %v", res.Value.Err)
	}
	return nil
}
