package solana

import (
	"context"

	solanago "github.com/gagliardetto/solana-go"
)

// Backend bundles the RPC client and the websocket feed into the
// submit/await/lookup surface the probe loop drives.
type Backend struct {
	*Client
	feed *Feed
}

func NewBackend(client *Client, feed *Feed) *Backend {
	return &Backend{Client: client, feed: feed}
}

func (b *Backend) AwaitConfirmation(ctx context.Context, sig solanago.Signature) error {
	return b.feed.AwaitConfirmation(ctx, sig)
}
