package probe

import "strings"

// blockhashRejectionTokens are the messages RPC nodes use when a
// transaction references a blockhash the cluster no longer accepts.
// Matching is textual because the JSON-RPC layer flattens the typed
// error before it reaches us.
var blockhashRejectionTokens = []string{
	"blockhash not found",
	"blockhashnotfound",
}

// lifetimeExpiryTokens are the messages signalling the transaction's
// blockhash lifetime ran out while the anchor itself was still valid
// when sent. These probes are reported as expired rather than errored.
var lifetimeExpiryTokens = []string{
	"block height exceeded",
	"blockheightexceeded",
	"blockhash has expired",
}

func isBlockhashNotFound(err error) bool {
	return matchesAny(err, blockhashRejectionTokens)
}

func isLifetimeExpired(err error) bool {
	return matchesAny(err, lifetimeExpiryTokens)
}

func matchesAny(err error, tokens []string) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, token := range tokens {
		if strings.Contains(msg, token) {
			return true
		}
	}
	return false
}
