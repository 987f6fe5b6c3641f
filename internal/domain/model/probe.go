package model

import (
	"fmt"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc"
)

// SentinelSignature is reported in place of a real transaction signature
// when a probe's blockhash lifetime ran out before confirmation arrived.
// It is the width of a base58 signature so downstream column checks pass.
var SentinelSignature = strings.Repeat("9", 88)

// Anchor is a recent blockhash together with the last block height at
// which a transaction referencing it is still accepted.
type Anchor struct {
	Blockhash            solana.Hash
	LastValidBlockHeight uint64
}

func (a Anchor) IsZero() bool {
	return a.Blockhash == solana.Hash{}
}

// Commitment is the confirmation depth used for fetching anchors,
// waiting on signatures and looking up landed transactions.
type Commitment string

const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

func ParseCommitment(s string) (Commitment, error) {
	switch Commitment(strings.ToLower(s)) {
	case CommitmentProcessed:
		return CommitmentProcessed, nil
	case CommitmentConfirmed:
		return CommitmentConfirmed, nil
	case CommitmentFinalized:
		return CommitmentFinalized, nil
	default:
		return "", fmt.Errorf("unknown commitment level %q", s)
	}
}

// RPC maps the commitment onto the SDK's wire representation.
func (c Commitment) RPC() rpc.CommitmentType {
	return rpc.CommitmentType(c)
}

func (c Commitment) String() string { return string(c) }

// SlotUpdateType mirrors the subtype field of slotsUpdates notifications.
type SlotUpdateType string

const (
	SlotUpdateFirstShredReceived SlotUpdateType = "firstShredReceived"
	SlotUpdateCompleted          SlotUpdateType = "completed"
	SlotUpdateCreatedBank        SlotUpdateType = "createdBank"
	SlotUpdateFrozen             SlotUpdateType = "frozen"
	SlotUpdateDead               SlotUpdateType = "dead"
	SlotUpdateOptimistic         SlotUpdateType = "optimisticConfirmation"
	SlotUpdateRoot               SlotUpdateType = "root"
)

// SlotUpdate is a single notification from the slot update feed.
type SlotUpdate struct {
	Slot uint64
	Type SlotUpdateType
}

// Outcome classifies how a single probe attempt ended.
type Outcome int

const (
	// OutcomeConfirmed means the signature reached the configured
	// commitment within the confirmation timeout.
	OutcomeConfirmed Outcome = iota
	// OutcomeExpired means the blockhash lifetime ran out first.
	OutcomeExpired
	// OutcomeAnchorInvalid means the cluster rejected the referenced
	// blockhash outright; the attempt produces no measurement.
	OutcomeAnchorInvalid
	// OutcomeErrored covers submit or confirmation failures that are
	// neither a timeout nor an invalid anchor.
	OutcomeErrored
)

func (o Outcome) String() string {
	switch o {
	case OutcomeConfirmed:
		return "confirmed"
	case OutcomeExpired:
		return "expired"
	case OutcomeAnchorInvalid:
		return "anchor_invalid"
	case OutcomeErrored:
		return "errored"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Measurement is one completed latency observation, ready for reporting.
type Measurement struct {
	// Duration from first submit until the outcome was decided, in ms.
	TimeMS int64
	// Signature of the probe, or SentinelSignature for expired probes.
	Signature string
	Success   bool
	Outcome   Outcome
	// Commitment the confirmation was waited at.
	Commitment Commitment
	// SlotSent is the freshest known slot at submit time.
	SlotSent uint64
	// SlotLanded is the slot the transaction landed in. Nil when the
	// probe never landed (expired) so the reporter can omit it.
	SlotLanded *uint64
	// PriorityFeeMicroLamports is the per-CU price attached to the probe.
	PriorityFeeMicroLamports uint64
	// PriorityFeePercentile is the configured percentile in basis points.
	PriorityFeePercentile uint16
}
