package probe

import (
	"fmt"

	solanago "github.com/gagliardetto/solana-go"
	computebudget "github.com/gagliardetto/solana-go/programs/compute-budget"
	"github.com/gagliardetto/solana-go/programs/system"

	"github.com/Block-Logic/ping-thing-client/internal/domain/model"
)

// buildSigned assembles and signs the probe: a self-transfer with a
// tight compute budget, plus a compute unit price when a fee applies.
// The self-transfer keeps probes cheap while still exercising the full
// scheduling and fee path of a real transfer.
func (p *Probe) buildSigned(anchor model.Anchor, feeMicroLamports uint64) (*solanago.Transaction, error) {
	payer := p.wallet.PublicKey()

	instrs := []solanago.Instruction{
		computebudget.NewSetComputeUnitLimitInstruction(p.cfg.ComputeUnitLimit).Build(),
	}
	if feeMicroLamports > 0 {
		instrs = append(instrs, computebudget.NewSetComputeUnitPriceInstruction(feeMicroLamports).Build())
	}
	instrs = append(instrs, system.NewTransferInstruction(p.cfg.TransferLamports, payer, payer).Build())

	tx, err := solanago.NewTransaction(instrs, anchor.Blockhash, solanago.TransactionPayer(payer))
	if err != nil {
		return nil, fmt.Errorf("assemble transaction: %w", err)
	}

	if _, err := tx.Sign(func(key solanago.PublicKey) *solanago.PrivateKey {
		if key.Equals(payer) {
			return &p.wallet
		}
		return nil
	}); err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	if len(tx.Signatures) == 0 {
		return nil, fmt.Errorf("signed transaction carries no signature")
	}
	return tx, nil
}
