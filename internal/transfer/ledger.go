// Package transfer plays the token program's side of the hook contract: it
// invokes Execute before a transfer is finalised and aborts on failure.
package transfer

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/0gfoundation/permit-hook/internal/hook"
	"github.com/0gfoundation/permit-hook/internal/permit"
)

// Request is a permit-backed transfer. The owners are taken as given: this
// ledger keeps no token accounts, so it cannot check who owns Source or
// Destination.
type Request struct {
	Source           solana.PublicKey `json:"source"`
	SourceOwner      solana.PublicKey `json:"source_owner"`
	Destination      solana.PublicKey `json:"destination"`
	DestinationOwner solana.PublicKey `json:"destination_owner"`
	Mint             solana.PublicKey `json:"mint"`
	Amount           uint64           `json:"amount"`
	Permit           []byte           `json:"permit"`
	Signature        solana.Signature `json:"signature"`
}

// Receipt describes a transfer the hook allowed.
type Receipt struct {
	Mint    solana.PublicKey `json:"mint"`
	Owner   solana.PublicKey `json:"owner"`
	Spender solana.PublicKey `json:"spender"`
	Amount  uint64           `json:"amount"`
	Nonce   uint64           `json:"nonce"`
}

type Ledger struct {
	hook *hook.Program
	log  *zap.Logger
}

func NewLedger(h *hook.Program, log *zap.Logger) *Ledger {
	return &Ledger{hook: h, log: log}
}

// Transfer runs the hook for req. A non-nil error means the transfer must
// not happen.
func (l *Ledger) Transfer(ctx context.Context, req Request) (*Receipt, error) {
	data, err := hook.EncodeInstruction(hook.ExecuteArgs{Permit: req.Permit, Signature: req.Signature})
	if err != nil {
		return nil, fmt.Errorf("encode execute: %w", err)
	}

	inv := hook.Invocation{
		Caller: l.hook.TokenProgram(),
		Transfer: &hook.TransferContext{
			Source:           req.Source,
			SourceOwner:      req.SourceOwner,
			Destination:      req.Destination,
			DestinationOwner: req.DestinationOwner,
			Mint:             req.Mint,
			Amount:           req.Amount,
		},
	}
	if err := l.hook.Process(ctx, inv, data); err != nil {
		return nil, err
	}

	p, err := permit.Decode(req.Permit)
	if err != nil {
		// Execute already decoded these bytes.
		return nil, fmt.Errorf("decode redeemed permit: %w", err)
	}
	l.log.Debug("transfer allowed",
		zap.String("mint", req.Mint.String()),
		zap.String("source", req.Source.String()),
		zap.String("destination", req.Destination.String()),
		zap.Uint64("amount", req.Amount),
	)
	return &Receipt{
		Mint:    req.Mint,
		Owner:   p.Owner,
		Spender: req.DestinationOwner,
		Amount:  req.Amount,
		Nonce:   p.Nonce,
	}, nil
}
