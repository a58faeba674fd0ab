package hook

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/0gfoundation/permit-hook/internal/events"
	"github.com/0gfoundation/permit-hook/internal/hookerr"
	"github.com/0gfoundation/permit-hook/internal/ledger"
	"github.com/0gfoundation/permit-hook/internal/nonce"
)

// Initialize creates mint's permit authority account. The authority must sign.
func (p *Program) Initialize(ctx context.Context, inv Invocation, args InitializeArgs) error {
	if !inv.signedBy(args.Authority) {
		return fmt.Errorf("%w: authority %s did not sign", hookerr.ErrUnauthorized, args.Authority)
	}
	if err := checkTtlBounds(args.MinTTL, args.MaxTTL); err != nil {
		return err
	}
	window := args.NonceWindow
	if window == 0 {
		window = DefaultNonceWindow
	}
	if window > nonce.MaxSize {
		return fmt.Errorf("%w: nonce window %d exceeds %d", hookerr.ErrMalformedInstruction, window, nonce.MaxSize)
	}

	addr, bump, err := AuthorityAddress(p.id, args.Mint)
	if err != nil {
		return fmt.Errorf("derive authority address: %w", err)
	}

	acct := &AuthorityAccount{
		Authority:        args.Authority,
		Mint:             args.Mint,
		MinTTL:           args.MinTTL,
		MaxTTL:           args.MaxTTL,
		NonceWindow:      window,
		AllowOpenPermits: args.AllowOpenPermits,
		InitializedAt:    p.now(),
		Bump:             bump,
	}
	err = p.store.Atomic(ctx, p.id, []solana.PublicKey{addr}, func(tx ledger.Tx) error {
		existing, err := tx.Get(addr)
		if err != nil {
			return err
		}
		if existing != nil {
			return fmt.Errorf("%w: mint %s", hookerr.ErrAlreadyInitialized, args.Mint)
		}
		return storeAuthority(tx, addr, acct)
	})
	if err != nil {
		p.log.Warn("initialize rejected", append(errorFields(err), zap.String("mint", args.Mint.String()))...)
		return err
	}

	p.log.Info("permit authority initialized",
		zap.String("mint", args.Mint.String()),
		zap.String("authority", args.Authority.String()),
		zap.Int64("min_ttl", args.MinTTL),
		zap.Int64("max_ttl", args.MaxTTL),
		zap.Uint16("nonce_window", window),
	)
	p.publish(ctx, events.Event{
		Kind:      events.KindInitialized,
		Mint:      args.Mint.String(),
		Authority: args.Authority.String(),
		MinTTL:    args.MinTTL,
		MaxTTL:    args.MaxTTL,
	})
	return nil
}

func checkTtlBounds(minTTL, maxTTL int64) error {
	if minTTL < 0 || minTTL > maxTTL {
		return fmt.Errorf("%w: min %d, max %d", hookerr.ErrInvalidTtlBounds, minTTL, maxTTL)
	}
	return nil
}
