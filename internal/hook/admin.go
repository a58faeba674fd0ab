package hook

import (
	"context"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/0gfoundation/permit-hook/internal/events"
	"github.com/0gfoundation/permit-hook/internal/hookerr"
	"github.com/0gfoundation/permit-hook/internal/ledger"
)

// SetPaused toggles Active ⇄ Paused. Pausing a paused hook is a no-op.
func (p *Program) SetPaused(ctx context.Context, inv Invocation, args SetPausedArgs) error {
	err := p.updateAuthority(ctx, inv, args.Mint, func(a *AuthorityAccount) error {
		a.Paused = args.Paused
		return nil
	})
	if err != nil {
		p.log.Warn("set paused rejected", append(errorFields(err), zap.String("mint", args.Mint.String()))...)
		return err
	}

	p.log.Info("hook pause changed", zap.String("mint", args.Mint.String()), zap.Bool("paused", args.Paused))
	p.publish(ctx, events.Event{
		Kind:   events.KindPauseChanged,
		Mint:   args.Mint.String(),
		Paused: args.Paused,
	})
	return nil
}

// SetTtlBounds replaces the permit lifetime bounds of a mint.
func (p *Program) SetTtlBounds(ctx context.Context, inv Invocation, args SetTtlBoundsArgs) error {
	if err := checkTtlBounds(args.MinTTL, args.MaxTTL); err != nil {
		return err
	}
	err := p.updateAuthority(ctx, inv, args.Mint, func(a *AuthorityAccount) error {
		a.MinTTL = args.MinTTL
		a.MaxTTL = args.MaxTTL
		return nil
	})
	if err != nil {
		p.log.Warn("set ttl bounds rejected", append(errorFields(err), zap.String("mint", args.Mint.String()))...)
		return err
	}

	p.log.Info("ttl bounds changed",
		zap.String("mint", args.Mint.String()),
		zap.Int64("min_ttl", args.MinTTL),
		zap.Int64("max_ttl", args.MaxTTL),
	)
	p.publish(ctx, events.Event{
		Kind:   events.KindTtlBoundsChanged,
		Mint:   args.Mint.String(),
		MinTTL: args.MinTTL,
		MaxTTL: args.MaxTTL,
	})
	return nil
}

// updateAuthority applies fn to mint's authority account when the
// invocation is signed by its authority.
func (p *Program) updateAuthority(ctx context.Context, inv Invocation, mint solana.PublicKey, fn func(a *AuthorityAccount) error) error {
	addr, _, err := AuthorityAddress(p.id, mint)
	if err != nil {
		return fmt.Errorf("derive authority address: %w", err)
	}
	return p.store.Atomic(ctx, p.id, []solana.PublicKey{addr}, func(tx ledger.Tx) error {
		a, err := loadAuthority(tx, addr)
		if err != nil {
			return err
		}
		if !inv.signedBy(a.Authority) {
			return fmt.Errorf("%w: authority %s did not sign", hookerr.ErrUnauthorized, a.Authority)
		}
		if err := fn(a); err != nil {
			return err
		}
		return storeAuthority(tx, addr, a)
	})
}
