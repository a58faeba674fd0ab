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
	"github.com/0gfoundation/permit-hook/internal/permit"
)

// Execute is the transfer-hook callback. It succeeds at most once per permit
// nonce; the nonce is reserved only after every other check has passed, and
// nothing is written when any check fails.
func (p *Program) Execute(ctx context.Context, inv Invocation, args ExecuteArgs, tc TransferContext) error {
	if !inv.Caller.Equals(p.tokenProgram) {
		err := fmt.Errorf("%w: execute must be invoked by %s, got %s", hookerr.ErrUnauthorized, p.tokenProgram, inv.Caller)
		p.reject(ctx, tc, nil, err)
		return err
	}
	tc.Timestamp = p.now()

	authAddr, _, err := AuthorityAddress(p.id, tc.Mint)
	if err != nil {
		return fmt.Errorf("derive authority address: %w", err)
	}

	// Decoding is pure; its error is reported after the pause check.
	signed, decodeErr := permit.Open(args.Permit, args.Signature)
	accounts := []solana.PublicKey{authAddr}
	var nonceAddr solana.PublicKey
	if decodeErr == nil {
		nonceAddr, _, err = NonceAddress(p.id, signed.Owner, tc.Mint)
		if err != nil {
			return fmt.Errorf("derive nonce address: %w", err)
		}
		accounts = append(accounts, nonceAddr)
	}

	err = p.store.Atomic(ctx, p.id, accounts, func(tx ledger.Tx) error {
		auth, err := loadAuthority(tx, authAddr)
		if err != nil {
			return err
		}
		if auth.Paused {
			return fmt.Errorf("%w: mint %s", hookerr.ErrHookPaused, tc.Mint)
		}
		if decodeErr != nil {
			return decodeErr
		}
		if err := checkTransfer(auth, signed.Permit, tc); err != nil {
			return err
		}
		if err := checkTemporal(auth, signed.Permit, tc.Timestamp); err != nil {
			return err
		}
		if err := signed.VerifySignature(); err != nil {
			return err
		}
		return reserveNonce(tx, nonceAddr, auth, signed.Permit)
	})
	if err != nil {
		var pm *permit.Permit
		if signed != nil {
			pm = &signed.Permit
		}
		p.reject(ctx, tc, pm, err)
		return err
	}

	p.log.Info("permit redeemed",
		zap.String("mint", tc.Mint.String()),
		zap.String("owner", signed.Owner.String()),
		zap.String("spender", signed.Spender.String()),
		zap.Uint64("nonce", signed.Nonce),
		zap.Uint64("amount", tc.Amount),
	)
	p.publish(ctx, events.Event{
		Kind:    events.KindPermitRedeemed,
		Mint:    tc.Mint.String(),
		Owner:   signed.Owner.String(),
		Spender: tc.DestinationOwner.String(),
		Nonce:   signed.Nonce,
		Amount:  tc.Amount,
	})
	return nil
}

// checkTransfer matches the transfer against what the permit authorizes.
func checkTransfer(auth *AuthorityAccount, pm permit.Permit, tc TransferContext) error {
	if !tc.Mint.Equals(pm.Mint) {
		return fmt.Errorf("%w: transfer %s, permit %s", hookerr.ErrMintMismatch, tc.Mint, pm.Mint)
	}
	if tc.Amount == 0 {
		return fmt.Errorf("%w: zero-amount transfer", hookerr.ErrMalformedInstruction)
	}
	if tc.Amount > pm.Amount {
		return fmt.Errorf("%w: transfer %d, permit %d", hookerr.ErrAmountExceeded, tc.Amount, pm.Amount)
	}
	if !tc.SourceOwner.Equals(pm.Owner) {
		return fmt.Errorf("%w: source owner %s, permit owner %s", hookerr.ErrOwnerMismatch, tc.SourceOwner, pm.Owner)
	}
	if pm.IsOpen() {
		if !auth.AllowOpenPermits {
			return fmt.Errorf("%w: open permits not allowed for mint %s", hookerr.ErrSpenderMismatch, tc.Mint)
		}
		return nil
	}
	if !tc.DestinationOwner.Equals(pm.Spender) {
		return fmt.Errorf("%w: recipient %s, spender %s", hookerr.ErrSpenderMismatch, tc.DestinationOwner, pm.Spender)
	}
	return nil
}

// checkTemporal enforces expiry, the issued floor and the ttl bounds.
func checkTemporal(auth *AuthorityAccount, pm permit.Permit, now int64) error {
	if now > pm.Expiry {
		return fmt.Errorf("%w: expiry %d, now %d", hookerr.ErrPermitExpired, pm.Expiry, now)
	}
	if now < pm.ValidAfter {
		return fmt.Errorf("%w: valid after %d, now %d", hookerr.ErrPermitNotYetValid, pm.ValidAfter, now)
	}
	if !auth.TtlEnforced() {
		return nil
	}
	issued := pm.ValidAfter
	if issued == 0 {
		issued = now
	}
	if ttl := pm.Expiry - issued; ttl < auth.MinTTL || ttl > auth.MaxTTL {
		return fmt.Errorf("%w: ttl %d not in [%d, %d]", hookerr.ErrPermitTtlOutOfBounds, ttl, auth.MinTTL, auth.MaxTTL)
	}
	return nil
}

// reserveNonce consumes pm.Nonce in the owner's window, creating the nonce
// account on first use.
func reserveNonce(tx ledger.Tx, addr solana.PublicKey, auth *AuthorityAccount, pm permit.Permit) error {
	acct, err := tx.Get(addr)
	if err != nil {
		return err
	}

	var (
		state *NonceAccount
		w     *nonce.Window
	)
	if acct == nil {
		state = &NonceAccount{Owner: pm.Owner, Mint: pm.Mint}
		w, err = nonce.New(auth.NonceWindow)
	} else {
		if state, err = decodeNonce(acct.Data); err != nil {
			return err
		}
		w, err = state.Restore()
	}
	if err != nil {
		return fmt.Errorf("nonce window: %w", err)
	}

	if err := w.Reserve(pm.Nonce); err != nil {
		return err
	}
	state.Store(w)

	data, err := encodeAccount(nonceDiscriminator, state)
	if err != nil {
		return err
	}
	return tx.Put(addr, data)
}

func (p *Program) reject(ctx context.Context, tc TransferContext, pm *permit.Permit, err error) {
	fields := append(errorFields(err),
		zap.String("mint", tc.Mint.String()),
		zap.String("source_owner", tc.SourceOwner.String()),
		zap.Uint64("amount", tc.Amount),
	)
	ev := events.Event{
		Kind:   events.KindPermitRejected,
		Mint:   tc.Mint.String(),
		Owner:  tc.SourceOwner.String(),
		Amount: tc.Amount,
		Error:  err.Error(),
	}
	if pm != nil {
		fields = append(fields, zap.Uint64("nonce", pm.Nonce))
		ev.Owner = pm.Owner.String()
		ev.Spender = pm.Spender.String()
		ev.Nonce = pm.Nonce
	}

	he, ok := hookerr.As(err)
	if !ok {
		// Infrastructure failure: the outcome is unknown to observers.
		p.log.Error("execute failed", fields...)
		return
	}
	p.log.Warn("permit rejected", fields...)
	ev.Code = he.Code
	p.publish(ctx, ev)
}
