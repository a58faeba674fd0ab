// Package hook implements the permit transfer hook: a per-mint policy account,
// a per-owner replay window, and the Execute callback the token program calls
// before it finalizes a transfer.
//
// Every instruction runs as one atomic unit over the ledger store. A rejected
// instruction returns a hookerr error and writes nothing.
package hook

import (
	"context"
	"fmt"
	"time"

	solana "github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"github.com/0gfoundation/permit-hook/internal/events"
	"github.com/0gfoundation/permit-hook/internal/hookerr"
	"github.com/0gfoundation/permit-hook/internal/ledger"
)

// Clock returns the current unix timestamp of the host.
type Clock func() int64

// Invocation describes who is invoking an instruction.
type Invocation struct {
	// Signers are the keys whose signatures the host has verified.
	Signers []solana.PublicKey
	// Caller is the program invoking the hook, zero for a top-level call.
	Caller solana.PublicKey
	// Transfer is the transfer being gated. Only Execute uses it.
	Transfer *TransferContext
}

func (inv Invocation) signedBy(key solana.PublicKey) bool {
	for _, s := range inv.Signers {
		if s.Equals(key) {
			return true
		}
	}
	return false
}

// TransferContext is the transfer the token program is about to execute.
// Timestamp is filled from the host clock by Execute.
type TransferContext struct {
	Source           solana.PublicKey
	SourceOwner      solana.PublicKey
	Destination      solana.PublicKey
	DestinationOwner solana.PublicKey
	Mint             solana.PublicKey
	Amount           uint64
	Timestamp        int64
}

// Program is the hook bound to its program id and account store.
type Program struct {
	id           solana.PublicKey
	tokenProgram solana.PublicKey
	store        ledger.Store
	now          Clock
	events       events.Publisher
	log          *zap.Logger
}

type Option func(*Program)

// WithClock overrides the host clock.
func WithClock(c Clock) Option { return func(p *Program) { p.now = c } }

// WithEvents sets the observer event publisher.
func WithEvents(pub events.Publisher) Option { return func(p *Program) { p.events = pub } }

// WithTokenProgram sets the only program allowed to invoke Execute.
func WithTokenProgram(id solana.PublicKey) Option { return func(p *Program) { p.tokenProgram = id } }

func New(id solana.PublicKey, store ledger.Store, log *zap.Logger, opts ...Option) *Program {
	p := &Program{
		id:           id,
		tokenProgram: solana.Token2022ProgramID,
		store:        store,
		now:          func() int64 { return time.Now().Unix() },
		events:       events.NopPublisher{},
		log:          log,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// ID returns the hook program id.
func (p *Program) ID() solana.PublicKey { return p.id }

// TokenProgram returns the program allowed to invoke Execute.
func (p *Program) TokenProgram() solana.PublicKey { return p.tokenProgram }

// Process decodes instruction data and dispatches it.
func (p *Program) Process(ctx context.Context, inv Invocation, data []byte) error {
	ix, err := DecodeInstruction(data)
	if err != nil {
		return err
	}
	switch args := ix.(type) {
	case *InitializeArgs:
		return p.Initialize(ctx, inv, *args)
	case *SetPausedArgs:
		return p.SetPaused(ctx, inv, *args)
	case *SetTtlBoundsArgs:
		return p.SetTtlBounds(ctx, inv, *args)
	case *ExecuteArgs:
		if inv.Transfer == nil {
			return fmt.Errorf("%w: execute without transfer context", hookerr.ErrMalformedInstruction)
		}
		return p.Execute(ctx, inv, *args, *inv.Transfer)
	default:
		return fmt.Errorf("%w: %T", hookerr.ErrMalformedInstruction, ix)
	}
}

// Authority returns mint's authority account, or nil if uninitialized.
func (p *Program) Authority(ctx context.Context, mint solana.PublicKey) (*AuthorityAccount, error) {
	addr, _, err := AuthorityAddress(p.id, mint)
	if err != nil {
		return nil, err
	}
	acct, err := p.store.Get(ctx, addr)
	if err != nil || acct == nil {
		return nil, err
	}
	return decodeAuthority(acct.Data)
}

// State returns the lifecycle state of mint's permit authority.
func (p *Program) State(ctx context.Context, mint solana.PublicKey) (State, error) {
	a, err := p.Authority(ctx, mint)
	if err != nil {
		return StateUninitialized, err
	}
	if a == nil {
		return StateUninitialized, nil
	}
	return a.State(), nil
}

// Nonces returns owner's nonce account for mint, or nil if none was created.
func (p *Program) Nonces(ctx context.Context, owner, mint solana.PublicKey) (*NonceAccount, error) {
	addr, _, err := NonceAddress(p.id, owner, mint)
	if err != nil {
		return nil, err
	}
	acct, err := p.store.Get(ctx, addr)
	if err != nil || acct == nil {
		return nil, err
	}
	return decodeNonce(acct.Data)
}

func loadAuthority(tx ledger.Tx, addr solana.PublicKey) (*AuthorityAccount, error) {
	acct, err := tx.Get(addr)
	if err != nil {
		return nil, err
	}
	if acct == nil {
		return nil, hookerr.ErrNotInitialized
	}
	return decodeAuthority(acct.Data)
}

func storeAuthority(tx ledger.Tx, addr solana.PublicKey, a *AuthorityAccount) error {
	data, err := encodeAccount(authorityDiscriminator, a)
	if err != nil {
		return err
	}
	return tx.Put(addr, data)
}

// publish hands ev to observers; failures only get logged.
func (p *Program) publish(ctx context.Context, ev events.Event) {
	ev.At = p.now()
	if err := p.events.Publish(ctx, ev); err != nil {
		p.log.Warn("publish event failed", zap.String("kind", string(ev.Kind)), zap.Error(err))
	}
}

// errorFields logs the hook error code alongside the error.
func errorFields(err error) []zap.Field {
	fields := []zap.Field{zap.Error(err)}
	if he, ok := hookerr.As(err); ok {
		fields = append(fields, zap.Uint32("code", he.Code), zap.String("category", he.Category.String()))
	}
	return fields
}
