// Package ledger is the durable account store the permit hook runs against.
//
// Every instruction executes inside Atomic: reads see a consistent snapshot of
// the declared accounts, writes are buffered, and nothing is written unless the
// callback returns nil. A program may only write accounts it owns.
package ledger

import (
	"context"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
)

var (
	// ErrAccountLocked is returned when a unit of work kept conflicting with
	// concurrent writers and the store gave up re-running it.
	ErrAccountLocked = errors.New("account locked by concurrent transaction")
	// ErrAccountNotWritable is returned when a unit of work writes an account
	// it did not declare.
	ErrAccountNotWritable = errors.New("account not declared writable")
	// ErrIllegalOwner is returned when a program writes an account owned by
	// another program.
	ErrIllegalOwner = errors.New("account owned by another program")
)

// Account is the raw durable state at an address.
type Account struct {
	Owner solana.PublicKey
	Data  []byte
}

func (a *Account) clone() *Account {
	if a == nil {
		return nil
	}
	data := make([]byte, len(a.Data))
	copy(data, a.Data)
	return &Account{Owner: a.Owner, Data: data}
}

// Store reads accounts and runs atomic units of work over them.
type Store interface {
	// Get returns the account at addr, or nil if it does not exist.
	Get(ctx context.Context, addr solana.PublicKey) (*Account, error)
	// Atomic runs fn with program as the writing program and accounts as the
	// writable set. Writes are committed only if fn returns nil.
	Atomic(ctx context.Context, program solana.PublicKey, accounts []solana.PublicKey, fn func(tx Tx) error) error
}

// Tx is the view of the store inside one atomic unit of work.
type Tx interface {
	Get(addr solana.PublicKey) (*Account, error)
	Put(addr solana.PublicKey, data []byte) error
}

// txBuffer implements Tx over a read function, buffering writes.
type txBuffer struct {
	program  solana.PublicKey
	writable map[solana.PublicKey]bool
	read     func(addr solana.PublicKey) (*Account, error)
	writes   map[solana.PublicKey]*Account
	order    []solana.PublicKey
}

func newTxBuffer(program solana.PublicKey, accounts []solana.PublicKey, read func(solana.PublicKey) (*Account, error)) *txBuffer {
	w := make(map[solana.PublicKey]bool, len(accounts))
	for _, a := range accounts {
		w[a] = true
	}
	return &txBuffer{
		program:  program,
		writable: w,
		read:     read,
		writes:   make(map[solana.PublicKey]*Account),
	}
}

func (b *txBuffer) Get(addr solana.PublicKey) (*Account, error) {
	if a, ok := b.writes[addr]; ok {
		return a.clone(), nil
	}
	a, err := b.read(addr)
	if err != nil {
		return nil, fmt.Errorf("read account %s: %w", addr, err)
	}
	return a, nil
}

func (b *txBuffer) Put(addr solana.PublicKey, data []byte) error {
	if !b.writable[addr] {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, addr)
	}
	existing, err := b.Get(addr)
	if err != nil {
		return err
	}
	if existing != nil && !existing.Owner.Equals(b.program) {
		return fmt.Errorf("%w: %s owned by %s", ErrIllegalOwner, addr, existing.Owner)
	}
	if _, seen := b.writes[addr]; !seen {
		b.order = append(b.order, addr)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	b.writes[addr] = &Account{Owner: b.program, Data: cp}
	return nil
}
