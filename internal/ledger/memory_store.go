package ledger

import (
	"context"
	"sync"

	solana "github.com/gagliardetto/solana-go"
)

// MemoryStore is an in-process Store. Units of work are fully serialized.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[solana.PublicKey]*Account
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[solana.PublicKey]*Account)}
}

func (s *MemoryStore) Get(_ context.Context, addr solana.PublicKey) (*Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[addr].clone(), nil
}

func (s *MemoryStore) Atomic(ctx context.Context, program solana.PublicKey, accounts []solana.PublicKey, fn func(tx Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	buf := newTxBuffer(program, accounts, func(addr solana.PublicKey) (*Account, error) {
		return s.accounts[addr].clone(), nil
	})
	if err := fn(buf); err != nil {
		return err
	}
	for _, addr := range buf.order {
		s.accounts[addr] = buf.writes[addr]
	}
	return nil
}
