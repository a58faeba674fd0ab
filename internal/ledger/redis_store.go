package ledger

import (
	"context"
	"errors"
	"fmt"

	solana "github.com/gagliardetto/solana-go"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const accountKeyPrefix = "ledger:account:"

// DefaultMaxTxRetries is how often a conflicting unit of work is re-run
// before ErrAccountLocked is returned.
const DefaultMaxTxRetries = 16

func accountKey(addr solana.PublicKey) string {
	return accountKeyPrefix + addr.String()
}

// RedisStore keeps each account in a hash {owner, data}. Atomic units WATCH
// their writable accounts and commit with MULTI/EXEC, so two units touching
// the same account are serialized: the loser is re-run against the winner's
// committed state.
type RedisStore struct {
	rdb        *redis.Client
	maxRetries int
	log        *zap.Logger
}

func NewRedisStore(rdb *redis.Client, maxRetries int, log *zap.Logger) *RedisStore {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxTxRetries
	}
	return &RedisStore{rdb: rdb, maxRetries: maxRetries, log: log}
}

type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func readAccount(ctx context.Context, r hashReader, addr solana.PublicKey) (*Account, error) {
	vals, err := r.HGetAll(ctx, accountKey(addr)).Result()
	if err != nil {
		return nil, err
	}
	if len(vals) == 0 {
		return nil, nil
	}
	owner, err := solana.PublicKeyFromBase58(vals["owner"])
	if err != nil {
		return nil, fmt.Errorf("account %s: bad owner: %w", addr, err)
	}
	return &Account{Owner: owner, Data: []byte(vals["data"])}, nil
}

func (s *RedisStore) Get(ctx context.Context, addr solana.PublicKey) (*Account, error) {
	return readAccount(ctx, s.rdb, addr)
}

func (s *RedisStore) Atomic(ctx context.Context, program solana.PublicKey, accounts []solana.PublicKey, fn func(tx Tx) error) error {
	keys := make([]string, len(accounts))
	for i, a := range accounts {
		keys[i] = accountKey(a)
	}

	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err := s.rdb.Watch(ctx, func(rtx *redis.Tx) error {
			buf := newTxBuffer(program, accounts, func(addr solana.PublicKey) (*Account, error) {
				return readAccount(ctx, rtx, addr)
			})
			if err := fn(buf); err != nil {
				return err
			}
			if len(buf.order) == 0 {
				return nil
			}
			_, err := rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, addr := range buf.order {
					a := buf.writes[addr]
					pipe.HSet(ctx, accountKey(addr), "owner", a.Owner.String(), "data", a.Data)
				}
				return nil
			})
			return err
		}, keys...)

		if errors.Is(err, redis.TxFailedErr) {
			s.log.Debug("ledger: concurrent writer, re-running unit",
				zap.Strings("accounts", keys),
				zap.Int("attempt", attempt),
			)
			continue
		}
		return err
	}
	return fmt.Errorf("%w after %d attempts", ErrAccountLocked, s.maxRetries)
}
