package audit

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/0gfoundation/permit-hook/internal/events"
)

const (
	mintKeyFmt      = "audit:mint:%s"
	rejectionKeyFmt = "audit:rejections:%s"
	seenKeyFmt      = "audit:seen:%s"
	dlqKey          = "audit:dlq"

	maxRecentRejections = 100
	seenTTL             = 24 * time.Hour
	maxRecordAttempts   = 8
)

// Handle records one event payload. Undecodable payloads are moved to the
// dead-letter list and are not an error. Events already recorded under the
// same message id are skipped. A failed record leaves no seen marker behind,
// so a redelivery of the same id is counted.
func Handle(ctx context.Context, rdb *redis.Client, id string, payload []byte, log *zap.Logger) error {
	ev, err := events.Decode(payload)
	if err != nil {
		log.Error("audit: undecodable event moved to DLQ", zap.String("id", id), zap.Error(err))
		return rdb.RPush(ctx, dlqKey, string(payload)).Err()
	}

	mintKey := fmt.Sprintf(mintKeyFmt, ev.Mint)
	keys := []string{mintKey}
	seenKey := ""
	if id != "" {
		seenKey = fmt.Sprintf(seenKeyFmt, id)
		keys = append(keys, seenKey)
	}

	for attempt := 1; attempt <= maxRecordAttempts; attempt++ {
		var dup bool
		err = rdb.Watch(ctx, func(tx *redis.Tx) error {
			seen, err := alreadySeen(ctx, tx, seenKey)
			if err != nil || seen {
				dup = seen
				return err
			}
			return record(ctx, tx, mintKey, seenKey, ev, payload)
		}, keys...)

		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			if seenKey != "" {
				// EXEC applies the commands that did not fail, the marker among them.
				if derr := rdb.Del(ctx, seenKey).Err(); derr != nil {
					log.Error("audit: clear seen marker", zap.String("id", id), zap.Error(derr))
				}
			}
			return err
		}
		if dup {
			log.Debug("audit: duplicate event skipped", zap.String("id", id))
			return nil
		}

		if ev.Kind == events.KindPermitRejected {
			log.Info("rejection recorded",
				zap.String("mint", ev.Mint),
				zap.String("owner", ev.Owner),
				zap.Uint32("code", ev.Code),
			)
		}
		return nil
	}
	return fmt.Errorf("audit: record %s: %w after %d attempts", id, redis.TxFailedErr, maxRecordAttempts)
}

func alreadySeen(ctx context.Context, tx *redis.Tx, seenKey string) (bool, error) {
	if seenKey == "" {
		return false, nil
	}
	n, err := tx.Exists(ctx, seenKey).Result()
	return n > 0, err
}

// record writes the counters for ev and the seen marker in one MULTI.
func record(ctx context.Context, tx *redis.Tx, mintKey, seenKey string, ev events.Event, payload []byte) error {
	var total decimal.Decimal
	if ev.Kind == events.KindPermitRedeemed {
		cur, err := tx.HGet(ctx, mintKey, "redeemed_amount").Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		total, err = parseAmount(cur)
		if err != nil {
			return fmt.Errorf("audit: redeemed_amount %q: %w", cur, err)
		}
		total = total.Add(decimal.NewFromBigInt(new(big.Int).SetUint64(ev.Amount), 0))
	}

	_, err := tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		switch ev.Kind {
		case events.KindPermitRedeemed:
			pipe.HIncrBy(ctx, mintKey, "redeemed", 1)
			pipe.HSet(ctx, mintKey, "redeemed_amount", total.String())
		case events.KindPermitRejected:
			listKey := fmt.Sprintf(rejectionKeyFmt, ev.Mint)
			pipe.HIncrBy(ctx, mintKey, "rejected", 1)
			pipe.HIncrBy(ctx, mintKey, "code:"+strconv.FormatUint(uint64(ev.Code), 10), 1)
			pipe.LPush(ctx, listKey, string(payload))
			pipe.LTrim(ctx, listKey, 0, maxRecentRejections-1)
		case events.KindPauseChanged:
			pipe.HSet(ctx, mintKey, "paused", ev.Paused)
		case events.KindInitialized:
			pipe.HSet(ctx, mintKey, "initialized_at", ev.At)
		}
		pipe.HSet(ctx, mintKey, "last_event_at", ev.At)
		if seenKey != "" {
			pipe.Set(ctx, seenKey, 1, seenTTL)
		}
		return nil
	})
	return err
}

// parseAmount reads a stored total; a missing field is zero.
func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}
