package audit

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/0gfoundation/permit-hook/internal/events"
)

// Stats is the audit view of one mint.
type Stats struct {
	Mint           string           `json:"mint"`
	Paused         bool             `json:"paused"`
	Redeemed       int64            `json:"redeemed"`
	RedeemedAmount decimal.Decimal  `json:"redeemed_amount"`
	Rejected       int64            `json:"rejected"`
	RejectedByCode map[uint32]int64 `json:"rejected_by_code"`
	LastEventAt    int64            `json:"last_event_at"`
	Recent         []events.Event   `json:"recent_rejections"`
}

// ReadStats loads the counters and the last limit rejections of mint,
// newest first.
func ReadStats(ctx context.Context, rdb *redis.Client, mint string, limit int64) (*Stats, error) {
	fields, err := rdb.HGetAll(ctx, fmt.Sprintf(mintKeyFmt, mint)).Result()
	if err != nil {
		return nil, err
	}

	s := &Stats{Mint: mint, RejectedByCode: map[uint32]int64{}, Recent: []events.Event{}}
	for k, v := range fields {
		switch {
		case k == "redeemed":
			s.Redeemed, _ = strconv.ParseInt(v, 10, 64)
		case k == "redeemed_amount":
			s.RedeemedAmount, _ = parseAmount(v)
		case k == "rejected":
			s.Rejected, _ = strconv.ParseInt(v, 10, 64)
		case k == "last_event_at":
			s.LastEventAt, _ = strconv.ParseInt(v, 10, 64)
		case k == "paused":
			s.Paused = v == "1"
		case strings.HasPrefix(k, "code:"):
			code, err := strconv.ParseUint(strings.TrimPrefix(k, "code:"), 10, 32)
			if err != nil {
				continue
			}
			s.RejectedByCode[uint32(code)], _ = strconv.ParseInt(v, 10, 64)
		}
	}

	if limit <= 0 || limit > maxRecentRejections {
		limit = maxRecentRejections
	}
	raw, err := rdb.LRange(ctx, fmt.Sprintf(rejectionKeyFmt, mint), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	for _, r := range raw {
		ev, err := events.Decode([]byte(r))
		if err != nil {
			continue
		}
		s.Recent = append(s.Recent, ev)
	}
	return s, nil
}
