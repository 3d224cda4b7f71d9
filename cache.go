package walletgo

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// BalanceCache is a read-through redis cache for display balance reads.
// Display reads are allowed to lag the committed state, so entries carry
// a short TTL and are dropped after any committed mutation. Cache
// failures fall back to the store silently.
type BalanceCache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zerolog.Logger
}

func NewBalanceCache(rdb *redis.Client, ttl time.Duration, log *zerolog.Logger) *BalanceCache {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &BalanceCache{
		rdb: rdb,
		ttl: ttl,
		log: log,
	}
}

func balanceKey(id snowflake.ID) string {
	return "balance:" + id.String()
}

func (c *BalanceCache) Get(ctx context.Context, id snowflake.ID) (decimal.Decimal, bool) {
	val, err := c.rdb.Get(ctx, balanceKey(id)).Result()
	if err != nil {
		if err != redis.Nil {
			c.log.Debug().Err(err).Msg("balance cache read failed")
		}
		return decimal.Zero, false
	}
	bal, err := decimal.NewFromString(val)
	if err != nil {
		return decimal.Zero, false
	}
	return bal, true
}

func (c *BalanceCache) Set(ctx context.Context, id snowflake.ID, bal decimal.Decimal) {
	if err := c.rdb.Set(ctx, balanceKey(id), bal.String(), c.ttl).Err(); err != nil {
		c.log.Debug().Err(err).Msg("balance cache write failed")
	}
}

func (c *BalanceCache) Invalidate(ctx context.Context, ids ...snowflake.ID) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, balanceKey(id))
	}
	if err := c.rdb.Del(ctx, keys...).Err(); err != nil {
		c.log.Debug().Err(err).Msg("balance cache invalidation failed")
	}
}
