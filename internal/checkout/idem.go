package checkout

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/ariefcatur/go-merch-checkout.git/internal/redisx"
)

// RedisIdem backs IdemCache with the idem:checkout keys. Misses fall through
// to the order store, so redis being down only costs the fast path.
type RedisIdem struct{ Client *redis.Client }

func (c *RedisIdem) GetResult(ctx context.Context, externalID string) (*Result, bool) {
	raw, err := c.Client.Get(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, externalID)).Bytes()
	if err != nil {
		return nil, false
	}
	var res Result
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, false
	}
	return &res, true
}

func (c *RedisIdem) PutResult(ctx context.Context, externalID string, res *Result) {
	b, err := json.Marshal(res)
	if err != nil {
		return
	}
	_ = c.Client.Set(ctx, fmt.Sprintf(redisx.KeyIdemCheckout, externalID), b, redisx.TTLIdempotency).Err()
}
