package redis

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const dedupKeyPrefix = "payment_event:"

// DefaultDedupTTL bounds how long a gateway transaction reference is
// remembered. Replays beyond it still hit the database's conditional write,
// which stays authoritative.
const DefaultDedupTTL = 24 * time.Hour

// Dedup is a fast-path guard against duplicate webhook deliveries, keyed by
// the gateway transaction reference.
type Dedup struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewDedup(client *redis.Client, ttl time.Duration) *Dedup {
	if ttl <= 0 {
		ttl = DefaultDedupTTL
	}
	return &Dedup{Client: client, TTL: ttl}
}

// FirstDelivery atomically records the transaction reference and reports
// whether this is the first time it was seen.
func (d *Dedup) FirstDelivery(transactionRef string) (bool, error) {
	key := dedupKeyPrefix + transactionRef
	return d.Client.SetNX(context.Background(), key, "1", d.TTL).Result()
}

// Forget drops a recorded reference so a delivery can be reprocessed, e.g.
// after the guarded write failed for a transient reason.
func (d *Dedup) Forget(transactionRef string) error {
	key := dedupKeyPrefix + transactionRef
	return d.Client.Del(context.Background(), key).Err()
}
