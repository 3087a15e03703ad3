package items

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/angelmondragon/ledgermart/pkg/redis"
	"github.com/angelmondragon/ledgermart/pkg/types"
)

// Cache stores raw ledger records per cache generation.
type Cache interface {
	Get(ctx context.Context, generation uint64, id ID) (*RawRecord, error)
	Set(ctx context.Context, generation uint64, id ID, raw *RawRecord) error
	Delete(ctx context.Context, generation uint64, id ID) error
}

type redisStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	ItemKey(generation, itemID string) string
}

// RedisCache keeps raw records in Redis as JSON with a short TTL.
type RedisCache struct {
	store redisStore
	ttl   time.Duration
}

// NewRedisCache wires a Redis-backed cache.
func NewRedisCache(store redisStore, ttl time.Duration) *RedisCache {
	return &RedisCache{store: store, ttl: ttl}
}

type cachedRecord struct {
	Owner       string `json:"owner"`
	Name        string `json:"name"`
	ImageRef    string `json:"image"`
	Description string `json:"description"`
	Location    string `json:"location"`
	Price       string `json:"price"`
	SoldCount   string `json:"sold"`
}

// Get returns nil without error on a cache miss.
func (c *RedisCache) Get(ctx context.Context, generation uint64, id ID) (*RawRecord, error) {
	value, err := c.store.Get(ctx, c.key(generation, id))
	if err != nil {
		if redis.IsNil(err) {
			return nil, nil
		}
		return nil, err
	}

	var rec cachedRecord
	if err := json.Unmarshal([]byte(value), &rec); err != nil {
		return nil, fmt.Errorf("decode cached item %s: %w", id, err)
	}
	price, ok := new(big.Int).SetString(rec.Price, 10)
	if !ok {
		return nil, fmt.Errorf("decode cached item %s: bad price %q", id, rec.Price)
	}
	sold, ok := new(big.Int).SetString(rec.SoldCount, 10)
	if !ok {
		return nil, fmt.Errorf("decode cached item %s: bad sold count %q", id, rec.SoldCount)
	}
	return &RawRecord{
		Owner:       types.Identity(rec.Owner),
		Name:        rec.Name,
		ImageRef:    rec.ImageRef,
		Description: rec.Description,
		Location:    rec.Location,
		Price:       price,
		SoldCount:   sold,
	}, nil
}

func (c *RedisCache) Set(ctx context.Context, generation uint64, id ID, raw *RawRecord) error {
	if raw == nil {
		return nil
	}
	payload, err := json.Marshal(cachedRecord{
		Owner:       raw.Owner.String(),
		Name:        raw.Name,
		ImageRef:    raw.ImageRef,
		Description: raw.Description,
		Location:    raw.Location,
		Price:       bigString(raw.Price),
		SoldCount:   bigString(raw.SoldCount),
	})
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.key(generation, id), string(payload), c.ttl)
}

func (c *RedisCache) Delete(ctx context.Context, generation uint64, id ID) error {
	return c.store.Del(ctx, c.key(generation, id))
}

func (c *RedisCache) key(generation uint64, id ID) string {
	return c.store.ItemKey(strconv.FormatUint(generation, 10), id.String())
}

func bigString(value *big.Int) string {
	if value == nil {
		return "0"
	}
	return value.String()
}
