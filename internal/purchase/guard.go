package purchase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/ledgermart/internal/items"
	"github.com/angelmondragon/ledgermart/pkg/logger"
	"github.com/angelmondragon/ledgermart/pkg/redis"
)

const defaultGuardTTL = 15 * time.Minute

// Guard admits at most one in-flight attempt per item. release must be called
// exactly once when ok is true.
type Guard interface {
	Acquire(ctx context.Context, id items.ID) (release func(context.Context), ok bool)
}

// localGuard scopes the slot to this process.
type localGuard struct {
	mu       sync.Mutex
	inFlight map[items.ID]struct{}
}

// NewLocalGuard returns an in-process per-item guard.
func NewLocalGuard() Guard {
	return &localGuard{inFlight: map[items.ID]struct{}{}}
}

func (g *localGuard) Acquire(_ context.Context, id items.ID) (func(context.Context), bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, busy := g.inFlight[id]; busy {
		return nil, false
	}
	g.inFlight[id] = struct{}{}
	return func(context.Context) {
		g.mu.Lock()
		delete(g.inFlight, id)
		g.mu.Unlock()
	}, true
}

type lockStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
	InFlightKey(itemID string) string
}

// redisGuard extends the slot to every replica sharing the Redis instance. It
// layers on top of a local guard and fails open on Redis errors.
type redisGuard struct {
	local Guard
	store lockStore
	ttl   time.Duration
	logg  *logger.Logger
}

// NewRedisGuard chains a Redis SETNX slot after the local guard.
func NewRedisGuard(local Guard, store lockStore, ttl time.Duration, logg *logger.Logger) (Guard, error) {
	if store == nil {
		return nil, errors.New("redis store required for guard")
	}
	if local == nil {
		local = NewLocalGuard()
	}
	if ttl <= 0 {
		ttl = defaultGuardTTL
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &redisGuard{local: local, store: store, ttl: ttl, logg: logg}, nil
}

func (g *redisGuard) Acquire(ctx context.Context, id items.ID) (func(context.Context), bool) {
	releaseLocal, ok := g.local.Acquire(ctx, id)
	if !ok {
		return nil, false
	}

	key := g.store.InFlightKey(id.String())
	owner := uuid.NewString()
	acquired, err := g.store.SetNX(ctx, key, owner, g.ttl)
	if err != nil {
		g.logg.Warn(g.logg.WithFields(ctx, map[string]any{"item_id": id.String(), "error": err.Error()}), "distributed purchase guard unavailable")
		return releaseLocal, true
	}
	if !acquired {
		releaseLocal(ctx)
		return nil, false
	}

	return func(ctx context.Context) {
		if err := g.releaseKey(ctx, key, owner); err != nil {
			g.logg.Warn(g.logg.WithFields(ctx, map[string]any{"item_id": id.String(), "error": err.Error()}), "distributed purchase guard release failed")
		}
		releaseLocal(ctx)
	}, true
}

// releaseKey deletes the key only while this guard still owns it.
func (g *redisGuard) releaseKey(ctx context.Context, key, owner string) error {
	value, err := g.store.Get(ctx, key)
	if err != nil {
		if redis.IsNil(err) {
			return nil
		}
		return fmt.Errorf("read guard owner: %w", err)
	}
	if value != owner {
		return nil
	}
	if err := g.store.Del(ctx, key); err != nil {
		return fmt.Errorf("delete guard: %w", err)
	}
	return nil
}
