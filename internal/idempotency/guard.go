package idempotency

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/loyalty/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const keyInFlight = "redemption:inflight:%s:%s"

// InFlightGuard marks a (user, key) redemption as running across instances.
// A nil guard admits every caller and leaves exclusion to the ledger's unique index.
type InFlightGuard struct {
	locker *locker
	cfg    *config.RedemptionConfigHolder
	log    *zap.Logger
}

// Release frees the marker; it is a no-op for callers that never held it.
type Release func(ctx context.Context)

func NewInFlightGuard(client redis.Cmdable, cfg *config.RedemptionConfigHolder, log *zap.Logger) *InFlightGuard {
	if client == nil {
		return nil
	}
	return &InFlightGuard{
		locker: newLocker(client),
		cfg:    cfg,
		log:    log.Named("idempotency.guard"),
	}
}

func (g *InFlightGuard) Enabled() bool {
	return g != nil && g.locker != nil
}

// Acquire reports whether the caller owns the in-flight marker. Redis errors
// fail open: the database transaction still enforces exactly-once.
func (g *InFlightGuard) Acquire(ctx context.Context, userID snowflake.ID, key string) (bool, Release) {
	noop := func(context.Context) {}
	if !g.Enabled() {
		return true, noop
	}

	lockKey := InFlightKey(userID, key)
	token, ok, err := g.locker.tryLock(ctx, lockKey, g.cfg.Get().InFlightLockTTL())
	if err != nil {
		g.log.Warn("in-flight lock unavailable", zap.Error(err), zap.String("user_id", userID.String()))
		return true, noop
	}
	if !ok {
		return false, noop
	}
	return true, func(ctx context.Context) {
		if err := g.locker.release(context.WithoutCancel(ctx), lockKey, token); err != nil {
			g.log.Warn("release in-flight lock", zap.Error(err), zap.String("user_id", userID.String()))
		}
	}
}

func InFlightKey(userID snowflake.ID, key string) string {
	return fmt.Sprintf(keyInFlight, userID.String(), strings.TrimSpace(key))
}

type redisParams struct {
	fx.In

	Cfg config.Config
	Lc  fx.Lifecycle
	Log *zap.Logger
}

// NewRedisClient returns nil when redis is not configured.
func NewRedisClient(p redisParams) (redis.Cmdable, error) {
	if !p.Cfg.Redis.Enabled {
		return nil, nil
	}
	addr := strings.TrimSpace(p.Cfg.Redis.Addr)
	if addr == "" {
		return nil, fmt.Errorf("redis addr is required when redis is enabled")
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: p.Cfg.Redis.Password,
		DB:       p.Cfg.Redis.DB,
	})
	p.Lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		},
		OnStop: func(ctx context.Context) error {
			p.Log.Info("closing redis client")
			return client.Close()
		},
	})
	return client, nil
}
