// Package lock serializes operations on a logical key, either within one
// process or across replicas through redis.
package lock

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fablecast/entitlement/pkg/config"
)

// Locker hands out exclusive access to a key. A held key makes other callers
// wait up to the configured bound, after which they get a Conflict error.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

func UnlockKey(userID, chapterID uint64) string {
	return fmt.Sprintf("unlock:%d:%d", userID, chapterID)
}

func ChampionKey(userID, novelID uint64) string {
	return fmt.Sprintf("champion:%d:%d", userID, novelID)
}

func NovelKey(novelID uint64) string {
	return fmt.Sprintf("novel:%d", novelID)
}

func NewLocker(lc fx.Lifecycle, cfg *config.Config, l *zap.SugaredLogger) (Locker, error) {
	switch cfg.Lock.Backend {
	case config.LockBackendLocal, "":
		l.Infow("using in-process locker")
		return NewLocal(cfg.Lock.Wait), nil
	case config.LockBackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				if err := rdb.Ping(ctx).Err(); err != nil {
					return fmt.Errorf("failed to ping redis: %w", err)
				}
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return rdb.Close()
			},
		})
		l.Infow("using redis locker", "addr", cfg.Redis.Addr)
		return NewRedis(rdb, cfg.Lock, l), nil
	default:
		return nil, fmt.Errorf("unknown lock backend: %s", cfg.Lock.Backend)
	}
}

var Module = fx.Options(
	fx.Provide(NewLocker),
)
