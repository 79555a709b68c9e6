package lock

import (
	"context"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/config"
)

const redisKeyPrefix = "ledger:lock:"

// Redis is a Locker shared by every replica pointing at the same redis.
type Redis struct {
	rs  *redsync.Redsync
	cfg config.LockConfig
	log *zap.SugaredLogger
}

func NewRedis(rdb *redis.Client, cfg config.LockConfig, l *zap.SugaredLogger) *Redis {
	return &Redis{rs: redsync.New(goredis.NewPool(rdb)), cfg: cfg, log: l}
}

func (r *Redis) Acquire(ctx context.Context, key string) (func(), error) {
	opts := []redsync.Option{}
	if r.cfg.Expiry > 0 {
		opts = append(opts, redsync.WithExpiry(r.cfg.Expiry))
	}
	if r.cfg.Tries > 0 {
		opts = append(opts, redsync.WithTries(r.cfg.Tries))
	}
	m := r.rs.NewMutex(redisKeyPrefix+key, opts...)
	if err := m.LockContext(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		r.log.Infow("lock busy", "key", key, "err", err)
		return nil, apperr.Wrap(apperr.KindConflict, err, "operation already in progress for %s", key)
	}
	return func() {
		if _, err := m.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			r.log.Warnw("failed to release lock", "key", key, "err", err)
		}
	}, nil
}
