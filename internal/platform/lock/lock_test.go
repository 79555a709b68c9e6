package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/config"
)

func TestLocal_SerializesSameKey(t *testing.T) {
	l := NewLocal(time.Second)
	var inside, maxInside atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background(), "k")
			if !assert.NoError(t, err) {
				return
			}
			n := inside.Add(1)
			for {
				m := maxInside.Load()
				if n <= m || maxInside.CompareAndSwap(m, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			release()
		}()
	}
	wg.Wait()
	require.Equal(t, int32(1), maxInside.Load())
	require.Zero(t, l.Len())
}

func TestLocal_TimesOutWithConflict(t *testing.T) {
	l := NewLocal(20 * time.Millisecond)
	release, err := l.Acquire(context.Background(), UnlockKey(1, 2))
	require.NoError(t, err)
	defer release()

	_, err = l.Acquire(context.Background(), UnlockKey(1, 2))
	require.True(t, errors.Is(err, apperr.ErrConflict))

	other, err := l.Acquire(context.Background(), UnlockKey(1, 3))
	require.NoError(t, err)
	other()
}

func TestLocal_ContextCancelled(t *testing.T) {
	l := NewLocal(time.Second)
	release, err := l.Acquire(context.Background(), "k")
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = l.Acquire(ctx, "k")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRedis_AcquireRelease(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	r := NewRedis(rdb, config.LockConfig{Expiry: 5 * time.Second, Tries: 1}, zap.NewNop().Sugar())
	key := ChampionKey(7, 9)

	release, err := r.Acquire(context.Background(), key)
	require.NoError(t, err)
	require.True(t, mr.Exists(redisKeyPrefix+key))

	_, err = r.Acquire(context.Background(), key)
	require.True(t, errors.Is(err, apperr.ErrConflict))

	release()
	require.False(t, mr.Exists(redisKeyPrefix+key))

	again, err := r.Acquire(context.Background(), key)
	require.NoError(t, err)
	again()
}

func TestKeys(t *testing.T) {
	require.Equal(t, "unlock:1:2", UnlockKey(1, 2))
	require.Equal(t, "champion:3:4", ChampionKey(3, 4))
	require.Equal(t, "novel:5", NovelKey(5))
}
