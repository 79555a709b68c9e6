package lock

import (
	"context"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/fablecast/entitlement/pkg/apperr"
)

type slot struct {
	ch   chan struct{}
	refs int
}

// Local is an in-process Locker. Slots are reference counted and dropped once
// no caller holds or waits on them.
type Local struct {
	slots *xsync.MapOf[string, *slot]
	wait  time.Duration
}

func NewLocal(wait time.Duration) *Local {
	if wait <= 0 {
		wait = 3 * time.Second
	}
	return &Local{slots: xsync.NewMapOf[string, *slot](), wait: wait}
}

func (l *Local) Acquire(ctx context.Context, key string) (func(), error) {
	s, _ := l.slots.Compute(key, func(old *slot, loaded bool) (*slot, bool) {
		if !loaded {
			old = &slot{ch: make(chan struct{}, 1)}
		}
		old.refs++
		return old, false
	})

	timer := time.NewTimer(l.wait)
	defer timer.Stop()
	select {
	case s.ch <- struct{}{}:
		return func() {
			<-s.ch
			l.unref(key)
		}, nil
	case <-ctx.Done():
		l.unref(key)
		return nil, ctx.Err()
	case <-timer.C:
		l.unref(key)
		return nil, apperr.Conflict("operation already in progress for %s", key)
	}
}

func (l *Local) unref(key string) {
	l.slots.Compute(key, func(old *slot, loaded bool) (*slot, bool) {
		if !loaded {
			return old, true
		}
		old.refs--
		return old, old.refs <= 0
	})
}

// Len reports how many keys are currently tracked.
func (l *Local) Len() int { return l.slots.Size() }
