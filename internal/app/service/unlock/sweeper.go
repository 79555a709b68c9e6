package unlock

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fablecast/entitlement/pkg/config"
	"github.com/fablecast/entitlement/pkg/metrics"
)

// Sweeper periodically persists due time unlocks so reporting queries see
// them without resolving every row.
type Sweeper struct {
	svc   *Service
	batch int
	log   *zap.SugaredLogger
	cron  *cron.Cron
}

func NewSweeper(lc fx.Lifecycle, svc *Service, cfg *config.Config, log *zap.SugaredLogger) (*Sweeper, error) {
	sw := &Sweeper{svc: svc, batch: cfg.Unlock.SweepBatch, log: log.With("job", "unlock_sweeper")}
	sw.cron = cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cronLogger{sw.log})))
	if _, err := sw.cron.AddFunc(cfg.Unlock.SweepCron, sw.run); err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			sw.cron.Start()
			sw.log.Infow("unlock sweeper started", "schedule", cfg.Unlock.SweepCron)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			select {
			case <-sw.cron.Stop().Done():
			case <-ctx.Done():
			}
			return nil
		},
	})
	return sw, nil
}

func (s *Sweeper) run() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if _, err := s.RunOnce(ctx); err != nil {
		s.log.Errorw("unlock sweep failed", "err", err)
	}
}

// RunOnce promotes every due row, batch by batch.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	start := time.Now()
	defer metrics.ObserveBusinessProcess("unlock", "sweep", start)
	var total int64
	for {
		n, err := s.svc.PromoteDue(ctx, s.batch)
		total += n
		if err != nil {
			return total, err
		}
		if n < int64(s.batch) || n == 0 {
			break
		}
	}
	if total > 0 {
		s.log.Infow("due unlocks promoted", "count", total)
	}
	return total, nil
}

type cronLogger struct{ l *zap.SugaredLogger }

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.l.Debugw(msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.l.Errorw(msg, append(keysAndValues, "err", err)...)
}
