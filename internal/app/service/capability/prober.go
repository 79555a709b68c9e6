// Package capability detects which optional columns a deployment's schema
// carries. A table's column set is cached once it has been read successfully;
// failed lookups are returned to the caller and retried next time.
package capability

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/fablecast/entitlement/internal/models"
)

const warmTimeout = 10 * time.Second

type Prober struct {
	db    *gorm.DB
	log   *zap.SugaredLogger
	cache *xsync.MapOf[string, map[string]struct{}]
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Prober {
	return &Prober{db: db, log: log, cache: xsync.NewMapOf[string, map[string]struct{}]()}
}

// columns returns the column set of table. Only a successful read is cached.
func (p *Prober) columns(ctx context.Context, table string) (map[string]struct{}, error) {
	if cols, ok := p.cache.Load(table); ok {
		return cols, nil
	}
	cts, err := p.db.WithContext(ctx).Migrator().ColumnTypes(table)
	if err != nil {
		return nil, fmt.Errorf("failed to read columns of %s: %w", table, err)
	}
	if len(cts) == 0 {
		return nil, fmt.Errorf("failed to read columns of %s: table not found", table)
	}
	cols := make(map[string]struct{}, len(cts))
	for _, ct := range cts {
		cols[strings.ToLower(ct.Name())] = struct{}{}
	}
	p.cache.Store(table, cols)
	return cols, nil
}

// Has reports whether table carries column.
func (p *Prober) Has(ctx context.Context, table, column string) (bool, error) {
	cols, err := p.columns(ctx, table)
	if err != nil {
		return false, err
	}
	_, ok := cols[strings.ToLower(column)]
	return ok, nil
}

// Column returns column for use in a SELECT list, or a NULL placeholder
// aliased to the same name when the column does not exist.
func (p *Prober) Column(ctx context.Context, table, column string) (string, error) {
	ok, err := p.Has(ctx, table, column)
	if err != nil {
		return "", err
	}
	if ok {
		return fmt.Sprintf("%s.%s", table, column), nil
	}
	return "NULL AS " + column, nil
}

// Missing filters columns down to those absent from table.
func (p *Prober) Missing(ctx context.Context, table string, columns ...string) ([]string, error) {
	cols, err := p.columns(ctx, table)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, c := range columns {
		if _, ok := cols[strings.ToLower(c)]; !ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// ChampionTransactionOptional lists the champion_transactions columns older
// deployments may lack.
func ChampionTransactionOptional() []string {
	return []string{
		models.ColumnProviderRef,
		models.ColumnCurrency,
		models.ColumnMembershipBefore,
		models.ColumnMembershipAfter,
	}
}

// Warm reads every table with optional columns and logs what is missing.
func (p *Prober) Warm(ctx context.Context) error {
	table := (models.ChampionTransaction{}).TableName()
	missing, err := p.Missing(ctx, table, ChampionTransactionOptional()...)
	if err != nil {
		return err
	}
	if len(missing) > 0 {
		p.log.Warnw("optional columns missing, degrading to NULL", "table", table, "columns", missing)
	}
	return nil
}

// Refresh drops cached answers, e.g. after a migration ran.
func (p *Prober) Refresh() {
	p.cache.Clear()
}

func register(lc fx.Lifecycle, p *Prober) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), warmTimeout)
			defer cancel()
			return p.Warm(ctx)
		},
	})
}

var Module = fx.Options(
	fx.Provide(New),
	fx.Invoke(register),
)
