package gormlog

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func TestShortCaller(t *testing.T) {
	require.Equal(t, "internal/app/service/wallet/wallet.go:88", shortCaller("/home/ci/src/internal/app/service/wallet/wallet.go:88"))
	require.Equal(t, "pkg/x/y.go:12", shortCaller(`C:/repo/project/pkg/x/y.go:12`))
	require.Equal(t, "a/b/c.go:3", shortCaller("/opt/a/b/c.go:3"))
	require.Equal(t, "", shortCaller(""))
}

func TestParseLevel(t *testing.T) {
	require.Equal(t, gormlogger.Silent, ParseLevel("silent"))
	require.Equal(t, gormlogger.Info, ParseLevel("INFO"))
	require.Equal(t, gormlogger.Warn, ParseLevel(""))
}

func TestTrace_SkipsRecordNotFoundAndLogsErrors(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	l := New(zap.New(core).Sugar(), Options{Level: "warn"})

	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "SELECT 1", 0 }, gorm.ErrRecordNotFound)
	require.Equal(t, 0, logs.Len())

	l.Trace(context.Background(), time.Now(), func() (string, int64) { return "UPDATE users", 0 }, errors.New("boom"))
	require.Equal(t, 1, logs.Len())
	require.Equal(t, "gorm_trace", logs.All()[0].Message)

	l.Trace(context.Background(), time.Now().Add(-time.Second), func() (string, int64) { return "SELECT slow", 1 }, nil)
	require.Equal(t, "gorm_slow", logs.All()[1].Message)
}
