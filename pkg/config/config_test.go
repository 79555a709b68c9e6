package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fablecast/entitlement/pkg/types"
)

const sampleYAML = `
env: prod
database:
  driver: sqlite
  dsn: file:ledger.db
champion:
  min_approved_chapters: 80
  payment_methods: [card]
karma_packs:
  - id: pack_100
    provider_id: apple
    provider_item_id: com.fablecast.karma.100
    karma: 100
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o600))
	return p
}

func TestNew_FileAndDefaults(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", writeConfig(t, sampleYAML))

	c, err := New()
	require.NoError(t, err)
	require.Equal(t, EnvProd, c.Env)
	require.Equal(t, DBDriverSQLite, c.Database.Driver)
	require.Equal(t, 80, c.Champion.MinApprovedChapters)
	require.Equal(t, 50, c.Champion.AdvanceBuffer)
	require.Equal(t, 1, c.Champion.TermMonths)
	require.Equal(t, LockBackendLocal, c.Lock.Backend)
	require.Equal(t, 3*time.Second, c.Lock.Wait)
	require.True(t, c.PaymentMethodAllowed("card"))
	require.False(t, c.PaymentMethodAllowed("paypal"))

	pack, err := c.GetKarmaPackByProviderItemID(types.PaymentProviderApple, "com.fablecast.karma.100")
	require.NoError(t, err)
	require.Equal(t, int64(100), pack.Karma)
	require.Same(t, pack, c.GetKarmaPackByID("pack_100"))

	_, err = c.GetKarmaPackByProviderItemID(types.PaymentProviderApple, "missing")
	require.Error(t, err)
}

func TestNew_EnvOverridesFile(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", writeConfig(t, sampleYAML))
	t.Setenv("APP_CHAMPION_ADVANCE_BUFFER", "10")

	c, err := New()
	require.NoError(t, err)
	require.Equal(t, 10, c.Champion.AdvanceBuffer)
}

func TestNew_RejectsInvalidPack(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", writeConfig(t, `
karma_packs:
  - id: broken
    provider_id: apple
    provider_item_id: x
    karma: 0
`))

	_, err := New()
	require.Error(t, err)
}

func TestDefault(t *testing.T) {
	c := Default()
	require.Equal(t, 100, c.Champion.MinApprovedChapters)
	require.Equal(t, "USD", c.Champion.DefaultCurrency)
	require.Equal(t, 500, c.Unlock.SweepBatch)
	require.Equal(t, 24*time.Hour, c.Unlock.WaitForFree)
}

func TestNew_RejectsNonPositiveWait(t *testing.T) {
	t.Setenv("APP_CONFIG_FILE", writeConfig(t, sampleYAML))
	t.Setenv("APP_UNLOCK_WAIT_FOR_FREE", "0s")

	_, err := New()
	require.Error(t, err)
}
