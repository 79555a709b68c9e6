package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fablecast/entitlement/internal/app/service/billing"
	"github.com/fablecast/entitlement/internal/app/service/champion"
	"github.com/fablecast/entitlement/internal/app/service/entitlement"
	"github.com/fablecast/entitlement/internal/app/service/paymentevent"
	"github.com/fablecast/entitlement/internal/app/service/purchase"
	"github.com/fablecast/entitlement/internal/app/service/statistics"
	"github.com/fablecast/entitlement/internal/app/service/unlock"
	"github.com/fablecast/entitlement/internal/app/service/wallet"
	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/logctx"
	"github.com/fablecast/entitlement/pkg/response"
	"github.com/fablecast/entitlement/pkg/types"
)

type stubEntitlement struct {
	decision *entitlement.Decision
	err      error
}

func (s *stubEntitlement) ResolveVisibility(context.Context, uint64, uint64) (*entitlement.Visibility, error) {
	return &entitlement.Visibility{}, s.err
}

func (s *stubEntitlement) ListVisibleChapters(context.Context, uint64, uint64) ([]*entitlement.ChapterEntry, *entitlement.Visibility, error) {
	return nil, &entitlement.Visibility{}, s.err
}

func (s *stubEntitlement) CanReadChapter(_ context.Context, _ uint64, chapterID uint64) (*entitlement.Decision, error) {
	if s.err != nil {
		return nil, s.err
	}
	d := *s.decision
	d.ChapterID = chapterID
	return &d, nil
}

type stubUnlock struct {
	err       error
	userID    uint64
	consumed  int64
	requested uint64
	scheduled *time.Time
}

func (s *stubUnlock) ConsumeKarma(_ context.Context, userID, chapterID uint64, cost int64) (*unlock.ConsumeResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.userID, s.consumed = userID, cost
	return &unlock.ConsumeResult{Charged: true, NewBalance: 100 - cost}, nil
}

func (s *stubUnlock) RequestTimeUnlock(_ context.Context, userID, chapterID uint64) (*models.ChapterUnlock, error) {
	s.requested = chapterID
	at := time.Now().Add(24 * time.Hour)
	return &models.ChapterUnlock{UserID: userID, ChapterID: chapterID, UnlockAt: &at}, s.err
}

func (s *stubUnlock) ScheduleTimeUnlock(_ context.Context, userID, chapterID uint64, at time.Time) (*models.ChapterUnlock, error) {
	s.userID, s.scheduled = userID, &at
	return &models.ChapterUnlock{UserID: userID, ChapterID: chapterID, UnlockAt: &at}, s.err
}

func (s *stubUnlock) MarkRead(context.Context, uint64, uint64) error { return s.err }

type stubWallet struct {
	credited types.KarmaTransactionType
	amount   int64
}

func (s *stubWallet) GetBalance(context.Context, uint64) (int64, error) { return 70, nil }

func (s *stubWallet) History(context.Context, uint64, int) ([]*models.KarmaTransaction, error) {
	return []*models.KarmaTransaction{}, nil
}

func (s *stubWallet) Credit(_ context.Context, _ uint64, amount int64, reason types.KarmaTransactionType, _ *wallet.Meta) (*wallet.Result, error) {
	s.credited, s.amount = reason, amount
	return &wallet.Result{NewBalance: amount}, nil
}

func (s *stubWallet) Reconcile(_ context.Context, userID uint64) (*wallet.Reconciliation, error) {
	return &wallet.Reconciliation{UserID: userID, Consistent: true}, nil
}

type stubBilling struct {
	caller uint64
	req    *billing.Request
	err    error
}

func (s *stubBilling) ListTransactions(_ context.Context, callerID uint64, req *billing.Request) (*billing.Page, error) {
	s.caller, s.req = callerID, req
	return &billing.Page{Rows: []*billing.Row{}, Page: 1, PageSize: 20}, s.err
}

type stubPurchase struct{ err error }

func (s *stubPurchase) VerifyPurchase(_ context.Context, _ uint64, req *purchase.Request) (*purchase.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &purchase.Result{TransactionID: req.TransactionID, Karma: 100}, nil
}

type stubEvents struct {
	secret  string
	handled int
}

func (s *stubEvents) Authenticate(_ types.PaymentProvider, secret string) error {
	if secret != s.secret {
		return apperr.Unauthorized("bad webhook secret")
	}
	return nil
}

func (s *stubEvents) Handle(_ context.Context, provider types.PaymentProvider, body []byte) (*paymentevent.Outcome, error) {
	s.handled++
	return &paymentevent.Outcome{Provider: provider, ProviderRef: "ref-1", Applied: true}, nil
}

type stubStats struct{}

func (stubStats) GetLedgerStatistic(_ context.Context, req *statistics.StatisticRequest) (*statistics.StatisticResponse, error) {
	if len(req.DataItems) == 0 {
		return nil, apperr.Validation("data_items is required")
	}
	return &statistics.StatisticResponse{DataItems: map[statistics.StatisticType][]statistics.StatisticResponseDataItem{}}, nil
}

// asUser mimics AuthMiddleware for the given user.
func asUser(userID uint64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if userID != 0 {
			c.Set(logctx.KeyUserID, userID)
		}
		c.Next()
	}
}

func newTestRouter(userID uint64, mount func(r gin.IRouter)) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	g := r.Group("/", asUser(userID))
	mount(g)
	return r
}

func call(r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			_ = json.NewEncoder(&buf).Encode(b)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    json.RawMessage          `json:"data"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return env
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) response.ErrorData {
	t.Helper()
	var data response.ErrorData
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &data))
	return data
}

func TestChapterAccess(t *testing.T) {
	svc := &stubEntitlement{decision: &entitlement.Decision{Allowed: false, Reason: entitlement.ReasonRequiresUnlock, UnlockPrice: 30}}
	r := newTestRouter(7, func(g gin.IRouter) { RegisterEntitlementRoutes(g, svc) })

	w := call(r, http.MethodGet, "/chapters/12/access", nil)
	require.Equal(t, http.StatusOK, w.Code)
	env := decode(t, w)
	require.Equal(t, response.APIResponseCodeOK, env.Code)
	var d entitlement.Decision
	require.NoError(t, json.Unmarshal(env.Data, &d))
	require.Equal(t, uint64(12), d.ChapterID)
	require.Equal(t, entitlement.ReasonRequiresUnlock, d.Reason)

	w = call(r, http.MethodGet, "/chapters/abc/access", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	require.Equal(t, apperr.KindValidation, decodeError(t, w).Kind)

	svc.err = apperr.NotFound("chapter 12")
	w = call(r, http.MethodGet, "/chapters/12/access", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	require.Equal(t, response.APIResponseCodeNotFound, decode(t, w).Code)
}

func TestRequiresCaller(t *testing.T) {
	r := newTestRouter(0, func(g gin.IRouter) { RegisterEntitlementRoutes(g, &stubEntitlement{}) })

	w := call(r, http.MethodGet, "/novels/1/entitlement", nil)
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Equal(t, apperr.KindUnauthorized, decodeError(t, w).Kind)
}

func TestConsumeKarma(t *testing.T) {
	svc := &stubUnlock{}
	r := newTestRouter(7, func(g gin.IRouter) { RegisterUnlockRoutes(g, svc) })

	w := call(r, http.MethodPost, "/chapters/3/consume", map[string]any{"cost": 30})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, uint64(7), svc.userID)
	require.Equal(t, int64(30), svc.consumed)

	w = call(r, http.MethodPost, "/chapters/3/consume", map[string]any{"cost": 30, "user_id": 8})
	require.Equal(t, http.StatusForbidden, w.Code)

	w = call(r, http.MethodPost, "/chapters/3/consume", "{")
	require.Equal(t, http.StatusBadRequest, w.Code)

	svc.err = apperr.InsufficientKarma("balance 10 < cost 30")
	w = call(r, http.MethodPost, "/chapters/3/consume", map[string]any{"cost": 30})
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	env := decode(t, w)
	require.Equal(t, response.APIResponseCodeInsufficientKarma, env.Code)
	require.Equal(t, "balance 10 < cost 30", decodeError(t, w).Detail)
}

func TestRequestTimeUnlock_IgnoresClientTime(t *testing.T) {
	svc := &stubUnlock{}
	r := newTestRouter(7, func(g gin.IRouter) { RegisterUnlockRoutes(g, svc) })

	w := call(r, http.MethodPost, "/chapters/3/schedule", map[string]any{"unlock_at": "2000-01-01T00:00:00Z"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, uint64(3), svc.requested)
	require.Nil(t, svc.scheduled, "reader route must not take a caller-chosen time")

	var row models.ChapterUnlock
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &row))
	require.True(t, row.UnlockAt.After(time.Now()))
}

func TestUpstreamErrorHidesDetail(t *testing.T) {
	svc := &stubUnlock{err: apperr.Upstream(errors.New("dial tcp 10.0.0.1:5432"), "load chapter")}
	r := newTestRouter(7, func(g gin.IRouter) { RegisterUnlockRoutes(g, svc) })

	w := call(r, http.MethodPost, "/chapters/3/read", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	data := decodeError(t, w)
	require.Equal(t, apperr.KindUpstream, data.Kind)
	require.Empty(t, data.Detail)
	require.NotContains(t, w.Body.String(), "10.0.0.1")
}

func TestPurchaseKarma_Duplicate(t *testing.T) {
	svc := &stubPurchase{}
	r := newTestRouter(7, func(g gin.IRouter) { RegisterKarmaRoutes(g, &stubWallet{}, svc) })

	body := map[string]any{"provider_id": "apple", "transaction_id": "2000000123"}
	w := call(r, http.MethodPost, "/karma/purchase", body)
	require.Equal(t, http.StatusOK, w.Code)

	svc.err = purchase.ErrDuplicatePurchase
	w = call(r, http.MethodPost, "/karma/purchase", body)
	require.Equal(t, http.StatusConflict, w.Code)
	require.Equal(t, apperr.KindConflict, decodeError(t, w).Kind)

	w = call(r, http.MethodGet, "/karma/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"user_id":7,"balance":70}`, string(decode(t, w).Data))

	w = call(r, http.MethodGet, "/karma/history?limit=-1", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListBillingTransactions_Query(t *testing.T) {
	svc := &stubBilling{}
	r := newTestRouter(7, func(g gin.IRouter) { RegisterBillingRoutes(g, svc) })

	w := call(r, http.MethodGet, "/billing/transactions?type=champion_new&status=completed&q=tier&from=2026-01-01&to=2026-02-01T00:00:00Z&page=2&page_size=5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, uint64(7), svc.caller)
	require.Nil(t, svc.req.UserID)
	require.Equal(t, types.LedgerTypeChampionNew, svc.req.Type)
	require.Equal(t, types.TransactionStatusCompleted, svc.req.Status)
	require.Equal(t, "tier", svc.req.Query)
	require.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), *svc.req.From)
	require.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC), *svc.req.To)
	require.Equal(t, 2, svc.req.Page)
	require.Equal(t, 5, svc.req.PageSize)

	w = call(r, http.MethodGet, "/billing/transactions?user_id=9", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, uint64(9), *svc.req.UserID)

	for _, q := range []string{"from=yesterday", "to=1/2/2026", "page=x", "user_id=-3"} {
		w = call(r, http.MethodGet, "/billing/transactions?"+q, nil)
		require.Equal(t, http.StatusBadRequest, w.Code, q)
	}

	svc.err = apperr.Forbidden("cross-user ledger access")
	w = call(r, http.MethodGet, "/billing/transactions?user_id=9", nil)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestPaymentWebhook(t *testing.T) {
	svc := &stubEvents{secret: "s3cret"}
	r := newTestRouter(0, func(g gin.IRouter) { RegisterPaymentWebhookRoutes(g, svc, zap.NewNop().Sugar()) })

	w := call(r, http.MethodPost, "/webhook/card", map[string]any{"provider_ref": "ref-1", "payment_status": "refunded"})
	require.Equal(t, http.StatusUnauthorized, w.Code)
	require.Zero(t, svc.handled)

	req := httptest.NewRequest(http.MethodPost, "/webhook/card", bytes.NewBufferString(`{"provider_ref":"ref-1","payment_status":"refunded"}`))
	req.Header.Set(webhookSecretHeader, "s3cret")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, 1, svc.handled)

	var out paymentevent.Outcome
	require.NoError(t, json.Unmarshal(decode(t, rec).Data, &out))
	require.True(t, out.Applied)
	require.Equal(t, types.PaymentProviderCard, out.Provider)
}

func TestAdminRoutes(t *testing.T) {
	wl := &stubWallet{}
	ul := &stubUnlock{}
	r := newTestRouter(1, func(g gin.IRouter) { RegisterAdminRoutes(g, stubStats{}, wl, nil, ul) })

	w := call(r, http.MethodPost, "/reward", map[string]any{"user_id": 5, "amount": 40})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, types.KarmaTransactionTypeReward, wl.credited)
	require.Equal(t, int64(40), wl.amount)

	w = call(r, http.MethodPost, "/reward", map[string]any{"user_id": 5, "amount": -4})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(r, http.MethodGet, "/reconcile/5", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, string(decode(t, w).Data), `"consistent":true`)

	w = call(r, http.MethodPost, "/get_ledger_statistic", map[string]any{"data_items": []map[string]string{{"id": "daily_unlock_count"}}})
	require.Equal(t, http.StatusOK, w.Code)

	w = call(r, http.MethodPost, "/get_ledger_statistic", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(r, http.MethodGet, "/notification_logs", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(r, http.MethodPost, "/unlocks/schedule", map[string]any{"user_id": 5, "chapter_id": 3, "unlock_at": "2026-05-01T00:00:00Z"})
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, uint64(5), ul.userID)
	require.True(t, ul.scheduled.Equal(time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)))

	w = call(r, http.MethodPost, "/unlocks/schedule", map[string]any{"user_id": 5, "chapter_id": 3})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

type stubChampion struct{ upserts int }

func (s *stubChampion) GetActiveTiers(context.Context, uint64) ([]*models.ChampionTier, error) {
	return []*models.ChampionTier{}, nil
}

func (s *stubChampion) Subscribe(context.Context, uint64, uint64, int, string, ...champion.SubscribeOption) (*champion.SubscribeResult, error) {
	return &champion.SubscribeResult{}, nil
}

func (s *stubChampion) Cancel(context.Context, uint64, uint64) (*models.ChampionSubscription, error) {
	return nil, apperr.NotFound("no active subscription")
}

func (s *stubChampion) ApplyForChampion(_ context.Context, novelID uint64) (*champion.Eligibility, error) {
	return &champion.Eligibility{NovelID: novelID, Status: types.ChampionStatusSubmitted}, nil
}

func (s *stubChampion) UpsertTier(_ context.Context, novelID uint64, in champion.TierInput) (*models.ChampionTier, error) {
	s.upserts++
	return &models.ChampionTier{NovelID: novelID, TierLevel: in.TierLevel}, nil
}

func (s *stubChampion) DeactivateTier(context.Context, uint64, int) error { return nil }

func TestChampionRoutes_WriterGate(t *testing.T) {
	svc := &stubChampion{}
	allowed := false
	writer := func(c *gin.Context) {
		if !allowed {
			response.Fail(c, apperr.Forbidden("admin only"))
			return
		}
		c.Next()
	}
	r := newTestRouter(7, func(g gin.IRouter) { RegisterChampionRoutes(g, svc, writer) })

	w := call(r, http.MethodGet, "/novels/1/tiers", nil)
	require.Equal(t, http.StatusOK, w.Code)

	tier := map[string]any{"tier_level": 1, "tier_name": "Bronze", "monthly_price": "4.99", "advance_chapters": 5}
	w = call(r, http.MethodPut, "/novels/1/tiers", tier)
	require.Equal(t, http.StatusForbidden, w.Code)
	require.Zero(t, svc.upserts)

	allowed = true
	w = call(r, http.MethodPut, "/novels/1/tiers", tier)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.Equal(t, 1, svc.upserts)

	w = call(r, http.MethodDelete, "/novels/1/tiers/zero", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(r, http.MethodPost, "/novels/1/subscribe", map[string]any{"payment_method": "card"})
	require.Equal(t, http.StatusBadRequest, w.Code)

	w = call(r, http.MethodPost, "/novels/1/subscribe/cancel", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
}

type pingerFunc func(context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthRoutes(t *testing.T) {
	var down bool
	db := pingerFunc(func(context.Context) error {
		if down {
			return errors.New("connection refused")
		}
		return nil
	})
	r := newTestRouter(0, func(g gin.IRouter) { RegisterHealthRoutes(g, db) })

	require.Equal(t, http.StatusOK, call(r, http.MethodGet, "/healthz", nil).Code)
	require.Equal(t, http.StatusOK, call(r, http.MethodGet, "/readyz", nil).Code)

	down = true
	w := call(r, http.MethodGet, "/readyz", nil)
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "refused")
}
