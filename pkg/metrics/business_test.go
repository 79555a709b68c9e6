package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

func TestObserveBusinessProcess(t *testing.T) {
	ObserveBusinessProcess("wallet", "debit", time.Now().Add(-30*time.Millisecond))
	ObserveBusinessProcess("wallet", "debit", time.Now())

	require.GreaterOrEqual(t, testutil.CollectAndCount(businessVec(), "bp_dur"), 1)
}

func TestComputeApproximateRequestSize(t *testing.T) {
	req := httptest.NewRequest("POST", "/api/v1/chapters/1/consume", strings.NewReader(`{"cost":30}`))
	req.Header.Set("Content-Type", "application/json")
	require.Greater(t, computeApproximateRequestSize(req), len(`{"cost":30}`))
}

func TestCountFailure(t *testing.T) {
	before := testutil.ToFloat64(failures().WithLabelValues("conflict"))
	CountFailure("conflict")
	require.Equal(t, before+1, testutil.ToFloat64(failures().WithLabelValues("conflict")))
}

func TestPrometheusMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	p := NewPrometheus(NewPrometheusOptions{
		Subsystem: "test",
		ReqCntURLLabelMappingFn: func(c *gin.Context) string {
			return c.FullPath()
		},
	})
	p.Use(r)
	r.GET("/chapters/:chapter_id/access", func(c *gin.Context) { c.Status(http.StatusOK) })

	for _, id := range []string{"1", "2"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/chapters/"+id+"/access", nil))
	}
	require.Equal(t, 2.0, testutil.ToFloat64(p.reqCnt.WithLabelValues("200", http.MethodGet, "/chapters/:chapter_id/access")))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "test_req_total")
}
