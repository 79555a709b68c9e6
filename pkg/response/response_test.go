package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/fablecast/entitlement/pkg/apperr"
)

func TestCodeForStatus(t *testing.T) {
	require.Equal(t, APIResponseCodeInsufficientKarma, CodeForStatus(http.StatusPaymentRequired))
	require.Equal(t, APIResponseCodeBadRequest, CodeForStatus(http.StatusTeapot))
	require.Equal(t, APIResponseCodeError, CodeForStatus(http.StatusBadGateway))
}

func TestFail(t *testing.T) {
	gin.SetMode(gin.TestMode)

	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Fail(c, apperr.InsufficientKarma("balance 10 is below cost 30"))
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	require.True(t, c.IsAborted())

	var body APIResponse[ErrorData]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, APIResponseCodeInsufficientKarma, body.Code)
	require.Equal(t, apperr.KindInsufficientKarma, body.Data.Kind)
	require.Equal(t, "balance 10 is below cost 30", body.Data.Detail)

	w = httptest.NewRecorder()
	c, _ = gin.CreateTestContext(w)
	Fail(c, apperr.Upstream(errors.New("dial tcp 10.0.0.1:5432"), "load user"))
	require.Equal(t, http.StatusInternalServerError, w.Code)
	require.NotContains(t, w.Body.String(), "10.0.0.1")
}
