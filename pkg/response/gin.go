package response

import (
	"github.com/gin-gonic/gin"

	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/metrics"
)

// ErrorData is the payload of an error envelope.
type ErrorData struct {
	Kind   apperr.Kind `json:"kind"`
	Detail string      `json:"detail,omitempty"`
}

// Fail aborts c with the HTTP status and envelope code of err's kind.
// Upstream failures do not leak their cause to the client.
func Fail(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	data := ErrorData{Kind: apperr.KindOf(err)}
	if e := apperr.Get(err); e != nil && e.Kind != apperr.KindUpstream {
		data.Detail = e.Message
	}
	metrics.CountFailure(string(data.Kind))
	c.AbortWithStatusJSON(status, ErrorT(CodeForStatus(status), data))
}
