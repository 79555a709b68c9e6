package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/logctx"
	"github.com/fablecast/entitlement/pkg/response"
	"github.com/fablecast/entitlement/pkg/types"
)

const (
	webhookSecretHeader = "X-Webhook-Secret"
	maxWebhookBody      = 1 << 20
)

// @Summary      Payment webhook
// @Description  Payment status callback from a provider. Card events carry {provider_ref, payment_status} and the shared secret header; Apple posts App Store Server Notifications V2.
// @Tags         Webhook
// @Accept       json
// @Produce      json
// @Param        provider path string true "card|apple"
// @Param        X-Webhook-Secret header string false "Shared secret (card)"
// @Param        payload body string true "Provider payload"
// @Success      200  {object}  handlers.RespPaymentEvent
// @Failure      401  {object}  handlers.RespError
// @Failure      404  {object}  handlers.RespError
// @Router       /api/v1/payment/webhook/{provider} [post]
func ApiPaymentWebhook(svc PaymentEventService, log *zap.SugaredLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		provider := types.PaymentProvider(c.Param("provider"))
		l := logctx.FromGin(c, log).With("provider", provider)
		if err := svc.Authenticate(provider, c.GetHeader(webhookSecretHeader)); err != nil {
			l.Warnw("webhook_rejected", "error", err)
			response.Fail(c, err)
			return
		}
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
		if err != nil {
			response.Fail(c, apperr.Validation("failed to read body"))
			return
		}
		l.Infow("webhook_received")

		out, err := svc.Handle(c.Request.Context(), provider, body)
		if err != nil {
			l.Errorw("webhook_handle_error", "error", err)
			response.Fail(c, err)
			return
		}
		l.Infow("webhook_handled", "applied", out.Applied)
		c.JSON(http.StatusOK, response.OKT(out))
	}
}

func RegisterPaymentWebhookRoutes(r gin.IRouter, svc PaymentEventService, log *zap.SugaredLogger) {
	r.POST("/webhook/:provider", ApiPaymentWebhook(svc, log))
}
