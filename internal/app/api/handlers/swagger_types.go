package handlers

import (
	"github.com/fablecast/entitlement/internal/app/service/billing"
	"github.com/fablecast/entitlement/internal/app/service/champion"
	"github.com/fablecast/entitlement/internal/app/service/entitlement"
	"github.com/fablecast/entitlement/internal/app/service/paymentevent"
	"github.com/fablecast/entitlement/internal/app/service/purchase"
	"github.com/fablecast/entitlement/internal/app/service/statistics"
	"github.com/fablecast/entitlement/internal/app/service/unlock"
	"github.com/fablecast/entitlement/internal/app/service/wallet"
	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/pkg/response"
)

// The Resp* types mirror response.APIResponse[T] for swag, which cannot
// render generic envelopes.

// RespOK is a generic OK envelope for endpoints returning no specific data.
type RespOK struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    interface{}              `json:"data"`
}

// RespError is the envelope of every non-2xx response.
type RespError struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    response.ErrorData       `json:"data"`
}

type RespVisibility struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    entitlement.Visibility   `json:"data"`
}

type RespListChapters struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    ListChaptersResponse     `json:"data"`
}

type RespDecision struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    entitlement.Decision     `json:"data"`
}

type RespTiers struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    []models.ChampionTier    `json:"data"`
}

type RespTier struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.ChampionTier      `json:"data"`
}

type RespSubscribe struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    champion.SubscribeResult `json:"data"`
}

type RespEligibility struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    champion.Eligibility     `json:"data"`
}

type RespConsume struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    unlock.ConsumeResult     `json:"data"`
}

type RespUnlock struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    models.ChapterUnlock     `json:"data"`
}

type RespBalance struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    BalanceResponse          `json:"data"`
}

type RespKarmaHistory struct {
	Code    response.APIResponseCode  `json:"code"`
	Message string                    `json:"message"`
	Data    []models.KarmaTransaction `json:"data"`
}

type RespPurchase struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    purchase.Result          `json:"data"`
}

type RespCredit struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    wallet.Result            `json:"data"`
}

type RespReconciliation struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    wallet.Reconciliation    `json:"data"`
}

type RespBillingPage struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    billing.Page             `json:"data"`
}

type RespPaymentEvent struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    paymentevent.Outcome     `json:"data"`
}

type RespLedgerStatistic struct {
	Code    response.APIResponseCode     `json:"code"`
	Message string                       `json:"message"`
	Data    statistics.StatisticResponse `json:"data"`
}

type RespNotificationLogs struct {
	Code    response.APIResponseCode        `json:"code"`
	Message string                          `json:"message"`
	Data    []models.PaymentNotificationLog `json:"data"`
}
