// Package purchase verifies Karma pack purchases made through a payment
// provider and credits the wallet at most once per provider transaction.
package purchase

import (
	"context"
	"errors"
	"fmt"

	"github.com/awa/go-iap/appstore/api"
	"go.uber.org/fx"
	"go.uber.org/zap"

	notificationlog "github.com/fablecast/entitlement/internal/app/service/notification_log"
	"github.com/fablecast/entitlement/internal/app/service/wallet"
	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/internal/platform/apple/apple_iap"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/config"
	"github.com/fablecast/entitlement/pkg/logctx"
	"github.com/fablecast/entitlement/pkg/types"
)

// ErrDuplicatePurchase is returned when a provider transaction was already
// credited.
var ErrDuplicatePurchase = apperr.Conflict("purchase already credited")

// AppleStore is the part of the App Store Server API client used here.
type AppleStore interface {
	GetTransactionInfo(ctx context.Context, transactionID string) (*api.TransactionInfoResponse, error)
	ParseSignedTransaction(transaction string) (*api.JWSTransaction, error)
}

type Crediter interface {
	Credit(ctx context.Context, userID uint64, amount int64, reason types.KarmaTransactionType, meta *wallet.Meta) (*wallet.Result, error)
}

type Request struct {
	ProviderID    types.PaymentProvider `json:"provider_id" binding:"required"`
	TransactionID string                `json:"transaction_id" binding:"required"`
}

type Result struct {
	PackID        string `json:"pack_id"`
	TransactionID string `json:"transaction_id"`
	Karma         int64  `json:"karma"`
	NewBalance    int64  `json:"new_balance"`
	TxnID         string `json:"txn_id"`
}

type Service struct {
	cfg    *config.Config
	apple  AppleStore
	wallet Crediter
	notif  notificationlog.Saver
	log    *zap.SugaredLogger
}

func New(cfg *config.Config, wl *wallet.Service, notif *notificationlog.Service, log *zap.SugaredLogger) (*Service, error) {
	client, err := apple_iap.NewStoreClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create apple iap client: %w", err)
	}
	return NewWith(cfg, client, wl, notif, log), nil
}

func NewWith(cfg *config.Config, apple AppleStore, wl Crediter, notif notificationlog.Saver, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, apple: apple, wallet: wl, notif: notif, log: log}
}

// VerifyPurchase checks a provider transaction belongs to userID and credits
// the matching Karma pack.
func (s *Service) VerifyPurchase(ctx context.Context, userID uint64, req *Request) (*Result, error) {
	if userID == 0 {
		return nil, apperr.Unauthorized("missing user")
	}
	if req == nil || req.TransactionID == "" {
		return nil, apperr.Validation("transaction_id is required")
	}
	switch req.ProviderID {
	case types.PaymentProviderApple:
		return s.verifyApple(ctx, userID, req)
	default:
		return nil, apperr.Validation("unsupported provider: %s", req.ProviderID)
	}
}

func (s *Service) verifyApple(ctx context.Context, userID uint64, req *Request) (res *Result, retErr error) {
	log := logctx.FromCtx(ctx, s.log)

	attempt := notificationlog.Begin(ctx, s.notif, models.PaymentNotificationKindKarmaPurchase, string(types.PaymentProviderApple), req)
	attempt.SetUserID(userID)
	attempt.SetTransactionID(req.TransactionID)
	var txInfo *api.JWSTransaction
	defer func() {
		attempt.Finish(ctx, map[string]any{"purchase": res, "transaction_info": txInfo}, retErr)
	}()

	infoResp, err := s.apple.GetTransactionInfo(ctx, req.TransactionID)
	if err != nil {
		return nil, apperr.Upstream(err, "failed to get transaction info")
	}
	txInfo, err = s.apple.ParseSignedTransaction(infoResp.SignedTransactionInfo)
	if err != nil {
		return nil, apperr.Upstream(err, "failed to parse signed transaction")
	}

	if s.cfg.AppleIAP.IsProd && txInfo.Environment != api.Production {
		return nil, apperr.Validation("transaction is not in production environment")
	}
	if txInfo.Type != api.Consumable {
		return nil, apperr.Validation("unsupported transaction type: %s", txInfo.Type)
	}
	if txInfo.RevocationDate > 0 {
		return nil, apperr.Validation("transaction %s was revoked", txInfo.TransactionID)
	}

	pack, err := s.cfg.GetKarmaPackByProviderItemID(types.PaymentProviderApple, txInfo.ProductID)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindNotFound, err, "no karma pack for product %s", txInfo.ProductID)
	}

	if txInfo.AppAccountToken == "" {
		return nil, apperr.Validation("app account token is empty")
	}
	owner, err := apple_iap.UserFromAccountToken(txInfo.AppAccountToken)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "failed to decode app account token")
	}
	if owner != userID {
		return nil, apperr.Forbidden("transaction belongs to another user")
	}

	qty := max(int64(txInfo.Quantity), 1)
	amount := pack.Karma * qty
	provider := string(types.PaymentProviderApple)
	ref := txInfo.TransactionID
	credited, err := s.wallet.Credit(ctx, userID, amount, types.KarmaTransactionTypePurchase, &wallet.Meta{
		Description: fmt.Sprintf("Karma pack %s x%d", pack.ID, qty),
		Provider:    &provider,
		ProviderRef: &ref,
	})
	if err != nil {
		if errors.Is(err, apperr.ErrConflict) {
			log.Infow("duplicate_karma_purchase", "transaction_id", ref)
			return nil, fmt.Errorf("%w: %s", ErrDuplicatePurchase, ref)
		}
		return nil, err
	}

	log.Infow("karma_pack_credited", "transaction_id", ref, "pack_id", pack.ID, "karma", amount)
	return &Result{
		PackID:        pack.ID,
		TransactionID: ref,
		Karma:         amount,
		NewBalance:    credited.NewBalance,
		TxnID:         credited.TxnID,
	}, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
