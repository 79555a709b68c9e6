// Package paymentevent applies provider payment callbacks (refunds, failed
// charges) to Champion transactions.
package paymentevent

import (
	"context"
	"crypto/subtle"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fablecast/entitlement/internal/app/service/champion"
	notificationlog "github.com/fablecast/entitlement/internal/app/service/notification_log"
	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/config"
	"github.com/fablecast/entitlement/pkg/logctx"
	"github.com/fablecast/entitlement/pkg/types"
)

type StatusApplier interface {
	ApplyPaymentStatus(ctx context.Context, providerRef string, status types.TransactionStatus) (*models.ChampionTransaction, error)
}

// Outcome reports what a callback changed. Applied is false for events that
// carry no payment status change.
type Outcome struct {
	Provider      types.PaymentProvider   `json:"provider"`
	ProviderRef   string                  `json:"provider_ref"`
	PaymentStatus types.TransactionStatus `json:"payment_status,omitempty"`
	Applied       bool                    `json:"applied"`
	TransactionID string                  `json:"transaction_id,omitempty"`
}

type Service struct {
	cfg     *config.Config
	applier StatusApplier
	notif   notificationlog.Saver
	log     *zap.SugaredLogger
	now     func() time.Time
}

func New(cfg *config.Config, ch *champion.Service, notif *notificationlog.Service, log *zap.SugaredLogger) *Service {
	return NewWith(cfg, ch, notif, log)
}

func NewWith(cfg *config.Config, applier StatusApplier, notif notificationlog.Saver, log *zap.SugaredLogger) *Service {
	return &Service{cfg: cfg, applier: applier, notif: notif, log: log, now: func() time.Time { return time.Now().UTC() }}
}

// Authenticate checks the shared secret sent by providers that do not sign
// their payloads. Apple notifications are verified by their certificate
// chain instead.
func (s *Service) Authenticate(provider types.PaymentProvider, secret string) error {
	if provider == types.PaymentProviderApple {
		return nil
	}
	want := s.cfg.Webhook.Secret
	if want == "" {
		return apperr.Unauthorized("webhook secret is not configured")
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(secret)) != 1 {
		return apperr.Unauthorized("invalid webhook secret")
	}
	return nil
}

// Handle parses a provider callback and applies its payment status.
func (s *Service) Handle(ctx context.Context, provider types.PaymentProvider, body []byte) (*Outcome, error) {
	parser, err := NewParser(provider, body, s.now())
	if err != nil {
		return nil, err
	}
	return s.handle(ctx, parser)
}

func (s *Service) handle(ctx context.Context, parser Parser) (out *Outcome, retErr error) {
	log := logctx.FromCtx(ctx, s.log)
	provider := parser.GetProvider(ctx)
	ref := parser.GetProviderRef(ctx)

	attempt := notificationlog.Begin(ctx, s.notif, models.PaymentNotificationKindPaymentEvent, string(provider), parser.GetData(ctx))
	attempt.SetTransactionID(ref)
	defer func() { attempt.Finish(ctx, out, retErr) }()

	out = &Outcome{Provider: provider, ProviderRef: ref}
	status, ok := parser.GetPaymentStatus(ctx)
	if !ok {
		log.Infow("payment_event_ignored", "provider", provider, "provider_ref", ref)
		return out, nil
	}
	out.PaymentStatus = status

	txn, err := s.applier.ApplyPaymentStatus(ctx, ref, status)
	if err != nil {
		log.Errorw("failed to apply payment event", "provider", provider, "provider_ref", ref, "error", err)
		return nil, err
	}
	out.Applied = true
	out.TransactionID = txn.ID
	attempt.SetUserID(txn.UserID)
	return out, nil
}

var Module = fx.Options(
	fx.Provide(New),
)
