package paymentevent

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fablecast/entitlement/internal/platform/apple/apple_notification"
	"github.com/fablecast/entitlement/pkg/apperr"
	"github.com/fablecast/entitlement/pkg/types"
)

// Parser exposes a provider callback in provider-neutral terms.
type Parser interface {
	GetProvider(ctx context.Context) types.PaymentProvider
	GetNotificationTime(ctx context.Context) time.Time
	// GetProviderRef is the reference stored on the Champion transaction.
	GetProviderRef(ctx context.Context) string
	// GetPaymentStatus reports the new status; ok is false when the event
	// does not change a payment.
	GetPaymentStatus(ctx context.Context) (status types.TransactionStatus, ok bool)
	GetData(ctx context.Context) any
}

// CardEvent is the body posted by the card processor.
type CardEvent struct {
	ProviderRef   string                  `json:"provider_ref" binding:"required"`
	PaymentStatus types.TransactionStatus `json:"payment_status" binding:"required"`
	OccurredAt    *time.Time              `json:"occurred_at,omitempty"`
}

type CardParser struct {
	event *CardEvent
	now   time.Time
}

func NewCardParser(body []byte, now time.Time) (*CardParser, error) {
	var ev CardEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "failed to decode card event")
	}
	if ev.ProviderRef == "" {
		return nil, apperr.Validation("provider_ref is required")
	}
	return &CardParser{event: &ev, now: now}, nil
}

func (p *CardParser) GetProvider(ctx context.Context) types.PaymentProvider {
	return types.PaymentProviderCard
}

func (p *CardParser) GetNotificationTime(ctx context.Context) time.Time {
	if p.event.OccurredAt != nil {
		return p.event.OccurredAt.UTC()
	}
	return p.now
}

func (p *CardParser) GetProviderRef(ctx context.Context) string { return p.event.ProviderRef }

func (p *CardParser) GetPaymentStatus(ctx context.Context) (types.TransactionStatus, bool) {
	return p.event.PaymentStatus, true
}

func (p *CardParser) GetData(ctx context.Context) any { return p.event }

type AppleParser struct {
	notification *apple_notification.AppStoreServerNotification
	now          time.Time
}

func NewAppleParser(body []byte, now time.Time) (*AppleParser, error) {
	n, err := apple_notification.ParseRequest(body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindValidation, err, "failed to verify apple notification")
	}
	return newAppleParser(n, now), nil
}

func newAppleParser(n *apple_notification.AppStoreServerNotification, now time.Time) *AppleParser {
	return &AppleParser{notification: n, now: now}
}

func (p *AppleParser) GetProvider(ctx context.Context) types.PaymentProvider {
	return types.PaymentProviderApple
}

func (p *AppleParser) GetNotificationTime(ctx context.Context) time.Time {
	if p.notification.Payload != nil && p.notification.Payload.SignedDate > 0 {
		return time.UnixMilli(p.notification.Payload.SignedDate).UTC()
	}
	return p.now
}

func (p *AppleParser) GetProviderRef(ctx context.Context) string {
	if p.notification.TransactionInfo == nil {
		return ""
	}
	return p.notification.TransactionInfo.TransactionId
}

// GetPaymentStatus maps App Store notification types to payment statuses.
// https://developer.apple.com/documentation/appstoreservernotifications/notificationtype
func (p *AppleParser) GetPaymentStatus(ctx context.Context) (types.TransactionStatus, bool) {
	if p.notification.IsTestNotification || p.notification.Payload == nil || p.notification.TransactionInfo == nil {
		return "", false
	}
	switch p.notification.Payload.NotificationType {
	case "REFUND", "REVOKE":
		return types.TransactionStatusRefunded, true
	case "REFUND_REVERSED", "SUBSCRIBED", "DID_RENEW", "ONE_TIME_CHARGE":
		return types.TransactionStatusCompleted, true
	case "DID_FAIL_TO_RENEW":
		return types.TransactionStatusFailed, true
	}
	return "", false
}

func (p *AppleParser) GetData(ctx context.Context) any { return p.notification }

// NewParser builds the parser for provider from a raw callback body.
func NewParser(provider types.PaymentProvider, body []byte, now time.Time) (Parser, error) {
	switch provider {
	case types.PaymentProviderCard:
		return NewCardParser(body, now)
	case types.PaymentProviderApple:
		return NewAppleParser(body, now)
	default:
		return nil, apperr.Validation("unsupported provider: %s", provider)
	}
}
