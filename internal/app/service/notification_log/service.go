package notification_log

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/fablecast/entitlement/internal/models"
	"github.com/fablecast/entitlement/pkg/logctx"
	"github.com/fablecast/entitlement/pkg/tool"
)

type Service struct {
	db  *gorm.DB
	log *zap.SugaredLogger
}

func New(db *gorm.DB, log *zap.SugaredLogger) *Service { return &Service{db: db, log: log} }

// Saver persists notification logs without blocking the caller.
type Saver interface {
	Save(ctx context.Context, log *models.PaymentNotificationLog)
}

// Save asynchronously persists a payment notification log. Nil input is ignored.
func (s *Service) Save(ctx context.Context, log *models.PaymentNotificationLog) {
	if log == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	go func() {
		if err := s.Record(ctx, log); err != nil {
			logctx.FromCtx(ctx, s.log).Errorf("failed to save notification log: %v", err)
		}
	}()
}

// Record persists log synchronously.
func (s *Service) Record(ctx context.Context, log *models.PaymentNotificationLog) error {
	if log.ID == "" {
		log.ID = tool.GenerateUUIDV7()
	}
	if log.NotificationTime.IsZero() {
		log.NotificationTime = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(log).Error; err != nil {
		return fmt.Errorf("failed to create notification log: %w", err)
	}
	return nil
}

// FindByTransaction returns every log recorded for a provider transaction,
// oldest first.
func (s *Service) FindByTransaction(ctx context.Context, transactionID string) ([]*models.PaymentNotificationLog, error) {
	var logs []*models.PaymentNotificationLog
	err := s.db.WithContext(ctx).
		Where("transaction_id = ?", transactionID).
		Order("created_at ASC").Order("id ASC").
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list notification logs: %w", err)
	}
	return logs, nil
}

// Attempt tracks one provider payload from receipt to outcome. Begin saves
// the received row, Finish saves handled or handle_failed with the result.
type Attempt struct {
	saver Saver
	entry models.PaymentNotificationLog
}

func Begin(ctx context.Context, saver Saver, kind models.PaymentNotificationKind, provider string, data any) *Attempt {
	dataBytes, _ := json.Marshal(data)
	a := &Attempt{saver: saver, entry: models.PaymentNotificationLog{
		ProviderID: provider,
		Kind:       kind,
		TraceID:    logctx.TraceID(ctx),
		Data:       datatypes.JSON(dataBytes),
	}}
	if uid, ok := logctx.UserID(ctx); ok {
		a.entry.UserID = &uid
	}
	received := a.entry
	received.NotificationTime = time.Now().UTC()
	received.Status = models.PaymentNotificationLogStatusReceived
	saver.Save(ctx, &received)
	return a
}

func (a *Attempt) SetTransactionID(id string) { a.entry.TransactionID = id }

func (a *Attempt) SetUserID(id uint64) {
	if id != 0 {
		a.entry.UserID = &id
	}
}

func (a *Attempt) Finish(ctx context.Context, result any, err error) {
	resMap := map[string]any{"result": result}
	status := models.PaymentNotificationLogStatusHandled
	if err != nil {
		resMap["error"] = err.Error()
		status = models.PaymentNotificationLogStatusHandleFailed
	}
	resBytes, _ := json.Marshal(resMap)
	res := datatypes.JSON(resBytes)

	done := a.entry
	done.NotificationTime = time.Now().UTC()
	done.Result = &res
	done.Status = status
	a.saver.Save(ctx, &done)
}

var Module = fx.Options(
	fx.Provide(New),
)
