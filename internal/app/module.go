package app

import (
	"time"

	"go.uber.org/fx"

	"github.com/fablecast/entitlement/internal/app/api/server"
	"github.com/fablecast/entitlement/internal/app/service/billing"
	"github.com/fablecast/entitlement/internal/app/service/capability"
	"github.com/fablecast/entitlement/internal/app/service/champion"
	"github.com/fablecast/entitlement/internal/app/service/entitlement"
	notificationlog "github.com/fablecast/entitlement/internal/app/service/notification_log"
	"github.com/fablecast/entitlement/internal/app/service/paymentevent"
	"github.com/fablecast/entitlement/internal/app/service/purchase"
	"github.com/fablecast/entitlement/internal/app/service/statistics"
	"github.com/fablecast/entitlement/internal/app/service/unlock"
	"github.com/fablecast/entitlement/internal/app/service/wallet"
	"github.com/fablecast/entitlement/internal/platform/db"
	"github.com/fablecast/entitlement/internal/platform/lock"
	"github.com/fablecast/entitlement/pkg/config"
	"github.com/fablecast/entitlement/pkg/logger"
)

const (
	DefaultStartTimeout = 15 * time.Second
	DefaultStopTimeout  = 10 * time.Second
)

// Core is the ledger without the HTTP server; ledgerctl runs on it.
var Core = fx.Options(
	logger.Module,
	config.Module,
	db.Module,
	lock.Module,
	capability.Module,
	wallet.Module,
	champion.Module,
	entitlement.Module,
	billing.Module,
	statistics.Module,
	notificationlog.Module,
)

var Module = fx.Options(
	Core,
	unlock.Module,
	purchase.Module,
	paymentevent.Module,
	server.Module,
)
