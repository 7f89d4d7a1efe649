package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/fitgate/fitgate/internal/config"
	"github.com/fitgate/fitgate/internal/devicesync"
	"github.com/fitgate/fitgate/internal/domain/attendance"
	"github.com/fitgate/fitgate/internal/domain/members"
	"github.com/fitgate/fitgate/internal/domain/subscriptions"
	"github.com/fitgate/fitgate/internal/domain/tenant"
	"github.com/fitgate/fitgate/internal/infra/db"
	httpx "github.com/fitgate/fitgate/internal/infra/http"
	"github.com/fitgate/fitgate/internal/infra/logger"
	"github.com/fitgate/fitgate/internal/infra/notify"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/subosito/gotenv"
)

func runMigrations(dsn string, log *slog.Logger) error {
	sqlDB, err := goose.OpenDBWithDriver("pgx", dsn)
	if err != nil {
		return err
	}
	defer func() { _ = sqlDB.Close() }()
	return goose.Up(sqlDB, "migrations")
}

func main() {
	_ = gotenv.Load()

	cfg, err := config.Load("config/example.yaml")
	if err != nil {
		panic(err)
	}

	log := logger.New(cfg.App.Env)

	if err := runMigrations(cfg.Postgres.DSN, log); err != nil {
		log.Error("migrations failed", "err", err)
		return
	}
	log.Info("migrations applied")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.Connect(ctx, cfg.Postgres.DSN)
	if err != nil {
		log.Error("db connect failed", "err", err)
		return
	}
	defer pool.Close()
	log.Info("db connected")

	tenants := tenant.NewRepo(pool)
	memberRepo := members.NewRepo(pool)
	subRepo := subscriptions.NewRepo(pool)
	attRepo := attendance.NewRepo(pool)
	checkpoints := devicesync.NewCheckpointRepo(pool)
	syncLogs := devicesync.NewSyncLogRepo(pool)
	bridges := devicesync.NewBridgeStatusRepo(pool)

	ledger := subscriptions.NewLedger(subRepo)
	validator := attendance.NewValidator(ledger)

	alerter, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.AdminChatID, log)
	if err != nil {
		log.Error("telegram init failed", "err", err)
		return
	}

	reconciler := devicesync.NewReconciler(
		tenants, memberRepo, validator, attRepo,
		checkpoints, syncLogs, alerter, log,
		cfg.Sync.BackwardTolerance,
	)

	bridge := httpx.NewBridgeHandler(cfg.Bridge.APIKey, reconciler, tenants, syncLogs, bridges, log)
	srv := httpx.New(cfg.HTTP.Addr, cfg.Metrics.Enabled, bridge, log)
	go func() {
		if err := srv.Start(); err != nil && err.Error() != "http: Server closed" {
			log.Error("http server error", "err", err)
		}
	}()
	log.Info("HTTP server started", "addr", cfg.HTTP.Addr)

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info("graceful shutdown complete")
}
