package routes

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"gorm.io/gorm"

	"github.com/appfence/appfence/internal/api/handlers"
	"github.com/appfence/appfence/internal/api/middleware"
	"github.com/appfence/appfence/internal/apps"
	"github.com/appfence/appfence/internal/config"
	"github.com/appfence/appfence/internal/logger"
	"github.com/appfence/appfence/internal/metrics"
	"github.com/appfence/appfence/internal/models"
	"github.com/appfence/appfence/internal/rules"
	"github.com/appfence/appfence/internal/services"
	"github.com/appfence/appfence/internal/unifi"
)

// Register wires up API routes, runs migrations, re-arms rule expiry, and
// starts the periodic reconciliation job. It must complete before the HTTP
// server starts serving: elapsed rules are revoked here, first.
func Register(router *gin.Engine, db *gorm.DB, cfg config.Config) error {
	if err := db.AutoMigrate(
		&models.Operator{},
		&models.AuditEvent{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}

	store, err := rules.NewStore(cfg.RulesPath)
	if err != nil {
		return fmt.Errorf("open rules store: %w", err)
	}

	session := unifi.NewSession(cfg.ControllerURL, cfg.ControllerSite)
	remote := unifi.NewController(session, cfg.ControllerInsecure, cfg.ControllerTimeout)
	catalog := apps.DefaultCatalog()
	controller := rules.NewController(store, remote, catalog)

	authService := services.NewAuthService(db, cfg.JWTSecret)
	if err := authService.EnsureAdmin(cfg.AdminPassword); err != nil {
		return err
	}
	auditService := services.NewAuditService(db)
	notifyService := services.NewNotificationService(cfg.NotifyURLs)

	controller.OnExpired = func(rule rules.BlockRule, err error) {
		if err != nil {
			auditService.Record(models.AuditActionExpire, rule.ID, err.Error(), false)
			return
		}
		auditService.Record(models.AuditActionExpire, rule.ID, "", true)
		notifyService.RuleRevoked(rule.ID, "expired")
	}

	// Rules whose end time elapsed while the process was down are revoked
	// before the first request is served.
	rearmCtx, cancel := context.WithTimeout(context.Background(), cfg.ControllerTimeout)
	controller.RearmAll(rearmCtx)
	cancel()

	registry := prometheus.NewRegistry()
	metrics.Register(registry)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	router.GET("/api/v1/health", handlers.HealthHandler)

	api := router.Group("/api/v1")
	api.Use(middleware.RequestID(), middleware.Recovery(cfg.Debug))

	authHandler := handlers.NewAuthHandler(authService, remote, cfg.IsProduction())
	authHandler.RegisterRoutes(api)

	protected := api.Group("")
	protected.Use(middleware.AuthMiddleware(authService))

	authHandler.RegisterProtectedRoutes(protected)
	handlers.NewRuleHandler(controller, auditService, notifyService).RegisterRoutes(protected)
	handlers.NewControllerHandler(remote, catalog).RegisterRoutes(protected)

	startMaintenance(cfg, session, controller, auditService, notifyService)

	return nil
}

// startMaintenance schedules the periodic sync + cleanup pass. Passes are
// skipped until a controller session exists; failures are logged and audited,
// never fatal.
func startMaintenance(cfg config.Config, session *unifi.Session, controller *rules.Controller,
	audit *services.AuditService, notify *services.NotificationService) {

	cr := cron.New()
	_, err := cr.AddFunc(cfg.MaintenanceSpec, func() {
		if _, ok := session.Credential(); !ok {
			logger.Log().Debug("skipping maintenance pass, no controller session")
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()

		report, err := controller.Maintain(ctx)
		if err != nil {
			logger.Log().WithError(err).Warn("maintenance pass failed")
			audit.Record(models.AuditActionCleanup, "", err.Error(), false)
			return
		}

		audit.Record(models.AuditActionCleanup, "",
			fmt.Sprintf("linked %d, deleted %d, %d failures",
				report.Linked, report.Cleanup.Deleted, len(report.Cleanup.Failures)), true)
		notify.MaintenancePass(report.Linked, report.Cleanup.Deleted, len(report.Cleanup.Failures))
	})
	if err != nil {
		logger.Log().WithError(err).Warnf("invalid maintenance spec %q, periodic reconciliation disabled", cfg.MaintenanceSpec)
		return
	}
	cr.Start()
}
