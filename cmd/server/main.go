package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/expenseflow/expenseflow-api/api/swagger"
	"github.com/expenseflow/expenseflow-api/internal/handler"
	"github.com/expenseflow/expenseflow-api/internal/middleware"
	"github.com/expenseflow/expenseflow-api/internal/repository"
	"github.com/expenseflow/expenseflow-api/internal/service"
	"github.com/expenseflow/expenseflow-api/internal/workflow"
	"github.com/expenseflow/expenseflow-api/pkg/cache"
	"github.com/expenseflow/expenseflow-api/pkg/config"
	"github.com/expenseflow/expenseflow-api/pkg/database"
	"github.com/expenseflow/expenseflow-api/pkg/logger"
	corsmiddleware "github.com/expenseflow/expenseflow-api/pkg/middleware/cors"
	reqidmiddleware "github.com/expenseflow/expenseflow-api/pkg/middleware/requestid"
	"github.com/expenseflow/expenseflow-api/pkg/storage"
)

// Generated report files are kept for a week before the cleanup
// sweep removes them.
const reportRetention = 7 * 24 * time.Hour

// @title ExpenseFlow API
// @version 1.0.0
// @description Multi-tenant expense reporting with configurable approval workflows
// @BasePath /api/v1
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Fatal("failed to connect to redis", zap.Error(err))
	}
	defer redisClient.Close()

	reportStore, err := storage.NewLocalStorage(cfg.Reports.StorageDir)
	if err != nil {
		logr.Fatal("failed to init report storage", zap.Error(err))
	}
	signer := storage.NewSignedURLSigner(cfg.Reports.SignedURLSecret, cfg.Reports.SignedURLTTL)

	// Repositories.
	userRepo := repository.NewUserRepository(db)
	companyRepo := repository.NewCompanyRepository(db)
	expenseRepo := repository.NewExpenseRepository(db)
	stepRepo := repository.NewApprovalStepRepository(db)
	ruleRepo := repository.NewApprovalRuleRepository(db)
	budgetRepo := repository.NewBudgetRepository(db)
	departmentRepo := repository.NewDepartmentRepository(db)
	projectRepo := repository.NewProjectRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	reportRepo := repository.NewReportJobRepository(db)
	cacheRepo := repository.NewCacheRepository(redisClient, logr)

	validate := validator.New()

	// Services.
	authSvc := service.NewAuthService(userRepo, companyRepo, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             "expenseflow-api",
	})
	userSvc := service.NewUserService(userRepo, validate, logr)
	notificationSvc := service.NewNotificationService(notificationRepo, logr)
	currencySvc := service.NewCurrencyService(service.CurrencyConfig{
		BaseCurrency: cfg.Currency.BaseCurrency,
		Rates:        cfg.Currency.Rates,
		CacheTTL:     cfg.Currency.CacheTTL,
	}, cacheRepo, logr)
	expenseSvc := service.NewExpenseService(expenseRepo, userRepo, stepRepo, companyRepo, currencySvc, notificationSvc, reportStore, validate, logr)
	engine := workflow.NewEngine(repository.NewWorkflowStore(db), logr)
	budgetSvc := service.NewBudgetService(budgetRepo, userRepo, notificationSvc, validate, logr)
	dashboardSvc := service.NewDashboardService(expenseRepo, stepRepo, cacheRepo, cfg.Dashboard.CacheTTL, logr)
	invalidator := service.NewDashboardCacheInvalidator(cacheRepo, logr)
	approvalSvc := service.NewApprovalService(stepRepo, engine, notificationSvc, budgetSvc, invalidator, validate, logr)
	ruleSvc := service.NewRuleService(ruleRepo, userRepo, validate, logr)
	departmentSvc := service.NewDepartmentService(departmentRepo, validate, logr)
	projectSvc := service.NewProjectService(projectRepo, validate, logr)
	metricsSvc := service.NewMetricsService()
	reportSvc := service.NewReportService(reportRepo, expenseRepo, reportStore, signer, metricsSvc, service.ReportServiceConfig{
		WorkerConcurrency: cfg.Reports.WorkerConcurrency,
		WorkerRetries:     cfg.Reports.WorkerRetries,
	}, logr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reportSvc.Start(ctx)
	defer reportSvc.Stop()

	go func() {
		ticker := time.NewTicker(cfg.Reports.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				reportSvc.Cleanup(ctx, reportRetention)
			}
		}
	}()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	handler.RegisterRoutes(r, handler.Handlers{
		Auth:          handler.NewAuthHandler(authSvc),
		Users:         handler.NewUserHandler(userSvc),
		Expenses:      handler.NewExpenseHandler(expenseSvc, metricsSvc),
		Approvals:     handler.NewApprovalHandler(approvalSvc, metricsSvc),
		Rules:         handler.NewRuleHandler(ruleSvc),
		Budgets:       handler.NewBudgetHandler(budgetSvc),
		Departments:   handler.NewDepartmentHandler(departmentSvc),
		Projects:      handler.NewProjectHandler(projectSvc),
		Notifications: handler.NewNotificationHandler(notificationSvc),
		Dashboard:     handler.NewDashboardHandler(dashboardSvc),
		Reports:       handler.NewReportHandler(reportSvc),
		Currency:      handler.NewCurrencyHandler(currencySvc),
		Metrics:       handler.NewMetricsHandler(metricsSvc),
	}, authSvc)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logr.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("forced shutdown", zap.Error(err))
	}
}
