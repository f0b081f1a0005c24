package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/porteria/visitor-access/internal/http/handlers"
	httpmw "github.com/porteria/visitor-access/internal/http/middleware"
	"github.com/porteria/visitor-access/internal/notify"
	"github.com/porteria/visitor-access/internal/platform/mailer"
	"github.com/porteria/visitor-access/internal/repo/postgres"
	"github.com/porteria/visitor-access/internal/scheduler"
	"github.com/porteria/visitor-access/internal/service"
	"github.com/porteria/visitor-access/pkg/config"
	"github.com/porteria/visitor-access/pkg/database"
	"github.com/porteria/visitor-access/pkg/events"
	"github.com/porteria/visitor-access/pkg/logger"
	mw "github.com/porteria/visitor-access/pkg/middleware"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	ctx := context.Background()
	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	redisOpts, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		logger.Error("Invalid redis URL", "error", err)
		os.Exit(1)
	}
	redisClient := redis.NewClient(redisOpts)
	defer redisClient.Close()

	eventBus, err := events.NewNATSEventBus(cfg.NATS.URL)
	if err != nil {
		logger.Error("Failed to connect to NATS", "error", err)
		os.Exit(1)
	}
	defer eventBus.Close()

	var mail mailer.Service
	if cfg.Email.DevMode {
		mail = mailer.NewDevMailer()
	} else {
		mail = mailer.NewMailerSend(cfg.Email.MailerSendKey, cfg.Email.FromName, cfg.Email.FromEmail)
	}
	dispatcher := notify.NewEmailDispatcher(mail)

	// Repositories
	accessRepo := postgres.NewAccessRepository(pool)
	visitRepo := postgres.NewVisitRepository(pool)
	approvalRepo := postgres.NewApprovalRepository(pool)
	blacklistRepo := postgres.NewBlacklistRepository(pool)
	userRepo := postgres.NewUserRepository(pool)
	companyRepo := postgres.NewCompanyRepository(pool)

	// Services
	gate := service.NewBlacklistGate(blacklistRepo)
	tracker := service.NewAttendanceTracker(accessRepo, userRepo, dispatcher, eventBus)
	accessSvc := service.NewAccessService(accessRepo, userRepo, gate, tracker, dispatcher, eventBus, cfg.App.DefaultLanguage)
	visitSvc := service.NewVisitService(visitRepo, approvalRepo, companyRepo, userRepo, gate, tracker, dispatcher, eventBus, cfg.App.BaseURL, cfg.App.ApprovalTTL)
	reconciler := service.NewReconciler(accessRepo, userRepo, accessSvc, dispatcher, eventBus)

	// Reconciliation sweep
	sched := scheduler.New(reconciler, cfg.App.SweepInterval)
	if err := sched.Start(ctx); err != nil {
		logger.Error("Failed to start scheduler", "error", err)
		os.Exit(1)
	}
	defer sched.Stop()

	// Handlers
	accessHandler := handlers.NewAccessHandler(accessSvc)
	visitHandler := handlers.NewVisitHandler(visitSvc, cfg.App.ConfirmationURL)
	blacklistHandler := handlers.NewBlacklistHandler(gate)

	publicLimiter := httpmw.NewRateLimiter(redisClient, httpmw.RateLimitConfig{
		Requests: 10,
		Window:   time.Minute,
		Prefix:   "public",
	})

	r := chi.NewRouter()
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("visitor-access"))
	r.Use(mw.Logging)
	r.Use(mw.Health)
	r.Use(mw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/v1", func(r chi.Router) {
		// Public surface, rate limited
		r.Group(func(r chi.Router) {
			r.Use(publicLimiter.Middleware())
			accessHandler.Public(r)
			visitHandler.Public(r)
		})

		// Staff surface
		r.Group(func(r chi.Router) {
			r.Use(httpmw.RequireJWT(cfg.Auth.JWTSecret))
			r.Mount("/access", accessHandler.Routes())
			r.Mount("/visits", visitHandler.Routes())
			r.With(httpmw.RequireAdmin).Mount("/blacklist", blacklistHandler.Routes())
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info("Shutting down visitor-access service...")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Shutdown error", "error", err)
		}
	}()

	logger.Info("Starting visitor-access service", "port", cfg.Server.Port)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("Server error", "error", err)
		os.Exit(1)
	}
}
