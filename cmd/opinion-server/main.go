package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/secondopinion/secondopinion/internal/config"
	"github.com/secondopinion/secondopinion/internal/domain/cases"
	"github.com/secondopinion/secondopinion/internal/domain/identity"
	"github.com/secondopinion/secondopinion/internal/domain/records"
	"github.com/secondopinion/secondopinion/internal/platform/audit"
	"github.com/secondopinion/secondopinion/internal/platform/auth"
	"github.com/secondopinion/secondopinion/internal/platform/db"
	"github.com/secondopinion/secondopinion/internal/platform/genai"
	"github.com/secondopinion/secondopinion/internal/platform/middleware"
	"github.com/secondopinion/secondopinion/internal/platform/notify"
	"github.com/secondopinion/secondopinion/internal/platform/push"
	"github.com/secondopinion/secondopinion/internal/platform/ws"
)

func main() {
	root := &cobra.Command{
		Use:   "opinion-server",
		Short: "Second-opinion medical review platform",
	}

	root.AddCommand(serveCmd(), migrateCmd(), seedAdminCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

func runServer(cfg *config.Config) error {
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return err
	}
	defer pool.Close()

	jwtCfg := auth.JWTConfig{
		SigningKey: []byte(cfg.JWTSecret),
		TokenTTL:   time.Duration(cfg.TokenTTLHrs) * time.Hour,
	}

	// Platform
	auditRec := audit.NewRecorder(audit.NewRepoPG(pool), logger)
	hub := ws.NewHub(logger)
	pushClient := push.NewClient(cfg.ExpoPushURL, logger)
	modelClient := genai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, "")
	txRunner := db.NewPoolTxRunner(pool)

	// Repositories
	userRepo := identity.NewRepoPG(pool)
	recordRepo := records.NewRepoPG(pool)
	caseRepo := cases.NewRepoPG(pool)

	// Services
	identitySvc := identity.NewService(userRepo, jwtCfg, logger)
	notifier := notify.NewDoctorNotifier(hub, pushClient, userRepo, logger)
	analyzer := cases.NewAnalyzer(caseRepo, recordRepo, modelClient, notifier, identitySvc, cases.AnalyzerConfig{
		Workers:    cfg.AnalysisWorkers,
		QueueSize:  cfg.AnalysisQueueSize,
		JobTimeout: time.Duration(cfg.AnalysisTimeoutSec) * time.Second,
	}, logger)
	caseSvc := cases.NewService(caseRepo, recordRepo, txRunner, analyzer, logger)
	recordSvc := records.NewService(recordRepo, caseSvc, int64(cfg.MaxUploadMB)<<20, logger)

	analyzer.Start(ctx)

	// HTTP
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.RequestID())
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAuthorization},
	}))
	e.Use(echomw.BodyLimit(fmt.Sprintf("%dM", cfg.MaxUploadMB+1)))

	e.GET("/health", func(c echo.Context) error {
		if err := pool.Ping(c.Request().Context()); err != nil {
			return c.JSON(http.StatusServiceUnavailable, map[string]string{"status": "down"})
		}
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	api := e.Group("/api")
	api.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
		Skip:              cfg.IsDev(),
	}))

	// Handlers
	identityH := identity.NewHandler(identitySvc, auditRec)
	recordH := records.NewHandler(recordSvc)
	caseH := cases.NewHandler(caseSvc)
	wsH := ws.NewHandler(hub)

	authGroup := api.Group("/auth")
	authGroup.Use(middleware.RateLimit(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.AuthRateLimitRPS,
		BurstSize:         cfg.AuthRateLimitBurst,
		Skip:              cfg.IsDev(),
	}))
	identityH.RegisterPublicRoutes(authGroup)

	secured := api.Group("")
	secured.Use(auth.JWTMiddleware(jwtCfg))
	identityH.RegisterRoutes(secured)
	recordH.RegisterSharedRoutes(secured)
	wsH.RegisterRoutes(secured)

	patient := secured.Group("/patient")
	recordH.RegisterPatientRoutes(patient)
	caseH.RegisterPatientRoutes(patient)

	doctor := secured.Group("/doctor")
	caseH.RegisterDoctorRoutes(doctor)

	admin := secured.Group("/admin")
	caseH.RegisterAdminRoutes(admin)

	// Serve until signalled, then drain.
	errCh := make(chan error, 1)
	go func() {
		errCh <- e.Start(":" + cfg.Port)
	}()
	logger.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown")
	}
	analyzer.Wait()
	logger.Info().Msg("server stopped")
	return nil
}

func migrateCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database migrations",
	}
	cmd.PersistentFlags().StringVar(&dir, "dir", "migrations", "migrations directory")

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, 2, 1)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := db.NewMigrator(pool, dir).Up(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("applied %d migration(s)\n", n)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, 2, 1)
			if err != nil {
				return err
			}
			defer pool.Close()

			statuses, err := db.NewMigrator(pool, dir).Status(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied " + s.AppliedAt.Format(time.RFC3339)
				}
				fmt.Printf("%03d %-40s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	})

	return cmd
}

func seedAdminCmd() *cobra.Command {
	var name, email, password string

	cmd := &cobra.Command{
		Use:   "seed-admin",
		Short: "Create an admin account",
		RunE: func(c *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			logger := newLogger(cfg)

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, 2, 1)
			if err != nil {
				return err
			}
			defer pool.Close()

			jwtCfg := auth.JWTConfig{SigningKey: []byte(cfg.JWTSecret), TokenTTL: time.Hour}
			svc := identity.NewService(identity.NewRepoPG(pool), jwtCfg, logger)
			u, err := svc.SeedAdmin(ctx, name, email, password)
			if err != nil {
				return err
			}
			fmt.Printf("admin created: %s (%s)\n", u.Email, u.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "Administrator", "admin display name")
	cmd.Flags().StringVar(&email, "email", "", "admin email")
	cmd.Flags().StringVar(&password, "password", "", "admin password")
	cmd.MarkFlagRequired("email")
	cmd.MarkFlagRequired("password")

	return cmd
}
