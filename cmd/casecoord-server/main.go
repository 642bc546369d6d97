package main

import (
	"context"
	crypto_rand "crypto/rand"
	"encoding/hex"
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

	"github.com/casecoord/casecoord/internal/agent"
	"github.com/casecoord/casecoord/internal/cases"
	"github.com/casecoord/casecoord/internal/config"
	"github.com/casecoord/casecoord/internal/matching"
	"github.com/casecoord/casecoord/internal/platform/audit"
	"github.com/casecoord/casecoord/internal/platform/auth"
	"github.com/casecoord/casecoord/internal/platform/db"
	"github.com/casecoord/casecoord/internal/platform/middleware"
	"github.com/casecoord/casecoord/internal/theatre"
	"github.com/casecoord/casecoord/internal/vault"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "casecoord-server",
		Short: "Surgical case coordination API server",
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(keygenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolConfig{
				MaxConns: cfg.DBMaxConns,
				MinConns: cfg.DBMinConns,
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			count, err := migrator.Up(ctx)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Printf("Applied %d migration(s)\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "migrations", "migrations directory")

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolConfig{
				MaxConns: cfg.DBMaxConns,
				MinConns: cfg.DBMinConns,
			})
			if err != nil {
				return err
			}
			defer pool.Close()

			migrator := db.NewMigrator(pool, dir)
			statuses, err := migrator.Status(ctx)
			if err != nil {
				return err
			}
			for _, s := range statuses {
				state := "pending"
				if s.Applied {
					state = "applied"
				}
				fmt.Printf("%03d %-40s %s\n", s.Version, s.Name, state)
			}
			return nil
		},
	}
	statusCmd.Flags().String("dir", "migrations", "migrations directory")

	cmd.AddCommand(upCmd)
	cmd.AddCommand(statusCmd)
	return cmd
}

func keygenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "keygen",
		Short: "Generate a random 32-byte key (hex) for AGENT_HMAC_KEY or JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			key := make([]byte, 32)
			if _, err := crypto_rand.Read(key); err != nil {
				return err
			}
			fmt.Println(hex.EncodeToString(key))
			return nil
		},
	}
}

func runServer() error {
	// Logger
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()
	if os.Getenv("ENV") == "development" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load config")
	}
	if cfg.IsDev() {
		logger.Warn().Msg("running in development mode, all requests get admin access")
	}

	// Database
	ctx := context.Background()
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, db.PoolConfig{
		MaxConns: cfg.DBMaxConns,
		MinConns: cfg.DBMinConns,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	// Echo server
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware())
	} else {
		e.Use(auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.JWTIssuer,
			Audience:   cfg.JWTAudience,
			SigningKey: []byte(cfg.JWTSecret),
		}))
	}

	// API group with rate limiting
	apiV1 := e.Group("/api/v1")
	rateLimitCfg := middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		BurstSize:         cfg.RateLimitBurst,
	}
	if rateLimitCfg.RequestsPerSecond <= 0 {
		rateLimitCfg = middleware.DefaultRateLimitConfig()
	}
	apiV1.Use(middleware.RateLimit(rateLimitCfg))

	// Health checks
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(pool))

	// Vault
	vaultRepo := vault.NewRepoPG(pool)
	v := vault.New(vaultRepo, time.Duration(cfg.VaultAutolockMinutes)*time.Minute)

	revealRecorder := audit.NewPGRecorder(pool)
	v.SetRevealObserver(func(ctx context.Context, handle string, ok bool) {
		outcome := audit.OutcomeSuccess
		if !ok {
			outcome = audit.OutcomeDenied
		}
		event := &audit.RevealEvent{
			Handle:    handle,
			ActorID:   auth.UserIDFromContext(ctx),
			Outcome:   outcome,
			RequestID: middleware.RequestIDFromContext(ctx),
		}
		if err := revealRecorder.Record(ctx, event); err != nil {
			logger.Error().Err(err).Msg("failed to record reveal event")
		}
	})
	vault.NewHandler(v).RegisterRoutes(apiV1)

	// Cases
	caseSvc := cases.NewService(cases.NewRepoPG(pool), cases.NewEmailRepoPG(pool), v)
	cases.NewHandler(caseSvc).RegisterRoutes(apiV1)

	// Theatre slots
	theatreSvc := theatre.NewService(theatre.NewRepoPG(pool), caseSvc, db.WithTx(pool))
	caseSvc.SetSlotReleaser(theatreSvc)
	theatre.NewHandler(theatreSvc).RegisterRoutes(apiV1)

	// Matching engine
	matchCfg := matching.DefaultConfig()
	matchCfg.FixedTransportCost = cfg.TransportCost
	matchCfg.PerEquipmentSetupCost = cfg.EquipmentSetupCost
	matchCfg.PerCaseTechCost = cfg.PerCaseTechCost
	matchSvc := matching.NewService(matchCfg, caseSvc, theatreSvc)
	matching.NewHandler(matchSvc).RegisterRoutes(apiV1)

	// Agent gateway
	anon, err := agent.NewAnonymizer([]byte(cfg.AgentHMACKey))
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialise anonymizer")
	}
	if cfg.AgentHMACKey == "" {
		logger.Warn().Msg("AGENT_HMAC_KEY not set, anonymous ids will not survive a restart")
	}
	agentClient := agent.NewHTTPClient(cfg.AgentURL, time.Duration(cfg.AgentTimeoutSeconds)*time.Second)
	agentSvc := agent.NewService(anon, agentClient, caseSvc)
	agent.NewHandler(agentSvc).RegisterRoutes(apiV1)
	v.SetLockObserver(anon.Reset)

	// Graceful shutdown
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	v.Lock()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}
