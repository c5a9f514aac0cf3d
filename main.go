package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"shadowtips-backend/config"
	"shadowtips-backend/database"
	"shadowtips-backend/logger"
	"shadowtips-backend/mailer"
	"shadowtips-backend/metrics"
	"shadowtips-backend/middlewares"
	"shadowtips-backend/ratelimit"
	"shadowtips-backend/routes"
	"shadowtips-backend/suggest"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

var (
	envFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:           "shadowtips",
	Short:         "Anonymous messaging API",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runServe,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE:  runMigrate,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log at debug level")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// bootstrap loads config, installs the global logger and connects the database.
func bootstrap() (*config.Config, func(), error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, nil, err
	}
	level := cfg.LogLevel
	if verbose {
		level = "debug"
	}
	_, flush, err := logger.Install(level, cfg.Development)
	if err != nil {
		return nil, nil, err
	}
	if err := database.Connect(cfg.Database); err != nil {
		flush()
		return nil, nil, err
	}
	return cfg, func() {
		if err := database.Close(); err != nil {
			zap.L().Warn("closing database", zap.Error(err))
		}
		flush()
	}, nil
}

func runMigrate(cmd *cobra.Command, _ []string) error {
	_, cleanup, err := bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := database.AutoMigrate(); err != nil {
		return err
	}
	zap.L().Info("migrations applied")
	return nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, cleanup, err := bootstrap()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := database.AutoMigrate(); err != nil {
		return err
	}
	middlewares.ConfigureJWT(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Suggestion gateway
	quota, err := ratelimit.New(cfg.Suggest)
	if err != nil {
		return err
	}
	if c, ok := quota.(io.Closer); ok {
		defer c.Close()
	}
	provider, err := suggest.NewGeminiProvider(ctx, cfg.Suggest.APIKey, cfg.Suggest.Model)
	if err != nil {
		return err
	}
	gateway := suggest.NewGateway(quota, provider,
		suggest.WithTimeout(cfg.Suggest.ProviderTimeout),
		suggest.WithRetries(cfg.Suggest.ProviderRetries),
	)

	mail, err := mailer.New(cfg.Mail)
	if err != nil {
		return err
	}

	// ---- Metrics
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics.MustRegister(registry)

	// ---- Fiber app with global error handler + body limit
	app := fiber.New(fiber.Config{
		ErrorHandler:          middlewares.ErrorHandler,
		BodyLimit:             cfg.BodyLimit(),
		DisableStartupMessage: true,
	})
	app.Use(middlewares.RequestLogger())
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowCredentials: false, // bearer tokens; the session cookie is same-site
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, Idempotency-Key, X-Forwarded-For",
	}))
	// Global limiter, separate from the suggestion quota.
	app.Use(limiter.New(limiter.Config{
		Max:        cfg.RateLimit.Max,
		Expiration: cfg.RateLimit.Window(),
	}))

	routes.Register(app, routes.Deps{Gateway: gateway, Mailer: mail, Registry: registry})

	g, gctx := errgroup.WithContext(ctx)
	if store, ok := quota.(*ratelimit.MemoryStore); ok {
		g.Go(func() error { return store.Run(gctx) })
	}
	g.Go(func() error {
		zap.L().Info("API server starting", zap.String("port", cfg.Port))
		return app.Listen(":" + cfg.Port)
	})
	g.Go(func() error {
		<-gctx.Done()
		zap.L().Info("shutting down")
		return app.ShutdownWithTimeout(shutdownTimeout)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
