package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/relay"
	"chat-relay/repositories"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/web"

	env "github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/kataras/iris/v12"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper.
	// Its only responsibility is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting, so every defer (database close, worker
// drain) executes before the process exits.
func run() (int, error) {
	// 1. Configuration & Logger
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := logs.GetLoggerFromString(config.LogLevel)
	ctx := context.Background()

	// 2. Database (BadgerDB)
	options := buildBadgerOpts(config, logger, ctx)
	db, err := badger.Open(options)
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are flushed before the function returns.
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories, relay core and services
	messageRepository := repositories.NewMessageRepository(db, logger, config.LimitMessages)
	userRepository := repositories.NewUserRepository(db)
	presenceRepository := repositories.NewPresenceRepository(db)

	registry := relay.NewRegistry()
	monitoring := observability.NewMonitoringManager(logger)
	dispatcher := relay.NewDispatcher(logger, registry, messageRepository)

	chatService := services.NewChatService(messageRepository, dispatcher)
	authService := services.NewAuthService(userRepository, config.AuthTokenDuration)
	adminService := services.NewAdminService(userRepository, messageRepository, presenceRepository, monitoring, config.StatsRecentWindow)

	// 4. Context & Signals
	// NotifyContext captures OS signals and cancels the context to trigger a shutdown.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 5. Supervision (background workers)
	sup := workers.NewSupervisor(logger, config.RestartInterval)
	sup.Add(workers.NewHeartbeatWorker(logger, monitoring, registry, config.MetricInterval))
	sup.Add(workers.NewBadgerGCWorker(logger, db, config.GCInterval))
	go func() {
		logger.Info("Starting supervised workers")
		sup.Run(ctx)
	}()

	// Error (HTTP server)
	errChan := make(chan error, 1)

	// 6. HTTP & WebSocket surface
	app := iris.New()
	web.RegisterRoutes(app, web.Deps{
		Log:                  logger,
		RelayCtx:             ctx,
		Auth:                 authService,
		Chat:                 chatService,
		Admin:                adminService,
		Users:                userRepository,
		Presence:             presenceRepository,
		Registry:             registry,
		Monitoring:           monitoring,
		ConnectionBufferSize: config.ConnectionBufferSize,
		ReadTimeout:          config.ReadTimeout,
		PingInterval:         config.PingInterval,
		WriteTimeout:         config.WriteTimeout,
	})

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	go func() {
		logger.Info("Starting HTTP server", "address", address, "at", time.Now().UTC())
		if err := app.Listen(address, iris.WithoutServerError(iris.ErrServerClosed)); err != nil {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	// Execution blocks here until either a signal is received or the server crashes.
	select {
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	case err := <-errChan:
		return exitRuntime, err
	}

	// 8. Final Cleanup (Graceful Shutdown)
	// Live relay sessions observe the cancelled context and close their
	// transports; workers drain via the supervisor.
	logger.Info("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = app.Shutdown(shutdownCtx)
	sup.Stop()
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.INFO)
	}

	return options
}
