package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tjfontaine/claim-intake/internal/pkg/config"
	"github.com/tjfontaine/claim-intake/internal/telemetry"
	"github.com/tjfontaine/claim-intake/pkg/intake"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	// Config reloads adjust the level through this var.
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	path := config.Path()

	// Telemetry is set up once from the initial file; the app reloads it later.
	boot, err := config.LoadFrom(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	level.Set(boot.Log.SlogLevel())

	shutdownTracer, err := telemetry.InitTracer(telemetry.Config{
		ServiceName: boot.Telemetry.ServiceName,
		Enabled:     boot.Telemetry.Enabled,
	}, logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdownTracer(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	app, err := intake.New(
		intake.WithLogger(logger),
		intake.WithLogLevel(level),
		intake.WithFileConfig(path),
	)
	if err != nil {
		log.Fatalf("Failed to create app: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errc, err := app.Start(ctx)
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-errc:
		if err != nil {
			exitCode = 1
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", slog.String("error", err.Error()))
		exitCode = 1
	}
	if exitCode != 0 {
		shutdownTracer(context.Background())
		os.Exit(exitCode)
	}
}
