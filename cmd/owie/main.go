package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/owie-project/owie-netd/internal/config"
	"github.com/owie-project/owie-netd/internal/device"
)

func main() {
	// Flags
	var configPath = flag.String("config", "config/owie.yml", "config file path")
	var forceRecovery = flag.Bool("recovery", false, "boot into recovery mode")
	var showConfig = flag.Bool("show-config", false, "print the configuration and exit")
	flag.Parse()

	// Logging
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("config_path", *configPath).Msg("Failed to load config")
	}

	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil {
		log.Warn().Str("level", cfg.Log.Level).Msg("Invalid log level, using info")
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if cfg.Log.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}

	if *forceRecovery {
		cfg.Mode = device.Recovery.String()
	}

	if *showConfig {
		cfg.PrintConfigSummary()
		return
	}

	mode, err := device.ParseMode(cfg.Mode)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid mode")
	}

	log.Info().
		Str("config_path", *configPath).
		Str("mode", mode.String()).
		Str("version", cfg.Server.Version).
		Str("boot_id", uuid.NewString()).
		Msg("Owie starting")

	a, err := newApp(cfg, mode)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	a.onRestart = cancel

	boot := device.NewBoot(a.startNormal, a.startRecovery)
	if err := boot.Start(ctx, mode); err != nil {
		a.close()
		log.Fatal().Err(err).Msg("Failed to start network")
	}

	// Signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("Shutting down")
			a.recordGracefulShutdown(ctx)
			cancel()
		case <-ctx.Done():
		}
	}()

	// The pump owns every task from here on.
	if err := a.queue.Run(ctx); err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("Task queue stopped")
	}

	a.close()

	if a.restartRequested() {
		restart()
	}
	log.Info().Msg("Owie stopped")
}

// restart replaces the process with a fresh copy of itself.
func restart() {
	exe, err := os.Executable()
	if err != nil {
		log.Fatal().Err(err).Msg("Cannot locate executable for restart")
	}
	log.Info().Str("exe", exe).Msg("Re-executing")
	// give the console writer a moment to flush
	time.Sleep(10 * time.Millisecond)
	if err := syscall.Exec(exe, os.Args, os.Environ()); err != nil {
		log.Fatal().Err(err).Msg("Restart failed")
	}
}
