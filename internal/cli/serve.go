package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/calloway/switchboard/internal/config"
	"github.com/calloway/switchboard/internal/logger"
	"github.com/calloway/switchboard/pkg/gateway"
	"github.com/calloway/switchboard/pkg/modelturn"
	"github.com/calloway/switchboard/pkg/orchestrator"
	"github.com/calloway/switchboard/pkg/roster"
	"github.com/calloway/switchboard/pkg/sessionstore"
	"github.com/calloway/switchboard/pkg/toolgw"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the switchboard gateway",
	Long: `Run the switchboard gateway in the foreground. The gateway accepts
websocket connections, binds each one to a fresh session, and drives the
conversation through the configured agent roster.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewLoader(cfgFile).Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Close()

	log.Info().Str("version", version).Msg("Starting switchboard")

	ros, err := roster.Load(cfg.RosterPath)
	if err != nil {
		return fmt.Errorf("failed to load roster: %w", err)
	}
	registry := roster.NewRegistry(ros)

	watcher := roster.NewWatcher(cfg.RosterPath, registry)
	if err := watcher.Start(); err != nil {
		log.Warn().Err(err).Msg("Roster hot-reload disabled")
	} else {
		defer watcher.Stop()
	}

	var archiver sessionstore.Archiver
	if cfg.Archive.Enabled {
		sqlite, err := sessionstore.NewSQLiteArchiver(cfg.Archive.Path)
		if err != nil {
			return fmt.Errorf("failed to open archive: %w", err)
		}
		defer sqlite.Close()
		archiver = sqlite
	}

	store := sessionstore.NewStore(cfg.Session.IdleTimeout, archiver)

	executor := toolgw.NewExecutor(cfg.Tools.Timeout)
	backend := toolgw.NewHTTPBackend(cfg.Tools.BaseURL, cfg.Tools.Timeout)
	if err := toolgw.RegisterDomainTools(executor, backend); err != nil {
		return fmt.Errorf("failed to register domain tools: %w", err)
	}
	if err := toolgw.RegisterHandoffTools(executor, roster.HandoffToolName, ros.Agents()); err != nil {
		return fmt.Errorf("failed to register handoff tools: %w", err)
	}

	models := modelturn.NewFactory(modelturn.FactoryConfig{
		OpenAIAPIKey:    cfg.Models.OpenAIAPIKey,
		AnthropicAPIKey: cfg.Models.AnthropicAPIKey,
		Timeout:         cfg.Models.Timeout,
	})

	orch, err := orchestrator.New(orchestrator.Options{
		Store:             store,
		Registry:          registry,
		Tools:             executor,
		Models:            models,
		SettleDelay:       cfg.Session.SettleDelay,
		MaxVerifyAttempts: cfg.Session.MaxVerifyAttempts,
		ToolCallCeiling:   cfg.Session.ToolCallCeiling,
		MaxWorkers:        cfg.Session.MaxConcurrentWorkers,
	})
	if err != nil {
		return fmt.Errorf("failed to create orchestrator: %w", err)
	}

	srv, err := gateway.NewServer(gateway.Config{
		Host:         cfg.Gateway.Host,
		Port:         cfg.Gateway.Port,
		Orchestrator: orch,
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway: %w", err)
	}

	if err := store.StartReaper(orch.ReapIdle); err != nil {
		return fmt.Errorf("failed to start idle reaper: %w", err)
	}
	defer store.StopReaper()

	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start gateway: %w", err)
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	received := <-sig
	log.Info().Str("signal", received.String()).Msg("Shutting down")

	if err := srv.Stop(); err != nil {
		log.Error().Err(err).Msg("Gateway shutdown error")
	}
	orch.Close()

	return nil
}
