package main

import (
	"context"
	"crypto/rand"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/holo-host/hpos-api/pkg/api"
	"github.com/holo-host/hpos-api/pkg/conductor"
	"github.com/holo-host/hpos-api/pkg/config"
	"github.com/holo-host/hpos-api/pkg/events"
	"github.com/holo-host/hpos-api/pkg/hbs"
	"github.com/holo-host/hpos-api/pkg/health"
	"github.com/holo-host/hpos-api/pkg/hosted"
	"github.com/holo-host/hpos-api/pkg/keys"
	"github.com/holo-host/hpos-api/pkg/ledger"
	"github.com/holo-host/hpos-api/pkg/log"
	"github.com/holo-host/hpos-api/pkg/metrics"
	"github.com/holo-host/hpos-api/pkg/slcheck"
	"github.com/holo-host/hpos-api/pkg/storage"
	"github.com/holo-host/hpos-api/pkg/timebucket"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway",
	Long: `Run the hpos-api gateway.

Configuration is read from defaults, then the config file (--config or
HPOS_API_CONFIG), then the environment. Flags override all of them.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if path, _ := cmd.Flags().GetString("config"); path != "" {
			if err := os.Setenv(config.PathEnvVar, path); err != nil {
				return err
			}
		}

		cfg, err := config.Load()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr, _ = cmd.Flags().GetString("addr")
		}
		if cmd.Flags().Changed("log-level") {
			cfg.Log.Level, _ = cmd.Flags().GetString("log-level")
		}
		if cmd.Flags().Changed("journal") {
			cfg.Storage.Path, _ = cmd.Flags().GetString("journal")
		}

		log.Init(log.Config{
			Level:      log.Level(cfg.Log.Level),
			JSONOutput: cfg.Log.JSON,
		})
		return serve(cfg)
	},
}

func init() {
	serveCmd.Flags().String("config", "", "Path to the config file")
	serveCmd.Flags().String("addr", "", "Listen address (overrides server.addr)")
	serveCmd.Flags().String("log-level", "", "Log level: debug, info, warn, error")
	serveCmd.Flags().String("journal", "", "Path of the pass journal database")
}

func serve(cfg *config.Config) error {
	logger := log.WithComponent("main")
	metrics.SetVersion(Version)

	clock, err := timebucket.New(cfg.TestMode)
	if err != nil {
		return fmt.Errorf("failed to set up clock: %w", err)
	}

	deviceKeys, err := loadKeys(cfg)
	if err != nil {
		return err
	}

	admin := conductor.NewClient(cfg.Conductor.AdminURL, cfg.Conductor.CallTimeout)
	app := conductor.NewClient(cfg.Conductor.AppURL, cfg.Conductor.CallTimeout)
	defer admin.Close()
	defer app.Close()
	cond := conductor.New(admin, app, cfg.Conductor.CoreAppID)

	hbsClient := hbs.NewClient(hbs.Config{
		URL:               cfg.HBS.URL,
		Timeout:           cfg.HBS.Timeout,
		RequestsPerSecond: cfg.HBS.RequestsPerSecond,
		BreakerTimeout:    cfg.HBS.BreakerTimeout,
		BreakerFailures:   cfg.HBS.BreakerFailures,
	}, deviceKeys)

	ldg := ledger.New(cond, cfg.Conductor.CoreAppID)

	broker := events.NewBroker()
	broker.Start()
	defer broker.Stop()

	journal, err := storage.NewBoltStore(cfg.Storage.Path)
	if err != nil {
		return fmt.Errorf("failed to open journal: %w", err)
	}
	defer journal.Close()
	metrics.RegisterComponent(metrics.ComponentJournal, true, cfg.Storage.Path)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go journal.Consume(ctx, broker.Subscribe())

	orchestrator := slcheck.New(cond, ldg, clock, broker, slcheck.Config{
		BucketWidthDays:       cfg.ServiceLogger.BucketSizeDays,
		NextBoundaryMinutes:   cfg.ServiceLogger.NextBoundaryMinutes,
		DeletionWindowMinutes: cfg.ServiceLogger.DeletionWindowMinutes,
		HoloAdmin:             cfg.ServiceLogger.CollectorPubKey,
		MaxConcurrentApps:     cfg.ServiceLogger.MaxConcurrentApps,
	})

	hostedSvc := hosted.New(cond, ldg, clock, broker, hosted.Config{
		BucketWidthDays:        cfg.ServiceLogger.BucketSizeDays,
		HoloAdmin:              cfg.ServiceLogger.CollectorPubKey,
		ServiceLoggerBundleURL: cfg.ServiceLogger.BundleURL,
		NetworkSeedOverride:    cfg.Hosting.NetworkSeedOverride,
	})

	monitor, err := newMonitor(cfg)
	if err != nil {
		return err
	}
	monitor.Start()
	defer monitor.Stop()

	srv := api.NewServer(api.Deps{
		SLCheck: orchestrator,
		Hosted:  hostedSvc,
		Ledger:  ldg,
		Records: hbsClient,
		Zome:    cond,
		Journal: journal,
	}, api.Config{
		CoreAppID:        cfg.Conductor.CoreAppID,
		SLCheckPerMinute: cfg.Server.SLCheckPerMinute,
		HistoryLimit:     cfg.Storage.HistoryLimit,
		Retention:        cfg.Storage.Retention,
		ReadTimeout:      cfg.Server.ReadTimeout,
		WriteTimeout:     cfg.Server.WriteTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(cfg.Server.Addr); err != nil {
			errCh <- fmt.Errorf("API server error: %w", err)
		}
	}()
	metrics.RegisterComponent(metrics.ComponentAPI, true, cfg.Server.Addr)

	logger.Info().
		Str("addr", cfg.Server.Addr).
		Str("core_app_id", cfg.Conductor.CoreAppID).
		Uint32("bucket_size_days", cfg.ServiceLogger.BucketSizeDays).
		Bool("test_mode", cfg.TestMode).
		Msg("hpos-api started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("Shutting down")
	case runErr = <-errCh:
		logger.Error().Err(runErr).Msg("Shutting down")
	}

	metrics.UpdateComponent(metrics.ComponentAPI, false, "shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP shutdown did not complete")
	}
	return runErr
}

// loadKeys unlocks the device bundle. Test mode falls back to a throwaway
// key so the gateway runs without an HPOS config.
func loadKeys(cfg *config.Config) (*keys.Keys, error) {
	k, err := keys.LoadFromConfig(cfg.HPOS.ConfigPath, cfg.HPOS.DevicePassword)
	if err == nil {
		return k, nil
	}
	if !cfg.TestMode {
		return nil, fmt.Errorf("failed to load device keys: %w", err)
	}

	log.Logger.Warn().Err(err).Msg("Using an ephemeral device key in test mode")
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	return keys.FromSeed(seed)
}

func newMonitor(cfg *config.Config) (*health.Monitor, error) {
	hc := health.DefaultConfig()
	if cfg.Server.HealthInterval > 0 {
		hc.Interval = cfg.Server.HealthInterval
	}
	monitor := health.NewMonitor(hc)

	adminCheck, err := health.NewTCPCheckerForURL(cfg.Conductor.AdminURL)
	if err != nil {
		return nil, fmt.Errorf("invalid conductor admin url: %w", err)
	}
	monitor.Add(metrics.ComponentConductor, adminCheck)

	if cfg.HBS.URL != "" {
		monitor.Add(metrics.ComponentHBS, health.NewHTTPChecker(cfg.HBS.URL).WithTimeout(5*time.Second))
	}
	return monitor, nil
}
