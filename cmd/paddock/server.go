package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/pitlane/paddock/pkg/allocator"
	"github.com/pitlane/paddock/pkg/coordinator"
	"github.com/pitlane/paddock/pkg/events"
	"github.com/pitlane/paddock/pkg/fanout"
	"github.com/pitlane/paddock/pkg/images"
	"github.com/pitlane/paddock/pkg/log"
	"github.com/pitlane/paddock/pkg/metrics"
	"github.com/pitlane/paddock/pkg/store"
	"github.com/pitlane/paddock/pkg/sysmon"
)

// shutdownTimeout bounds the drain of in-flight requests on SIGTERM
const shutdownTimeout = 10 * time.Second

// Server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Run the deployment and management servers",
	Long: `Run both Paddock servers: the deployment API that provisioning
devices boot against, and the management API serving the dashboard
REST endpoints and websocket live updates.

Configuration comes from built-in defaults, the optional --config file,
and PADDOCK_* environment variables, in that order.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

func runServer() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.LogLevel),
		JSONOutput: cfg.LogJSON,
	})

	for _, dir := range []string{cfg.ImageDir, cfg.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create %s: %v", dir, err)
		}
	}

	fmt.Println("Starting Paddock...")
	fmt.Printf("  Database: %s\n", cfg.DatabasePath)
	fmt.Printf("  Image Directory: %s\n", cfg.ImageDir)
	fmt.Printf("  Deployment API: %s\n", cfg.DeploymentBind)
	fmt.Printf("  Management API: %s\n", cfg.ManagementBind)
	fmt.Println()

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return fmt.Errorf("failed to open database: %v", err)
	}
	defer st.Close()

	if err := st.Migrate(); err != nil {
		return fmt.Errorf("failed to migrate database: %v", err)
	}
	fmt.Println("✓ Database ready")

	bus := events.NewBroker()
	alloc := allocator.New(st)
	lib := images.NewLibrary(cfg.ImageDir, st)
	sampler := sysmon.NewSampler(cfg, st, bus)
	collector := metrics.NewCollector(st)

	deploySrv := coordinator.NewServer(cfg, st, alloc, lib, bus)
	mgmtSrv := fanout.NewServer(cfg, st, alloc, sampler, bus)

	if err := deploySrv.Start(); err != nil {
		return fmt.Errorf("failed to start deployment server: %v", err)
	}
	fmt.Printf("✓ Deployment server listening on %s\n", cfg.DeploymentBind)

	if err := mgmtSrv.Start(); err != nil {
		stopCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		deploySrv.Stop(stopCtx)
		return fmt.Errorf("failed to start management server: %v", err)
	}
	fmt.Printf("✓ Management server listening on %s\n", cfg.ManagementBind)

	sampler.Start()
	fmt.Println("✓ Health sampler started")

	collector.Start()
	fmt.Println("✓ Metrics collector started")

	fmt.Println()
	fmt.Println("Paddock is running. Press Ctrl+C to stop.")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	fmt.Println("\nShutting down...")

	// Shutdown
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := deploySrv.Stop(ctx); err != nil {
		log.Errorf("Deployment server shutdown failed", err)
	}
	if err := mgmtSrv.Stop(ctx); err != nil {
		log.Errorf("Management server shutdown failed", err)
	}
	sampler.Stop()
	collector.Stop()
	bus.Close()

	fmt.Println("✓ Shutdown complete")
	return nil
}
