package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/pitlane/paddock/pkg/config"
	"github.com/pitlane/paddock/pkg/store"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

var configPath string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "paddock",
	Short: "Paddock - Fleet imaging server for race venue hardware",
	Long: `Paddock provisions trackside single-board computers at scale. It
allocates hostnames from per-venue pools, serves master images to
devices booting on the deployment network, and runs the management API
with live dashboard updates for operations staff.`,
	Version: Version,
}

func init() {
	// Set version template
	rootCmd.SetVersionTemplate(fmt.Sprintf(
		"Paddock version %s\nCommit: %s\nBuilt: %s\n",
		Version, Commit, BuildTime,
	))

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to YAML config file (PADDOCK_* env vars override it)")

	// Add subcommands
	rootCmd.AddCommand(serverCmd)
	rootCmd.AddCommand(venueCmd)
	rootCmd.AddCommand(poolCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(imageCmd)
	rootCmd.AddCommand(dbCmd)
}

// loadConfig resolves configuration from built-in defaults, the optional
// --config file, and PADDOCK_* environment variables
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %v", err)
	}
	return cfg, nil
}

// openStore opens the database for one-shot commands. One-shot commands
// never call log.Init, so component loggers stay disabled and command
// output is the only thing printed.
func openStore(cfg *config.Config) (*store.Store, error) {
	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}
	if err := st.Verify(); err != nil {
		st.Close()
		return nil, fmt.Errorf("%v (run 'paddock db init' first)", err)
	}
	return st, nil
}
