// Command fieldbusd is the process entrypoint for the fieldbus event bus
// and tractor control loop: it constructs exactly one bus.Bus and threads
// it explicitly into every subcommand that needs it, rather than reaching
// for a package-level singleton (spec §9).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldctl/fieldbus/pkg/log"
)

var (
	// Version information (set via ldflags during build).
	Version = "dev"
	Commit  = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "fieldbusd",
	Short:   "fieldbusd runs the tractor's event bus and control loop",
	Long:    `fieldbusd is the per-process event bus, multicast discovery, and 50 Hz motor/steering/odometry control loop for one host's cooperating services.`,
	Version: Version,
}

func init() {
	rootCmd.SetVersionTemplate(fmt.Sprintf("fieldbusd version %s\nCommit: %s\n", Version, Commit))

	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().Bool("log-json", false, "Output logs in JSON format")
	rootCmd.PersistentFlags().String("bus-name", "fieldbusd", "Service name announced to peers")
	rootCmd.PersistentFlags().String("multicast-addr", "", "Override the discovery multicast group (default 239.20.20.21:10000)")
	rootCmd.PersistentFlags().String("config", "", "Path to a YAML configuration file")

	cobra.OnInitialize(initLogging)
}

func initLogging() {
	logLevel, _ := rootCmd.PersistentFlags().GetString("log-level")
	logJSON, _ := rootCmd.PersistentFlags().GetBool("log-json")

	log.Init(log.Config{
		Level:      log.Level(logLevel),
		JSONOutput: logJSON,
	})
}
