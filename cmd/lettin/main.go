// Lettin finds lettin gateways on the local network.
//
// It broadcasts a discovery request over UDP, collects every gateway that
// answers within the listen window, and prints them. The same session can
// run interactively (watch), behind an HTTP/WebSocket front end (serve),
// or against a local fake gateway (simulate).
//
// Usage:
//
//	lettin [command] [flags]
//
// See 'lettin --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/lettin/lettin/internal/config"
	"github.com/lettin/lettin/internal/logging"
	"github.com/lettin/lettin/internal/version"
)

func main() {
	defer logging.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	logLevel   string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "lettin",
	Short: "Lettin gateway discovery",
	Long: `Find lettin gateways on the local network.

A discovery request is broadcast to UDP port 7000 from local port 6000,
and every gateway that answers within the listen window is reported
with its name, MAC, and address.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); silent when empty unless "+logging.LogLevelEnvVar+" is set")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: OS config dir)/lettin/config.yaml")

	rootCmd.AddCommand(versionCmd)
}

// loadRegistry reads the config file chosen by --config or the default path
func loadRegistry() (*config.Registry, error) {
	if configPath != "" {
		return config.LoadFrom(configPath)
	}
	return config.LoadRegistry()
}

// saveRegistry writes back to the same location loadRegistry read from
func saveRegistry(reg *config.Registry) error {
	if configPath != "" {
		return reg.SaveTo(configPath)
	}
	return reg.Save()
}

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionJSON {
			return writeJSON(cmd.OutOrStdout(), version.Get())
		}
		fmt.Fprintf(cmd.OutOrStdout(), "lettin %s\n", version.Full())
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print version information as JSON")
}
