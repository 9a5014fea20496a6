// Package cli implements the edgeorchestra command-line interface using
// Cobra. Apart from serve, every subcommand is a thin client of the
// operator HTTP API.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "edgeorchestra",
	Short: "EdgeOrchestra — federated learning across edge devices",
	Long: `EdgeOrchestra coordinates federated learning rounds across a fleet of
edge devices: device registry, round scheduling, gradient aggregation,
and model lifecycle, from one server.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var (
	serverURL string
	apiKey    string
)

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("EO_SERVER", "http://127.0.0.1:8000"), "Operator API base URL")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", os.Getenv("EO_API_KEY"), "API key for authenticated endpoints")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
