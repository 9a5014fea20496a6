package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/edgeorchestra/edgeorchestra/internal/daemon"
)

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "", "API host to listen on (overrides config)")
	serveCmd.Flags().IntVar(&servePort, "port", 0, "API port to listen on (overrides config)")
	serveCmd.Flags().IntVar(&serveRPCPort, "rpc-port", 0, "Device RPC port to listen on (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

var (
	serveHost    string
	servePort    int
	serveRPCPort int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the orchestrator server",
	Long:  `Start the operator API and the device RPC listener.`,
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	d, err := daemon.New()
	if err != nil {
		return err
	}

	if serveHost != "" {
		d.Config.API.Host = serveHost
	}
	if servePort > 0 {
		d.Config.API.Port = servePort
	}
	if serveRPCPort > 0 {
		d.Config.RPC.Port = serveRPCPort
	}

	return d.Serve(context.Background())
}
