// Package main provides the Drift worker daemon CLI.
package main

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"

	"github.com/spf13/cobra"

	"github.com/born-ml/drift/internal/envconfig"
	"github.com/born-ml/drift/internal/rpc"
	"github.com/born-ml/drift/internal/worker"
	"github.com/born-ml/drift/version"
)

func serveHandler(cmd *cobra.Command, _ []string) error {
	addr, _ := cmd.Flags().GetString("addr")
	if addr == "" {
		addr = envconfig.Host().Host
	}
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = envconfig.WorkerName()
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	w := worker.New(name)
	slog.Info("drift worker listening", "worker", name, "addr", ln.Addr(), "version", version.Version)
	return http.Serve(ln, rpc.NewServer(w).Routes())
}

func main() {
	rootCmd := &cobra.Command{
		Use:           "drift",
		Short:         "Distributed optimizer runtime for matrix-valued parameters",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
	}

	serveCmd := &cobra.Command{
		Use:     "serve",
		Aliases: []string{"start"},
		Short:   "Run a worker daemon",
		Args:    cobra.ExactArgs(0),
		RunE:    serveHandler,
	}
	serveCmd.Flags().String("addr", "", "Address to listen on (default DRIFT_HOST or 127.0.0.1:11435)")
	serveCmd.Flags().String("name", "", "Worker name announced to the cluster (default DRIFT_WORKER or hostname)")

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(*cobra.Command, []string) {
			fmt.Printf("drift version %s\n", version.Version)
		},
	}

	rootCmd.AddCommand(serveCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
