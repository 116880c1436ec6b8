package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/moyoez/multiparter/adapters"
	"github.com/moyoez/multiparter/api"
	"github.com/moyoez/multiparter/tool"
)

var rootCmd = &cobra.Command{
	Use:   "multiparter",
	Short: "Streaming multipart/form-data upload server",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept uploads over HTTP and store them in the configured backend",
		Args:  cobra.NoArgs,
	}
	flags := tool.BindFlags(cmd.Flags())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		tool.InitLogger()
		tool.SetLogMode(flags.Log)

		appCfg, err := tool.LoadConfig(flags.UseConfigPath)
		if err != nil {
			return err
		}
		tool.ApplyFlags(&appCfg, *flags)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		factory, err := adapters.NewFactory(ctx, appCfg.Storage)
		if err != nil {
			return err
		}
		server, err := api.NewServer(appCfg, factory)
		if err != nil {
			return err
		}

		errCh := make(chan error, 1)
		go func() { errCh <- server.Start() }()

		select {
		case err := <-errCh:
			return err
		case <-ctx.Done():
		}

		tool.DefaultLogger.Info("Shutting down, waiting for running uploads")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	}
	return cmd
}

func main() {
	rootCmd.AddCommand(newServeCmd())
	if err := rootCmd.Execute(); err != nil {
		tool.DefaultLogger.Fatalf("%v", err)
	}
}
