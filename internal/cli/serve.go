package cli

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/taskgate/internal/config"
)

var (
	serveAddr  string
	serveWatch bool
)

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (default :8000)")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "Hot-reload the deny rules file on change")
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP task server",
	Long:  "Serves POST /run, GET /read, GET /healthz and GET /metrics.\nWith --watch, edits to the deny rules file take effect without a restart.",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, log, err := buildApp(ctx, cmd, func(cfg *config.Config) {
		if cmd.Flags().Changed("addr") {
			cfg.Server.Addr = serveAddr
		}
		if cmd.Flags().Changed("watch") {
			cfg.Sandbox.Watch = serveWatch
		}
	})
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	err = a.Serve(ctx)
	log.Info("server stopped", zap.Error(err))
	return err
}
