package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	taskmcp "github.com/ppiankov/taskgate/internal/mcp"
)

func init() {
	rootCmd.AddCommand(mcpCmd)
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP tool server for agent integration",
	Long:  "Runs taskgate as an MCP (Model Context Protocol) server over stdio.\nExposes tools: run_task, check_task, read_file, list_operations.",
	RunE:  runMCP,
}

func runMCP(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, log, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}
	defer log.Sync()
	defer a.Close()

	srv, err := taskmcp.New(a, version)
	if err != nil {
		return fmt.Errorf("failed to create MCP server: %w", err)
	}

	fmt.Fprintln(os.Stderr, "taskgate MCP server running on stdio")
	return srv.Run(ctx)
}
