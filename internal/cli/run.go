package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ppiankov/taskgate/internal/dispatch"
)

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(checkCmd)
}

var runCmd = &cobra.Command{
	Use:   "run <instruction>",
	Short: "Run one instruction locally",
	Long:  "Dispatches the instruction exactly like POST /run and prints the result as JSON.\nExit codes: 77 policy violation, 2 unknown task, 1 handler error.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

var checkCmd = &cobra.Command{
	Use:   "check <instruction>",
	Short: "Show which operation an instruction would run (dry-run)",
	Long:  "Applies the deny rules and the catalogue without running any operation.\nExit codes: 77 policy violation, 2 unknown task.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, log, err := buildApp(ctx, cmd)
	if err != nil {
		return err
	}

	out, err := a.Dispatch(ctx, strings.Join(args, " "))
	a.Close()
	log.Sync()

	if err != nil {
		printJSON(cmd, failureJSON(err))
		os.Exit(exitCode(err))
	}
	printJSON(cmd, map[string]any{
		"status":     "success",
		"message":    out.Message,
		"operation":  out.OperationID,
		"request_id": out.RequestID,
	})
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	a, log, err := buildApp(context.Background(), cmd)
	if err != nil {
		return err
	}

	plan, err := a.Check(strings.Join(args, " "))
	a.Close()
	log.Sync()

	if err != nil {
		printJSON(cmd, failureJSON(err))
		os.Exit(exitCode(err))
	}
	printJSON(cmd, map[string]any{
		"allowed":   true,
		"operation": plan.OperationID,
		"phrase":    plan.Phrase,
	})
	return nil
}

// exitCode maps a dispatch failure to the process exit status.
func exitCode(err error) int {
	var f *dispatch.Failure
	if !errors.As(err, &f) {
		return exitHandlerError
	}
	switch f.Kind {
	case dispatch.PolicyViolation:
		return exitPolicyBlock
	case dispatch.UnknownTask:
		return exitUnknownTask
	default:
		return exitHandlerError
	}
}

func failureJSON(err error) map[string]any {
	var f *dispatch.Failure
	if !errors.As(err, &f) {
		return map[string]any{"status": "error", "detail": err.Error()}
	}
	out := map[string]any{
		"status": "error",
		"kind":   string(f.Kind),
		"detail": f.Detail,
	}
	if f.OperationID != "" {
		out["operation"] = f.OperationID
	}
	if f.RequestID != "" {
		out["request_id"] = f.RequestID
	}
	return out
}

func printJSON(cmd *cobra.Command, v any) {
	out, _ := json.MarshalIndent(v, "", "  ")
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
}
