package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ppiankov/taskgate/internal/app"
	"github.com/ppiankov/taskgate/internal/config"
	"github.com/ppiankov/taskgate/internal/logging"
)

// Exit codes shared by run and check.
const (
	exitHandlerError = 1
	exitUnknownTask  = 2
	exitPolicyBlock  = 77
)

var (
	configPath string
	rootDir    string
	denyRules  string
	auditLog   string
	logLevel   string
	logFormat  string
)

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&configPath, "config", "", "Path to config YAML")
	pf.StringVar(&rootDir, "root", "", "Sandbox root directory (default /data)")
	pf.StringVar(&denyRules, "deny-rules", "", "Path to extra deny rules YAML")
	pf.StringVar(&auditLog, "audit-log", "", "Path to audit log JSONL file")
	pf.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&logFormat, "log-format", "", "Log format (json, console)")
}

var rootCmd = &cobra.Command{
	Use:           "taskgate",
	Short:         "Sandboxed plain-English task runner",
	Long:          "Maps a free-text instruction to one of a fixed set of file operations,\nrejects instructions that reach outside the sandbox or ask for deletion,\nand runs the operation against files under the sandbox root.",
	SilenceUsage:  true,
	SilenceErrors: false,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig layers command-line flags over config.Load.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("root") {
		cfg.Sandbox.Root = rootDir
	}
	if flags.Changed("deny-rules") {
		cfg.Sandbox.DenyRules = denyRules
	}
	if flags.Changed("audit-log") {
		cfg.Audit.Path = auditLog
	}
	if flags.Changed("log-level") {
		cfg.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Log.Format = logFormat
	}
	return cfg, nil
}

// buildApp loads configuration and wires the App. The caller closes the
// App and syncs the logger.
func buildApp(ctx context.Context, cmd *cobra.Command, mutate ...func(*config.Config)) (*app.App, *zap.Logger, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, nil, err
	}
	for _, m := range mutate {
		m(cfg)
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, err
	}

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Sync()
		return nil, nil, fmt.Errorf("failed to start: %w", err)
	}
	return a, log, nil
}
