package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/taskgate/internal/audit"
)

var (
	summaryOperation string
	summarySince     time.Duration
	summaryEntries   bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditSummaryCmd)
	auditSummaryCmd.Flags().StringVar(&summaryOperation, "operation", "", "Only count entries for this operation id")
	auditSummaryCmd.Flags().DurationVar(&summarySince, "since", 0, "Only count entries newer than this (e.g. 24h)")
	auditSummaryCmd.Flags().BoolVar(&summaryEntries, "entries", false, "Include matching entries in the output")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Audit log operations",
	Long:  "Commands for verifying and summarising the hash-chained audit log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of an audit log",
	Long:  "Walks the JSONL audit log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditSummaryCmd = &cobra.Command{
	Use:   "summary <path>",
	Short: "Count audit entries by outcome and operation",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditSummary,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if result.Valid {
		fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
		return nil
	}
	fmt.Fprintf(os.Stderr, "FAILED at line %d: %s\n", result.ErrorLine, result.Error)
	os.Exit(1)
	return nil
}

func runAuditSummary(cmd *cobra.Command, args []string) error {
	filter := audit.Filter{Operation: summaryOperation}
	if summarySince > 0 {
		filter.From = time.Now().UTC().Add(-summarySince)
	}

	s, err := audit.Summarize(args[0], filter)
	if err != nil {
		return err
	}
	if !summaryEntries {
		s.Entries = nil
	}
	printJSON(cmd, s)
	return nil
}
