package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/sendtap/internal/audit"
)

var (
	tailLines  int
	followAll  bool
	tailAsJSON bool
)

func init() {
	rootCmd.AddCommand(auditCmd)
	auditCmd.AddCommand(auditVerifyCmd)
	auditCmd.AddCommand(auditTailCmd)
	auditCmd.AddCommand(auditFollowCmd)
	auditCmd.AddCommand(auditSessionsCmd)
	auditTailCmd.Flags().IntVarP(&tailLines, "lines", "n", 10, "Number of recent entries to show")
	auditTailCmd.Flags().BoolVar(&tailAsJSON, "json", false, "Print raw JSON entries")
	auditFollowCmd.Flags().BoolVar(&followAll, "all", false, "Print existing entries before following")
}

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Persistent log operations",
	Long:  "Commands for verifying and inspecting the hash-chained JSONL interception log.",
}

var auditVerifyCmd = &cobra.Command{
	Use:   "verify <path>",
	Short: "Verify hash chain integrity of a log file",
	Long:  "Walks the JSONL log and validates that every entry's prev_hash\nmatches the SHA-256 of the previous entry. Exits 0 if valid, 1 if tampered.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditVerify,
}

var auditTailCmd = &cobra.Command{
	Use:   "tail <path>",
	Short: "Show recent log entries",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditTail,
}

var auditFollowCmd = &cobra.Command{
	Use:   "follow <path>",
	Short: "Print entries as they are appended",
	Long:  "Watches the log file and prints each new entry until interrupted.",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditFollow,
}

var auditSessionsCmd = &cobra.Command{
	Use:   "sessions <path>",
	Short: "List the session IDs recorded in a log",
	Args:  cobra.ExactArgs(1),
	RunE:  runAuditSessions,
}

func runAuditVerify(cmd *cobra.Command, args []string) error {
	result := audit.Verify(args[0])
	if !result.Valid {
		return fmt.Errorf("FAILED at line %d: %s", result.ErrorLine, result.Error)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "OK: %d entries verified\n", result.Lines)
	return nil
}

func runAuditTail(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	start := len(lines) - tailLines
	if start < 0 {
		start = 0
	}

	out := cmd.OutOrStdout()
	now := time.Now()
	for _, line := range lines[start:] {
		var entry audit.Entry
		if tailAsJSON || json.Unmarshal([]byte(line), &entry) != nil {
			fmt.Fprintln(out, line)
			continue
		}
		fmt.Fprintln(out, audit.FormatLine(entry, now))
	}
	return nil
}

func runAuditFollow(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	return audit.Follow(ctx, args[0], followAll, func(e audit.Entry) {
		fmt.Fprintln(out, audit.FormatLine(e, time.Now()))
	})
}

func runAuditSessions(cmd *cobra.Command, args []string) error {
	ids, err := audit.Sessions(args[0])
	if err != nil {
		return err
	}
	for _, id := range ids {
		fmt.Fprintln(cmd.OutOrStdout(), id)
	}
	return nil
}
