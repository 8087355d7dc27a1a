package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/sendtap/internal/audit"
)

var (
	replayLog    string
	replayFrom   string
	replayTo     string
	replayTags   []string
	replayFormat string
)

func init() {
	rootCmd.AddCommand(replayCmd)
	replayCmd.Flags().StringVarP(&replayLog, "log", "l", "", "Path to the JSONL log (default: audit_log from config)")
	replayCmd.Flags().StringVar(&replayFrom, "from", "", "Start time filter (RFC3339)")
	replayCmd.Flags().StringVar(&replayTo, "to", "", "End time filter (RFC3339)")
	replayCmd.Flags().StringSliceVarP(&replayTags, "tag", "t", nil, "Only entries with this tag (repeatable)")
	replayCmd.Flags().StringVarP(&replayFormat, "format", "f", "text", "Output format (text|json)")
}

var replayCmd = &cobra.Command{
	Use:   "replay <session-id>",
	Short: "Replay a session from the persistent log",
	Long:  "Reads the log, filters by session ID, optional time range and tags,\nand renders a timeline with per-tag counts.",
	Args:  cobra.ExactArgs(1),
	RunE:  runReplay,
}

func runReplay(cmd *cobra.Command, args []string) error {
	path := replayLog
	if path == "" {
		path = cfg.AuditLog
	}
	if path == "" {
		return fmt.Errorf("no log given: pass --log or set audit_log in the config")
	}

	filter := audit.ReplayFilter{SessionID: args[0], Tags: replayTags}
	if replayFrom != "" {
		from, err := time.Parse(time.RFC3339, replayFrom)
		if err != nil {
			return fmt.Errorf("invalid --from time %q: %w", replayFrom, err)
		}
		filter.From = from
	}
	if replayTo != "" {
		to, err := time.Parse(time.RFC3339, replayTo)
		if err != nil {
			return fmt.Errorf("invalid --to time %q: %w", replayTo, err)
		}
		filter.To = to
	}

	result, err := audit.Replay(path, filter)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	switch replayFormat {
	case "json":
		s, err := audit.FormatJSON(result)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, s)
	default:
		fmt.Fprint(out, audit.FormatTimeline(result))
	}
	return nil
}
