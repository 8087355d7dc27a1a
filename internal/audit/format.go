package audit

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"
)

const separator = "──────────────────────────────────────────────────────────────────"

// maxText caps the entry text shown per timeline row.
const maxText = 120

// FormatTimeline renders a ReplayResult as a human-readable text timeline.
func FormatTimeline(result *ReplayResult) string {
	if len(result.Entries) == 0 {
		return fmt.Sprintf("Session: %s | No entries found.\n", result.SessionID)
	}

	var b strings.Builder

	fmt.Fprintf(&b, "Session: %s | %s to %s UTC\n", result.SessionID,
		formatDateTime(result.Summary.FirstTimestamp), formatTimeOnly(result.Summary.LastTimestamp))
	b.WriteString(separator + "\n")

	for _, e := range result.Entries {
		fmt.Fprintf(&b, "%-10s #%-5d %-12s %s\n",
			formatTimeOnly(e.Timestamp), e.Seq, e.Tag, truncate(e.Text, maxText))
	}

	b.WriteString(separator + "\n")
	b.WriteString(formatSummary(result.Summary))
	return b.String()
}

// FormatJSON renders a ReplayResult as indented JSON.
func FormatJSON(result *ReplayResult) (string, error) {
	data, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal replay result: %w", err)
	}
	return string(data), nil
}

// FormatLine renders a single entry for tail and follow output. now is used
// for the relative age column.
func FormatLine(e Entry, now time.Time) string {
	age := e.Timestamp
	if ts, err := parseTimestamp(e.Timestamp); err == nil {
		age = humanize.RelTime(ts, now, "ago", "from now")
	}
	return fmt.Sprintf("%-16s %-8s #%-5d %s", age, shortID(e.SessionID), e.Seq, e.String())
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatDateTime(ts string) string {
	t, err := parseTimestamp(ts)
	if err != nil {
		return ts
	}
	return t.Format("2006-01-02 15:04:05")
}

func formatTimeOnly(ts string) string {
	t, err := parseTimestamp(ts)
	if err != nil {
		return ts
	}
	return t.Format("15:04:05")
}

func formatSummary(s ReplaySummary) string {
	tags := lo.Keys(s.ByTag)
	sort.Strings(tags)
	parts := lo.Map(tags, func(tag string, _ int) string {
		return fmt.Sprintf("%d %s", s.ByTag[tag], tag)
	})
	return fmt.Sprintf("Summary: %d entries | %s\n", s.Total, strings.Join(parts, ", "))
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
