package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/study-timer/internal/model"
	"github.com/Tiliavir/study-timer/internal/timecalc"
)

var (
	listLimit  int
	listFormat string
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent study sessions",
	Args:  cobra.NoArgs,
	RunE:  runList,
}

func init() {
	listCmd.Flags().IntVar(&listLimit, "limit", 20, "Number of sessions to show (max 500)")
	listCmd.Flags().StringVar(&listFormat, "format", "md", "Output format: md, csv, json")
}

func runList(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	infra := openInfra(ctx)
	defer infra.Close()

	sessions, err := infra.Service.ListRecent(ctx, listLimit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCode(2)
	}

	switch listFormat {
	case "json":
		data, err := json.MarshalIndent(sessions, "", "  ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "error encoding JSON:", err)
			return exitCode(2)
		}
		fmt.Println(string(data))
	case "csv":
		fmt.Print(formatCSV(sessions))
	default:
		fmt.Print(formatList(sessions))
	}
	return nil
}

// formatList groups sessions by local date, most recent first.
func formatList(sessions []model.Session) string {
	if len(sessions) == 0 {
		return "No sessions found.\n"
	}

	var b strings.Builder
	var currentDay string
	for _, s := range sessions {
		start := s.StartedAt.Local()
		day := start.Format("2006-01-02")
		if day != currentDay {
			fmt.Fprintln(&b, day)
			currentDay = day
		}

		endStr := "ongoing"
		durStr := ""
		if s.EndedAt != nil {
			endStr = s.EndedAt.Local().Format("15:04")
			durStr = fmt.Sprintf(" (%s)", timecalc.FormatMinutes(max(timecalc.Minutes(s.StartedAt, *s.EndedAt), 0)))
		}
		subject := s.Subject
		if subject == "" {
			subject = "-"
		}
		fmt.Fprintf(&b, "%s–%s  %s%s\n", start.Format("15:04"), endStr, subject, durStr)
	}
	return b.String()
}

func formatCSV(sessions []model.Session) string {
	var b strings.Builder
	b.WriteString("id,subject,started_at,ended_at,duration_minutes\n")
	for _, s := range sessions {
		endStr := ""
		durStr := ""
		if s.EndedAt != nil {
			endStr = s.EndedAt.UTC().Format(time.RFC3339)
			durStr = fmt.Sprintf("%.2f", max(timecalc.Minutes(s.StartedAt, *s.EndedAt), 0))
		}
		fmt.Fprintf(&b, "%s,%s,%s,%s,%s\n",
			csvEscape(s.ID),
			csvEscape(s.Subject),
			csvEscape(s.StartedAt.UTC().Format(time.RFC3339)),
			csvEscape(endStr),
			durStr,
		)
	}
	return b.String()
}

// csvEscape wraps a field in quotes if it contains a comma, quote, or newline.
func csvEscape(s string) string {
	if !strings.ContainsAny(s, ",\"\n\r") {
		return s
	}
	// Escape internal double quotes by doubling them.
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
