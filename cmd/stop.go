package cmd

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/study-timer/internal/bridge"
	"github.com/Tiliavir/study-timer/internal/tracker"
)

var stopID string

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running study session",
	Long: `Stop closes the session with the given --id. Without --id, or when the id
matches nothing, the most recently started open session is stopped.`,
	Args: cobra.NoArgs,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().StringVar(&stopID, "id", "", "Session id to stop")
}

func runStop(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	infra := openInfra(ctx)
	defer infra.Close()

	var raw any
	if stopID != "" {
		raw = stopID
	}
	res, err := infra.Service.Stop(ctx, raw)
	if errors.Is(err, tracker.ErrNotFound) {
		fmt.Fprintln(os.Stderr, "No session to stop.")
		return exitCode(1)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCode(2)
	}

	elapsed := int64(math.Round(res.DurationMinutes * 60))
	label := "study session"
	if res.Subject != "" {
		label = fmt.Sprintf("%q", res.Subject)
	}
	if res.AlreadyClosed {
		fmt.Printf("Session %s was already stopped at %s. Elapsed: %s\n",
			label, res.EndedAt.Local().Format("15:04:05"), formatElapsed(elapsed))
	} else {
		fmt.Printf("Stopped %s. Elapsed: %s\n", label, formatElapsed(elapsed))
	}
	printSync(res.Sync)
	return nil
}

func printSync(r bridge.Result) {
	switch {
	case r.Status == bridge.StatusOK:
		fmt.Printf("  Synced to Notion (%s)\n", r.RecordID)
	case r.Status == bridge.StatusFailed:
		fmt.Fprintf(os.Stderr, "  ! Notion sync failed: %s\n", r.Reason)
	case r.Reason == bridge.ReasonPending:
		fmt.Println("  Notion sync still running")
	}
}

func formatElapsed(seconds int64) string {
	h := seconds / 3600
	m := (seconds % 3600) / 60
	s := seconds % 60
	if h > 0 {
		return fmt.Sprintf("%dh %dm %ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm %ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
