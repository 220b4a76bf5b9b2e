package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/study-timer/internal/model"
	"github.com/Tiliavir/study-timer/internal/timecalc"
	"github.com/Tiliavir/study-timer/internal/tracker"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running session",
	Args:  cobra.NoArgs,
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	now := time.Now()

	infra := openInfra(ctx)
	defer infra.Close()

	sessions, err := infra.Service.ListRecent(ctx, tracker.MaxListLimit)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCode(2)
	}

	if active := runningSession(sessions); active != nil {
		elapsed := int64(now.Sub(active.StartedAt).Seconds())
		fmt.Println("Running:")
		if active.Subject != "" {
			fmt.Printf("  Subject: %s\n", active.Subject)
		}
		fmt.Printf("  ID: %s\n", active.ID)
		fmt.Printf("  Since: %s\n", active.StartedAt.Local().Format("15:04"))
		fmt.Printf("  Elapsed: %s\n", timecalc.FormatDurationHHMMSS(elapsed))
		return nil
	}

	fmt.Println("No running session.")
	fmt.Printf("Today: %s studied.\n", timecalc.FormatMinutes(minutesOn(sessions, now)))
	return nil
}

// runningSession returns the most recently started open session.
func runningSession(sessions []model.Session) *model.Session {
	for i := range sessions {
		if sessions[i].Open() {
			return &sessions[i]
		}
	}
	return nil
}

// minutesOn sums the closed sessions that started on day's local date.
func minutesOn(sessions []model.Session, day time.Time) float64 {
	var total float64
	for _, s := range sessions {
		if s.EndedAt == nil || !timecalc.SameDay(s.StartedAt.In(day.Location()), day) {
			continue
		}
		if m := timecalc.Minutes(s.StartedAt, *s.EndedAt); m > 0 {
			total += m
		}
	}
	return total
}
