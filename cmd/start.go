package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/study-timer/internal/model"
)

var startKeepRunning bool

var startCmd = &cobra.Command{
	Use:   "start [subject]",
	Short: "Start a new study session",
	Args:  cobra.ArbitraryArgs,
	RunE:  runStart,
}

func init() {
	startCmd.Flags().BoolVar(&startKeepRunning, "keep-running", false, "Do not stop a session that is already running")
}

func runStart(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	infra := openInfra(ctx)
	defer infra.Close()

	subject := model.CleanSubject(strings.Join(args, " "))

	// Auto-stop the running session so only one is open at a time.
	if !startKeepRunning {
		recent, err := infra.Service.ListRecent(ctx, 1)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return exitCode(2)
		}
		if len(recent) == 1 && recent[0].Open() {
			fmt.Fprintf(os.Stderr, "Warning: auto-stopping running session %s\n", describe(recent[0]))
			if _, err := infra.Service.Stop(ctx, recent[0].ID); err != nil {
				fmt.Fprintln(os.Stderr, err)
				return exitCode(2)
			}
		}
	}

	res, err := infra.Service.Start(ctx, subject)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCode(2)
	}

	label := "study session"
	if subject != "" {
		label = fmt.Sprintf("%q", subject)
	}
	fmt.Printf("Started %s at %s\n", label, res.StartedAt.Local().Format("15:04:05"))
	fmt.Printf("  ID: %s\n", res.ID)
	return nil
}

// describe renders a session for one-line messages.
func describe(s model.Session) string {
	if s.Subject == "" {
		return s.ID
	}
	return fmt.Sprintf("%q (%s)", s.Subject, s.ID)
}
