package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Tiliavir/study-timer/internal/bridge"
	"github.com/Tiliavir/study-timer/internal/schema"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Notion sync integration",
}

var syncCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check how the Notion database maps onto session fields",
	Args:  cobra.NoArgs,
	RunE:  runSyncCheck,
}

func init() {
	syncCmd.AddCommand(syncCheckCmd)
}

func runSyncCheck(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	infra := openInfra(ctx)
	defer infra.Close()

	m, err := infra.Service.CheckSync(ctx)
	var cfgErr *schema.ConfigError
	switch {
	case errors.Is(err, bridge.ErrNotConfigured):
		fmt.Fprintln(os.Stderr, "Notion sync is not configured. Set notion.token and notion.database_id")
		fmt.Fprintln(os.Stderr, "in the config file or NOTION_TOKEN and NOTION_DATABASE_ID in the environment.")
		return exitCode(1)
	case errors.As(err, &cfgErr):
		fmt.Fprintln(os.Stderr, "The Notion database cannot hold study sessions.")
		for _, r := range cfgErr.Missing {
			fmt.Fprintf(os.Stderr, "  missing: %s\n", r)
		}
		fmt.Fprintln(os.Stderr, "Properties found:")
		for _, p := range cfgErr.Properties {
			fmt.Fprintf(os.Stderr, "  %s\n", p)
		}
		return exitCode(1)
	case err != nil:
		fmt.Fprintln(os.Stderr, err)
		return exitCode(2)
	}

	fmt.Print(formatMapping(m))
	return nil
}

// formatMapping prints every role in classification order.
func formatMapping(m schema.Map) string {
	out := "Notion mapping:\n"
	for _, role := range schema.Roles {
		target := "-"
		if m.Has(role) {
			target = m[role].String()
		}
		out += fmt.Sprintf("  %-17s %s\n", role, target)
	}
	return out
}
