package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/huanfeng/corehub/internal/i18n"
	"github.com/huanfeng/corehub/pkg/ui"
)

var gamesSystem string

var gamesCmd = &cobra.Command{
	Use:   "games",
	Short: "Identify and list local games",
}

var gamesScanCmd = &cobra.Command{
	Use:   "scan <dir>",
	Short: "Hash files under a directory and match them against game databases",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}

		bar := ui.NewProgressBar(i18n.T("cmd.games.scan.progress"))
		unmatched, err := a.lib.AddGamesFromRoot(ctx, args[0], bar.Report)
		if err != nil {
			return err
		}
		bar.Finish()

		for _, p := range unmatched {
			fmt.Println(i18n.Tf("cmd.games.scan.unmatched", "Path", p))
		}
		fmt.Println(i18n.Tf("cmd.games.scan.done", "Unmatched", len(unmatched)))
		return nil
	},
}

var gamesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded games",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		games, err := a.lib.ListGames(ctx, gamesSystem)
		if err != nil {
			return err
		}
		if len(games) == 0 {
			fmt.Println(i18n.T("cmd.games.list.empty"))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, i18n.T("cmd.games.list.header"))
		for _, g := range games {
			fmt.Fprintf(w, "%s\t%s\t%s\n", g.Name, g.System, g.Path)
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(gamesCmd)
	gamesCmd.AddCommand(gamesScanCmd, gamesListCmd)

	gamesListCmd.Flags().StringVar(&gamesSystem, "system", "", "only games of this system")
}
