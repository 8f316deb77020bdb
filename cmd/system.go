package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/huanfeng/corehub/internal/i18n"
	"github.com/huanfeng/corehub/pkg/ui"
)

var systemCmd = &cobra.Command{
	Use:   "system",
	Short: "Inspect systems and install their game databases",
}

var systemListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded systems",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		systems, err := a.lib.ListSystems(ctx)
		if err != nil {
			return err
		}
		if len(systems) == 0 {
			fmt.Println(i18n.T("cmd.system.list.empty"))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, i18n.T("cmd.system.list.header"))
		for _, s := range systems {
			games, err := a.lib.CountGameIdentifications(ctx, s.ID)
			if err != nil {
				return err
			}
			cores, err := a.lib.CountCores(ctx, s.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", s.UniqueName, s.Name, cores, games)
		}
		return w.Flush()
	},
}

var systemInstallCmd = &cobra.Command{
	Use:   "install <unique-name>",
	Short: "Import the game identification database of a system",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		s, err := a.lib.GetSystemByUniqueName(ctx, args[0])
		if err != nil {
			return err
		}

		bar := ui.NewProgressBar(i18n.Tf("cmd.system.install.progress", "Name", s.Name))
		if err := a.lib.InstallSystem(ctx, s, bar.Report); err != nil {
			return err
		}
		bar.Finish()

		n, err := a.lib.CountGameIdentifications(ctx, s.ID)
		if err != nil {
			return err
		}
		fmt.Println(i18n.Tf("cmd.system.install.done", "Name", s.Name, "Count", n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(systemCmd)
	systemCmd.AddCommand(systemListCmd, systemInstallCmd)
}
