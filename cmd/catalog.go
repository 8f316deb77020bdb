package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/internal/i18n"
	"github.com/huanfeng/corehub/pkg/library"
	"github.com/huanfeng/corehub/pkg/remote"
)

var (
	catalogWellKnown string
	catalogPriority  int
	catalogPending   bool
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Manage remote catalogs",
}

var catalogAddCmd = &cobra.Command{
	Use:   "add [url]",
	Short: "Add a catalog and record its systems",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}

		var rc *remote.Catalog
		switch {
		case catalogWellKnown != "":
			wk, ok := remote.WellKnownByName[catalogWellKnown]
			if !ok {
				return apperrors.NewNotFoundError("WELL_KNOWN", i18n.T("cmd.catalog.add.unknownWellKnown")).
					WithContext("name", catalogWellKnown).
					WithSuggestion(i18n.Tf("cmd.catalog.add.wellKnownChoices", "Names", strings.Join(wellKnownNames(), ", ")))
			}
			rc, err = a.graph.FetchWellKnown(ctx, wk, false)
		case len(args) == 1:
			rc, err = a.graph.FetchCatalog(ctx, args[0], false)
		default:
			return fmt.Errorf("%s", i18n.T("cmd.catalog.add.needURL"))
		}
		if err != nil {
			return err
		}

		fmt.Println(i18n.Tf("cmd.catalog.add.adding", "Name", rc.Name(), "URL", rc.URL))
		c, err := a.lib.CreateCatalog(ctx, rc, catalogPriority)
		if err != nil {
			return err
		}
		systems, err := a.lib.ListSystemsForCatalog(ctx, c.ID)
		if err != nil {
			return err
		}
		fmt.Println(i18n.Tf("cmd.catalog.add.done", "Name", c.Name, "Version", c.Version.String(), "Systems", len(systems)))
		return nil
	},
}

var catalogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded catalogs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}

		var filter library.CatalogFilter
		if catalogPending {
			pending := true
			filter.UpdatePending = &pending
		}
		catalogs, err := a.lib.ListCatalogs(ctx, filter)
		if err != nil {
			return err
		}
		if len(catalogs) == 0 {
			fmt.Println(i18n.T("cmd.catalog.list.empty"))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, i18n.T("cmd.catalog.list.header"))
		for _, c := range catalogs {
			checked := i18n.T("common.never")
			if c.LatestCheckAt != nil {
				checked = c.LatestCheckAt.Local().Format("2006-01-02 15:04")
			}
			pending := ""
			if c.UpdatePending {
				pending = "*"
			}
			fmt.Fprintf(w, "%d\t%s%s\t%s\t%s\t%d\t%s\n", c.ID, c.Name, pending, c.Version, c.URL, c.Priority, checked)
		}
		return w.Flush()
	},
}

var catalogCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Check every catalog, core and binary for updates",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		a.warnIfOffline(ctx)

		catalogs, err := a.lib.CheckAllCatalogsForUpdates(ctx)
		if err != nil {
			return err
		}
		cores, err := a.lib.CheckCoresForUpdates(ctx)
		if err != nil {
			return err
		}
		binaries, err := a.lib.CheckBinariesForUpdates(ctx)
		if err != nil {
			return err
		}

		if !catalogs && !cores && !binaries {
			fmt.Println(i18n.T("cmd.catalog.check.upToDate"))
			return nil
		}
		n, err := a.lib.CountCatalogs(ctx, true)
		if err != nil {
			return err
		}
		fmt.Println(i18n.Tf("cmd.catalog.check.pending", "Count", n))
		if cores {
			fmt.Println(i18n.T("cmd.catalog.check.cores"))
		}
		if binaries {
			fmt.Println(i18n.T("cmd.catalog.check.binaries"))
		}
		return nil
	},
}

var catalogUpdateCmd = &cobra.Command{
	Use:   "update [url]",
	Short: "Apply pending catalog updates",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}

		var updated bool
		if len(args) == 1 {
			c, err := a.lib.GetCatalogByURL(ctx, args[0])
			if err != nil {
				return err
			}
			updated, err = a.lib.UpdateCatalog(ctx, c)
			if err != nil {
				return err
			}
		} else {
			if _, err := a.lib.CheckAllCatalogsForUpdates(ctx); err != nil {
				return err
			}
			updated, err = a.lib.UpdateAllCatalogs(ctx)
			if err != nil {
				return err
			}
		}

		if updated {
			fmt.Println(i18n.T("cmd.catalog.update.done"))
		} else {
			fmt.Println(i18n.T("cmd.catalog.update.none"))
		}
		return nil
	},
}

var catalogRemoveCmd = &cobra.Command{
	Use:   "remove <url>",
	Short: "Remove a catalog and everything recorded from it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		c, err := a.lib.GetCatalogByURL(ctx, args[0])
		if err != nil {
			return err
		}

		choice, ok := prompter().Alert(i18n.T("cmd.catalog.remove.title"),
			i18n.Tf("cmd.catalog.remove.confirm", "Name", c.Name),
			[]string{i18n.T("common.remove"), i18n.T("common.cancel")})
		if cfg.UI.Interactive && (!ok || choice != 0) {
			fmt.Println(i18n.T("common.cancelled"))
			return nil
		}

		if err := a.lib.RemoveCatalog(ctx, c); err != nil {
			return err
		}
		fmt.Println(i18n.Tf("cmd.catalog.remove.done", "Name", c.Name))
		return nil
	},
}

func wellKnownNames() []string {
	names := make([]string, 0, len(remote.WellKnownByName))
	for name := range remote.WellKnownByName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogAddCmd, catalogListCmd, catalogCheckCmd, catalogUpdateCmd, catalogRemoveCmd)

	catalogAddCmd.Flags().StringVar(&catalogWellKnown, "well-known", "", "add a well-known catalog by name (1fpga, 1fpga-beta, local-test)")
	catalogAddCmd.Flags().IntVar(&catalogPriority, "priority", 0, "lower values are consulted first")
	catalogListCmd.Flags().BoolVar(&catalogPending, "pending", false, "only catalogs with a pending update")
}
