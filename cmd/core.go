package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/internal/i18n"
	"github.com/huanfeng/corehub/pkg/library"
	"github.com/huanfeng/corehub/pkg/remote"
	"github.com/huanfeng/corehub/pkg/utils"
)

var (
	coreVersion string
	coreSystem  string
	coreUpgrade bool
)

var coreCmd = &cobra.Command{
	Use:   "core",
	Short: "Install and list cores",
}

var coreListCmd = &cobra.Command{
	Use:   "list",
	Short: "List installed cores",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}

		var systemID int64
		if coreSystem != "" {
			s, err := a.lib.GetSystemByUniqueName(ctx, coreSystem)
			if err != nil {
				return err
			}
			systemID = s.ID
		}
		cores, err := a.lib.ListCores(ctx, systemID)
		if err != nil {
			return err
		}
		if len(cores) == 0 {
			fmt.Println(i18n.T("cmd.core.list.empty"))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, i18n.T("cmd.core.list.header"))
		for _, c := range cores {
			pending := ""
			if c.UpdatePending {
				pending = "*"
			}
			fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\n", c.UniqueName, pending, c.Name, c.Version, c.RbfPath)
		}
		return w.Flush()
	},
}

var coreInstallCmd = &cobra.Command{
	Use:   "install <unique-name>",
	Short: "Download, verify and record a core release",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}

		if coreUpgrade {
			installed, err := a.lib.GetCoreByUniqueName(ctx, args[0])
			if err != nil {
				return err
			}
			core, err := a.lib.UpgradeCore(ctx, installed, coreVersion)
			if err != nil {
				return err
			}
			fmt.Println(i18n.Tf("cmd.core.install.upgraded", "Name", core.UniqueName, "Version", core.Version.String()))
			return nil
		}

		rc, c, err := findRemoteCore(ctx, a.lib, args[0])
		if err != nil {
			return err
		}
		core, err := a.lib.InstallCore(ctx, rc, c, coreVersion)
		if err != nil {
			return err
		}
		if core.UpdatePending {
			fmt.Println(i18n.Tf("cmd.core.install.flagged", "Name", core.UniqueName, "Version", core.Version.String()))
			return nil
		}
		fmt.Println(i18n.Tf("cmd.core.install.done", "Name", core.UniqueName, "Version", core.Version.String()))
		return nil
	},
}

// findRemoteCore looks the core up in every recorded catalog, by priority.
func findRemoteCore(ctx context.Context, lib *library.Library, uniqueName string) (*remote.Core, *library.Catalog, error) {
	catalogs, err := lib.ListCatalogs(ctx, library.CatalogFilter{})
	if err != nil {
		return nil, nil, err
	}
	for _, c := range catalogs {
		rc, err := lib.FetchRemoteCatalog(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		core, err := rc.FetchCore(ctx, uniqueName)
		if apperrors.IsType(err, apperrors.ErrorTypeNotFound) {
			utils.Debug("core %s not in catalog %s", uniqueName, c.URL)
			continue
		}
		if err != nil {
			return nil, nil, err
		}
		return core, c, nil
	}
	return nil, nil, apperrors.NewNotFoundError("CORE_NOT_FOUND", i18n.T("cmd.core.install.notFound")).
		WithContext("core", uniqueName)
}

func init() {
	rootCmd.AddCommand(coreCmd)
	coreCmd.AddCommand(coreListCmd, coreInstallCmd)

	coreListCmd.Flags().StringVar(&coreSystem, "system", "", "only cores running this system")
	coreInstallCmd.Flags().StringVar(&coreVersion, "version", "", "install this release instead of the latest")
	coreInstallCmd.Flags().BoolVar(&coreUpgrade, "upgrade", false, "replace an installed core with a newer release")
}
