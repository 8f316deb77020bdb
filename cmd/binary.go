package cmd

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/internal/i18n"
	"github.com/huanfeng/corehub/pkg/upgrade"
)

var binaryForce bool

var binaryCmd = &cobra.Command{
	Use:   "binary",
	Short: "List and upgrade catalog binaries",
}

var binaryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded binaries",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		binaries, err := a.lib.ListBinaries(ctx, 0)
		if err != nil {
			return err
		}
		if len(binaries) == 0 {
			fmt.Println(i18n.T("cmd.binary.list.empty"))
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, i18n.T("cmd.binary.list.header"))
		for _, b := range binaries {
			pending := ""
			if b.UpdatePending {
				pending = "*"
			}
			fmt.Fprintf(w, "%s%s\t%s\t%d\n", b.Name, pending, b.Version, b.CatalogID)
		}
		return w.Flush()
	},
}

var binaryUpgradeCmd = &cobra.Command{
	Use:   "upgrade <name>",
	Short: "Download, verify and install the latest release of a binary",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}

		binaries, err := a.lib.ListBinaries(ctx, 0)
		if err != nil {
			return err
		}
		var found bool
		for _, b := range binaries {
			if b.Name != args[0] {
				continue
			}
			found = true

			rb, err := a.lib.FetchRemoteBinary(ctx, b)
			if err != nil {
				return err
			}
			release, ok := rb.LatestRelease()
			if !ok {
				return apperrors.NewNotFoundError("NO_RELEASE", i18n.T("cmd.binary.upgrade.noRelease")).
					WithContext("binary", b.Name)
			}

			host, err := upgrade.NewHost(cfg.Upgrade.PublicKey, cfg.Paths.InstallPath)
			if err != nil {
				return err
			}
			fmt.Println(i18n.Tf("cmd.binary.upgrade.start", "Name", b.Name, "Version", release.Version.String()))
			done, err := upgrade.Apply(ctx, a.transport, cfg.Paths.DownloadsDir, rb, release, binaryForce, host)
			if err != nil {
				return err
			}
			if !done {
				continue
			}
			if err := a.lib.CleanBinary(ctx, b, release.Version); err != nil {
				return err
			}
			fmt.Println(i18n.Tf("cmd.binary.upgrade.done", "Name", b.Name, "Path", cfg.Paths.InstallPath))
			return nil
		}
		if !found {
			return apperrors.NewNotFoundError("BINARY_NOT_FOUND", i18n.T("cmd.binary.upgrade.notFound")).
				WithContext("binary", args[0])
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(binaryCmd)
	binaryCmd.AddCommand(binaryListCmd, binaryUpgradeCmd)

	binaryUpgradeCmd.Flags().BoolVar(&binaryForce, "force", false, "skip size, hash and signature checks")
}
