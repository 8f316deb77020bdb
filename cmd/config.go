package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/huanfeng/corehub/internal/config"
	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/internal/i18n"
)

var (
	configInitPath  string
	configInitForce bool
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Create and inspect the configuration file",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a configuration file with default values",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := configInitPath
		if path == "" {
			path = config.DefaultPath()
		}
		if _, err := os.Stat(path); err == nil && !configInitForce {
			return apperrors.NewDuplicateError("CONFIG_EXISTS", i18n.T("cmd.config.init.exists")).
				WithContext("path", path)
		}
		if err := config.SaveTemplate(path, config.Default()); err != nil {
			return apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "CONFIG_WRITE", i18n.T("cmd.config.init.errWrite")).
				WithContext("path", path)
		}
		fmt.Println(i18n.Tf("cmd.config.init.done", "Path", path))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := config.Marshal(cfg)
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configInitCmd, configShowCmd)

	configInitCmd.Flags().StringVarP(&configInitPath, "output", "o", "", "where to write the file (default ~/.corehub/corehub.yaml)")
	configInitCmd.Flags().BoolVarP(&configInitForce, "force", "f", false, "overwrite an existing file")
}
