package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/huanfeng/corehub/internal/config"
	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/internal/i18n"
	"github.com/huanfeng/corehub/internal/version"
	"github.com/huanfeng/corehub/pkg/utils"
)

var (
	cfgFile        string
	langFlag       string
	nonInteractive bool
	verbose        bool
	logFile        string
	noColor        bool

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "corehub",
	Short:         "corehub - manage remote core catalogs for FPGA gaming",
	Version:       version.Short(),
	SilenceUsage:  true,
	SilenceErrors: true,
}

// persistentPreRun loads translations, configuration and logging before any
// subcommand runs.
func persistentPreRun(cmd *cobra.Command, args []string) error {
	if err := i18n.Init(langFlag); err != nil {
		fmt.Fprintf(os.Stderr, "i18n: %v\n", err)
	}
	applyCommandLocalization()

	loaded, err := config.Load(cfgFile)
	if err != nil {
		return apperrors.WrapError(err, apperrors.ErrorTypeConfiguration, "CONFIG_LOAD", i18n.T("errors.configLoad"))
	}
	if langFlag == "" && loaded.UI.Lang != "" {
		if err := i18n.Init(loaded.UI.Lang); err == nil {
			applyCommandLocalization()
		}
	}
	if nonInteractive {
		loaded.UI.Interactive = false
	}
	cfg = loaded

	return setupLogging()
}

func persistentPostRun(cmd *cobra.Command, args []string) error {
	return closeApp()
}

func setupLogging() error {
	lc := utils.DefaultLoggerConfig()
	lc.Level = utils.ParseLevel(cfg.Logging.Level)
	lc.Format = utils.ParseFormat(cfg.Logging.Format)
	lc.FilePath = cfg.Logging.File
	lc.EnableColor = !noColor
	if verbose {
		lc.Level = utils.LogLevelDebug
	}
	if logFile != "" {
		lc.FilePath = logFile
	}
	if err := utils.InitGlobalLogger(lc); err != nil {
		return apperrors.WrapError(err, apperrors.ErrorTypeConfiguration, "LOGGER", i18n.T("errors.logger"))
	}
	apperrors.InitGlobalErrorHandler(utils.GetGlobalLogger())
	return nil
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		_ = closeApp()
		fmt.Fprint(os.Stderr, formatError(err))
	}
	if cerr := utils.CloseGlobalLogger(); cerr != nil {
		fmt.Fprintf(os.Stderr, "log: %v\n", cerr)
	}
	if err != nil {
		os.Exit(1)
	}
}

func formatError(err error) string {
	e, ok := apperrors.As(err)
	if !ok {
		return fmt.Sprintf("%s: %v\n", i18n.T("errors.prefix"), err)
	}
	if verbose {
		apperrors.Handle(e)
	}
	if e.Type == apperrors.ErrorTypeDuplicate {
		return i18n.T("errors.alreadyExists") + "\n"
	}
	return e.FormatDetailed()
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentPreRunE = persistentPreRun
	rootCmd.PersistentPostRunE = persistentPostRun

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./corehub.yaml or ~/.corehub/corehub.yaml)")
	rootCmd.PersistentFlags().StringVar(&langFlag, "lang", "", "interface language (en, zh)")
	rootCmd.PersistentFlags().BoolVar(&nonInteractive, "non-interactive", false, "never prompt, cancel on errors")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "also write logs to this file")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored log output")
}
