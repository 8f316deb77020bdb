package cmd

import "github.com/huanfeng/corehub/internal/i18n"

// applyCommandLocalization updates command and flag descriptions after i18n is initialized.
func applyCommandLocalization() {
	rootCmd.Short = i18n.T("cmd.root.short")
	rootCmd.Long = i18n.T("cmd.root.long")

	flags := map[string]string{
		"config":          "flags.config",
		"lang":            "flags.lang",
		"non-interactive": "flags.nonInteractive",
		"verbose":         "flags.verbose",
		"log-file":        "flags.logFile",
		"no-color":        "flags.noColor",
	}
	for name, id := range flags {
		if flag := rootCmd.PersistentFlags().Lookup(name); flag != nil {
			flag.Usage = i18n.T(id)
		}
	}

	catalogCmd.Short = i18n.T("cmd.catalog.short")
	catalogAddCmd.Short = i18n.T("cmd.catalog.add.short")
	catalogListCmd.Short = i18n.T("cmd.catalog.list.short")
	catalogCheckCmd.Short = i18n.T("cmd.catalog.check.short")
	catalogUpdateCmd.Short = i18n.T("cmd.catalog.update.short")
	catalogRemoveCmd.Short = i18n.T("cmd.catalog.remove.short")

	systemCmd.Short = i18n.T("cmd.system.short")
	systemListCmd.Short = i18n.T("cmd.system.list.short")
	systemInstallCmd.Short = i18n.T("cmd.system.install.short")

	coreCmd.Short = i18n.T("cmd.core.short")
	coreListCmd.Short = i18n.T("cmd.core.list.short")
	coreInstallCmd.Short = i18n.T("cmd.core.install.short")

	binaryCmd.Short = i18n.T("cmd.binary.short")
	binaryListCmd.Short = i18n.T("cmd.binary.list.short")
	binaryUpgradeCmd.Short = i18n.T("cmd.binary.upgrade.short")

	gamesCmd.Short = i18n.T("cmd.games.short")
	gamesScanCmd.Short = i18n.T("cmd.games.scan.short")
	gamesListCmd.Short = i18n.T("cmd.games.list.short")

	cacheCmd.Short = i18n.T("cmd.cache.short")
	cacheClearCmd.Short = i18n.T("cmd.cache.clear.short")

	configCmd.Short = i18n.T("cmd.config.short")
	configInitCmd.Short = i18n.T("cmd.config.init.short")
	configShowCmd.Short = i18n.T("cmd.config.show.short")

	serveCmd.Short = i18n.T("cmd.serve.short")
	versionCmd.Short = i18n.T("cmd.version.short")
}
