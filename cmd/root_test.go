package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/internal/i18n"
)

func TestFormatError(t *testing.T) {
	require.NoError(t, i18n.Init("en"))

	dup := apperrors.NewDuplicateError("CATALOG_EXISTS", "catalog already recorded")
	assert.Equal(t, "Already exists.\n", formatError(dup))

	nf := apperrors.NewNotFoundError("CORE_NOT_FOUND", "no such core").WithContext("core", "nes")
	out := formatError(nf)
	assert.Contains(t, out, "NOT_FOUND error [CORE_NOT_FOUND]: no such core")
	assert.Contains(t, out, "core: nes")

	assert.Equal(t, "Error: boom\n", formatError(errors.New("boom")))
}

func TestWellKnownNames(t *testing.T) {
	assert.Equal(t, []string{"1fpga", "1fpga-beta", "local-test"}, wellKnownNames())
}

func TestCommandTree(t *testing.T) {
	for _, path := range [][]string{
		{"catalog", "add"}, {"catalog", "list"}, {"catalog", "check"}, {"catalog", "update"}, {"catalog", "remove"},
		{"system", "list"}, {"system", "install"},
		{"core", "list"}, {"core", "install"},
		{"binary", "list"}, {"binary", "upgrade"},
		{"games", "scan"}, {"games", "list"},
		{"cache", "clear"}, {"config", "init"}, {"config", "show"},
		{"serve"}, {"version"},
	} {
		found, _, err := rootCmd.Find(path)
		require.NoError(t, err, path)
		assert.Equal(t, path[len(path)-1], found.Name(), path)
	}
}

func TestPersistentHooksLoadConfigAndOpenApp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "corehub.yaml")
	yaml := "storage:\n  database: " + filepath.Join(dir, "db", "corehub.sqlite") + "\n" +
		"paths:\n  downloads_dir: " + filepath.Join(dir, "downloads") + "\n  cores_dir: " + filepath.Join(dir, "cores") + "\n" +
		"ui:\n  interactive: true\n  lang: zh\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0644))

	oldCfgFile, oldLang, oldNonInteractive, oldCfg := cfgFile, langFlag, nonInteractive, cfg
	t.Cleanup(func() {
		cfgFile, langFlag, nonInteractive, cfg = oldCfgFile, oldLang, oldNonInteractive, oldCfg
		_ = i18n.Init("en")
		applyCommandLocalization()
	})
	cfgFile, langFlag, nonInteractive = path, "", true

	require.NotNil(t, rootCmd.PersistentPreRunE)
	require.NoError(t, rootCmd.PersistentPreRunE(rootCmd, nil))

	require.NotNil(t, cfg)
	assert.False(t, cfg.UI.Interactive)
	assert.Equal(t, filepath.Join(dir, "cores"), cfg.Paths.CoresDir)
	assert.Equal(t, "zh", i18n.CurrentLanguage().String())
	assert.Equal(t, i18n.T("cmd.root.short"), rootCmd.Short)
	assert.Equal(t, i18n.T("cmd.catalog.add.short"), catalogAddCmd.Short)

	a, err := openApp(context.Background())
	require.NoError(t, err)
	n, err := a.lib.CountCatalogs(context.Background(), false)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.FileExists(t, cfg.Storage.Database)

	require.NotNil(t, rootCmd.PersistentPostRunE)
	require.NoError(t, rootCmd.PersistentPostRunE(rootCmd, nil))
	assert.Nil(t, current)
}

func TestPersistentPreRunRejectsBadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corehub.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0644))

	oldCfgFile, oldLang := cfgFile, langFlag
	t.Cleanup(func() { cfgFile, langFlag = oldCfgFile, oldLang })
	cfgFile, langFlag = path, "en"

	err := rootCmd.PersistentPreRunE(rootCmd, nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeConfiguration))
}
