package library

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/pkg/versions"
)

func TestInstallCore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.createCatalog(t)

	rc, err := env.graph.FetchCatalog(ctx, env.catalogURL(), false)
	require.NoError(t, err)
	remoteCore, err := rc.FetchCore(ctx, "nes-core")
	require.NoError(t, err)

	core, err := env.lib.InstallCore(ctx, remoteCore, c, "")
	require.NoError(t, err)
	assert.Equal(t, "1.1", core.Version.String())
	assert.Equal(t, filepath.Join(env.lib.CoreDir("nes-core", core.Version), "nes-core-1.1.rbf"), core.RbfPath)
	data, err := os.ReadFile(core.RbfPath)
	require.NoError(t, err)
	assert.Equal(t, rbf11, data)

	nes, err := env.lib.GetSystemByUniqueName(ctx, "nes")
	require.NoError(t, err)
	forNes, err := env.lib.ListCores(ctx, nes.ID)
	require.NoError(t, err)
	require.Len(t, forNes, 1)
	assert.Equal(t, core.ID, forNes[0].ID)

	n, err := env.lib.CountCores(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	games, err := env.lib.ListGames(ctx, "")
	require.NoError(t, err)
	require.Len(t, games, 1)
	assert.Equal(t, "NES Core", games[0].Name)
	assert.False(t, games[0].Identified)

	_, err = env.lib.InstallCore(ctx, remoteCore, c, "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDuplicate))
}

func TestInstallOlderCoreThenFlagUpdate(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.createCatalog(t)

	rc, err := env.graph.FetchCatalog(ctx, env.catalogURL(), false)
	require.NoError(t, err)
	remoteCore, err := rc.FetchCore(ctx, "nes-core")
	require.NoError(t, err)

	old, err := env.lib.InstallCore(ctx, remoteCore, c, "1.0")
	require.NoError(t, err)
	assert.Equal(t, "1.0", old.Version.String())

	flagged, err := env.lib.CheckCoresForUpdates(ctx)
	require.NoError(t, err)
	assert.True(t, flagged)

	got, err := env.lib.GetCoreByID(ctx, old.ID)
	require.NoError(t, err)
	assert.True(t, got.UpdatePending)

	require.NoError(t, env.lib.CleanCore(ctx, got))
	again, err := env.lib.InstallCore(ctx, remoteCore, c, "")
	require.NoError(t, err)
	assert.Equal(t, old.ID, again.ID)
	assert.True(t, again.UpdatePending)

	_, err = env.lib.InstallCore(ctx, remoteCore, c, "9.9")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
}

func TestInstallCoreUnknownSystem(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.createCatalog(t)

	rc, err := env.graph.FetchCatalog(ctx, env.catalogURL(), false)
	require.NoError(t, err)
	remoteCore, err := rc.FetchCore(ctx, "gen-core")
	require.NoError(t, err)

	_, err = env.lib.InstallCore(ctx, remoteCore, c, "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeNotFound))
	assert.Equal(t, 0, env.count(t, "cores"))
}

func TestInstallCoreHashMismatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.createCatalog(t)

	rc, err := env.graph.FetchCatalog(ctx, env.catalogURL(), false)
	require.NoError(t, err)
	remoteCore, err := rc.FetchCore(ctx, "bad-core")
	require.NoError(t, err)

	_, err = env.lib.InstallCore(ctx, remoteCore, c, "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeIntegrity))
	assert.Equal(t, 0, env.count(t, "cores"))
	assert.NoFileExists(t, filepath.Join(env.lib.CoreDir("bad-core", versions.String("1")), "nes-core-1.0.rbf"))

	list, err := env.lib.ListCoresForCatalog(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestInstallCoreRejectsCollidingFileNames(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.createCatalog(t)

	rc, err := env.graph.FetchCatalog(ctx, env.catalogURL(), false)
	require.NoError(t, err)
	remoteCore, err := rc.FetchCore(ctx, "dup-core")
	require.NoError(t, err)

	_, err = env.lib.InstallCore(ctx, remoteCore, c, "")
	e, ok := apperrors.As(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrorTypeIntegrity, e.Type)
	assert.Equal(t, "DUPLICATE_FILE_NAME", e.Code)
	assert.Equal(t, "dup-core", e.Context["core"])
	assert.Equal(t, 0, env.server.hits("/cores/a/data.bin"))
	assert.Equal(t, 0, env.server.hits("/cores/b/data.bin"))
	assert.Equal(t, 0, env.count(t, "cores"))
}

func TestUpgradeCore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.createCatalog(t)

	rc, err := env.graph.FetchCatalog(ctx, env.catalogURL(), false)
	require.NoError(t, err)
	remoteCore, err := rc.FetchCore(ctx, "nes-core")
	require.NoError(t, err)

	old, err := env.lib.InstallCore(ctx, remoteCore, c, "1.0")
	require.NoError(t, err)
	flagged, err := env.lib.CheckCoresForUpdates(ctx)
	require.NoError(t, err)
	require.True(t, flagged)
	pending, err := env.lib.GetCoreByID(ctx, old.ID)
	require.NoError(t, err)
	require.True(t, pending.UpdatePending)

	upgraded, err := env.lib.UpgradeCore(ctx, pending, "")
	require.NoError(t, err)
	assert.Equal(t, old.ID, upgraded.ID)
	assert.Equal(t, "1.1", upgraded.Version.String())
	assert.False(t, upgraded.UpdatePending)
	assert.Equal(t, filepath.Join(env.lib.CoreDir("nes-core", upgraded.Version), "nes-core-1.1.rbf"), upgraded.RbfPath)
	data, err := os.ReadFile(upgraded.RbfPath)
	require.NoError(t, err)
	assert.Equal(t, rbf11, data)
	assert.NoDirExists(t, env.lib.CoreDir("nes-core", old.Version))

	stored, err := env.lib.GetCoreByID(ctx, old.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.1", stored.Version.String())
	assert.False(t, stored.UpdatePending)

	_, err = env.lib.UpgradeCore(ctx, stored, "")
	assert.True(t, apperrors.IsType(err, apperrors.ErrorTypeDuplicate))

	flagged, err = env.lib.CheckCoresForUpdates(ctx)
	require.NoError(t, err)
	assert.False(t, flagged)
}
