package cmd

import (
	"context"
	"fmt"

	apperrors "github.com/huanfeng/corehub/internal/errors"
	"github.com/huanfeng/corehub/internal/i18n"
	"github.com/huanfeng/corehub/internal/version"
	"github.com/huanfeng/corehub/pkg/client"
	"github.com/huanfeng/corehub/pkg/library"
	"github.com/huanfeng/corehub/pkg/remote"
	"github.com/huanfeng/corehub/pkg/store"
	"github.com/huanfeng/corehub/pkg/ui"
	"github.com/huanfeng/corehub/pkg/utils"
)

// appState holds what commands share for one invocation.
type appState struct {
	db        *store.DB
	transport *client.HTTPTransport
	graph     *remote.Graph
	lib       *library.Library
}

var current *appState

func prompter() ui.Prompter {
	if cfg == nil || !cfg.UI.Interactive {
		return ui.Silent{}
	}
	return ui.NewTerminal()
}

func newTransport() *client.HTTPTransport {
	retry := client.DefaultRetryConfig()
	retry.MaxRetries = cfg.Network.MaxRetries
	retry.Timeout = cfg.Network.Timeout
	return client.NewHTTPTransport(
		client.WithRetry(retry),
		client.WithRateLimit(cfg.Network.RateLimit),
		client.WithUserAgent(cfg.Network.UserAgent),
	)
}

// openApp opens the database and builds the catalog graph on first use.
func openApp(ctx context.Context) (*appState, error) {
	if current != nil {
		return current, nil
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "DIRS", i18n.T("errors.dirs"))
	}

	db, err := store.Open(ctx, cfg.Storage.Database)
	if err != nil {
		return nil, apperrors.WrapError(err, apperrors.ErrorTypeFileSystem, "DB_OPEN", i18n.T("errors.dbOpen")).
			WithContext("path", cfg.Storage.Database)
	}
	utils.Debug("opened database %s", db.Path())

	transport := newTransport()
	graph := remote.NewGraph(client.NewFetcher(transport, prompter()),
		remote.WithConcurrency(cfg.Network.Concurrency))
	lib := library.New(db, graph,
		library.WithCoresDir(cfg.Paths.CoresDir),
		library.WithWorkers(cfg.Network.Concurrency),
		library.WithInstalledVersions(version.Installed),
	)

	current = &appState{db: db, transport: transport, graph: graph, lib: lib}
	return current, nil
}

func closeApp() error {
	if current == nil {
		return nil
	}
	err := current.db.Close()
	current = nil
	if err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}

// warnIfOffline logs a warning when the network looks unreachable.
func (a *appState) warnIfOffline(ctx context.Context) {
	if !a.transport.IsOnline(ctx) {
		utils.Warn("%s", i18n.T("warn.offline"))
	}
}
