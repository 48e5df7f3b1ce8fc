package cli

import (
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/seantiz/benchrun/internal/actions"
	"github.com/seantiz/benchrun/internal/catalog"
	"github.com/seantiz/benchrun/internal/config"
	"github.com/seantiz/benchrun/internal/engine"
	"github.com/seantiz/benchrun/internal/export"
	"github.com/seantiz/benchrun/internal/launcher"
	"github.com/seantiz/benchrun/internal/notify"
	"github.com/seantiz/benchrun/internal/store"
	"github.com/seantiz/benchrun/internal/upload"
)

// app holds the components every command is built from.
type app struct {
	cfg       config.Config
	logger    *slog.Logger
	store     *store.SQLiteStore
	catalog   *catalog.Registry
	exec      *launcher.ExecLauncher
	launchers *launcher.Registry
	engine    *engine.Engine
	feed      *notify.Feed
	actions   *actions.Actions
}

// newApp opens the store and catalog and wires the engine and actions.
// Notices go to out and to an in-memory feed.
func newApp(cfg config.Config, out, logOut io.Writer) (*app, error) {
	logger := config.NewLogger(logOut, cfg.LogLevel)

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// Targets in the catalog are relative to the catalog file.
	execL := launcher.NewExecLauncher(filepath.Dir(cfg.CatalogPath), logger)
	reg := launcher.NewRegistry()
	reg.Register(launcher.KindExec, execL)

	eng := engine.NewEngine(db, reg, logger)
	feed := notify.NewFeed(notify.DefaultFeedSize)

	client := upload.DefaultClientConfig()
	client.Timeout = cfg.UploadTimeout

	acts := actions.New(actions.Config{
		Catalog:    cat,
		Runs:       eng,
		Exporter:   export.NewExporter(db, cfg.ExportDir),
		Uploader:   upload.NewUploader(cfg.UploadURL, db, upload.NewClient(client), logger),
		Notifier:   notify.Multi{notify.NewTerminal(out), feed},
		ResultsURL: cfg.ResultsURL,
		Logger:     logger,
	})

	return &app{
		cfg:       cfg,
		logger:    logger,
		store:     db,
		catalog:   cat,
		exec:      execL,
		launchers: reg,
		engine:    eng,
		feed:      feed,
		actions:   acts,
	}, nil
}

// close waits for launched processes and closes the store.
func (a *app) close() error {
	a.exec.Wait()
	return a.store.Close()
}
