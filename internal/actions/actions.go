// Package actions implements the user-facing commands of a benchmark host:
// start every registered group, export results, upload results and open the
// results website. Export and upload run as background tasks whose outcome
// is delivered once on a channel.
package actions

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/skratchdot/open-golang/open"

	"github.com/seantiz/benchrun/internal/launcher"
	"github.com/seantiz/benchrun/internal/model"
	"github.com/seantiz/benchrun/internal/notify"
)

// Notice texts.
const (
	MsgExporting     = "Exporting..."
	MsgExportDone    = "Done"
	MsgUploading     = "Uploading results..."
	MsgUploadOK      = "Upload succeeded"
	MsgUploadFailed  = "Upload failed"
	msgExportFailedF = "Export failed: %v"
)

// ErrNoResultsURL is returned by ViewResults when no results URL is set.
var ErrNoResultsURL = errors.New("results url not configured")

// DescriptorSource yields the launchable benchmark groups in order.
type DescriptorSource interface {
	Descriptors() []launcher.Descriptor
}

// RunStarter hands descriptors to the sequencer.
type RunStarter interface {
	StartRun(ctx context.Context, ds []launcher.Descriptor) (*model.Run, error)
}

// Exporter writes a results file and returns its path.
type Exporter interface {
	Export(ctx context.Context) (string, error)
}

// Uploader sends results and reports whether they were accepted.
type Uploader interface {
	Upload(ctx context.Context) bool
}

// Outcome is the result of a background task.
type Outcome struct {
	// Path is set by a successful export.
	Path string `json:"path,omitempty"`
	OK   bool   `json:"ok"`
	Err  error  `json:"-"`
}

// Actions groups the collaborators behind the host's commands.
type Actions struct {
	catalog    DescriptorSource
	runs       RunStarter
	exporter   Exporter
	uploader   Uploader
	notifier   notify.Notifier
	resultsURL string
	logger     *slog.Logger
	open       func(string) error
}

// Config wires an Actions value.
type Config struct {
	Catalog    DescriptorSource
	Runs       RunStarter
	Exporter   Exporter
	Uploader   Uploader
	Notifier   notify.Notifier
	ResultsURL string
	Logger     *slog.Logger
}

// New creates Actions. A nil notifier discards notices.
func New(cfg Config) *Actions {
	n := cfg.Notifier
	if n == nil {
		n = notify.Discard
	}
	return &Actions{
		catalog:    cfg.Catalog,
		runs:       cfg.Runs,
		exporter:   cfg.Exporter,
		uploader:   cfg.Uploader,
		notifier:   n,
		resultsURL: cfg.ResultsURL,
		logger:     cfg.Logger,
		open:       open.Start,
	}
}

// StartAll starts a run over every group that currently has an enabled
// benchmark, replacing any pending run.
func (a *Actions) StartAll(ctx context.Context) (*model.Run, error) {
	ds := a.catalog.Descriptors()
	r, err := a.runs.StartRun(ctx, ds)
	if err != nil {
		return nil, fmt.Errorf("start all: %w", err)
	}
	a.logger.Info("run started", "run_id", r.ID, "groups", len(ds))
	return r, nil
}

// Export starts a background export. The task is not cancelled when ctx is.
func (a *Actions) Export(ctx context.Context) <-chan Outcome {
	out := make(chan Outcome, 1)
	ctx = context.WithoutCancel(ctx)

	a.notifier.Notify(notify.New(notify.LevelInfo, MsgExporting))
	go func() {
		path, err := a.exporter.Export(ctx)
		if err != nil {
			a.logger.Error("export failed", "error", err)
			a.notifier.Notify(notify.New(notify.LevelError, fmt.Sprintf(msgExportFailedF, err)))
			out <- Outcome{Err: err}
			return
		}
		a.logger.Info("results exported", "path", path)
		a.notifier.Notify(notify.New(notify.LevelSuccess, MsgExportDone))
		out <- Outcome{Path: path, OK: true}
	}()
	return out
}

// Upload starts a background upload. The task is not cancelled when ctx is.
func (a *Actions) Upload(ctx context.Context) <-chan Outcome {
	out := make(chan Outcome, 1)
	ctx = context.WithoutCancel(ctx)

	a.notifier.Notify(notify.New(notify.LevelInfo, MsgUploading))
	go func() {
		if a.uploader.Upload(ctx) {
			a.notifier.Notify(notify.New(notify.LevelSuccess, MsgUploadOK))
			out <- Outcome{OK: true}
			return
		}
		a.notifier.Notify(notify.New(notify.LevelError, MsgUploadFailed))
		out <- Outcome{}
	}()
	return out
}

// ResultsURL returns the configured results website.
func (a *Actions) ResultsURL() string {
	return a.resultsURL
}

// ViewResults opens the results website in the system browser and returns
// its URL.
func (a *Actions) ViewResults() (string, error) {
	if a.resultsURL == "" {
		return "", ErrNoResultsURL
	}
	if err := a.open(a.resultsURL); err != nil {
		return a.resultsURL, fmt.Errorf("open browser: %w", err)
	}
	return a.resultsURL, nil
}
