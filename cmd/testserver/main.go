// testserver starts a benchrun API server with a stub launcher and an
// in-memory catalog for E2E testing.
// Usage: go run ./cmd/testserver
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/seantiz/benchrun/internal/actions"
	"github.com/seantiz/benchrun/internal/api"
	"github.com/seantiz/benchrun/internal/catalog"
	"github.com/seantiz/benchrun/internal/engine"
	"github.com/seantiz/benchrun/internal/export"
	"github.com/seantiz/benchrun/internal/launcher"
	"github.com/seantiz/benchrun/internal/model"
	"github.com/seantiz/benchrun/internal/notify"
	"github.com/seantiz/benchrun/internal/store"
	"github.com/seantiz/benchrun/internal/upload"
)

// stubLauncher pretends to run a benchmark group: it emits fixed lines,
// waits, and reports the configured result.
type stubLauncher struct {
	delay    time.Duration
	logLines []string
	results  map[string]string // group → result code; ok when absent
}

func (s *stubLauncher) Launch(ctx context.Context, id string, d launcher.Descriptor, emit func(string), done func(launcher.Completion)) error {
	go func() {
		start := time.Now()
		for _, line := range s.logLines {
			emit("[" + d.Group() + "] " + line)
		}

		code := model.ResultOK
		select {
		case <-time.After(s.delay):
			if c, ok := s.results[d.Group()]; ok {
				code = c
			}
		case <-ctx.Done():
			code = model.ResultCanceled
		}

		ids, _ := d.Param(catalog.ParamBenchmarks)
		exit := 0
		if code != model.ResultOK {
			exit = 1
		}
		done(launcher.Completion{
			ExecutionID: id,
			ResultCode:  code,
			ExitCode:    exit,
			Output:      []byte("benchmarks=" + ids),
			Duration:    time.Since(start),
		})
	}()
	return nil
}

func (s *stubLauncher) Capabilities() launcher.Capabilities {
	return launcher.Capabilities{Name: "stub", Description: "simulated benchmark runs"}
}

var groups = []catalog.Group{
	{
		Name: "ui", Target: "ui-bench",
		Benchmarks: []catalog.Benchmark{
			{ID: "list_view_scroll", Name: "List View Scroll", Enabled: true},
			{ID: "list_view_fling", Name: "List View Fling", Enabled: true},
		},
	},
	{
		Name: "render", Target: "render-bench",
		Benchmarks: []catalog.Benchmark{
			{ID: "bitmap_upload", Name: "Bitmap Upload", Enabled: true},
		},
	},
	{
		Name: "memory", Target: "memory-bench",
		Benchmarks: []catalog.Benchmark{
			{ID: "memory_pressure", Name: "Memory Pressure", Enabled: false},
		},
	},
}

func main() {
	addr := ":8080"
	if v := os.Getenv("BENCHRUN_LISTEN_ADDR"); v != "" {
		addr = v
	}

	db, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	cat, err := catalog.New(groups)
	if err != nil {
		log.Fatalf("invalid catalog: %v", err)
	}

	reg := launcher.NewRegistry()
	reg.Register(launcher.KindExec, &stubLauncher{
		delay:    500 * time.Millisecond,
		logLines: []string{"warming up", "measuring", "done"},
		results:  map[string]string{"render": model.ResultFailed},
	})

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	eng := engine.NewEngine(db, reg, logger)

	exportDir, err := os.MkdirTemp("", "benchrun-testserver-*")
	if err != nil {
		log.Fatalf("create export dir: %v", err)
	}
	defer os.RemoveAll(exportDir)

	feed := notify.NewFeed(notify.DefaultFeedSize)
	acts := actions.New(actions.Config{
		Catalog:    cat,
		Runs:       eng,
		Exporter:   export.NewExporter(db, exportDir),
		Uploader:   upload.NewUploader(os.Getenv("BENCHRUN_UPLOAD_URL"), db, nil, logger),
		Notifier:   feed,
		ResultsURL: os.Getenv("BENCHRUN_RESULTS_URL"),
		Logger:     logger,
	})

	srv := api.NewServer(addr, api.Deps{
		Store: db, Catalog: cat, Launchers: reg, Engine: eng, Actions: acts, Feed: feed,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Info("testserver: starting", "addr", addr)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return srv.Run(gctx) })
	if err := g.Wait(); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
