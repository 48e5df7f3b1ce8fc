package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seantiz/benchrun/internal/actions"
	"github.com/seantiz/benchrun/internal/catalog"
	"github.com/seantiz/benchrun/internal/engine"
	"github.com/seantiz/benchrun/internal/export"
	"github.com/seantiz/benchrun/internal/launcher"
	"github.com/seantiz/benchrun/internal/model"
	"github.com/seantiz/benchrun/internal/notify"
	"github.com/seantiz/benchrun/internal/store"
	"github.com/seantiz/benchrun/internal/upload"
)

const testCatalog = `
groups:
  - name: ui
    target: ./bin/ui-bench
    benchmarks:
      - {id: list_view_scroll, name: List View Scroll, enabled: true}
      - {id: edit_text_input, name: Edit Text Input, enabled: false}
  - name: render
    target: ./bin/render-bench
    benchmarks:
      - {id: bitmap_upload, name: Bitmap Upload, enabled: true}
  - name: memory
    target: ./bin/memory-bench
    benchmarks:
      - {id: memory_pressure, name: Memory Pressure, enabled: false}
`

const testResultsURL = "https://results.example.com/web"

// instantLauncher finishes every unit successfully right after starting it.
type instantLauncher struct{}

func (instantLauncher) Launch(_ context.Context, id string, d launcher.Descriptor, emit func(string), done func(launcher.Completion)) error {
	go func() {
		emit("running " + d.Group())
		done(launcher.Completion{ExecutionID: id, ResultCode: model.ResultOK, Duration: time.Millisecond})
	}()
	return nil
}

func (instantLauncher) Capabilities() launcher.Capabilities {
	return launcher.Capabilities{Name: "instant", Description: "completes immediately"}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}

	cat, err := catalog.Parse([]byte(testCatalog))
	if err != nil {
		t.Fatalf("catalog.Parse: %v", err)
	}

	reg := launcher.NewRegistry()
	reg.Register(launcher.KindExec, instantLauncher{})

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	eng := engine.NewEngine(s, reg, logger)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
		s.Close()
	})

	feed := notify.NewFeed(notify.DefaultFeedSize)
	acts := actions.New(actions.Config{
		Catalog:    cat,
		Runs:       eng,
		Exporter:   export.NewExporter(s, t.TempDir()),
		Uploader:   upload.NewUploader("", s, nil, logger),
		Notifier:   feed,
		ResultsURL: testResultsURL,
		Logger:     logger,
	})

	return NewServer(":0", Deps{
		Store:     s,
		Catalog:   cat,
		Launchers: reg,
		Engine:    eng,
		Actions:   acts,
		Feed:      feed,
	}, logger)
}

// seedExecution records a run with one execution in the given state.
func seedExecution(t *testing.T, srv *Server, resultCode string) *model.Execution {
	t.Helper()
	ctx := context.Background()

	r := &model.Run{ID: model.NewID(), Status: model.RunRunning, Total: 1, CreatedAt: time.Now().UTC()}
	if err := srv.store.CreateRun(ctx, r); err != nil {
		t.Fatalf("CreateRun: %v", err)
	}
	ex := &model.Execution{
		ID: model.NewID(), RunID: r.ID, Group: "ui", Kind: launcher.KindExec, Target: "./bin/ui-bench",
		Status: model.StatusRunning, StartedAt: time.Now().UTC(),
	}
	if err := srv.store.CreateExecution(ctx, ex); err != nil {
		t.Fatalf("CreateExecution: %v", err)
	}
	if resultCode == "" {
		return ex
	}

	exit, dur, now := 0, 100, time.Now().UTC()
	fin := &model.Execution{
		ID: ex.ID, Status: model.ExecutionStatus(resultCode), ResultCode: resultCode,
		ExitCode: &exit, DurationMS: &dur, FinishedAt: &now,
	}
	if err := srv.store.FinishExecution(ctx, fin); err != nil {
		t.Fatalf("FinishExecution: %v", err)
	}
	ex.Status = fin.Status
	return ex
}

func TestRequestIDHeader(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/test")
	if err != nil {
		t.Fatalf("GET /test: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestPanicRecovery(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/panic", func(w http.ResponseWriter, r *http.Request) {
		panic("test panic")
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/panic")
	if err != nil {
		t.Fatalf("GET /panic: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t)
	srv.Router().Get("/test", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	req, _ := http.NewRequest("OPTIONS", ts.URL+"/test", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("OPTIONS /test: %v", err)
	}
	defer resp.Body.Close()

	if v := resp.Header.Get("Access-Control-Allow-Origin"); v != "*" {
		t.Errorf("Access-Control-Allow-Origin = %q, want %q", v, "*")
	}
}

func TestServerRunStopsOnCancel(t *testing.T) {
	srv := newTestServer(t)
	srv.addr = "127.0.0.1:0"

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
