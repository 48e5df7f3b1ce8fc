package e2e

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/benchrun/internal/actions"
	"github.com/seantiz/benchrun/internal/api"
	"github.com/seantiz/benchrun/internal/catalog"
	"github.com/seantiz/benchrun/internal/engine"
	"github.com/seantiz/benchrun/internal/export"
	"github.com/seantiz/benchrun/internal/launcher"
	"github.com/seantiz/benchrun/internal/notify"
	"github.com/seantiz/benchrun/internal/store"
	"github.com/seantiz/benchrun/internal/upload"
)

// stack is the full in-process benchrun stack with a real exec launcher.
type stack struct {
	ts  *httptest.Server
	dir string
}

func newStack(t *testing.T, catalogYAML string) *stack {
	t.Helper()
	skipWithoutShell(t)

	dir := t.TempDir()
	s, err := store.NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}

	cat, err := catalog.Parse([]byte(catalogYAML))
	if err != nil {
		t.Fatalf("catalog.Parse: %v", err)
	}

	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	execL := launcher.NewExecLauncher(dir, logger)
	reg := launcher.NewRegistry()
	reg.Register(launcher.KindExec, execL)

	eng := engine.NewEngine(s, reg, logger)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		eng.Run(ctx)
	}()

	feed := notify.NewFeed(0)
	acts := actions.New(actions.Config{
		Catalog:  cat,
		Runs:     eng,
		Exporter: export.NewExporter(s, filepath.Join(dir, "exports")),
		Uploader: upload.NewUploader("", s, nil, logger),
		Notifier: feed,
		Logger:   logger,
	})

	srv := api.NewServer(":0", api.Deps{
		Store: s, Catalog: cat, Launchers: reg, Engine: eng, Actions: acts, Feed: feed,
	}, logger)
	ts := httptest.NewServer(srv.Router())

	t.Cleanup(func() {
		ts.Close()
		cancel()
		<-done
		execL.Wait()
		s.Close()
	})
	return &stack{ts: ts, dir: dir}
}

func (st *stack) startRun(t *testing.T, body string) string {
	t.Helper()
	resp, err := http.Post(st.ts.URL+"/v1/runs", "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST /v1/runs: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		b, _ := io.ReadAll(resp.Body)
		t.Fatalf("status = %d, want 202\nbody: %s", resp.StatusCode, b)
	}
	var run map[string]any
	json.NewDecoder(resp.Body).Decode(&run)
	return run["id"].(string)
}

func (st *stack) waitRun(t *testing.T, id, expected string) map[string]any {
	t.Helper()
	deadline := time.Now().Add(10 * time.Second)
	for time.Now().Before(deadline) {
		var run map[string]any
		getJSON(t, st.ts.URL+"/v1/runs/"+id, &run)
		if run["status"] == expected {
			return run
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s did not reach %q", id, expected)
	return nil
}

// currentExecution polls the active run until a unit is in flight.
func (st *stack) currentExecution(t *testing.T) string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		var state struct {
			Current *struct {
				ExecutionID string `json:"execution_id"`
			} `json:"current"`
		}
		getJSON(t, st.ts.URL+"/v1/runs/active", &state)
		if state.Current != nil {
			return state.Current.ExecutionID
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("no unit in flight")
	return ""
}

// sseEvent represents a parsed SSE event with optional named type.
type sseEvent struct {
	Type string
	Data string
}

// readSSEEvents reads all SSE events from the response body, parsing named
// events (event: <type>) and data lines.
func readSSEEvents(t *testing.T, resp *http.Response) []sseEvent {
	t.Helper()
	scanner := bufio.NewScanner(resp.Body)
	var events []sseEvent
	var currentType string
	var currentData []string
	for scanner.Scan() {
		line := scanner.Text()
		if et, ok := strings.CutPrefix(line, "event: "); ok {
			currentType = et
		} else if data, ok := strings.CutPrefix(line, "data: "); ok {
			currentData = append(currentData, data)
		} else if line == "" && len(currentData) > 0 {
			events = append(events, sseEvent{Type: currentType, Data: strings.Join(currentData, "\n")})
			currentType = ""
			currentData = nil
		}
	}
	if len(currentData) > 0 {
		events = append(events, sseEvent{Type: currentType, Data: strings.Join(currentData, "\n")})
	}
	return events
}

const markCatalog = `
groups:
  - name: a
    target: sh
    args: ["-c", "echo start $BENCHRUN_GROUP >> marks; sleep 0.1; echo end $BENCHRUN_GROUP >> marks"]
    benchmarks: [{id: one, name: One, enabled: true}]
  - name: b
    target: sh
    args: ["-c", "echo start $BENCHRUN_GROUP >> marks; exit 1"]
    benchmarks: [{id: one, name: One, enabled: true}]
  - name: c
    target: sh
    args: ["-c", "echo start $BENCHRUN_GROUP >> marks; sleep 0.05; echo end $BENCHRUN_GROUP >> marks"]
    benchmarks: [{id: one, name: One, enabled: true}]
`

func TestGroupsRunOneAtATime(t *testing.T) {
	st := newStack(t, markCatalog)

	id := st.startRun(t, "")
	run := st.waitRun(t, id, "completed")
	if run["dispatched"].(float64) != 3 || run["completed"].(float64) != 3 {
		t.Errorf("run = %v", run)
	}

	b, err := os.ReadFile(filepath.Join(st.dir, "marks"))
	if err != nil {
		t.Fatalf("read marks: %v", err)
	}
	got := strings.Split(strings.TrimSpace(string(b)), "\n")
	want := []string{"start a", "end a", "start b", "start c", "end c"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("marks = %v, want %v", got, want)
	}
}

const streamCatalog = `
groups:
  - name: stream
    target: sh
    args: ["-c", "sleep 0.3; echo line 1; echo line 2; echo line 3"]
    benchmarks: [{id: one, name: One, enabled: true}]
`

func TestLiveLogsEndWithDoneEvent(t *testing.T) {
	st := newStack(t, streamCatalog)

	runID := st.startRun(t, "")
	execID := st.currentExecution(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, "GET", st.ts.URL+"/v1/executions/"+execID+"/logs", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET logs: %v", err)
	}
	defer resp.Body.Close()

	events := readSSEEvents(t, resp)
	if len(events) != 4 {
		t.Fatalf("got %d events, want 4: %v", len(events), events)
	}
	for i, want := range []string{"line 1", "line 2", "line 3"} {
		if events[i].Type != "" || events[i].Data != want {
			t.Errorf("event[%d] = %+v, want data %q", i, events[i], want)
		}
	}
	if last := events[3]; last.Type != "done" || last.Data != "stream complete" {
		t.Errorf("last event = %+v", last)
	}

	st.waitRun(t, runID, "completed")

	var history struct {
		Lines []struct {
			Seq  int    `json:"seq"`
			Line string `json:"line"`
		} `json:"lines"`
	}
	getJSON(t, st.ts.URL+"/v1/executions/"+execID+"/logs/history", &history)
	if len(history.Lines) != 3 {
		t.Fatalf("history = %+v", history.Lines)
	}
	for i, l := range history.Lines {
		if l.Seq != i || l.Line != events[i].Data {
			t.Errorf("history[%d] = %+v, streamed %q", i, l, events[i].Data)
		}
	}
}

const slowCatalog = `
groups:
  - name: slow
    target: sh
    args: ["-c", "sleep 0.3; echo start $BENCHRUN_GROUP >> marks"]
    benchmarks: [{id: one, name: One, enabled: true}]
  - name: fast
    target: sh
    args: ["-c", "echo start $BENCHRUN_GROUP >> marks"]
    benchmarks: [{id: one, name: One, enabled: true}]
`

func TestReplacingRunWaitsForInFlightUnit(t *testing.T) {
	st := newStack(t, slowCatalog)

	first := st.startRun(t, "")
	st.currentExecution(t)
	second := st.startRun(t, `{"groups":["fast"]}`)

	st.waitRun(t, first, "aborted")
	st.waitRun(t, second, "completed")

	b, err := os.ReadFile(filepath.Join(st.dir, "marks"))
	if err != nil {
		t.Fatalf("read marks: %v", err)
	}
	got := strings.Split(strings.TrimSpace(string(b)), "\n")
	if strings.Join(got, "|") != "start slow|start fast" {
		t.Errorf("marks = %v", got)
	}
}
