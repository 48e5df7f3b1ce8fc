package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/seantiz/benchrun/internal/model"
	"github.com/seantiz/benchrun/internal/sequencer"
)

func postRun(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/v1/runs", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /v1/runs: %v", err)
	}
	return resp
}

// waitForRun polls GET /v1/runs/{id} until the run leaves running.
func waitForRun(t *testing.T, ts *httptest.Server, id string) model.Run {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := http.Get(ts.URL + "/v1/runs/" + id)
		if err != nil {
			t.Fatalf("GET run: %v", err)
		}
		var r model.Run
		json.NewDecoder(resp.Body).Decode(&r)
		resp.Body.Close()
		if r.Status != model.RunRunning {
			return r
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("run %s still running", id)
	return model.Run{}
}

func TestStartRunAllGroups(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postRun(t, ts, "")
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}

	var run model.Run
	if err := json.NewDecoder(resp.Body).Decode(&run); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(run.ID) != 26 {
		t.Errorf("ID length = %d, want 26", len(run.ID))
	}
	// memory has nothing enabled.
	if run.Total != 2 {
		t.Errorf("Total = %d, want 2", run.Total)
	}

	done := waitForRun(t, ts, run.ID)
	if done.Status != model.RunCompleted || done.Completed != 2 {
		t.Errorf("run = %+v, want completed 2/2", done)
	}

	execResp, err := http.Get(ts.URL + "/v1/runs/" + run.ID + "/executions")
	if err != nil {
		t.Fatalf("GET executions: %v", err)
	}
	defer execResp.Body.Close()

	var execs []model.Execution
	if err := json.NewDecoder(execResp.Body).Decode(&execs); err != nil {
		t.Fatalf("decode executions: %v", err)
	}
	if len(execs) != 2 || execs[0].Group != "ui" || execs[1].Group != "render" {
		t.Fatalf("executions = %+v", execs)
	}
	if execs[0].Status != model.StatusCompleted {
		t.Errorf("status = %q, want completed", execs[0].Status)
	}
}

func TestStartRunSelectedGroups(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postRun(t, ts, `{"groups":["render"]}`)
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", resp.StatusCode)
	}
	var run model.Run
	json.NewDecoder(resp.Body).Decode(&run)
	if run.Total != 1 {
		t.Errorf("Total = %d, want 1", run.Total)
	}
	waitForRun(t, ts, run.ID)
}

func TestStartRunBadRequest(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		name string
		body string
	}{
		{"invalid json", "not json"},
		{"unknown group", `{"groups":["gpu"]}`},
		{"disabled group", `{"groups":["memory"]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := postRun(t, ts, tt.body)
			defer resp.Body.Close()

			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			var errResp map[string]string
			json.NewDecoder(resp.Body).Decode(&errResp)
			if errResp["error"] == "" {
				t.Error("expected error message in response")
			}
		})
	}
}

func TestActiveRunIdle(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/runs/active")
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["phase"] != sequencer.Idle.String() {
		t.Errorf("phase = %v, want idle", body["phase"])
	}
}

func TestGetRunNotFound(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, path := range []string{"/v1/runs/nonexistent", "/v1/runs/nonexistent/executions", "/v1/executions/nonexistent"} {
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusNotFound {
			t.Errorf("GET %s status = %d, want 404", path, resp.StatusCode)
		}
	}
}

func TestGetExecution(t *testing.T) {
	srv := newTestServer(t)
	ex := seedExecution(t, srv, model.ResultFailed)

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/v1/executions/" + ex.ID)
	if err != nil {
		t.Fatalf("GET: %v", err)
	}
	defer resp.Body.Close()

	var got model.Execution
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.ID != ex.ID || got.Status != model.StatusFailed || got.ResultCode != model.ResultFailed {
		t.Errorf("execution = %+v", got)
	}
}

func TestListRunsPagination(t *testing.T) {
	srv := newTestServer(t)
	for range 5 {
		seedExecution(t, srv, model.ResultOK)
	}

	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	tests := []struct {
		query     string
		wantCount int
		wantLimit int
	}{
		{"", 5, defaultListLimit},
		{"?limit=2", 2, 2},
		{"?limit=2&offset=4", 1, 2},
		{"?limit=0", 5, defaultListLimit},
		{"?limit=1000", 5, defaultListLimit},
		{"?offset=-1", 5, defaultListLimit},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("query=%q", tt.query), func(t *testing.T) {
			resp, err := http.Get(ts.URL + "/v1/runs" + tt.query)
			if err != nil {
				t.Fatalf("GET: %v", err)
			}
			defer resp.Body.Close()

			var body listRunsResponse
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if len(body.Runs) != tt.wantCount {
				t.Errorf("runs = %d, want %d", len(body.Runs), tt.wantCount)
			}
			if body.Total != 5 {
				t.Errorf("total = %d, want 5", body.Total)
			}
			if body.Limit != tt.wantLimit {
				t.Errorf("limit = %d, want %d", body.Limit, tt.wantLimit)
			}
		})
	}
}
