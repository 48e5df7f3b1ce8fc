package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/seantiz/benchrun/internal/launcher"
)

const testCatalog = `
groups:
  - name: ui
    target: ./ui-bench
    timeout_s: 60
    benchmarks:
      - id: scroll
        name: Scroll
        enabled: true
      - id: fling
        name: Fling
        enabled: true
        params:
          velocity: "8000"
      - id: input
        name: Input
        enabled: false
  - name: memory
    target: ./memory-bench
    benchmarks:
      - id: pressure
        name: Pressure
        enabled: false
  - name: render
    kind: exec
    target: ./render-bench
    args: ["--warmup", "2"]
    benchmarks:
      - id: overdraw
        name: Overdraw
        enabled: true
`

func mustParse(t *testing.T, doc string) *Registry {
	t.Helper()
	r, err := Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	return r
}

func TestGroupCountAndGroup(t *testing.T) {
	r := mustParse(t, testCatalog)

	if r.GroupCount() != 3 {
		t.Fatalf("GroupCount() = %d, want 3", r.GroupCount())
	}

	ui := r.Group(0)
	if ui == nil {
		t.Fatal("Group(0) = nil, want ui descriptor")
	}
	if ui.Group() != "ui" || ui.Target() != "./ui-bench" || ui.Kind() != launcher.KindExec {
		t.Errorf("ui descriptor = %s/%s/%s", ui.Group(), ui.Target(), ui.Kind())
	}
	if ids, _ := ui.Param(ParamBenchmarks); ids != "scroll,fling" {
		t.Errorf("benchmarks param = %q, want scroll,fling", ids)
	}
	if v, _ := ui.Param("velocity"); v != "8000" {
		t.Errorf("velocity param = %q, want 8000", v)
	}
	if ui.Timeout() != 60*time.Second {
		t.Errorf("timeout = %v, want 60s", ui.Timeout())
	}

	if r.Group(1) != nil {
		t.Error("Group(1) should be nil: no enabled benchmark")
	}
	if r.Group(-1) != nil || r.Group(3) != nil {
		t.Error("out-of-range Group() should be nil")
	}

	render := r.Group(2)
	if render == nil || strings.Join(render.Args(), " ") != "--warmup 2" {
		t.Errorf("render descriptor args = %v", render)
	}
}

func TestDescriptorsSkipsDisabledGroups(t *testing.T) {
	r := mustParse(t, testCatalog)

	ds := r.Descriptors()
	if len(ds) != 2 {
		t.Fatalf("Descriptors() returned %d, want 2", len(ds))
	}
	if ds[0].Group() != "ui" || ds[1].Group() != "render" {
		t.Errorf("order = %s, %s; want ui, render", ds[0].Group(), ds[1].Group())
	}
}

func TestSetEnabled(t *testing.T) {
	r := mustParse(t, testCatalog)

	if err := r.SetEnabled("memory", "pressure", true); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if r.Group(1) == nil {
		t.Error("memory group should produce a descriptor once enabled")
	}

	if err := r.SetEnabled("ui", "scroll", false); err != nil {
		t.Fatalf("SetEnabled: %v", err)
	}
	if ids, _ := r.Group(0).Param(ParamBenchmarks); ids != "fling" {
		t.Errorf("benchmarks param = %q, want fling", ids)
	}

	if err := r.SetEnabled("ui", "nope", true); !errors.Is(err, ErrUnknownBenchmark) {
		t.Errorf("unknown benchmark error = %v, want ErrUnknownBenchmark", err)
	}
	if err := r.SetEnabled("nope", "scroll", true); !errors.Is(err, ErrUnknownBenchmark) {
		t.Errorf("unknown group error = %v, want ErrUnknownBenchmark", err)
	}
}

func TestGroupsReturnsCopy(t *testing.T) {
	r := mustParse(t, testCatalog)

	gs := r.Groups()
	gs[0].Benchmarks[0].Enabled = false
	gs[0].Benchmarks[1].Params["velocity"] = "1"

	again := r.Groups()
	if !again[0].Benchmarks[0].Enabled {
		t.Error("Groups() exposed internal benchmark state")
	}
	if again[0].Benchmarks[1].Params["velocity"] != "8000" {
		t.Error("Groups() exposed internal params")
	}
}

func TestValidation(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing name", "groups:\n  - target: ./x\n"},
		{"missing target", "groups:\n  - name: ui\n"},
		{"duplicate group", "groups:\n  - name: ui\n    target: ./x\n  - name: ui\n    target: ./y\n"},
		{"negative timeout", "groups:\n  - name: ui\n    target: ./x\n    timeout_s: -1\n"},
		{"benchmark without id", "groups:\n  - name: ui\n    target: ./x\n    benchmarks:\n      - name: a\n"},
		{"duplicate benchmark", "groups:\n  - name: ui\n    target: ./x\n    benchmarks:\n      - id: a\n      - id: a\n"},
		{"comma in id", "groups:\n  - name: ui\n    target: ./x\n    benchmarks:\n      - id: a,b\n"},
		{"malformed yaml", "groups: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			if !errors.Is(err, ErrInvalid) {
				t.Errorf("Parse error = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	if err := os.WriteFile(path, []byte(testCatalog), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.GroupCount() != 3 {
		t.Errorf("GroupCount() = %d, want 3", r.GroupCount())
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Load of missing file should fail")
	}
}

func TestEmptyCatalog(t *testing.T) {
	r := mustParse(t, "groups: []\n")
	if r.GroupCount() != 0 || len(r.Descriptors()) != 0 {
		t.Error("empty catalog should have no groups or descriptors")
	}
}
