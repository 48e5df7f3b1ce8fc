// Package export writes finished benchmark executions to CSV files.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/seantiz/benchrun/internal/model"
)

// KindIO classifies failures reading results or writing the export file.
const KindIO = "io"

// filePrefix is the leading part of every export file name.
const filePrefix = "benchrun-results-"

// maxSameSecond bounds the exports that can share one timestamp.
const maxSameSecond = 100

// Error is returned by Export. Kind is currently always KindIO.
type Error struct {
	Kind string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("export %s error: %v", e.Kind, e.Err)
	}
	return fmt.Sprintf("export %s error on %s: %v", e.Kind, e.Path, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ResultSource lists finished executions, oldest first.
type ResultSource interface {
	ListResults(ctx context.Context) ([]*model.Execution, error)
}

// Header is the first CSV row of every export.
var Header = []string{
	"execution_id", "run_id", "seq", "group", "kind", "target", "status",
	"result_code", "exit_code", "duration_ms", "started_at", "finished_at", "error",
}

// Exporter writes result snapshots into a directory.
type Exporter struct {
	src ResultSource
	dir string
	now func() time.Time
}

// NewExporter creates an exporter writing into dir.
func NewExporter(src ResultSource, dir string) *Exporter {
	return &Exporter{src: src, dir: dir, now: time.Now}
}

// Export writes every finished execution to a new timestamped CSV file in the
// export directory and returns its path. The file appears atomically.
func (x *Exporter) Export(ctx context.Context) (string, error) {
	results, err := x.src.ListResults(ctx)
	if err != nil {
		return "", &Error{Kind: KindIO, Err: fmt.Errorf("list results: %w", err)}
	}

	if err := os.MkdirAll(x.dir, 0o755); err != nil {
		return "", &Error{Kind: KindIO, Path: x.dir, Err: err}
	}

	stamp := filePrefix + x.now().UTC().Format("20060102T150405Z")
	name := stamp + ".csv"
	path := filepath.Join(x.dir, name)

	tmp, err := os.CreateTemp(x.dir, "."+name+".*")
	if err != nil {
		return "", &Error{Kind: KindIO, Path: path, Err: err}
	}
	tmpName := tmp.Name()

	if err := writeCSV(tmp, results); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", &Error{Kind: KindIO, Path: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", &Error{Kind: KindIO, Path: path, Err: err}
	}
	defer os.Remove(tmpName)

	// Linking never replaces an existing file, so exports within the same
	// second get a numeric suffix instead of overwriting each other.
	for n := 1; n <= maxSameSecond; n++ {
		if n > 1 {
			path = filepath.Join(x.dir, fmt.Sprintf("%s-%d.csv", stamp, n))
		}
		err := os.Link(tmpName, path)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", &Error{Kind: KindIO, Path: path, Err: err}
		}
	}
	return "", &Error{Kind: KindIO, Path: path, Err: fs.ErrExist}
}

func writeCSV(f *os.File, results []*model.Execution) error {
	w := csv.NewWriter(f)
	if err := w.Write(Header); err != nil {
		return err
	}
	for _, e := range results {
		if err := w.Write(Row(e)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

// Row renders one execution as a CSV record matching Header.
func Row(e *model.Execution) []string {
	return []string{
		e.ID,
		e.RunID,
		strconv.Itoa(e.Seq),
		e.Group,
		e.Kind,
		e.Target,
		e.Status,
		e.ResultCode,
		optInt(e.ExitCode),
		optInt(e.DurationMS),
		e.StartedAt.UTC().Format(time.RFC3339),
		optTime(e.FinishedAt),
		e.Error,
	}
}

func optInt(v *int) string {
	if v == nil {
		return ""
	}
	return strconv.Itoa(*v)
}

func optTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
