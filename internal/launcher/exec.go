package launcher

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/seantiz/benchrun/internal/model"
)

const (
	// DefaultTimeout applies when a descriptor carries no timeout.
	DefaultTimeout = 300 * time.Second

	// maxOutputBytes caps the output kept in a Completion. Lines beyond the
	// cap are still emitted.
	maxOutputBytes = 1 << 20

	// maxLineBytes is the longest output line emitted as one line. Longer
	// lines are split.
	maxLineBytes = 256 * 1024

	// pipeGrace is how long output pipes stay open after the target is
	// killed. Descendants that escaped the kill lose their pipes after it.
	pipeGrace = 2 * time.Second

	envPrefix = "BENCHRUN_"
)

// ExecLauncher runs benchmark targets as child processes of the host.
type ExecLauncher struct {
	workDir string
	logger  *slog.Logger
	wg      sync.WaitGroup
}

var _ Launcher = (*ExecLauncher)(nil)

// NewExecLauncher creates a launcher that runs targets in workDir. An empty
// workDir uses the current directory.
func NewExecLauncher(workDir string, logger *slog.Logger) *ExecLauncher {
	return &ExecLauncher{
		workDir: workDir,
		logger:  logger,
	}
}

// Capabilities implements Launcher.
func (l *ExecLauncher) Capabilities() Capabilities {
	return Capabilities{
		Name:        "exec",
		Description: "runs the benchmark target as a host process",
	}
}

// Wait blocks until every launched process has been reaped.
func (l *ExecLauncher) Wait() {
	l.wg.Wait()
}

// Launch implements Launcher. The process is started synchronously so that
// start failures are returned; waiting happens in a goroutine.
func (l *ExecLauncher) Launch(ctx context.Context, executionID string, d Descriptor, emit func(string), done func(Completion)) error {
	if d.Target() == "" {
		return fmt.Errorf("descriptor for group %q has no target", d.Group())
	}

	timeout := d.Timeout()
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)

	cmd := exec.CommandContext(runCtx, d.Target(), d.Args()...)
	cmd.Dir = l.workDir
	cmd.Env = append(os.Environ(), environ(executionID, d)...)
	cmd.WaitDelay = pipeGrace
	killProcessGroup(cmd)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		cancel()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("start %s: %w", d.Target(), err)
	}
	start := time.Now()

	l.logger.Debug("process started",
		"execution_id", executionID,
		"group", d.Group(),
		"pid", cmd.Process.Pid,
	)

	l.wg.Go(func() {
		defer cancel()

		out := &cappedBuffer{limit: maxOutputBytes}
		var streams sync.WaitGroup
		streams.Go(func() { streamLines(stdout, out, emit) })
		streams.Go(func() { streamLines(stderr, out, emit) })

		streamsDone := make(chan struct{})
		go func() {
			streams.Wait()
			close(streamsDone)
		}()
		select {
		case <-streamsDone:
		case <-runCtx.Done():
			select {
			case <-streamsDone:
			case <-time.After(pipeGrace):
				l.logger.Warn("output still open after kill, closing pipes",
					"execution_id", executionID,
					"group", d.Group(),
				)
				stdout.Close()
				stderr.Close()
				<-streamsDone
			}
		}

		waitErr := cmd.Wait()
		c := Completion{
			ExecutionID: executionID,
			Output:      out.Bytes(),
			Duration:    time.Since(start),
		}
		classify(&c, waitErr, runCtx, ctx, timeout)

		l.logger.Debug("process finished",
			"execution_id", executionID,
			"result_code", c.ResultCode,
			"exit_code", c.ExitCode,
		)
		done(c)
	})

	return nil
}

// classify fills in the result fields of c from the process wait error.
func classify(c *Completion, waitErr error, runCtx, parent context.Context, timeout time.Duration) {
	switch {
	case waitErr == nil:
		c.ResultCode = model.ResultOK
	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && parent.Err() == nil:
		c.ResultCode = model.ResultCanceled
		c.ExitCode = -1
		c.Error = fmt.Sprintf("timed out after %s", timeout)
	case parent.Err() != nil:
		c.ResultCode = model.ResultCanceled
		c.ExitCode = -1
		c.Error = "canceled"
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			c.ResultCode = model.ResultFailed
			c.ExitCode = exitErr.ExitCode()
		} else {
			c.ResultCode = model.ResultCrashed
			c.ExitCode = 1
		}
		c.Error = waitErr.Error()
	}
}

// environ exports descriptor params as BENCHRUN_<KEY> variables.
func environ(executionID string, d Descriptor) []string {
	env := []string{
		envPrefix + "EXECUTION_ID=" + executionID,
		envPrefix + "GROUP=" + d.Group(),
	}
	for k, v := range d.Params() {
		env = append(env, envPrefix+envName(k)+"="+v)
	}
	return env
}

func envName(key string) string {
	return strings.Map(func(r rune) rune {
		if r > unicode.MaxASCII || !(unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return '_'
		}
		return unicode.ToUpper(r)
	}, key)
}

// streamLines forwards each line of r to emit and appends it to out. Lines
// longer than maxLineBytes are split into several lines.
func streamLines(r io.Reader, out *cappedBuffer, emit func(string)) {
	br := bufio.NewReaderSize(r, maxLineBytes)
	for {
		chunk, _, err := br.ReadLine()
		if err != nil {
			// EOF, or the pipe was closed after a kill.
			return
		}
		line := string(chunk)
		out.WriteLine(line)
		if emit != nil {
			emit(line)
		}
	}
}

// cappedBuffer collects output lines from concurrent streams up to limit bytes.
type cappedBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *cappedBuffer) WriteLine(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.buf)+len(line)+1 > b.limit {
		return
	}
	b.buf = append(b.buf, line...)
	b.buf = append(b.buf, '\n')
}

func (b *cappedBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf...)
}
