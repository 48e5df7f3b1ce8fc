// Package notify delivers short user-facing notices about background
// actions such as exports and uploads.
package notify

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
)

// Notice levels.
const (
	LevelInfo    = "info"
	LevelSuccess = "success"
	LevelError   = "error"
)

// Notice is a single user-facing message.
type Notice struct {
	Level   string    `json:"level"`
	Message string    `json:"message"`
	Time    time.Time `json:"time"`
}

// Notifier receives notices. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(n Notice)
}

// New builds a notice stamped with the current time.
func New(level, message string) Notice {
	return Notice{Level: level, Message: message, Time: time.Now().UTC()}
}

var levelColors = map[string]*color.Color{
	LevelInfo:    color.New(color.FgCyan),
	LevelSuccess: color.New(color.Bold, color.FgGreen),
	LevelError:   color.New(color.Bold, color.FgRed),
}

// Terminal writes one colored line per notice.
type Terminal struct {
	mu sync.Mutex
	w  io.Writer
}

// NewTerminal creates a terminal notifier writing to w. Colors follow
// color.NoColor.
func NewTerminal(w io.Writer) *Terminal {
	return &Terminal{w: w}
}

func (t *Terminal) Notify(n Notice) {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := levelColors[n.Level]
	if !ok {
		fmt.Fprintln(t.w, n.Message)
		return
	}
	c.Fprintln(t.w, n.Message)
}

// DefaultFeedSize is the number of notices a Feed keeps.
const DefaultFeedSize = 50

// Feed keeps the most recent notices in memory.
type Feed struct {
	mu    sync.Mutex
	buf   []Notice
	start int
	n     int
}

// NewFeed creates a feed holding up to size notices. A size below 1 uses
// DefaultFeedSize.
func NewFeed(size int) *Feed {
	if size < 1 {
		size = DefaultFeedSize
	}
	return &Feed{buf: make([]Notice, size)}
}

func (f *Feed) Notify(n Notice) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.n < len(f.buf) {
		f.buf[(f.start+f.n)%len(f.buf)] = n
		f.n++
		return
	}
	f.buf[f.start] = n
	f.start = (f.start + 1) % len(f.buf)
}

// Recent returns the stored notices, oldest first.
func (f *Feed) Recent() []Notice {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]Notice, f.n)
	for i := range f.n {
		out[i] = f.buf[(f.start+i)%len(f.buf)]
	}
	return out
}

// Multi fans notices out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(n Notice) {
	for _, x := range m {
		x.Notify(n)
	}
}

// Discard drops every notice.
var Discard Notifier = discard{}

type discard struct{}

func (discard) Notify(Notice) {}
