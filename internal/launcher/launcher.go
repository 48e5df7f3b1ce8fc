package launcher

import (
	"context"
	"encoding/json"
	"maps"
	"slices"
	"time"
)

// KindExec is the launcher kind for benchmarks run as host processes.
const KindExec = "exec"

// Launcher starts a described unit of work and reports its result later.
type Launcher interface {
	// Launch starts the unit asynchronously. It returns an error only when the
	// unit could not be started; otherwise done is called exactly once when
	// the unit finishes, from any goroutine. emit receives output lines as
	// they are produced. ctx bounds the lifetime of the unit.
	Launch(ctx context.Context, executionID string, d Descriptor, emit func(line string), done func(Completion)) error

	// Capabilities reports what this launcher is.
	Capabilities() Capabilities
}

// Capabilities describes a launcher implementation.
type Capabilities struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Completion is the asynchronous report of a finished unit. The sequencer
// never inspects ResultCode; it only uses ExecutionID to match the report
// to the in-flight dispatch.
type Completion struct {
	ExecutionID string        `json:"execution_id"`
	ResultCode  string        `json:"result_code"`
	ExitCode    int           `json:"exit_code"`
	Output      []byte        `json:"output,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// DescriptorSpec holds the fields used to build a Descriptor.
type DescriptorSpec struct {
	Group   string
	Kind    string
	Target  string
	Args    []string
	Params  map[string]string
	Timeout time.Duration
}

// Descriptor is an immutable description of one runnable benchmark unit.
// The zero value is not useful; build descriptors with NewDescriptor.
type Descriptor struct {
	group   string
	kind    string
	target  string
	args    []string
	params  map[string]string
	timeout time.Duration
}

// NewDescriptor copies spec into a new Descriptor. An empty kind defaults to
// KindExec.
func NewDescriptor(spec DescriptorSpec) Descriptor {
	kind := spec.Kind
	if kind == "" {
		kind = KindExec
	}
	return Descriptor{
		group:   spec.Group,
		kind:    kind,
		target:  spec.Target,
		args:    slices.Clone(spec.Args),
		params:  maps.Clone(spec.Params),
		timeout: spec.Timeout,
	}
}

func (d Descriptor) Group() string  { return d.group }
func (d Descriptor) Kind() string   { return d.kind }
func (d Descriptor) Target() string { return d.target }

// Timeout is zero when the launcher default applies.
func (d Descriptor) Timeout() time.Duration { return d.timeout }

// Args returns a copy of the target arguments.
func (d Descriptor) Args() []string { return slices.Clone(d.args) }

// Params returns a copy of the descriptor parameters.
func (d Descriptor) Params() map[string]string { return maps.Clone(d.params) }

// Param returns a single parameter value.
func (d Descriptor) Param(key string) (string, bool) {
	v, ok := d.params[key]
	return v, ok
}

type descriptorJSON struct {
	Group    string            `json:"group"`
	Kind     string            `json:"kind"`
	Target   string            `json:"target"`
	Args     []string          `json:"args,omitempty"`
	Params   map[string]string `json:"params,omitempty"`
	TimeoutS int               `json:"timeout_s,omitempty"`
}

// MarshalJSON exposes the descriptor read-only over the API.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(descriptorJSON{
		Group:    d.group,
		Kind:     d.kind,
		Target:   d.target,
		Args:     d.args,
		Params:   d.params,
		TimeoutS: int(d.timeout / time.Second),
	})
}
