// Package catalog is the benchmark registry: the groups of benchmarks the
// host knows about, loaded from a YAML file, and the launch descriptor each
// group produces for the sequencer.
package catalog

import (
	"errors"
	"fmt"
	"maps"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/benchrun/internal/launcher"
)

// ParamBenchmarks is the descriptor parameter listing the enabled benchmark
// IDs of a group, comma separated.
const ParamBenchmarks = "benchmarks"

var (
	// ErrInvalid wraps every catalog validation failure.
	ErrInvalid = errors.New("invalid catalog")

	// ErrUnknownBenchmark is returned by SetEnabled for an unknown group or benchmark.
	ErrUnknownBenchmark = errors.New("unknown benchmark")
)

// Benchmark is one benchmark inside a group.
type Benchmark struct {
	ID          string            `yaml:"id" json:"id"`
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Enabled     bool              `yaml:"enabled" json:"enabled"`
	Params      map[string]string `yaml:"params,omitempty" json:"params,omitempty"`
}

// Group is a set of benchmarks launched together as one unit.
type Group struct {
	Name        string      `yaml:"name" json:"name"`
	Description string      `yaml:"description,omitempty" json:"description,omitempty"`
	Kind        string      `yaml:"kind,omitempty" json:"kind,omitempty"`
	Target      string      `yaml:"target" json:"target"`
	Args        []string    `yaml:"args,omitempty" json:"args,omitempty"`
	TimeoutS    int         `yaml:"timeout_s,omitempty" json:"timeout_s,omitempty"`
	Benchmarks  []Benchmark `yaml:"benchmarks" json:"benchmarks"`
}

type file struct {
	Groups []Group `yaml:"groups"`
}

// Registry holds the benchmark groups in catalog order. It is safe for
// concurrent use.
type Registry struct {
	mu     sync.RWMutex
	groups []Group
}

// New builds a registry from groups after validating them.
func New(groups []Group) (*Registry, error) {
	if err := validate(groups); err != nil {
		return nil, err
	}
	return &Registry{groups: cloneGroups(groups)}, nil
}

// Load reads a YAML catalog file.
func Load(path string) (*Registry, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(b)
}

// Parse decodes a YAML catalog document.
func Parse(b []byte) (*Registry, error) {
	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return New(f.Groups)
}

func validate(groups []Group) error {
	seen := make(map[string]bool, len(groups))
	for i, g := range groups {
		if strings.TrimSpace(g.Name) == "" {
			return fmt.Errorf("%w: group %d has no name", ErrInvalid, i)
		}
		if seen[g.Name] {
			return fmt.Errorf("%w: duplicate group %q", ErrInvalid, g.Name)
		}
		seen[g.Name] = true

		if strings.TrimSpace(g.Target) == "" {
			return fmt.Errorf("%w: group %q has no target", ErrInvalid, g.Name)
		}
		if g.TimeoutS < 0 {
			return fmt.Errorf("%w: group %q has a negative timeout", ErrInvalid, g.Name)
		}

		ids := make(map[string]bool, len(g.Benchmarks))
		for _, b := range g.Benchmarks {
			if strings.TrimSpace(b.ID) == "" {
				return fmt.Errorf("%w: group %q has a benchmark without id", ErrInvalid, g.Name)
			}
			if strings.Contains(b.ID, ",") {
				return fmt.Errorf("%w: benchmark id %q contains a comma", ErrInvalid, b.ID)
			}
			if ids[b.ID] {
				return fmt.Errorf("%w: duplicate benchmark %q in group %q", ErrInvalid, b.ID, g.Name)
			}
			ids[b.ID] = true
		}
	}
	return nil
}

// GroupCount returns the number of registered groups.
func (r *Registry) GroupCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.groups)
}

// Group returns the launch descriptor for the group at index, or nil when
// the index is out of range or no benchmark of the group is enabled.
func (r *Registry) Group(index int) *launcher.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if index < 0 || index >= len(r.groups) {
		return nil
	}
	return descriptorFor(r.groups[index])
}

// Descriptors returns the descriptors of every group that has at least one
// enabled benchmark, in catalog order.
func (r *Registry) Descriptors() []launcher.Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []launcher.Descriptor
	for _, g := range r.groups {
		if d := descriptorFor(g); d != nil {
			out = append(out, *d)
		}
	}
	return out
}

// Groups returns a copy of all groups.
func (r *Registry) Groups() []Group {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneGroups(r.groups)
}

// SetEnabled enables or disables one benchmark.
func (r *Registry) SetEnabled(group, benchmarkID string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for gi := range r.groups {
		if r.groups[gi].Name != group {
			continue
		}
		for bi := range r.groups[gi].Benchmarks {
			if r.groups[gi].Benchmarks[bi].ID == benchmarkID {
				r.groups[gi].Benchmarks[bi].Enabled = enabled
				return nil
			}
		}
	}
	return fmt.Errorf("%w: %s/%s", ErrUnknownBenchmark, group, benchmarkID)
}

func descriptorFor(g Group) *launcher.Descriptor {
	var ids []string
	params := make(map[string]string)
	for _, b := range g.Benchmarks {
		if !b.Enabled {
			continue
		}
		ids = append(ids, b.ID)
		for k, v := range b.Params {
			params[k] = v
		}
	}
	if len(ids) == 0 {
		return nil
	}
	params[ParamBenchmarks] = strings.Join(ids, ",")

	d := launcher.NewDescriptor(launcher.DescriptorSpec{
		Group:   g.Name,
		Kind:    g.Kind,
		Target:  g.Target,
		Args:    g.Args,
		Params:  params,
		Timeout: time.Duration(g.TimeoutS) * time.Second,
	})
	return &d
}

func cloneGroups(groups []Group) []Group {
	out := make([]Group, len(groups))
	for i, g := range groups {
		g.Args = slices.Clone(g.Args)
		g.Benchmarks = slices.Clone(g.Benchmarks)
		for bi := range g.Benchmarks {
			g.Benchmarks[bi].Params = maps.Clone(g.Benchmarks[bi].Params)
		}
		out[i] = g
	}
	return out
}
