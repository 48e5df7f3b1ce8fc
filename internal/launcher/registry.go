package launcher

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrUnknownKind is returned when no launcher is registered for a kind.
var ErrUnknownKind = errors.New("no launcher registered for kind")

// Info pairs a launcher kind with its capabilities.
type Info struct {
	Kind         string       `json:"kind"`
	Capabilities Capabilities `json:"capabilities"`
}

// Registry holds registered launchers and resolves which one runs a
// descriptor based on its kind.
type Registry struct {
	mu        sync.RWMutex
	launchers map[string]Launcher
}

// NewRegistry creates an empty launcher registry.
func NewRegistry() *Registry {
	return &Registry{
		launchers: make(map[string]Launcher),
	}
}

// Register adds a launcher under the given kind, replacing any previous one.
func (r *Registry) Register(kind string, l Launcher) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.launchers[kind] = l
}

// Resolve returns the launcher for the given kind. An empty kind resolves
// to KindExec.
func (r *Registry) Resolve(kind string) (Launcher, error) {
	if kind == "" {
		kind = KindExec
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	l, ok := r.launchers[kind]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return l, nil
}

// List returns all registered launchers sorted by kind.
func (r *Registry) List() []Info {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]Info, 0, len(r.launchers))
	for kind, l := range r.launchers {
		infos = append(infos, Info{
			Kind:         kind,
			Capabilities: l.Capabilities(),
		})
	}
	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Kind < infos[j].Kind
	})
	return infos
}
