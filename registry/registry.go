// Package registry implements the Protocol's port registry (spec.md §3,
// §4.4): an ordered, in-memory collection of ports and port groups,
// looked up by identifier.
//
// Grounded on the teacher's services/hal/internal/core/registry.go /
// services/hal/internal/registry/registry.go pattern (mutex-guarded map,
// panic on duplicate register, RLock-protected lookup), generalized from
// "one builder per type name" to "one port per ID" plus an ordered slice
// for display order, and on core/loop.go's HAL.shutdown() reverse-order
// release-on-teardown idiom.
package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/jangala-dev/opdi-go/port"
)

// Group is a purely descriptive grouping of ports (spec.md §3's "optional
// group id"), itself orderable alongside ports for display purposes.
type Group struct {
	ID      string
	Label   string
	OrderID int
}

// Registry holds ports and groups added by the host before Prepare
// (spec.md §3's Lifecycle, §4.4). The registry holds non-owning
// references; the host owns port lifetime.
type Registry struct {
	mu sync.Mutex

	ports    []port.Port
	byID     map[string]port.Port
	nextSeq  int

	groups   []Group
	groupSeq int
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[string]port.Port)}
}

// AddPort appends p, assigning a display-order tie-break from insertion
// sequence if p didn't set one explicitly (spec.md §4.4). A duplicate ID
// is a host programming error — caught at setup time, before any session
// runs — so it panics rather than returning an error, matching the
// teacher's RegisterBuilder.
func (r *Registry) AddPort(p port.Port) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[p.ID()]; exists {
		panic(fmt.Sprintf("port: duplicate port id %q", p.ID()))
	}
	if p.OrderID() < 0 {
		if setter, ok := p.(interface{ SetOrderID(int) }); ok {
			setter.SetOrderID(r.nextSeq)
		}
	}
	r.nextSeq++
	r.byID[p.ID()] = p
	r.ports = append(r.ports, p)
}

// AddGroup appends a group, assigning display order the same way AddPort
// does for ports.
func (r *Registry) AddGroup(g Group) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if g.OrderID < 0 {
		g.OrderID = r.groupSeq
	}
	r.groupSeq++
	r.groups = append(r.groups, g)
}

// FindByID looks the port up by ID. When caseSensitive is false it falls
// back to a linear, case-insensitive scan (spec.md §4.4: "linear scan
// acceptable; the registry is small").
func (r *Registry) FindByID(id string, caseSensitive bool) (port.Port, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if caseSensitive {
		p, ok := r.byID[id]
		return p, ok
	}
	if p, ok := r.byID[id]; ok {
		return p, true
	}
	for _, p := range r.ports {
		if strings.EqualFold(p.ID(), id) {
			return p, true
		}
	}
	return nil, false
}

// IteratePorts returns all ports in stable insertion order (spec.md
// §4.4), used for device-capability enumeration at prepare time.
func (r *Registry) IteratePorts() []port.Port {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]port.Port, len(r.ports))
	copy(out, r.ports)
	return out
}

// SortPorts computes and returns the display order used by gDC/gAPS
// (spec.md §4.6): explicit OrderID wins the tie-break, insertion order
// otherwise (spec.md §4.4). It does not mutate iteration order.
func (r *Registry) SortPorts() []port.Port {
	r.mu.Lock()
	ports := make([]port.Port, len(r.ports))
	copy(ports, r.ports)
	r.mu.Unlock()

	sort.SliceStable(ports, func(i, j int) bool {
		return ports[i].OrderID() < ports[j].OrderID()
	})
	return ports
}

// Clear releases all ports and groups in reverse registration order
// (spec.md §3's Lifecycle: "registry releases ports in reverse
// registration order"). Any port implementing io.Closer-shaped Close()
// error is given a chance to release registry-owned auxiliary state,
// mirroring the teacher's HAL.shutdown() best-effort Close() loop; the
// host remains responsible for the underlying hardware.
func (r *Registry) Clear() {
	r.mu.Lock()
	ports := r.ports
	r.ports = nil
	r.byID = make(map[string]port.Port)
	r.groups = nil
	r.mu.Unlock()

	for i := len(ports) - 1; i >= 0; i-- {
		if c, ok := ports[i].(interface{ Close() error }); ok {
			_ = c.Close()
		}
	}
}

// Groups returns all groups in insertion order.
func (r *Registry) Groups() []Group {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Group, len(r.groups))
	copy(out, r.groups)
	return out
}
