// Package catalog describes remote operations as data: name, endpoint,
// declared parameters with their context domains, and lifecycle metadata
// for long-running kinds. The resolver, harvester, and supervisor consume
// this registry instead of branching on operation names.
package catalog

import (
	"fmt"
	"sync"

	"github.com/alexmahrou/mcp-server/internal/contextstore"
)

// Kind classifies how an operation completes.
type Kind string

const (
	// KindSync operations return their final payload on the first call.
	KindSync Kind = "sync"
	// KindLongRunning operations report an in-progress status and must be
	// polled until a terminal lifecycle state.
	KindLongRunning Kind = "long-running"
)

// Lifecycle states recorded in the context store's status slots.
const (
	StateInProgress = "in-progress"
	StateCompleted  = "completed"
	StateFailed     = "failed"
	StateCancelled  = "cancelled"
)

// Param is one declared operation parameter.
type Param struct {
	Name     string              `yaml:"name"`
	Domain   contextstore.Domain `yaml:"domain,omitempty"`
	Field    string              `yaml:"field,omitempty"` // context field, defaults to "id"
	Required bool                `yaml:"required,omitempty"`
	// Fallback marks the parameter as safe to fill from the domain's
	// recency list when no pinned value exists (read/update/delete-style
	// operations issued right after a create).
	Fallback bool `yaml:"fallback,omitempty"`
}

// ContextField returns the context store field this parameter maps to.
func (p Param) ContextField() string {
	if p.Field != "" {
		return p.Field
	}
	return "id"
}

// Operation is a single remote operation the platform exposes.
type Operation struct {
	Name     string  `yaml:"name"`
	Endpoint string  `yaml:"endpoint"`
	Params   []Param `yaml:"params,omitempty"`
	// ResultDomain is the domain whose identifiers the result payload
	// describes; list payloads become that domain's recency list.
	ResultDomain contextstore.Domain `yaml:"result_domain,omitempty"`
	Kind         Kind                `yaml:"kind,omitempty"`
	// StatusField names the payload field carrying the provider's
	// lifecycle status for long-running operations.
	StatusField string `yaml:"status_field,omitempty"`
	// PollOp names the operation the supervisor issues to observe
	// progress; empty means re-invoking the operation itself.
	PollOp string `yaml:"poll_op,omitempty"`
}

// Param returns the declared parameter with the given name.
func (o *Operation) Param(name string) (Param, bool) {
	for _, p := range o.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

// DomainInfo describes how a domain's entities are listed and keyed, for
// name lookups and list harvesting.
type DomainInfo struct {
	Domain contextstore.Domain `yaml:"domain"`
	// IDKey is the canonical identifier field in payloads (projectId).
	IDKey string `yaml:"id_key"`
	// NameKey is the human-readable handle field, empty when the domain's
	// entities have no names.
	NameKey string `yaml:"name_key,omitempty"`
	// ListOp is the operation that enumerates the domain's entities.
	ListOp string `yaml:"list_op,omitempty"`
	// ItemsKey is the payload field holding the list items.
	ItemsKey string `yaml:"items_key,omitempty"`
	// StateMap translates provider status strings to lifecycle states;
	// unmapped statuses count as in-progress.
	StateMap map[string]string `yaml:"state_map,omitempty"`
}

// LifecycleState maps a provider-reported status to a lifecycle state.
func (d DomainInfo) LifecycleState(raw string) string {
	if state, ok := d.StateMap[raw]; ok {
		return state
	}
	return StateInProgress
}

// Registry is the injectable operation catalog.
type Registry struct {
	mu      sync.RWMutex
	ops     map[string]*Operation
	domains map[contextstore.Domain]DomainInfo
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		ops:     make(map[string]*Operation),
		domains: make(map[contextstore.Domain]DomainInfo),
	}
}

// Register adds an operation. Duplicate names are rejected so catalog
// layering mistakes surface at startup.
func (r *Registry) Register(op Operation) error {
	if op.Name == "" {
		return fmt.Errorf("operation name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.ops[op.Name]; exists {
		return fmt.Errorf("operation already registered: %s", op.Name)
	}
	if op.Kind == "" {
		op.Kind = KindSync
	}
	r.ops[op.Name] = &op
	return nil
}

// RegisterDomain adds or replaces a domain description.
func (r *Registry) RegisterDomain(info DomainInfo) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.domains[info.Domain] = info
}

// Lookup returns the operation with the given name.
func (r *Registry) Lookup(name string) (*Operation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	op, ok := r.ops[name]
	return op, ok
}

// Domain returns the description for a domain.
func (r *Registry) Domain(domain contextstore.Domain) (DomainInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	info, ok := r.domains[domain]
	return info, ok
}

// DomainForIDKey finds the domain whose canonical identifier key matches.
func (r *Registry) DomainForIDKey(key string) (DomainInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, info := range r.domains {
		if info.IDKey == key {
			return info, true
		}
	}
	return DomainInfo{}, false
}

// Names returns every registered operation name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	return names
}
