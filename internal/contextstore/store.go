package contextstore

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// Domain is a named category of related identifiers and state.
type Domain string

const (
	DomainProject      Domain = "project"
	DomainCompile      Domain = "compile"
	DomainBacktest     Domain = "backtest"
	DomainOptimization Domain = "optimization"
	DomainLive         Domain = "live"
	DomainFile         Domain = "file"
	DomainObject       Domain = "object"
	DomainAI           Domain = "ai"
	DomainServer       Domain = "server"
	DomainLean         Domain = "lean"
)

// Provenance records whether a pinned value came from explicit user input
// or was inferred from an operation result.
type Provenance string

const (
	ProvenanceExplicit Provenance = "explicit"
	ProvenanceInferred Provenance = "inferred"
)

// Value is a single pinned slot entry.
type Value struct {
	Raw        any        `json:"value"`
	Provenance Provenance `json:"provenance"`
	SetAt      time.Time  `json:"set_at"`
}

// String renders the raw value for argument substitution and logs.
func (v Value) String() string {
	switch raw := v.Raw.(type) {
	case string:
		return raw
	case float64:
		// JSON-decoded numbers arrive as float64; render ids undamaged.
		return strconv.FormatFloat(raw, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", raw)
	}
}

// Status is the last known lifecycle state for a long-running domain.
type Status struct {
	State     string    `json:"state"`      // in-progress, completed, failed, cancelled
	Raw       string    `json:"raw"`        // provider-reported status string
	UpdatedAt time.Time `json:"updated_at"`
}

// RecentItem is one entry in a domain's recency list.
type RecentItem struct {
	ID   string    `json:"id"`
	Name string    `json:"name,omitempty"`
	Seen time.Time `json:"seen"`
}

// DefaultRecentCap bounds each domain's recency list.
const DefaultRecentCap = 64

type domainState struct {
	pinned map[string]Value
	recent *simplelru.LRU[string, RecentItem]
	status *Status
}

// Store holds the session context: per-domain pinned slots, recency lists,
// statuses, and the overflow bucket for unmapped identifier fields.
//
// All mutation goes through Update so multi-field harvests apply as one
// logical write; readers never observe a partially applied harvest.
type Store struct {
	mu        sync.RWMutex
	version   uint64
	recentCap int
	domains   map[Domain]*domainState
	overflow  map[string]Value // ids.<key>
	lastID    *Value
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithRecentCap overrides the recency list bound.
func WithRecentCap(cap int) Option {
	return func(s *Store) {
		if cap > 0 {
			s.recentCap = cap
		}
	}
}

// WithClock overrides the timestamp source, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New constructs an empty Store.
func New(opts ...Option) *Store {
	s := &Store{
		recentCap: DefaultRecentCap,
		domains:   make(map[Domain]*domainState),
		overflow:  make(map[string]Value),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) domainLocked(domain Domain) *domainState {
	state, ok := s.domains[domain]
	if !ok {
		recent, _ := simplelru.NewLRU[string, RecentItem](s.recentCap, nil)
		state = &domainState{
			pinned: make(map[string]Value),
			recent: recent,
		}
		s.domains[domain] = state
	}
	return state
}

// Version returns the store's mutation counter. Each Update increments it
// exactly once regardless of how many fields the transaction touched.
func (s *Store) Version() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.version
}

// Get returns the pinned value for a domain field. The boolean result
// distinguishes absence from a stored zero value.
func (s *Store) Get(domain Domain, field string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.domains[domain]
	if !ok {
		return Value{}, false
	}
	value, ok := state.pinned[field]
	return value, ok
}

// Recent returns the domain's recency list, most recent first.
func (s *Store) Recent(domain Domain) []RecentItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.domains[domain]
	if !ok {
		return nil
	}
	keys := state.recent.Keys() // oldest to newest
	items := make([]RecentItem, 0, len(keys))
	for i := len(keys) - 1; i >= 0; i-- {
		if item, ok := state.recent.Peek(keys[i]); ok {
			items = append(items, item)
		}
	}
	return items
}

// GetStatus returns the last recorded lifecycle status for a domain.
func (s *Store) GetStatus(domain Domain) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.domains[domain]
	if !ok || state.status == nil {
		return Status{}, false
	}
	return *state.status, true
}

// GetOverflow returns an identifier from the ids.<key> overflow bucket.
func (s *Store) GetOverflow(key string) (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.overflow[key]
	return value, ok
}

// LastID returns the most recently harvested identifier of any kind.
func (s *Store) LastID() (Value, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastID == nil {
		return Value{}, false
	}
	return *s.lastID, true
}

// Update runs fn against a transaction holding the store lock. Everything
// the transaction writes becomes visible to readers at once.
func (s *Store) Update(fn func(tx *Tx)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Tx{store: s}
	fn(tx)
	if tx.dirty {
		s.version++
	}
}

// Tx is a single logical store mutation. It is only valid inside Update.
type Tx struct {
	store *Store
	dirty bool
}

// SetPinned overwrites the pinned slot for a domain field.
func (tx *Tx) SetPinned(domain Domain, field string, raw any, prov Provenance) {
	state := tx.store.domainLocked(domain)
	state.pinned[field] = Value{Raw: raw, Provenance: prov, SetAt: tx.store.now()}
	tx.dirty = true
}

// FillPinned sets the pinned slot only when it is absent or its current
// value was inferred. An explicit pin is never clobbered by a fill.
func (tx *Tx) FillPinned(domain Domain, field string, raw any) {
	state := tx.store.domainLocked(domain)
	if existing, ok := state.pinned[field]; ok && existing.Provenance == ProvenanceExplicit {
		return
	}
	state.pinned[field] = Value{Raw: raw, Provenance: ProvenanceInferred, SetAt: tx.store.now()}
	tx.dirty = true
}

// PushRecent prepends an item to the domain's recency list. Re-seeing an
// identifier moves it to the front instead of duplicating it.
func (tx *Tx) PushRecent(domain Domain, item RecentItem) {
	if item.ID == "" {
		return
	}
	if item.Seen.IsZero() {
		item.Seen = tx.store.now()
	}
	tx.store.domainLocked(domain).recent.Add(item.ID, item)
	tx.dirty = true
}

// SetRecentList replaces the domain's recency list with a server-reported
// ordering, first item most recent.
func (tx *Tx) SetRecentList(domain Domain, items []RecentItem) {
	state := tx.store.domainLocked(domain)
	state.recent.Purge()
	for i := len(items) - 1; i >= 0; i-- {
		item := items[i]
		if item.ID == "" {
			continue
		}
		if item.Seen.IsZero() {
			item.Seen = tx.store.now()
		}
		state.recent.Add(item.ID, item)
	}
	tx.dirty = true
}

// SetStatus records a lifecycle state for a long-running domain.
func (tx *Tx) SetStatus(domain Domain, state, raw string) {
	tx.store.domainLocked(domain).status = &Status{
		State:     state,
		Raw:       raw,
		UpdatedAt: tx.store.now(),
	}
	tx.dirty = true
}

// SetOverflow stores an unmapped identifier under ids.<key> and mirrors it
// into the last.id slot.
func (tx *Tx) SetOverflow(key string, raw any) {
	value := Value{Raw: raw, Provenance: ProvenanceInferred, SetAt: tx.store.now()}
	tx.store.overflow[key] = value
	tx.store.lastID = &value
	tx.dirty = true
}

// ClearPinned removes named pinned fields, or every pinned field when none
// are named. The recency list is untouched.
func (tx *Tx) ClearPinned(domain Domain, fields ...string) {
	state, ok := tx.store.domains[domain]
	if !ok {
		return
	}
	if len(fields) == 0 {
		if len(state.pinned) == 0 {
			return
		}
		state.pinned = make(map[string]Value)
		tx.dirty = true
		return
	}
	for _, field := range fields {
		if _, ok := state.pinned[field]; ok {
			delete(state.pinned, field)
			tx.dirty = true
		}
	}
}

// ClearRecent drops the domain's recency list.
func (tx *Tx) ClearRecent(domain Domain) {
	state, ok := tx.store.domains[domain]
	if !ok || state.recent.Len() == 0 {
		return
	}
	state.recent.Purge()
	tx.dirty = true
}

// ClearStatus drops the domain's status slot.
func (tx *Tx) ClearStatus(domain Domain) {
	state, ok := tx.store.domains[domain]
	if !ok || state.status == nil {
		return
	}
	state.status = nil
	tx.dirty = true
}

// Pinned returns the pinned value for a domain field inside a transaction.
func (tx *Tx) Pinned(domain Domain, field string) (Value, bool) {
	state, ok := tx.store.domains[domain]
	if !ok {
		return Value{}, false
	}
	value, ok := state.pinned[field]
	return value, ok
}
