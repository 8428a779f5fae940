package contextstore

// Snapshot is the full serializable contents of a Store.
type Snapshot struct {
	Version uint64                    `json:"version"`
	Domains map[Domain]DomainSnapshot `json:"domains"`
	IDs     map[string]Value          `json:"ids,omitempty"`
	LastID  *Value                    `json:"last_id,omitempty"`
}

// DomainSnapshot is one domain's pinned slots, recency list, and status.
type DomainSnapshot struct {
	Pinned map[string]Value `json:"pinned,omitempty"`
	Recent []RecentItem     `json:"recent,omitempty"`
	Status *Status          `json:"status,omitempty"`
}

// Snapshot captures the store contents for persistence or debugging.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		Version: s.version,
		Domains: make(map[Domain]DomainSnapshot, len(s.domains)),
	}
	for domain, state := range s.domains {
		ds := DomainSnapshot{}
		if len(state.pinned) > 0 {
			ds.Pinned = make(map[string]Value, len(state.pinned))
			for field, value := range state.pinned {
				ds.Pinned[field] = value
			}
		}
		keys := state.recent.Keys()
		for i := len(keys) - 1; i >= 0; i-- {
			if item, ok := state.recent.Peek(keys[i]); ok {
				ds.Recent = append(ds.Recent, item)
			}
		}
		if state.status != nil {
			status := *state.status
			ds.Status = &status
		}
		snap.Domains[domain] = ds
	}
	if len(s.overflow) > 0 {
		snap.IDs = make(map[string]Value, len(s.overflow))
		for key, value := range s.overflow {
			snap.IDs[key] = value
		}
	}
	if s.lastID != nil {
		last := *s.lastID
		snap.LastID = &last
	}
	return snap
}

// Restore replaces the store contents with a snapshot. A restored store
// resolves identically to the one the snapshot was taken from.
func (s *Store) Restore(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.version = snap.Version
	s.domains = make(map[Domain]*domainState, len(snap.Domains))
	s.overflow = make(map[string]Value, len(snap.IDs))
	s.lastID = nil

	for domain, ds := range snap.Domains {
		state := s.domainLocked(domain)
		for field, value := range ds.Pinned {
			state.pinned[field] = value
		}
		// Recent is serialized most recent first; replay oldest first so
		// LRU ordering comes out identical.
		for i := len(ds.Recent) - 1; i >= 0; i-- {
			item := ds.Recent[i]
			if item.ID == "" {
				continue
			}
			state.recent.Add(item.ID, item)
		}
		if ds.Status != nil {
			status := *ds.Status
			state.status = &status
		}
	}
	for key, value := range snap.IDs {
		s.overflow[key] = value
	}
	if snap.LastID != nil {
		last := *snap.LastID
		s.lastID = &last
	}
}
