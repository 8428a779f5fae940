// Package harvest extracts identifier-shaped fields from operation results
// into the context store. Harvesting never fails; malformed or missing
// fields are skipped.
package harvest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/alexmahrou/mcp-server/internal/catalog"
	"github.com/alexmahrou/mcp-server/internal/contextstore"
	"github.com/alexmahrou/mcp-server/internal/logging"
)

// identifierTargets is the static mapping from payload field names to
// context store slots.
var identifierTargets = map[string]struct {
	Domain contextstore.Domain
	Field  string
}{
	"projectId":      {contextstore.DomainProject, "id"},
	"compileId":      {contextstore.DomainCompile, "id"},
	"backtestId":     {contextstore.DomainBacktest, "id"},
	"optimizationId": {contextstore.DomainOptimization, "id"},
	"algorithmId":    {contextstore.DomainLive, "id"},
	"deployId":       {contextstore.DomainLive, "id"},
	"commandId":      {contextstore.DomainLive, "command"},
}

// maxDepth limits field scanning to the payload itself plus one nested
// level, where cross-link payloads commonly nest child identifiers.
const maxDepth = 2

// Harvester writes identifiers from operation results into a Store.
type Harvester struct {
	store    *contextstore.Store
	registry *catalog.Registry
	logger   logging.Logger
}

// New constructs a Harvester around a store and an operation registry.
func New(store *contextstore.Store, registry *catalog.Registry, logger logging.Logger) *Harvester {
	return &Harvester{
		store:    store,
		registry: registry,
		logger:   logging.OrNop(logger),
	}
}

// Harvest scans an operation result and applies all extracted mutations as
// one logical store update. A reader never observes a cross-linked payload
// half applied.
func (h *Harvester) Harvest(operationName string, payload any) {
	h.harvest(operationName, payload, true)
}

// HarvestLookup refreshes recency lists from a name-lookup listing without
// the first-item pin fill, so an ambiguous listing cannot auto-select an
// entity the user has not chosen.
func (h *Harvester) HarvestLookup(operationName string, payload any) {
	h.harvest(operationName, payload, false)
}

func (h *Harvester) harvest(operationName string, payload any, fillFromList bool) {
	if payload == nil {
		return
	}

	op, _ := h.registry.Lookup(operationName)
	var resultDomain contextstore.Domain
	if op != nil {
		resultDomain = op.ResultDomain
	}

	var muts []func(tx *contextstore.Tx)
	switch value := payload.(type) {
	case map[string]any:
		muts = h.collectObject(op, resultDomain, value, fillFromList)
	case []any:
		muts = h.collectList(resultDomain, value, fillFromList)
	default:
		return
	}
	if len(muts) == 0 {
		return
	}

	h.store.Update(func(tx *contextstore.Tx) {
		for _, mut := range muts {
			mut(tx)
		}
	})
	h.logger.Debug("harvested %d mutation(s) from %s", len(muts), operationName)
}

func (h *Harvester) collectObject(op *catalog.Operation, resultDomain contextstore.Domain, payload map[string]any, fillFromList bool) []func(tx *contextstore.Tx) {
	var muts []func(tx *contextstore.Tx)

	// A wrapper object whose items key holds a list is the domain's
	// server-ordered recency list. The field scan skips it so individual
	// entries do not overwrite the list-derived fill.
	var itemsKey string
	if resultDomain != "" {
		if info, ok := h.registry.Domain(resultDomain); ok && info.ItemsKey != "" {
			if items, ok := payload[info.ItemsKey].([]any); ok {
				itemsKey = info.ItemsKey
				muts = append(muts, h.collectListItems(info, items, fillFromList)...)
			}
		}
	}

	muts = append(muts, h.collectFields(op, resultDomain, payload, 1, itemsKey)...)
	return muts
}

func (h *Harvester) collectList(resultDomain contextstore.Domain, items []any, fillFromList bool) []func(tx *contextstore.Tx) {
	if resultDomain == "" {
		return nil
	}
	info, ok := h.registry.Domain(resultDomain)
	if !ok {
		return nil
	}
	return h.collectListItems(info, items, fillFromList)
}

// collectListItems turns a server-ordered list payload into the domain's
// recency list, and fills the pinned slot from the first entry only when
// that would not clobber an explicit pin.
func (h *Harvester) collectListItems(info catalog.DomainInfo, items []any, fill bool) []func(tx *contextstore.Tx) {
	recent := make([]contextstore.RecentItem, 0, len(items))
	var firstRawID any
	for _, raw := range items {
		entry, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		id := stringify(entry[info.IDKey])
		if id == "" {
			continue
		}
		item := contextstore.RecentItem{ID: id}
		if info.NameKey != "" {
			item.Name = stringify(entry[info.NameKey])
		}
		if len(recent) == 0 {
			// Fill pins with the payload's own value so the id keeps the
			// type the platform sent.
			firstRawID = entry[info.IDKey]
		}
		recent = append(recent, item)
	}
	if len(recent) == 0 {
		return nil
	}

	domain := info.Domain
	first := recent[0]
	return []func(tx *contextstore.Tx){
		func(tx *contextstore.Tx) {
			tx.SetRecentList(domain, recent)
			if fill {
				tx.FillPinned(domain, "id", firstRawID)
				if first.Name != "" {
					tx.FillPinned(domain, "name", first.Name)
				}
			}
		},
	}
}

func (h *Harvester) collectFields(op *catalog.Operation, resultDomain contextstore.Domain, payload map[string]any, depth int, skipKey string) []func(tx *contextstore.Tx) {
	var muts []func(tx *contextstore.Tx)

	// Pair the level's name handle with its identifier so the recency
	// entry carries both.
	var levelName string
	if resultDomain != "" {
		if info, ok := h.registry.Domain(resultDomain); ok && info.NameKey != "" {
			levelName = stringify(payload[info.NameKey])
		}
	}

	for key, raw := range payload {
		if key == skipKey {
			continue
		}
		if nested, ok := raw.(map[string]any); ok {
			if depth < maxDepth {
				muts = append(muts, h.collectFields(op, resultDomain, nested, depth+1, "")...)
			}
			continue
		}
		if items, ok := raw.([]any); ok {
			if depth < maxDepth {
				for _, item := range items {
					if entry, ok := item.(map[string]any); ok {
						muts = append(muts, h.collectFields(op, resultDomain, entry, depth+1, "")...)
					}
				}
			}
			continue
		}

		if target, ok := identifierTargets[key]; ok {
			id := stringify(raw)
			if id == "" {
				continue
			}
			domain, field, value := target.Domain, target.Field, raw
			name := ""
			if domain == resultDomain {
				name = levelName
			}
			muts = append(muts, func(tx *contextstore.Tx) {
				// FillPinned, not SetPinned: an identifier the platform
				// echoes back must not downgrade a pin the user set
				// explicitly this turn.
				tx.FillPinned(domain, field, value)
				if field == "id" {
					tx.PushRecent(domain, contextstore.RecentItem{ID: id, Name: name})
				}
			})
			continue
		}

		if mut := h.collectHandle(op, resultDomain, key, raw); mut != nil {
			muts = append(muts, mut)
			continue
		}

		// Unmapped identifier-shaped keys go to the overflow bucket.
		if isIdentifierShaped(key) {
			id := stringify(raw)
			if id == "" {
				continue
			}
			key, raw := key, raw
			muts = append(muts, func(tx *contextstore.Tx) {
				tx.SetOverflow(key, raw)
			})
		}
	}

	if op != nil && op.StatusField != "" && resultDomain != "" {
		if rawStatus := stringify(payload[op.StatusField]); rawStatus != "" {
			if info, ok := h.registry.Domain(resultDomain); ok {
				state := info.LifecycleState(rawStatus)
				domain := resultDomain
				muts = append(muts, func(tx *contextstore.Tx) {
					tx.SetStatus(domain, state, rawStatus)
				})
			}
		}
	}

	return muts
}

// collectHandle records recognized non-identifier handles: the result
// domain's name, file paths, object store keys.
func (h *Harvester) collectHandle(op *catalog.Operation, resultDomain contextstore.Domain, key string, raw any) func(tx *contextstore.Tx) {
	value := stringify(raw)
	if value == "" {
		return nil
	}
	switch key {
	case "name":
		if resultDomain == "" {
			return nil
		}
		domain := resultDomain
		return func(tx *contextstore.Tx) {
			tx.FillPinned(domain, "name", value)
		}
	case "path":
		return func(tx *contextstore.Tx) {
			tx.FillPinned(contextstore.DomainFile, "path", value)
		}
	case "key":
		return func(tx *contextstore.Tx) {
			tx.FillPinned(contextstore.DomainObject, "key", value)
			tx.PushRecent(contextstore.DomainObject, contextstore.RecentItem{ID: value})
		}
	}
	return nil
}

// isIdentifierShaped reports whether a field name looks like an identifier.
func isIdentifierShaped(key string) bool {
	return len(key) > 2 && (strings.HasSuffix(key, "Id") || strings.HasSuffix(key, "ID"))
}

func stringify(raw any) string {
	switch value := raw.(type) {
	case string:
		return value
	case float64:
		// JSON numbers decode as float64; keep integer ids intact.
		return strconv.FormatFloat(value, 'f', -1, 64)
	case nil, bool:
		return ""
	case map[string]any, []any:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprint(value))
	}
}
