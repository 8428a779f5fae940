// Package reset narrows session context when top-level resources are
// created or destroyed. The trigger table is static and every action is
// idempotent: applying the same trigger twice leaves the same end state.
package reset

import (
	"github.com/alexmahrou/mcp-server/internal/contextstore"
	"github.com/alexmahrou/mcp-server/internal/logging"
)

type action struct {
	// clearPinned drops pinned slots (and stale statuses) but keeps the
	// recency lists for re-pick scenarios.
	clearPinned []contextstore.Domain
	// clearAll drops pinned slots, recency lists, and statuses.
	clearAll []contextstore.Domain
	// clearFields drops only the named pinned fields per domain.
	clearFields map[contextstore.Domain][]string
}

// triggers maps operation names to the domains they narrow.
var triggers = map[string]action{
	// A fresh project invalidates job context from the previous one; the
	// new project id itself arrives through the harvester.
	"create_project": {
		clearPinned: []contextstore.Domain{
			contextstore.DomainCompile,
			contextstore.DomainBacktest,
			contextstore.DomainOptimization,
		},
	},
	// Deleting a project tears down everything scoped to it, history
	// included.
	"delete_project": {
		clearPinned: []contextstore.Domain{contextstore.DomainProject},
		clearAll: []contextstore.Domain{
			contextstore.DomainCompile,
			contextstore.DomainBacktest,
			contextstore.DomainOptimization,
			contextstore.DomainLive,
			contextstore.DomainFile,
		},
	},
	"stop_live_algorithm":      {clearFields: map[contextstore.Domain][]string{contextstore.DomainLive: {"id"}}},
	"liquidate_live_algorithm": {clearFields: map[contextstore.Domain][]string{contextstore.DomainLive: {"id"}}},
	"abort_optimization":       {clearPinned: []contextstore.Domain{contextstore.DomainOptimization}},
	"delete_optimization":      {clearPinned: []contextstore.Domain{contextstore.DomainOptimization}},
	"delete_backtest":          {clearPinned: []contextstore.Domain{contextstore.DomainBacktest}},
}

// Policy applies context narrowing after trigger operations complete.
type Policy struct {
	store  *contextstore.Store
	logger logging.Logger
}

// New constructs a Policy over a store.
func New(store *contextstore.Store, logger logging.Logger) *Policy {
	return &Policy{store: store, logger: logging.OrNop(logger)}
}

// OnOperationCompleted narrows the store per the trigger table. Unknown
// operations are a no-op; create operations that merely overwrite their
// own pinned slot are handled by the harvester and need no entry here.
func (p *Policy) OnOperationCompleted(operationName string) {
	act, ok := triggers[operationName]
	if !ok {
		return
	}
	p.store.Update(func(tx *contextstore.Tx) {
		for _, domain := range act.clearPinned {
			tx.ClearPinned(domain)
			tx.ClearStatus(domain)
		}
		for _, domain := range act.clearAll {
			tx.ClearPinned(domain)
			tx.ClearRecent(domain)
			tx.ClearStatus(domain)
		}
		for domain, fields := range act.clearFields {
			tx.ClearPinned(domain, fields...)
		}
	})
	p.logger.Debug("reset policy applied for %s", operationName)
}

// Triggers reports whether an operation narrows context, for callers that
// want to log or sequence around it.
func Triggers(operationName string) bool {
	_, ok := triggers[operationName]
	return ok
}
