// Package resolve completes partially specified operation arguments from
// session context. Precedence per parameter: explicit caller value, pinned
// context, name lookup through the domain's list operation, recency
// fallback for allow-listed parameters, then a precise failure.
package resolve

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/alexmahrou/mcp-server/internal/catalog"
	"github.com/alexmahrou/mcp-server/internal/contextstore"
	qcerr "github.com/alexmahrou/mcp-server/internal/errors"
	"github.com/alexmahrou/mcp-server/internal/harvest"
	"github.com/alexmahrou/mcp-server/internal/logging"
)

// Invoker issues a remote operation and returns its decoded payload. The
// resolver uses it for list lookups only.
type Invoker interface {
	Invoke(ctx context.Context, operation string, args map[string]any) (map[string]any, error)
}

// Resolver completes argument sets against a context store.
type Resolver struct {
	store     *contextstore.Store
	registry  *catalog.Registry
	invoker   Invoker
	harvester *harvest.Harvester
	logger    logging.Logger
	lookups   singleflight.Group
}

// New constructs a Resolver.
func New(store *contextstore.Store, registry *catalog.Registry, invoker Invoker, harvester *harvest.Harvester, logger logging.Logger) *Resolver {
	return &Resolver{
		store:     store,
		registry:  registry,
		invoker:   invoker,
		harvester: harvester,
		logger:    logging.OrNop(logger),
	}
}

// Resolve produces a complete argument set for the operation, or a typed
// resolution failure. Resolution failures are never retried here; they
// need corrected user input.
func (r *Resolver) Resolve(ctx context.Context, operationName string, partial map[string]any) (map[string]any, error) {
	op, known := r.registry.Lookup(operationName)
	if !known {
		return r.resolveUnknown(operationName, partial), nil
	}
	return r.resolveKnown(ctx, op, partial, true)
}

// resolveUnknown passes arguments through untouched except for
// identifier-shaped fields the caller left empty, which are filled from
// the store under an exact name match.
func (r *Resolver) resolveUnknown(operationName string, partial map[string]any) map[string]any {
	complete := make(map[string]any, len(partial))
	for key, value := range partial {
		if isEmpty(value) && isIdentifierShaped(key) {
			if filled, ok := r.storeValueForKey(key); ok {
				r.logger.Debug("%s: filled %s from context (exact name match)", operationName, key)
				complete[key] = filled
				continue
			}
		}
		complete[key] = value
	}
	return complete
}

func (r *Resolver) storeValueForKey(key string) (any, bool) {
	if info, ok := r.registry.DomainForIDKey(key); ok {
		if value, ok := r.store.Get(info.Domain, "id"); ok {
			return value.Raw, true
		}
	}
	if value, ok := r.store.GetOverflow(key); ok {
		return value.Raw, true
	}
	return nil, false
}

func (r *Resolver) resolveKnown(ctx context.Context, op *catalog.Operation, partial map[string]any, allowLookup bool) (map[string]any, error) {
	complete := make(map[string]any, len(op.Params))

	// Unknown extra arguments pass through; the platform ignores what it
	// does not expect.
	declared := make(map[string]bool, len(op.Params))
	for _, param := range op.Params {
		declared[param.Name] = true
	}
	for key, value := range partial {
		if !declared[key] && !isEmpty(value) {
			complete[key] = value
		}
	}

	for _, param := range op.Params {
		value, err := r.resolveParam(ctx, op, param, partial, allowLookup)
		if err != nil {
			return nil, err
		}
		if value != nil {
			complete[param.Name] = value
		}
	}
	return complete, nil
}

// resolveParam evaluates the precedence chain for a single parameter. A
// nil result with nil error means the optional parameter stays unset.
func (r *Resolver) resolveParam(ctx context.Context, op *catalog.Operation, param catalog.Param, partial map[string]any, allowLookup bool) (any, error) {
	// 1. Explicit caller value always wins, even against stored context.
	if value, ok := partial[param.Name]; ok && !isEmpty(value) {
		if param.Domain != "" {
			r.recordExplicit(param, value)
		}
		return value, nil
	}

	if param.Domain == "" {
		if param.Required {
			return nil, &qcerr.MissingContextError{Operation: op.Name, Parameter: param.Name}
		}
		return nil, nil
	}

	// 2. Pinned context for the parameter's domain.
	if value, ok := r.store.Get(param.Domain, param.ContextField()); ok {
		return value.Raw, nil
	}

	// 3. Name-based lookup when the caller supplied a human-readable name
	// instead of the identifier.
	if allowLookup {
		if name, ok := r.suppliedName(op, param, partial); ok {
			return r.lookupByName(ctx, op, param, name)
		}
	}

	// 4. Most-recent fallback, only for allow-listed parameters.
	if param.Fallback {
		if recent := r.store.Recent(param.Domain); len(recent) > 0 {
			r.logger.Debug("%s: %s falling back to most recent %s %s", op.Name, param.Name, param.Domain, recent[0].ID)
			return recent[0].ID, nil
		}
	}

	// 5. Nothing safe to use.
	if param.Required {
		return nil, &qcerr.MissingContextError{Operation: op.Name, Parameter: param.Name, Domain: param.Domain}
	}
	return nil, nil
}

// suppliedName finds a human-readable handle for the parameter among the
// caller's arguments: "<param stem>Name" always, the domain's bare name
// key only when the operation does not declare it as its own parameter.
func (r *Resolver) suppliedName(op *catalog.Operation, param catalog.Param, partial map[string]any) (string, bool) {
	info, ok := r.registry.Domain(param.Domain)
	if !ok || info.NameKey == "" || info.ListOp == "" {
		return "", false
	}

	stemKey := strings.TrimSuffix(param.Name, "Id") + "Name"
	if value, ok := partial[stemKey]; ok {
		if name, ok := value.(string); ok && name != "" {
			if _, declared := op.Param(stemKey); !declared {
				return name, true
			}
		}
	}
	if _, declared := op.Param(info.NameKey); !declared {
		if value, ok := partial[info.NameKey]; ok {
			if name, ok := value.(string); ok && name != "" {
				return name, true
			}
		}
	}
	return "", false
}

// lookupByName lists the domain's entities and filters for an exact
// case-insensitive match. One match resolves and pins; several produce a
// disambiguation failure; none is a missing-context failure.
func (r *Resolver) lookupByName(ctx context.Context, op *catalog.Operation, param catalog.Param, name string) (any, error) {
	info, _ := r.registry.Domain(param.Domain)

	listOp, ok := r.registry.Lookup(info.ListOp)
	if !ok {
		return nil, &qcerr.MissingContextError{Operation: op.Name, Parameter: param.Name, Domain: param.Domain}
	}

	// List arguments resolve from pinned context only; a lookup never
	// triggers another lookup.
	listArgs, err := r.resolveKnown(ctx, listOp, nil, false)
	if err != nil {
		return nil, &qcerr.MissingContextError{Operation: op.Name, Parameter: param.Name, Domain: param.Domain}
	}

	payload, err := r.listOnce(ctx, listOp.Name, listArgs)
	if err != nil {
		return nil, &qcerr.InvocationError{Operation: listOp.Name, Domain: param.Domain, Err: err}
	}

	// Refresh the candidate list in context without letting the listing
	// auto-select an entity the user has not chosen.
	r.harvester.HarvestLookup(listOp.Name, payload)

	var matches []qcerr.Candidate
	var matchRaw []any
	if items, ok := payload[info.ItemsKey].([]any); ok {
		for _, raw := range items {
			entry, ok := raw.(map[string]any)
			if !ok {
				continue
			}
			candidate := asString(entry[info.NameKey])
			if !strings.EqualFold(candidate, name) {
				continue
			}
			matches = append(matches, qcerr.Candidate{ID: asString(entry[info.IDKey]), Name: candidate})
			matchRaw = append(matchRaw, entry[info.IDKey])
		}
	}

	switch len(matches) {
	case 0:
		return nil, &qcerr.MissingContextError{Operation: op.Name, Parameter: param.Name, Domain: param.Domain}
	case 1:
		id := matchRaw[0]
		// The user named this entity; pin it as an explicit choice.
		r.store.Update(func(tx *contextstore.Tx) {
			tx.SetPinned(param.Domain, param.ContextField(), id, contextstore.ProvenanceExplicit)
			tx.PushRecent(param.Domain, contextstore.RecentItem{ID: matches[0].ID, Name: matches[0].Name})
		})
		r.logger.Info("%s: resolved %s %q to %s", op.Name, param.Domain, name, matches[0].ID)
		return id, nil
	default:
		return nil, &qcerr.DisambiguationError{
			Operation:  op.Name,
			Parameter:  param.Name,
			Domain:     param.Domain,
			Name:       name,
			Candidates: matches,
		}
	}
}

// listOnce collapses concurrent identical list lookups into one call.
func (r *Resolver) listOnce(ctx context.Context, operation string, args map[string]any) (map[string]any, error) {
	key := operation
	if encoded, err := json.Marshal(args); err == nil {
		key = operation + "|" + string(encoded)
	}
	payload, err, _ := r.lookups.Do(key, func() (any, error) {
		return r.invoker.Invoke(ctx, operation, args)
	})
	if err != nil {
		return nil, err
	}
	result, _ := payload.(map[string]any)
	return result, nil
}

// recordExplicit pins an explicitly supplied identifier so later inferred
// writes cannot clobber it.
func (r *Resolver) recordExplicit(param catalog.Param, value any) {
	r.store.Update(func(tx *contextstore.Tx) {
		tx.SetPinned(param.Domain, param.ContextField(), value, contextstore.ProvenanceExplicit)
		if param.ContextField() == "id" {
			if id := asString(value); id != "" {
				tx.PushRecent(param.Domain, contextstore.RecentItem{ID: id})
			}
		}
	})
}

func isEmpty(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case string:
		return v == ""
	default:
		return false
	}
}

func isIdentifierShaped(key string) bool {
	return len(key) > 2 && (strings.HasSuffix(key, "Id") || strings.HasSuffix(key, "ID"))
}

func asString(raw any) string {
	switch value := raw.(type) {
	case string:
		return value
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(value)
	}
}
