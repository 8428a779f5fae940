package resolve

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/alexmahrou/mcp-server/internal/catalog"
	"github.com/alexmahrou/mcp-server/internal/contextstore"
	qcerr "github.com/alexmahrou/mcp-server/internal/errors"
	"github.com/alexmahrou/mcp-server/internal/harvest"
)

// fakeInvoker serves canned payloads per operation and records calls.
type fakeInvoker struct {
	payloads map[string]map[string]any
	calls    []string
	err      error
}

func (f *fakeInvoker) Invoke(ctx context.Context, operation string, args map[string]any) (map[string]any, error) {
	f.calls = append(f.calls, operation)
	if f.err != nil {
		return nil, f.err
	}
	payload, ok := f.payloads[operation]
	if !ok {
		return nil, fmt.Errorf("unexpected call: %s", operation)
	}
	return payload, nil
}

func newResolver(invoker *fakeInvoker) (*Resolver, *contextstore.Store) {
	store := contextstore.New()
	registry := catalog.Default()
	harvester := harvest.New(store, registry, nil)
	return New(store, registry, invoker, harvester, nil), store
}

func TestExplicitArgumentWinsOverPinned(t *testing.T) {
	r, store := newResolver(&fakeInvoker{})
	store.Update(func(tx *contextstore.Tx) {
		tx.SetPinned(contextstore.DomainProject, "id", "pinned", contextstore.ProvenanceInferred)
	})

	args, err := r.Resolve(context.Background(), "read_project", map[string]any{"projectId": float64(777)})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if args["projectId"] != float64(777) {
		t.Fatalf("projectId = %v, want explicit 777", args["projectId"])
	}

	// The explicit choice is now pinned with explicit provenance.
	pin, ok := store.Get(contextstore.DomainProject, "id")
	if !ok || pin.Provenance != contextstore.ProvenanceExplicit || pin.String() != "777" {
		t.Fatalf("pin after explicit arg = %+v, ok=%v", pin, ok)
	}
}

func TestPinnedContextFillsOmittedArguments(t *testing.T) {
	r, store := newResolver(&fakeInvoker{})
	store.Update(func(tx *contextstore.Tx) {
		tx.SetPinned(contextstore.DomainProject, "id", float64(555), contextstore.ProvenanceInferred)
		tx.SetPinned(contextstore.DomainCompile, "id", "c-1", contextstore.ProvenanceInferred)
	})

	args, err := r.Resolve(context.Background(), "create_backtest", map[string]any{"backtestName": "run-1"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if args["projectId"] != float64(555) || args["compileId"] != "c-1" || args["backtestName"] != "run-1" {
		t.Fatalf("args = %v", args)
	}
	if _, ok := args["parameters"]; ok {
		t.Fatalf("optional unset parameter leaked into args: %v", args)
	}
}

func TestResolutionIsDeterministic(t *testing.T) {
	r, store := newResolver(&fakeInvoker{})
	store.Update(func(tx *contextstore.Tx) {
		tx.SetPinned(contextstore.DomainProject, "id", float64(555), contextstore.ProvenanceInferred)
	})

	first, err := r.Resolve(context.Background(), "read_project", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	for i := 0; i < 5; i++ {
		again, err := r.Resolve(context.Background(), "read_project", nil)
		if err != nil {
			t.Fatalf("resolve #%d: %v", i, err)
		}
		if len(again) != len(first) || again["projectId"] != first["projectId"] {
			t.Fatalf("resolution changed between identical calls: %v vs %v", first, again)
		}
	}
}

func TestNameLookupExactMatchResolvesAndPins(t *testing.T) {
	invoker := &fakeInvoker{payloads: map[string]map[string]any{
		"list_projects": {
			"success": true,
			"projects": []any{
				map[string]any{"projectId": float64(1), "name": "Alpha"},
				map[string]any{"projectId": float64(2), "name": "Alpha-Research"},
			},
		},
	}}
	r, store := newResolver(invoker)

	// "Alpha" matches exactly one project even though another name
	// contains it as a substring.
	args, err := r.Resolve(context.Background(), "read_project", map[string]any{"name": "Alpha"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if args["projectId"] != float64(1) {
		t.Fatalf("projectId = %v, want 1", args["projectId"])
	}
	if len(invoker.calls) != 1 || invoker.calls[0] != "list_projects" {
		t.Fatalf("calls = %v", invoker.calls)
	}

	// The named choice pins explicitly; a later list harvest cannot move it.
	pin, ok := store.Get(contextstore.DomainProject, "id")
	if !ok || pin.Provenance != contextstore.ProvenanceExplicit {
		t.Fatalf("pin = %+v, ok=%v", pin, ok)
	}
}

func TestNameLookupIsCaseInsensitive(t *testing.T) {
	invoker := &fakeInvoker{payloads: map[string]map[string]any{
		"list_projects": {
			"projects": []any{
				map[string]any{"projectId": float64(9), "name": "Momentum"},
			},
		},
	}}
	r, _ := newResolver(invoker)

	args, err := r.Resolve(context.Background(), "read_project", map[string]any{"name": "momentum"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if args["projectId"] != float64(9) {
		t.Fatalf("projectId = %v", args["projectId"])
	}
}

func TestNameLookupAmbiguityFailsWithCandidates(t *testing.T) {
	invoker := &fakeInvoker{payloads: map[string]map[string]any{
		"list_projects": {
			"projects": []any{
				map[string]any{"projectId": float64(1), "name": "Alpha"},
				map[string]any{"projectId": float64(2), "name": "alpha"},
			},
		},
	}}
	r, store := newResolver(invoker)

	_, err := r.Resolve(context.Background(), "read_project", map[string]any{"name": "Alpha"})
	var ambiguous *qcerr.DisambiguationError
	if !errors.As(err, &ambiguous) {
		t.Fatalf("err = %v, want DisambiguationError", err)
	}
	if len(ambiguous.Candidates) != 2 {
		t.Fatalf("candidates = %+v", ambiguous.Candidates)
	}
	if ambiguous.Question() == "" {
		t.Fatalf("disambiguation must carry a question")
	}
	// Ambiguity must not pin anything.
	if _, ok := store.Get(contextstore.DomainProject, "id"); ok {
		t.Fatalf("ambiguous lookup pinned a project id")
	}
}

func TestNameLookupNoMatchIsMissingContext(t *testing.T) {
	invoker := &fakeInvoker{payloads: map[string]map[string]any{
		"list_projects": {"projects": []any{}},
	}}
	r, _ := newResolver(invoker)

	_, err := r.Resolve(context.Background(), "read_project", map[string]any{"name": "Nothing"})
	if !qcerr.IsMissingContext(err) {
		t.Fatalf("err = %v, want MissingContextError", err)
	}
}

func TestRecencyFallbackOnlyForAllowListedParams(t *testing.T) {
	r, store := newResolver(&fakeInvoker{})
	store.Update(func(tx *contextstore.Tx) {
		tx.PushRecent(contextstore.DomainBacktest, contextstore.RecentItem{ID: "bt-old"})
		tx.PushRecent(contextstore.DomainBacktest, contextstore.RecentItem{ID: "bt-new"})
		tx.SetPinned(contextstore.DomainProject, "id", float64(1), contextstore.ProvenanceInferred)
	})

	// read_backtest declares backtestId with the recency fallback; the
	// most recent entry wins.
	args, err := r.Resolve(context.Background(), "read_backtest", nil)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if args["backtestId"] != "bt-new" {
		t.Fatalf("backtestId = %v, want bt-new", args["backtestId"])
	}

	// create_backtest's compileId is not fallback-eligible; recency alone
	// must not satisfy it.
	store.Update(func(tx *contextstore.Tx) {
		tx.PushRecent(contextstore.DomainCompile, contextstore.RecentItem{ID: "c-recent"})
	})
	_, err = r.Resolve(context.Background(), "create_backtest", map[string]any{"backtestName": "x"})
	var missing *qcerr.MissingContextError
	if !errors.As(err, &missing) || missing.Parameter != "compileId" {
		t.Fatalf("err = %v, want missing compileId", err)
	}
}

func TestMissingContextCarriesQuestion(t *testing.T) {
	r, _ := newResolver(&fakeInvoker{})

	_, err := r.Resolve(context.Background(), "read_backtest", nil)
	if !qcerr.IsMissingContext(err) {
		t.Fatalf("err = %v, want MissingContextError", err)
	}
	if qcerr.Question(err) == "" {
		t.Fatalf("missing-context failure must carry a question")
	}
}

func TestUnknownOperationPassesThrough(t *testing.T) {
	r, store := newResolver(&fakeInvoker{})
	store.Update(func(tx *contextstore.Tx) {
		tx.SetPinned(contextstore.DomainProject, "id", float64(42), contextstore.ProvenanceInferred)
		tx.SetOverflow("nodeId", "n-1")
	})

	args, err := r.Resolve(context.Background(), "totally_new_op", map[string]any{
		"projectId": "",
		"nodeId":    nil,
		"payload":   "keep",
		"customId":  "",
	})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	// Empty identifier-shaped keys fill from context under exact name
	// match; everything else passes through untouched.
	if args["projectId"] != float64(42) {
		t.Fatalf("projectId = %v", args["projectId"])
	}
	if args["nodeId"] != "n-1" {
		t.Fatalf("nodeId = %v", args["nodeId"])
	}
	if args["payload"] != "keep" {
		t.Fatalf("payload = %v", args["payload"])
	}
	if args["customId"] != "" {
		t.Fatalf("customId should stay empty without a context match, got %v", args["customId"])
	}
}

func TestListFailureSurfacesAsInvocationError(t *testing.T) {
	invoker := &fakeInvoker{err: fmt.Errorf("boom")}
	r, _ := newResolver(invoker)

	_, err := r.Resolve(context.Background(), "read_project", map[string]any{"name": "Alpha"})
	var invocation *qcerr.InvocationError
	if !errors.As(err, &invocation) {
		t.Fatalf("err = %v, want InvocationError", err)
	}
}
