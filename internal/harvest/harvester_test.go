package harvest

import (
	"testing"

	"github.com/alexmahrou/mcp-server/internal/catalog"
	"github.com/alexmahrou/mcp-server/internal/contextstore"
)

func newHarvester(t *testing.T) (*Harvester, *contextstore.Store) {
	t.Helper()
	store := contextstore.New()
	return New(store, catalog.Default(), nil), store
}

func TestHarvestCrossLinkedPayloadAtomically(t *testing.T) {
	h, store := newHarvester(t)
	before := store.Version()

	h.Harvest("create_backtest", map[string]any{
		"success": true,
		"backtest": map[string]any{
			"backtestId": "bt-1",
			"projectId":  float64(12345),
			"status":     "In Queue...",
			"name":       "momentum-v2",
		},
	})

	// Both identifiers land in one store version.
	if got := store.Version(); got != before+1 {
		t.Fatalf("version = %d, want %d", got, before+1)
	}
	bt, ok := store.Get(contextstore.DomainBacktest, "id")
	if !ok || bt.String() != "bt-1" {
		t.Fatalf("backtest.id = %+v, ok=%v", bt, ok)
	}
	if bt.Provenance != contextstore.ProvenanceInferred {
		t.Fatalf("harvested pin should be inferred, got %s", bt.Provenance)
	}
	proj, ok := store.Get(contextstore.DomainProject, "id")
	if !ok || proj.String() != "12345" {
		t.Fatalf("project.id = %+v, ok=%v", proj, ok)
	}

	recent := store.Recent(contextstore.DomainBacktest)
	if len(recent) != 1 || recent[0].ID != "bt-1" || recent[0].Name != "momentum-v2" {
		t.Fatalf("backtest recent = %+v", recent)
	}

	status, ok := store.GetStatus(contextstore.DomainBacktest)
	if !ok || status.State != catalog.StateInProgress || status.Raw != "In Queue..." {
		t.Fatalf("status = %+v, ok=%v", status, ok)
	}
}

func TestHarvestListBecomesRecencyList(t *testing.T) {
	h, store := newHarvester(t)

	h.Harvest("list_projects", map[string]any{
		"success": true,
		"projects": []any{
			map[string]any{"projectId": float64(3), "name": "Gamma"},
			map[string]any{"projectId": float64(1), "name": "Alpha"},
			map[string]any{"projectId": float64(2), "name": "Beta"},
		},
	})

	recent := store.Recent(contextstore.DomainProject)
	if len(recent) != 3 {
		t.Fatalf("recent = %+v", recent)
	}
	// Server ordering is preserved, first entry most recent.
	if recent[0].ID != "3" || recent[1].ID != "1" || recent[2].ID != "2" {
		t.Fatalf("ordering lost: %+v", recent)
	}
	if recent[0].Name != "Gamma" {
		t.Fatalf("name pairing lost: %+v", recent[0])
	}

	// The first entry fills the pinned slot as an inferred value.
	pin, ok := store.Get(contextstore.DomainProject, "id")
	if !ok || pin.String() != "3" || pin.Provenance != contextstore.ProvenanceInferred {
		t.Fatalf("pinned = %+v, ok=%v", pin, ok)
	}
}

func TestHarvestListNeverClobbersExplicitPin(t *testing.T) {
	h, store := newHarvester(t)
	store.Update(func(tx *contextstore.Tx) {
		tx.SetPinned(contextstore.DomainProject, "id", "chosen", contextstore.ProvenanceExplicit)
	})

	h.Harvest("list_projects", map[string]any{
		"projects": []any{
			map[string]any{"projectId": "other", "name": "Other"},
		},
	})

	pin, _ := store.Get(contextstore.DomainProject, "id")
	if pin.String() != "chosen" || pin.Provenance != contextstore.ProvenanceExplicit {
		t.Fatalf("explicit pin clobbered by list harvest: %+v", pin)
	}
	// The recency list still refreshed.
	if recent := store.Recent(contextstore.DomainProject); len(recent) != 1 || recent[0].ID != "other" {
		t.Fatalf("recent = %+v", recent)
	}
}

func TestHarvestEchoKeepsExplicitPin(t *testing.T) {
	h, store := newHarvester(t)
	store.Update(func(tx *contextstore.Tx) {
		tx.SetPinned(contextstore.DomainProject, "id", float64(5), contextstore.ProvenanceExplicit)
	})

	// The platform echoes the project identifier back in the result; the
	// echo must not downgrade the user's explicit choice to inferred.
	h.Harvest("read_backtest", map[string]any{
		"success": true,
		"backtest": map[string]any{
			"backtestId": "bt-1",
			"projectId":  float64(5),
			"status":     "Completed.",
		},
	})
	pin, _ := store.Get(contextstore.DomainProject, "id")
	if pin.String() != "5" || pin.Provenance != contextstore.ProvenanceExplicit {
		t.Fatalf("echoed identifier downgraded the explicit pin: %+v", pin)
	}

	// With the provenance intact, a later listing cannot move the choice.
	h.Harvest("list_projects", map[string]any{
		"projects": []any{
			map[string]any{"projectId": float64(999), "name": "Other"},
		},
	})
	pin, _ = store.Get(contextstore.DomainProject, "id")
	if pin.String() != "5" || pin.Provenance != contextstore.ProvenanceExplicit {
		t.Fatalf("explicit project choice moved after a listing: %+v", pin)
	}
}

func TestHarvestOverflowAndLastID(t *testing.T) {
	h, store := newHarvester(t)

	h.Harvest("read_project_nodes", map[string]any{
		"success": true,
		"nodeId":  "n-42",
	})

	value, ok := store.GetOverflow("nodeId")
	if !ok || value.String() != "n-42" {
		t.Fatalf("overflow = %+v, ok=%v", value, ok)
	}
	last, ok := store.LastID()
	if !ok || last.String() != "n-42" {
		t.Fatalf("last.id = %+v, ok=%v", last, ok)
	}
}

func TestHarvestFileAndObjectHandles(t *testing.T) {
	h, store := newHarvester(t)

	h.Harvest("create_file", map[string]any{
		"files": []any{
			map[string]any{"name": "main.py", "content": "pass"},
		},
	})
	name, ok := store.Get(contextstore.DomainFile, "name")
	if !ok || name.String() != "main.py" {
		t.Fatalf("file.name = %+v, ok=%v", name, ok)
	}

	h.Harvest("upload_object", map[string]any{
		"success": true,
		"key":     "results/run-7",
	})
	key, ok := store.Get(contextstore.DomainObject, "key")
	if !ok || key.String() != "results/run-7" {
		t.Fatalf("object.key = %+v, ok=%v", key, ok)
	}
}

func TestHarvestIgnoresMalformedPayloads(t *testing.T) {
	h, store := newHarvester(t)
	before := store.Version()

	h.Harvest("create_backtest", nil)
	h.Harvest("create_backtest", "not an object")
	h.Harvest("create_backtest", map[string]any{"success": true})
	h.Harvest("list_projects", map[string]any{"projects": []any{"garbage", float64(3)}})

	if got := store.Version(); got != before {
		t.Fatalf("malformed payloads mutated the store: version %d -> %d", before, got)
	}
}

func TestHarvestCompileStatusMapping(t *testing.T) {
	h, store := newHarvester(t)

	h.Harvest("read_compile", map[string]any{
		"compileId": "c-9",
		"state":     "BuildError",
	})

	status, ok := store.GetStatus(contextstore.DomainCompile)
	if !ok || status.State != catalog.StateFailed || status.Raw != "BuildError" {
		t.Fatalf("compile status = %+v, ok=%v", status, ok)
	}
}
