package reset

import (
	"testing"

	"github.com/alexmahrou/mcp-server/internal/contextstore"
)

func seededStore() *contextstore.Store {
	s := contextstore.New()
	s.Update(func(tx *contextstore.Tx) {
		tx.SetPinned(contextstore.DomainProject, "id", "p-1", contextstore.ProvenanceExplicit)
		tx.SetPinned(contextstore.DomainCompile, "id", "c-1", contextstore.ProvenanceInferred)
		tx.SetPinned(contextstore.DomainBacktest, "id", "bt-1", contextstore.ProvenanceInferred)
		tx.SetPinned(contextstore.DomainOptimization, "id", "o-1", contextstore.ProvenanceInferred)
		tx.SetPinned(contextstore.DomainLive, "id", "L-1", contextstore.ProvenanceInferred)
		tx.SetPinned(contextstore.DomainLive, "command", "cmd-1", contextstore.ProvenanceInferred)
		tx.PushRecent(contextstore.DomainBacktest, contextstore.RecentItem{ID: "bt-1"})
		tx.PushRecent(contextstore.DomainLive, contextstore.RecentItem{ID: "L-1"})
		tx.SetStatus(contextstore.DomainBacktest, "completed", "Completed")
	})
	return s
}

func TestCreateProjectClearsJobContext(t *testing.T) {
	store := seededStore()
	policy := New(store, nil)

	policy.OnOperationCompleted("create_project")

	for _, domain := range []contextstore.Domain{
		contextstore.DomainCompile,
		contextstore.DomainBacktest,
		contextstore.DomainOptimization,
	} {
		if _, ok := store.Get(domain, "id"); ok {
			t.Fatalf("%s.id survived create_project", domain)
		}
	}
	// The stale backtest status is gone too, but history stays for
	// re-pick.
	if _, ok := store.GetStatus(contextstore.DomainBacktest); ok {
		t.Fatalf("stale backtest status survived create_project")
	}
	if len(store.Recent(contextstore.DomainBacktest)) == 0 {
		t.Fatalf("backtest recency should survive create_project")
	}
	// Live deployments and the project pin are untouched.
	if _, ok := store.Get(contextstore.DomainLive, "id"); !ok {
		t.Fatalf("live.id should survive create_project")
	}
	if _, ok := store.Get(contextstore.DomainProject, "id"); !ok {
		t.Fatalf("project.id should survive create_project")
	}
}

func TestDeleteProjectTearsDownScopedContext(t *testing.T) {
	store := seededStore()
	policy := New(store, nil)

	policy.OnOperationCompleted("delete_project")

	if _, ok := store.Get(contextstore.DomainProject, "id"); ok {
		t.Fatalf("project.id survived delete_project")
	}
	for _, domain := range []contextstore.Domain{
		contextstore.DomainCompile,
		contextstore.DomainBacktest,
		contextstore.DomainOptimization,
		contextstore.DomainLive,
		contextstore.DomainFile,
	} {
		if _, ok := store.Get(domain, "id"); ok {
			t.Fatalf("%s.id survived delete_project", domain)
		}
		if len(store.Recent(domain)) != 0 {
			t.Fatalf("%s recency survived delete_project", domain)
		}
	}
}

func TestStopLiveClearsDeployIDOnly(t *testing.T) {
	store := seededStore()
	policy := New(store, nil)

	policy.OnOperationCompleted("stop_live_algorithm")

	if _, ok := store.Get(contextstore.DomainLive, "id"); ok {
		t.Fatalf("live.id survived stop_live_algorithm")
	}
	if _, ok := store.Get(contextstore.DomainLive, "command"); !ok {
		t.Fatalf("live.command should survive stop_live_algorithm")
	}
	if len(store.Recent(contextstore.DomainLive)) == 0 {
		t.Fatalf("live recency should survive stop_live_algorithm")
	}
	// Nothing outside the live domain moves.
	if _, ok := store.Get(contextstore.DomainBacktest, "id"); !ok {
		t.Fatalf("backtest.id should survive stop_live_algorithm")
	}
}

func TestTriggersAreIdempotent(t *testing.T) {
	store := seededStore()
	policy := New(store, nil)

	policy.OnOperationCompleted("delete_project")
	snap := store.Snapshot()

	policy.OnOperationCompleted("delete_project")
	again := store.Snapshot()

	// Applying the same trigger twice leaves an identical end state and
	// does not even bump the version.
	if snap.Version != again.Version {
		t.Fatalf("second application bumped version: %d -> %d", snap.Version, again.Version)
	}
	if len(snap.Domains) != len(again.Domains) {
		t.Fatalf("domains diverged: %v vs %v", snap.Domains, again.Domains)
	}
}

func TestNonTriggerOperationsAreNoOps(t *testing.T) {
	store := seededStore()
	policy := New(store, nil)
	before := store.Version()

	policy.OnOperationCompleted("read_backtest")
	policy.OnOperationCompleted("create_live_algorithm")

	if store.Version() != before {
		t.Fatalf("non-trigger operation mutated the store")
	}
	if Triggers("read_backtest") {
		t.Fatalf("read_backtest should not be a trigger")
	}
	if !Triggers("delete_project") {
		t.Fatalf("delete_project should be a trigger")
	}
}
