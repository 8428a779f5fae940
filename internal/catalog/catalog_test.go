package catalog

import (
	"strings"
	"testing"

	"github.com/alexmahrou/mcp-server/internal/contextstore"
)

func TestRegistryRejectsDuplicates(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Operation{Name: "read_thing", Endpoint: "/thing/read"}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register(Operation{Name: "read_thing", Endpoint: "/thing/read2"}); err == nil {
		t.Fatalf("duplicate register should fail")
	}
	if err := r.Register(Operation{Endpoint: "/nameless"}); err == nil {
		t.Fatalf("nameless register should fail")
	}
}

func TestRegisterDefaultsKindToSync(t *testing.T) {
	r := NewRegistry()
	if err := r.Register(Operation{Name: "read_thing", Endpoint: "/thing/read"}); err != nil {
		t.Fatalf("register: %v", err)
	}
	op, ok := r.Lookup("read_thing")
	if !ok || op.Kind != KindSync {
		t.Fatalf("kind = %q, want sync", op.Kind)
	}
}

func TestParamContextFieldDefault(t *testing.T) {
	p := Param{Name: "projectId", Domain: contextstore.DomainProject}
	if p.ContextField() != "id" {
		t.Fatalf("ContextField() = %q, want id", p.ContextField())
	}
	p.Field = "name"
	if p.ContextField() != "name" {
		t.Fatalf("ContextField() = %q, want name", p.ContextField())
	}
}

func TestLifecycleStateDefaultsToInProgress(t *testing.T) {
	info := DomainInfo{
		Domain:   contextstore.DomainBacktest,
		StateMap: map[string]string{"Completed": StateCompleted},
	}
	if got := info.LifecycleState("Completed"); got != StateCompleted {
		t.Fatalf("LifecycleState(Completed) = %q", got)
	}
	if got := info.LifecycleState("InQueue"); got != StateInProgress {
		t.Fatalf("LifecycleState(InQueue) = %q, want in-progress", got)
	}
}

func TestDefaultCatalogShape(t *testing.T) {
	r := Default()

	// Core lifecycle operations must exist with their polling wiring.
	op, ok := r.Lookup("create_backtest")
	if !ok {
		t.Fatalf("create_backtest missing from default catalog")
	}
	if op.Kind != KindLongRunning || op.PollOp != "read_backtest" {
		t.Fatalf("create_backtest kind=%s pollOp=%s", op.Kind, op.PollOp)
	}
	if _, ok := r.Lookup(op.PollOp); !ok {
		t.Fatalf("poll operation %s not registered", op.PollOp)
	}

	// Every declared PollOp and ListOp must resolve.
	for _, name := range r.Names() {
		op, _ := r.Lookup(name)
		if op.PollOp != "" {
			if _, ok := r.Lookup(op.PollOp); !ok {
				t.Errorf("%s: poll op %s not registered", name, op.PollOp)
			}
		}
		if op.Kind == KindLongRunning && op.StatusField == "" {
			t.Errorf("%s: long-running without a status field", name)
		}
	}
	for _, domain := range []contextstore.Domain{
		contextstore.DomainProject,
		contextstore.DomainBacktest,
		contextstore.DomainOptimization,
		contextstore.DomainLive,
	} {
		info, ok := r.Domain(domain)
		if !ok {
			t.Fatalf("domain %s missing", domain)
		}
		if info.ListOp != "" {
			if _, ok := r.Lookup(info.ListOp); !ok {
				t.Errorf("domain %s: list op %s not registered", domain, info.ListOp)
			}
		}
	}

	info, ok := r.DomainForIDKey("projectId")
	if !ok || info.Domain != contextstore.DomainProject {
		t.Fatalf("DomainForIDKey(projectId) = %+v, ok=%v", info, ok)
	}
}

func TestLoadYAMLExtendsCatalog(t *testing.T) {
	r := Default()
	doc := `
domains:
  - domain: indicator
    id_key: indicatorId
operations:
  - name: read_indicator
    endpoint: /indicators/read
    params:
      - name: projectId
        domain: project
        required: true
        fallback: true
      - name: indicatorId
        domain: indicator
        required: true
    result_domain: indicator
`
	if err := r.LoadYAML(strings.NewReader(doc)); err != nil {
		t.Fatalf("LoadYAML: %v", err)
	}
	op, ok := r.Lookup("read_indicator")
	if !ok {
		t.Fatalf("extension operation not registered")
	}
	if len(op.Params) != 2 || op.Params[0].Domain != contextstore.DomainProject || !op.Params[0].Fallback {
		t.Fatalf("extension params = %+v", op.Params)
	}
	if _, ok := r.DomainForIDKey("indicatorId"); !ok {
		t.Fatalf("extension domain not registered")
	}

	// A second load with the same operation collides.
	if err := r.LoadYAML(strings.NewReader(doc)); err == nil {
		t.Fatalf("duplicate extension load should fail")
	}
}
