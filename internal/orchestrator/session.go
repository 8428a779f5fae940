// Package orchestrator sequences operation execution: resolve the argument
// set, invoke the platform, harvest the result, apply the reset policy.
// One Session per conversation; sessions share nothing.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/alexmahrou/mcp-server/internal/catalog"
	"github.com/alexmahrou/mcp-server/internal/contextstore"
	qcerr "github.com/alexmahrou/mcp-server/internal/errors"
	"github.com/alexmahrou/mcp-server/internal/harvest"
	"github.com/alexmahrou/mcp-server/internal/logging"
	"github.com/alexmahrou/mcp-server/internal/observability"
	"github.com/alexmahrou/mcp-server/internal/reset"
	"github.com/alexmahrou/mcp-server/internal/resolve"
	"github.com/alexmahrou/mcp-server/internal/supervise"
)

// Result is the caller-visible outcome of one executed operation.
type Result struct {
	Operation string             `json:"operation"`
	Args      map[string]any     `json:"args"`
	Payload   map[string]any     `json:"payload"`
	Outcome   *supervise.Outcome `json:"outcome,omitempty"` // long-running only
	Question  string             `json:"question,omitempty"`
}

// Options configures a Session.
type Options struct {
	RecentCap int
	Poll      supervise.Config
	Logger    logging.Logger
	Metrics   *observability.Metrics
	Notify    func(supervise.Event)
}

// Session owns one conversation's context store and collaborators.
type Session struct {
	ID string

	mu         sync.Mutex // serializes issuance; polls run outside it
	store      *contextstore.Store
	registry   *catalog.Registry
	invoker    resolve.Invoker
	resolver   *resolve.Resolver
	harvester  *harvest.Harvester
	policy     *reset.Policy
	supervisor *supervise.Supervisor
	logger     logging.Logger
	metrics    *observability.Metrics
}

// NewSession builds a session around an operation registry and invoker.
func NewSession(registry *catalog.Registry, invoker resolve.Invoker, opts Options) *Session {
	logger := logging.OrNop(opts.Logger)

	var storeOpts []contextstore.Option
	if opts.RecentCap > 0 {
		storeOpts = append(storeOpts, contextstore.WithRecentCap(opts.RecentCap))
	}
	store := contextstore.New(storeOpts...)

	harvester := harvest.New(store, registry, logger)
	resolver := resolve.New(store, registry, invoker, harvester, logger)

	var supOpts []supervise.Option
	if opts.Notify != nil {
		supOpts = append(supOpts, supervise.WithNotify(opts.Notify))
	}
	if opts.Metrics != nil {
		metrics := opts.Metrics
		supOpts = append(supOpts, supervise.WithOnDone(func(name string, outcome supervise.Outcome, err error) {
			metrics.SupervisorFinished()
			if err == nil {
				metrics.RecordPollAttempts(name, outcome.Attempts)
			}
		}))
	}
	supervisor := supervise.New(opts.Poll, store, registry, harvester, invoker, logger, supOpts...)

	return &Session{
		ID:         uuid.NewString(),
		store:      store,
		registry:   registry,
		invoker:    invoker,
		resolver:   resolver,
		harvester:  harvester,
		policy:     reset.New(store, logger),
		supervisor: supervisor,
		logger:     logger,
		metrics:    opts.Metrics,
	}
}

// Store exposes the session context store for inspection.
func (s *Session) Store() *contextstore.Store {
	return s.store
}

// Registry exposes the operation catalog the session runs against.
func (s *Session) Registry() *catalog.Registry {
	return s.registry
}

// Execute runs one operation to completion. Long-running operations block
// until their terminal outcome; use ExecuteAsync to get a handle instead.
func (s *Session) Execute(ctx context.Context, operationName string, args map[string]any) (*Result, error) {
	result, pending, err := s.begin(ctx, operationName, args)
	if err != nil || pending == nil {
		return result, err
	}
	outcome, err := pending.Await(ctx)
	if err != nil {
		return nil, err
	}
	result.Outcome = &outcome
	if outcome.Payload != nil {
		result.Payload = outcome.Payload
	}
	return result, nil
}

// ExecuteAsync runs one operation; for long-running kinds the returned
// Pending supervises polling on its own goroutine so the caller can issue
// unrelated operations meanwhile.
func (s *Session) ExecuteAsync(ctx context.Context, operationName string, args map[string]any) (*Result, *supervise.Pending, error) {
	return s.begin(ctx, operationName, args)
}

// begin performs resolve, invoke, harvest, and reset under the issuance
// lock, so the harvest of operation N is fully applied before operation
// N+1 resolves. Long-running supervision starts after the lock releases.
func (s *Session) begin(ctx context.Context, operationName string, args map[string]any) (*Result, *supervise.Pending, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ctx, span := otel.Tracer("qcmcp").Start(ctx, "session.execute",
		trace.WithAttributes(attribute.String("operation", operationName)))
	defer span.End()

	started := time.Now()
	complete, err := s.resolver.Resolve(ctx, operationName, args)
	if err != nil {
		s.recordResolution(operationName, err)
		if question := qcerr.Question(err); question != "" {
			// Resolution failures surface one crisp question, never a
			// stack trace.
			return &Result{Operation: operationName, Question: question}, nil, err
		}
		return nil, nil, err
	}
	s.recordResolution(operationName, nil)

	payload, err := s.invoker.Invoke(ctx, operationName, complete)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invoke failed")
		s.recordOperation(operationName, "error", started)
		return nil, nil, &qcerr.InvocationError{Operation: operationName, Domain: s.resultDomain(operationName), Err: err}
	}

	s.harvester.Harvest(operationName, payload)
	s.policy.OnOperationCompleted(operationName)
	s.recordOperation(operationName, "ok", started)

	result := &Result{Operation: operationName, Args: complete, Payload: payload}

	if op, ok := s.registry.Lookup(operationName); ok && op.Kind == catalog.KindLongRunning {
		if s.metrics != nil {
			s.metrics.SupervisorStarted()
		}
		return result, s.supervisor.Start(ctx, op, payload), nil
	}
	return result, nil, nil
}

// Snapshot serializes the session context for persistence or debugging.
func (s *Session) Snapshot() contextstore.Snapshot {
	return s.store.Snapshot()
}

// Restore replaces the session context. A restored session resolves
// identically to the one the snapshot came from.
func (s *Session) Restore(snap contextstore.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.store.Restore(snap)
}

func (s *Session) resultDomain(operationName string) contextstore.Domain {
	if op, ok := s.registry.Lookup(operationName); ok {
		return op.ResultDomain
	}
	return ""
}

func (s *Session) recordOperation(name, status string, started time.Time) {
	if s.metrics == nil {
		return
	}
	s.metrics.RecordOperation(name, status, time.Since(started))
}

func (s *Session) recordResolution(name string, err error) {
	if s.metrics == nil {
		return
	}
	switch {
	case err == nil:
		s.metrics.RecordResolution(name, "ok")
	case qcerr.IsDisambiguation(err):
		s.metrics.RecordResolution(name, "disambiguation")
	case qcerr.IsMissingContext(err):
		s.metrics.RecordResolution(name, "missing-context")
	default:
		s.metrics.RecordResolution(name, "error")
	}
}
