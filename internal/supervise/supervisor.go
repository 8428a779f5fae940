// Package supervise drives long-running operations to a terminal state:
// poll on exponential backoff, record status on every observation, expose
// one awaited outcome.
package supervise

import (
	"context"
	"fmt"
	"time"

	"github.com/alexmahrou/mcp-server/internal/catalog"
	"github.com/alexmahrou/mcp-server/internal/contextstore"
	qcerr "github.com/alexmahrou/mcp-server/internal/errors"
	"github.com/alexmahrou/mcp-server/internal/harvest"
	"github.com/alexmahrou/mcp-server/internal/logging"
	"github.com/alexmahrou/mcp-server/internal/resolve"
)

// Config bounds the polling schedule. Zero fields take defaults.
type Config struct {
	InitialInterval time.Duration `yaml:"initial_interval" mapstructure:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval" mapstructure:"max_interval"`
	Multiplier      float64       `yaml:"multiplier" mapstructure:"multiplier"`
	MaxAttempts     int           `yaml:"max_attempts" mapstructure:"max_attempts"`
	Deadline        time.Duration `yaml:"deadline" mapstructure:"deadline"`
}

// DefaultConfig returns the default polling schedule.
func DefaultConfig() Config {
	return Config{
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
		MaxAttempts:     30,
		Deadline:        10 * time.Minute,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.InitialInterval <= 0 {
		c.InitialInterval = def.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = def.MaxInterval
	}
	if c.Multiplier <= 1 {
		c.Multiplier = def.Multiplier
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = def.MaxAttempts
	}
	if c.Deadline <= 0 {
		c.Deadline = def.Deadline
	}
	return c
}

// Outcome is the terminal result of a supervised operation. A remote
// failure is an outcome, not a Go error; errors are reserved for transport
// faults, cancellation, and deadline exhaustion.
type Outcome struct {
	State    string         `json:"state"` // completed, failed, cancelled
	Raw      string         `json:"raw_status"`
	Payload  map[string]any `json:"payload"`
	Attempts int            `json:"attempts"`
}

// Event is one observed status transition, published out of band.
type Event struct {
	Operation string              `json:"operation"`
	Domain    contextstore.Domain `json:"domain"`
	State     string              `json:"state"`
	Raw       string              `json:"raw_status"`
	Attempt   int                 `json:"attempt"`
	Terminal  bool                `json:"terminal"`
}

// Supervisor wraps long-running operations with polling and backoff.
type Supervisor struct {
	config    Config
	store     *contextstore.Store
	registry  *catalog.Registry
	harvester *harvest.Harvester
	invoker   resolve.Invoker
	logger    logging.Logger
	notify    func(Event)
	onDone    func(operation string, outcome Outcome, err error)
	sleep     func(ctx context.Context, d time.Duration) error
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithNotify installs an out-of-band status transition listener.
func WithNotify(notify func(Event)) Option {
	return func(s *Supervisor) { s.notify = notify }
}

// WithOnDone installs a hook observing every supervised operation's final
// outcome, for accounting.
func WithOnDone(onDone func(operation string, outcome Outcome, err error)) Option {
	return func(s *Supervisor) { s.onDone = onDone }
}

// withSleep overrides the backoff sleeper, for tests.
func withSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(s *Supervisor) { s.sleep = sleep }
}

// New constructs a Supervisor.
func New(config Config, store *contextstore.Store, registry *catalog.Registry, harvester *harvest.Harvester, invoker resolve.Invoker, logger logging.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		config:    config.withDefaults(),
		store:     store,
		registry:  registry,
		harvester: harvester,
		invoker:   invoker,
		logger:    logging.OrNop(logger),
		sleep:     sleepCtx,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Pending is one in-flight supervised operation. Its polling loop runs on
// its own goroutine so unrelated operations are never blocked behind it.
type Pending struct {
	outcome chan result
	cancel  context.CancelFunc
}

type result struct {
	outcome Outcome
	err     error
}

// Cancel stops further polling. Status already recorded stays recorded.
func (p *Pending) Cancel() {
	p.cancel()
}

// Await blocks until the terminal outcome.
func (p *Pending) Await(ctx context.Context) (Outcome, error) {
	select {
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	case res := <-p.outcome:
		return res.outcome, res.err
	}
}

// Start supervises an operation whose initial invocation already returned
// initialPayload. The initial call counts as attempt one. The job's poll
// arguments are captured here, before the goroutine spawns: later
// operations may re-pin the domain while this one is still polling, and
// every poll must keep observing the job it was started for.
func (s *Supervisor) Start(ctx context.Context, op *catalog.Operation, initialPayload map[string]any) *Pending {
	pollOp := op
	if op.PollOp != "" {
		if poller, ok := s.registry.Lookup(op.PollOp); ok {
			pollOp = poller
		}
	}
	pollArgs := s.capturePollArgs(pollOp, initialPayload)

	pollCtx, cancel := context.WithCancel(ctx)
	pending := &Pending{outcome: make(chan result, 1), cancel: cancel}
	go func() {
		defer cancel()
		outcome, err := s.run(pollCtx, op, pollOp, pollArgs, initialPayload)
		if s.onDone != nil {
			s.onDone(op.Name, outcome, err)
		}
		pending.outcome <- result{outcome: outcome, err: err}
	}()
	return pending
}

// Supervise runs the polling loop synchronously.
func (s *Supervisor) Supervise(ctx context.Context, op *catalog.Operation, initialPayload map[string]any) (Outcome, error) {
	return s.Start(ctx, op, initialPayload).Await(ctx)
}

func (s *Supervisor) run(ctx context.Context, op, pollOp *catalog.Operation, pollArgs, initialPayload map[string]any) (Outcome, error) {
	info, ok := s.registry.Domain(op.ResultDomain)
	if !ok {
		return Outcome{}, fmt.Errorf("no domain info for %s", op.ResultDomain)
	}

	started := time.Now()
	attempts := 1
	lastRaw := s.observe(op, info, initialPayload, attempts)
	if state := info.LifecycleState(lastRaw); isTerminal(state) {
		return Outcome{State: state, Raw: lastRaw, Payload: initialPayload, Attempts: attempts}, nil
	}

	interval := s.config.InitialInterval
	for {
		if attempts >= s.config.MaxAttempts || time.Since(started)+interval > s.config.Deadline {
			return Outcome{}, &qcerr.TimeoutError{
				Operation:  op.Name,
				Domain:     op.ResultDomain,
				Attempts:   attempts,
				Elapsed:    time.Since(started),
				LastStatus: lastRaw,
			}
		}

		if err := s.sleep(ctx, interval); err != nil {
			return Outcome{}, err
		}
		interval = time.Duration(float64(interval) * s.config.Multiplier)
		if interval > s.config.MaxInterval {
			interval = s.config.MaxInterval
		}

		payload, err := s.invoker.Invoke(ctx, pollOp.Name, pollArgs)
		if err != nil {
			return Outcome{}, &qcerr.InvocationError{Operation: pollOp.Name, Domain: op.ResultDomain, Err: err}
		}
		attempts++

		s.harvester.Harvest(pollOp.Name, payload)
		lastRaw = s.observe(op, info, payload, attempts)
		if state := info.LifecycleState(lastRaw); isTerminal(state) {
			s.logger.Info("%s reached %s after %d attempt(s)", op.Name, state, attempts)
			return Outcome{State: state, Raw: lastRaw, Payload: payload, Attempts: attempts}, nil
		}
	}
}

// capturePollArgs fixes the poll operation's argument set to the job
// being supervised. Identifiers come from the initial payload itself;
// anything the payload does not carry falls back to the pins as they
// stand now, under the issuing lock, not as they stand at poll time.
func (s *Supervisor) capturePollArgs(pollOp *catalog.Operation, payload map[string]any) map[string]any {
	args := make(map[string]any, len(pollOp.Params))
	for _, param := range pollOp.Params {
		if value, ok := payloadScalar(payload, param.Name); ok {
			args[param.Name] = value
			continue
		}
		if param.Domain == "" {
			continue
		}
		if value, ok := s.store.Get(param.Domain, param.ContextField()); ok {
			args[param.Name] = value.Raw
		}
	}
	return args
}

// payloadScalar finds a scalar field at the top level or one nested
// level, matching how the platform wraps job objects.
func payloadScalar(payload map[string]any, name string) (any, bool) {
	if value, ok := payload[name]; ok && isScalar(value) {
		return value, true
	}
	for _, raw := range payload {
		if nested, ok := raw.(map[string]any); ok {
			if value, ok := nested[name]; ok && isScalar(value) {
				return value, true
			}
		}
	}
	return nil, false
}

func isScalar(value any) bool {
	switch value.(type) {
	case nil, map[string]any, []any:
		return false
	}
	return true
}

// observe records the payload's status into the store and publishes the
// transition. Returns the provider-reported status string.
func (s *Supervisor) observe(op *catalog.Operation, info catalog.DomainInfo, payload map[string]any, attempt int) string {
	raw := statusFrom(payload, op.StatusField)
	if raw == "" {
		return ""
	}
	state := info.LifecycleState(raw)
	s.store.Update(func(tx *contextstore.Tx) {
		tx.SetStatus(op.ResultDomain, state, raw)
	})
	if s.notify != nil {
		s.notify(Event{
			Operation: op.Name,
			Domain:    op.ResultDomain,
			State:     state,
			Raw:       raw,
			Attempt:   attempt,
			Terminal:  isTerminal(state),
		})
	}
	return raw
}

func isTerminal(state string) bool {
	switch state {
	case catalog.StateCompleted, catalog.StateFailed, catalog.StateCancelled:
		return true
	}
	return false
}

// statusFrom digs the provider status out of the payload, checking the
// top level and one nested level, matching how the platform wraps job
// objects ({"backtest": {...}}).
func statusFrom(payload map[string]any, field string) string {
	if field == "" {
		return ""
	}
	if raw, ok := payload[field].(string); ok && raw != "" {
		return raw
	}
	for _, value := range payload {
		if nested, ok := value.(map[string]any); ok {
			if raw, ok := nested[field].(string); ok && raw != "" {
				return raw
			}
		}
	}
	return ""
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
