// Package errors defines the resolution and supervision error taxonomy.
// Every kind renders a single crisp message the orchestrator can hand to
// the conversational caller, never a raw payload or stack trace.
package errors

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alexmahrou/mcp-server/internal/contextstore"
)

// Candidate is one possible match for an ambiguous parameter.
type Candidate struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// MissingContextError means a parameter had no explicit value, no pinned
// context, and no safe fallback.
type MissingContextError struct {
	Operation string
	Parameter string
	Domain    contextstore.Domain // candidate domain, empty when unknown
}

func (e *MissingContextError) Error() string {
	if e.Domain != "" {
		return fmt.Sprintf("missing context for %s: no value for %q (domain %s)", e.Operation, e.Parameter, e.Domain)
	}
	return fmt.Sprintf("missing context for %s: no value for %q", e.Operation, e.Parameter)
}

// Question returns the one disambiguating question to ask the user.
func (e *MissingContextError) Question() string {
	if e.Domain != "" {
		return fmt.Sprintf("Which %s should %q use? Provide %s.", e.Domain, e.Operation, e.Parameter)
	}
	return fmt.Sprintf("Provide %s for %q.", e.Parameter, e.Operation)
}

// DisambiguationError means a name lookup matched more than one entity.
// The caller must re-ask the user; the resolver never guesses.
type DisambiguationError struct {
	Operation  string
	Parameter  string
	Domain     contextstore.Domain
	Name       string
	Candidates []Candidate
}

func (e *DisambiguationError) Error() string {
	return fmt.Sprintf("ambiguous %s %q for %s: %d matches", e.Domain, e.Name, e.Operation, len(e.Candidates))
}

// Question returns the one disambiguating question to ask the user.
func (e *DisambiguationError) Question() string {
	labels := make([]string, 0, len(e.Candidates))
	for _, c := range e.Candidates {
		if c.Name != "" {
			labels = append(labels, fmt.Sprintf("%s (%s)", c.Name, c.ID))
		} else {
			labels = append(labels, c.ID)
		}
	}
	return fmt.Sprintf("Multiple %ss match %q. Which one did you mean: %s?", e.Domain, e.Name, strings.Join(labels, ", "))
}

// InvocationError wraps a failed external call with domain context.
type InvocationError struct {
	Operation string
	Domain    contextstore.Domain
	Err       error
}

func (e *InvocationError) Error() string {
	if e.Domain != "" {
		return fmt.Sprintf("%s failed (%s): %v", e.Operation, e.Domain, e.Err)
	}
	return fmt.Sprintf("%s failed: %v", e.Operation, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// TimeoutError means the supervisor exhausted its polling budget without
// observing a terminal status. Distinct from a remote failure.
type TimeoutError struct {
	Operation  string
	Domain     contextstore.Domain
	Attempts   int
	Elapsed    time.Duration
	LastStatus string
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s did not reach a terminal status after %d attempts (%s); last status %q",
		e.Operation, e.Attempts, e.Elapsed.Round(time.Millisecond), e.LastStatus)
}

// IsMissingContext reports whether err is a MissingContextError.
func IsMissingContext(err error) bool {
	var target *MissingContextError
	return errors.As(err, &target)
}

// IsDisambiguation reports whether err is a DisambiguationError.
func IsDisambiguation(err error) bool {
	var target *DisambiguationError
	return errors.As(err, &target)
}

// IsTimeout reports whether err is a supervisor TimeoutError.
func IsTimeout(err error) bool {
	var target *TimeoutError
	return errors.As(err, &target)
}

// Question extracts the user-facing question from a resolution failure,
// or an empty string when err is not one.
func Question(err error) string {
	var missing *MissingContextError
	if errors.As(err, &missing) {
		return missing.Question()
	}
	var ambiguous *DisambiguationError
	if errors.As(err, &ambiguous) {
		return ambiguous.Question()
	}
	return ""
}
