// Package research drives bounded research sessions: a reasoner picks one
// capability call per turn, the orchestrator executes it through the source
// registry with retry policy, and the session ends as completed, budget
// exceeded, or failed.
package research

import (
	"context"
	"encoding/json"
	"time"

	"github.com/agentstation/taxamap/pkg/sources"
	"github.com/agentstation/taxamap/pkg/taxa"
	"github.com/agentstation/taxamap/pkg/types"
)

// Outcome is the termination state of a session.
type Outcome string

// Session outcomes.
const (
	Completed      Outcome = "completed"
	BudgetExceeded Outcome = "budget_exceeded"
	Failed         Outcome = "failed"
)

// Result is what a session hands back to its callers. Captures is shared
// between all callers joined on the same key and must not be modified.
type Result struct {
	Outcome  Outcome
	Captures []taxa.RawCapture
	Reason   string
	Session  *Session
}

// DecisionKind tells which of the three reasoner answers a Decision is.
type DecisionKind string

// Decision kinds.
const (
	DecisionCall   DecisionKind = "call"
	DecisionStop   DecisionKind = "stop"
	DecisionReport DecisionKind = "report"
)

// ToolCall is a capability request made by the reasoner.
type ToolCall struct {
	Capability types.Capability `json:"capability"`
	Source     types.SourceID   `json:"source,omitempty"`
	Args       sources.Args     `json:"args"`
	// Timeout overrides the per-capability timeout; zero keeps it.
	Timeout time.Duration `json:"-"`
}

// Decision is exactly one reasoner answer per turn.
type Decision struct {
	Kind DecisionKind `json:"kind"`
	Call ToolCall     `json:"call,omitempty"`
	Text string       `json:"text,omitempty"` // stop reason or partial report
}

// CallTool returns a tool-call decision.
func CallTool(c types.Capability, source types.SourceID, args sources.Args) Decision {
	return Decision{Kind: DecisionCall, Call: ToolCall{Capability: c, Source: source, Args: args}}
}

// Stop returns a termination decision.
func Stop(reason string) Decision {
	return Decision{Kind: DecisionStop, Text: reason}
}

// Report returns a free-text partial report decision.
func Report(text string) Decision {
	return Decision{Kind: DecisionReport, Text: text}
}

// Invocation is the outcome of one executed tool call.
type Invocation struct {
	Call      ToolCall        `json:"call"`
	Source    types.SourceID  `json:"source"` // the source that actually served the call
	CaptureID string          `json:"capture_id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Error     string          `json:"error,omitempty"`
	ErrorKind string          `json:"error_kind,omitempty"`
	Attempts  int             `json:"attempts"`
	Duration  time.Duration   `json:"duration"`
}

// Failed reports whether the invocation produced no capture.
func (i *Invocation) Failed() bool {
	return i.Error != ""
}

// Turn is one reasoner step and, for tool calls, its invocation.
type Turn struct {
	Index      int         `json:"index"`
	Decision   Decision    `json:"decision"`
	Invocation *Invocation `json:"invocation,omitempty"`
}

// Prompt is everything a reasoner sees on a turn.
type Prompt struct {
	Key          string           `json:"key"`
	Instructions string           `json:"instructions"`
	Capabilities []sources.Schema `json:"capabilities"`
	Transcript   []Turn           `json:"transcript"`
}

// Reasoner decides the next step of a session.
type Reasoner interface {
	Next(ctx context.Context, p Prompt) (Decision, error)
}

// ReasonerFunc adapts a function to Reasoner.
type ReasonerFunc func(ctx context.Context, p Prompt) (Decision, error)

// Next implements Reasoner.
func (f ReasonerFunc) Next(ctx context.Context, p Prompt) (Decision, error) {
	return f(ctx, p)
}

// Invoker executes capability calls; *sources.Registry implements it.
type Invoker interface {
	Invoke(ctx context.Context, call sources.Call) (taxa.RawCapture, error)
	Schemas() []sources.Schema
	Sources(c types.Capability) []types.SourceID
}

// DefaultInstructions is the task description given to reasoners.
const DefaultInstructions = `You are researching a biological taxon for a species information database.
Call one capability per turn. Start with lookup_by_name to establish the accepted scientific name,
then gather occurrences, media, literature and morphology for the accepted name.
Pass algaebase_id to get_morphology when lookup_by_name returned one.
Stop when the record is complete or no source has more to offer.`
