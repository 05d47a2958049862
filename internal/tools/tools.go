// Package tools executes the tool invocations a dialogue turn requests
// against per-turn state. A failing call is recorded and surfaced, never
// escalated: one malformed invocation must not cost the whole turn.
package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/lorekeep/archivist/internal/dialogue"
	"github.com/lorekeep/archivist/internal/schema"
	"github.com/lorekeep/archivist/internal/store"
)

// Embedder is the slice of the dialogue service the relationship tool needs.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// ReferenceSearcher is the slice of storage the relationship tool needs.
type ReferenceSearcher interface {
	SearchReferences(vector []float32, limit int) ([]store.Reference, error)
}

// TurnState accumulates the side effects of one turn's tool calls. It is
// merged into the session by the caller; tools never touch persisted state.
type TurnState struct {
	Proposed         schema.Entity
	Conflicts        []store.Warning
	Suggestions      []string
	FieldConfidences []float64
}

// Executor runs one parsed tool call against the turn state.
type Executor func(ctx context.Context, call dialogue.ParsedCall, st *TurnState) error

// Orchestrator routes parsed tool calls to registered executors and captures
// an invocation record for every call regardless of outcome.
type Orchestrator struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// New creates an orchestrator with the default archivist executors
// registered. embed and refs may be nil; the relationship tool then reports
// failure instead of suggestions.
func New(embed Embedder, refs ReferenceSearcher) *Orchestrator {
	o := &Orchestrator{executors: make(map[string]Executor)}
	o.Register(dialogue.ToolRecordField, recordField)
	o.Register(dialogue.ToolFlagConflict, flagConflict)
	o.Register(dialogue.ToolSuggestRelationship, suggestRelationship(embed, refs))
	return o
}

// Register adds or replaces the executor for a tool name.
func (o *Orchestrator) Register(name string, exec Executor) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.executors[name] = exec
}

// Run executes the requested calls in order. Every call yields exactly one
// ToolInvocationRecord; failures are captured in the record and the remaining
// calls still run.
func (o *Orchestrator) Run(ctx context.Context, calls []dialogue.ToolCall, st *TurnState) []store.ToolInvocationRecord {
	records := make([]store.ToolInvocationRecord, 0, len(calls))

	for _, raw := range calls {
		rec := store.ToolInvocationRecord{
			Name:      raw.Name,
			StartTime: time.Now(),
		}

		err := o.execute(ctx, raw, st)
		rec.EndTime = time.Now()
		if err != nil {
			rec.Error = err.Error()
		} else {
			rec.Success = true
		}

		records = append(records, rec)
	}

	return records
}

func (o *Orchestrator) execute(ctx context.Context, raw dialogue.ToolCall, st *TurnState) error {
	call, err := dialogue.Parse(raw)
	if err != nil {
		return err
	}

	o.mu.RLock()
	exec, ok := o.executors[call.Name]
	o.mu.RUnlock()

	if !ok {
		return fmt.Errorf("tools: no executor for %q", call.Name)
	}
	return exec(ctx, call, st)
}

func recordField(_ context.Context, call dialogue.ParsedCall, st *TurnState) error {
	args := call.Record
	if err := st.Proposed.Set(args.Field, args.Value); err != nil {
		return err
	}
	if args.Confidence != nil {
		st.FieldConfidences = append(st.FieldConfidences, *args.Confidence)
	}
	return nil
}

func flagConflict(_ context.Context, call dialogue.ParsedCall, st *TurnState) error {
	args := call.Conflict
	text := fmt.Sprintf("conflicting claim for %q: %s", args.Field, args.Claimed)
	if args.Reason != "" {
		text += " (" + args.Reason + ")"
	}
	st.Conflicts = append(st.Conflicts, store.Warning{
		Field:    args.Field,
		Severity: store.SeverityHigh,
		Text:     text,
	})
	return nil
}

func suggestRelationship(embed Embedder, refs ReferenceSearcher) Executor {
	return func(ctx context.Context, call dialogue.ParsedCall, st *TurnState) error {
		if embed == nil || refs == nil {
			return fmt.Errorf("tools: relationship lookup unavailable")
		}

		vec, err := embed.Embed(ctx, call.Relation.Description)
		if err != nil {
			return fmt.Errorf("tools: embed relationship hint: %w", err)
		}

		found, err := refs.SearchReferences(vec, 3)
		if err != nil {
			return fmt.Errorf("tools: search references: %w", err)
		}

		for _, ref := range found {
			name := ref.Name
			if d := ref.Metadata["domain"]; d != "" {
				name = fmt.Sprintf("%s (%s)", name, d)
			}
			st.Suggestions = append(st.Suggestions, name)
		}
		if len(found) == 0 {
			st.Suggestions = append(st.Suggestions, "no related entities in the archive yet")
		}
		return nil
	}
}

// Names returns the registered tool names, for logging.
func (o *Orchestrator) Names() []string {
	o.mu.RLock()
	defer o.mu.RUnlock()

	names := make([]string, 0, len(o.executors))
	for n := range o.executors {
		names = append(names, n)
	}
	return names
}

// Describe summarizes records for logs: "record_field ok, flag_conflict err".
func Describe(records []store.ToolInvocationRecord) string {
	parts := make([]string, 0, len(records))
	for _, r := range records {
		status := "ok"
		if !r.Success {
			status = "err"
		}
		parts = append(parts, r.Name+" "+status)
	}
	return strings.Join(parts, ", ")
}
