// Package turn drives one conversational exchange with the dialogue service:
// context assembly, the single Converse call, tool routing, and folding the
// results into a merge-ready outcome.
package turn

import (
	"context"
	"fmt"

	"github.com/lorekeep/archivist/internal/dialogue"
	"github.com/lorekeep/archivist/internal/observe"
	"github.com/lorekeep/archivist/internal/schema"
	"github.com/lorekeep/archivist/internal/store"
	"github.com/lorekeep/archivist/internal/tools"
)

// Processor runs dialogue turns.
type Processor struct {
	svc     dialogue.Service
	orch    *tools.Orchestrator
	observe *observe.Observer
}

func New(svc dialogue.Service, orch *tools.Orchestrator, obs *observe.Observer) *Processor {
	return &Processor{
		svc:     svc,
		orch:    orch,
		observe: obs,
	}
}

// Input is the full context for one turn.
type Input struct {
	History     []store.Message
	UserMessage string
	ImageURL    string
	Context     *schema.EntityContext
	Media       *schema.MediaAnalysis
	Fields      schema.Entity
}

// Outcome is everything a turn produced, ready for the field merger.
type Outcome struct {
	Reply       string
	Proposed    schema.Entity
	Conflicts   []store.Warning
	Suggestions []string
	Signal      *float64
	FollowUps   []string
	Tools       []store.ToolInvocationRecord
	Usage       dialogue.Usage
}

// Process runs one exchange. The dialogue service is invoked exactly once;
// any requested tool calls are routed through the orchestrator before the
// reply is finalized. A turn without tool calls is a plain conversational
// reply with no field updates.
func (p *Processor) Process(ctx context.Context, in Input) (*Outcome, error) {
	ctx, span := p.observe.StartSpan(ctx, "ProcessTurn")
	defer span.End()

	req := dialogue.Request{
		Messages: p.assemble(in),
		Tools:    dialogue.Definitions(),
	}

	reply, err := p.svc.Converse(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("dialogue service call failed: %w", err)
	}

	out := &Outcome{
		Reply:     reply.Content,
		Signal:    reply.Completeness,
		FollowUps: reply.FollowUps,
		Usage:     reply.Usage,
	}

	if len(reply.ToolCalls) > 0 {
		st := &tools.TurnState{}
		out.Tools = p.orch.Run(ctx, reply.ToolCalls, st)
		out.Proposed = st.Proposed
		out.Conflicts = st.Conflicts
		out.Suggestions = st.Suggestions

		if out.Signal == nil && len(st.FieldConfidences) > 0 {
			avg := 0.0
			for _, c := range st.FieldConfidences {
				avg += c
			}
			avg /= float64(len(st.FieldConfidences))
			out.Signal = &avg
		}

		p.observe.Log().Debug().
			Int("calls", len(reply.ToolCalls)).
			Str("results", tools.Describe(out.Tools)).
			Msg("tool calls routed")
	}

	if out.Reply == "" {
		out.Reply = "Noted."
	}

	return out, nil
}

// Opening asks the service for the first assistant message of a fresh
// session, grounded the same way later turns are.
func (p *Processor) Opening(ctx context.Context, in Input) (string, error) {
	ctx, span := p.observe.StartSpan(ctx, "OpeningTurn")
	defer span.End()

	req := dialogue.Request{
		Messages: []dialogue.Message{
			{Role: store.RoleSystem, Content: buildSystemPrompt(in.Fields, in.Context, in.Media)},
			{Role: store.RoleUser, Content: "Begin the cataloging interview with a short greeting and your first question."},
		},
		Tools: dialogue.Definitions(),
	}

	reply, err := p.svc.Converse(ctx, req)
	if err != nil {
		return "", fmt.Errorf("dialogue service call failed: %w", err)
	}
	if reply.Content == "" {
		return "Welcome to the archive. What are we cataloging today?", nil
	}
	return reply.Content, nil
}

func (p *Processor) assemble(in Input) []dialogue.Message {
	msgs := make([]dialogue.Message, 0, len(in.History)+2)
	msgs = append(msgs, dialogue.Message{
		Role:    store.RoleSystem,
		Content: buildSystemPrompt(in.Fields, in.Context, in.Media),
	})

	for _, m := range in.History {
		msgs = append(msgs, dialogue.Message{
			Role:    m.Role,
			Content: m.Content,
		})
	}

	user := in.UserMessage
	if in.ImageURL != "" {
		user = fmt.Sprintf("%s\n\n[attached media: %s]", user, in.ImageURL)
	}
	msgs = append(msgs, dialogue.Message{Role: store.RoleUser, Content: user})

	return msgs
}
