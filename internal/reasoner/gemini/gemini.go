// Package gemini implements a research reasoner on Gemini function calling.
// Every capability schema becomes a function declaration; the model ends a
// session by calling stop_research, and plain text answers are recorded as
// partial reports.
package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/agentstation/taxamap/pkg/errors"
	"github.com/agentstation/taxamap/pkg/logging"
	"github.com/agentstation/taxamap/pkg/research"
	"github.com/agentstation/taxamap/pkg/sources"
	"github.com/agentstation/taxamap/pkg/types"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// stopFunction is the declaration the model calls to end a session.
const stopFunction = "stop_research"

// Generator is the subset of the genai Models service the reasoner uses.
type Generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Reasoner asks a Gemini model for the next research step.
type Reasoner struct {
	gen         Generator
	model       string
	temperature float32
}

// Option configures a Reasoner.
type Option func(*Reasoner)

// WithModel sets the model name.
func WithModel(model string) Option {
	return func(r *Reasoner) {
		if model != "" {
			r.model = model
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(r *Reasoner) {
		r.temperature = t
	}
}

// WithGenerator replaces the genai client, mainly for tests.
func WithGenerator(g Generator) Option {
	return func(r *Reasoner) {
		r.gen = g
	}
}

// New creates a reasoner for the Gemini API. An API key is required unless
// a Generator is supplied.
func New(ctx context.Context, apiKey string, opts ...Option) (*Reasoner, error) {
	r := &Reasoner{model: DefaultModel}
	for _, opt := range opts {
		opt(r)
	}
	if r.gen != nil {
		return r, nil
	}
	if apiKey == "" {
		return nil, errors.NewConfigError("gemini", "API key required (set gemini.api_key or GOOGLE_API_KEY)", nil)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  apiKey,
	})
	if err != nil {
		return nil, errors.NewConfigError("gemini", "creating client", err)
	}
	r.gen = client.Models
	return r, nil
}

// Model returns the configured model name.
func (r *Reasoner) Model() string { return r.model }

// Next implements research.Reasoner.
func (r *Reasoner) Next(ctx context.Context, p research.Prompt) (research.Decision, error) {
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(p.Instructions, genai.RoleUser),
		Tools:             []*genai.Tool{{FunctionDeclarations: declarations(p.Capabilities)}},
		Temperature:       genai.Ptr(r.temperature),
	}

	resp, err := r.gen.GenerateContent(ctx, r.model, contents(p), config)
	if err != nil {
		return research.Decision{}, fmt.Errorf("gemini %s: %w", r.model, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return research.Decision{}, errors.NewParseError("gemini", "", "response has no candidates", nil)
	}

	var text []string
	for _, part := range resp.Candidates[0].Content.Parts {
		if part == nil {
			continue
		}
		if part.FunctionCall != nil {
			d := decision(part.FunctionCall)
			logging.FromContext(ctx).Debug().
				Str("model", r.model).
				Str("function", part.FunctionCall.Name).
				Msg("model requested function")
			return d, nil
		}
		if t := strings.TrimSpace(part.Text); t != "" {
			text = append(text, t)
		}
	}
	if len(text) == 0 {
		return research.Decision{}, errors.NewParseError("gemini", "", "response has neither a function call nor text", nil)
	}
	return research.Report(strings.Join(text, "\n")), nil
}

// declarations turns capability schemas into function declarations.
func declarations(schemas []sources.Schema) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(schemas)+1)
	for _, s := range schemas {
		props := make(map[string]*genai.Schema, len(s.Params)+1)
		for _, param := range s.Params {
			typ := genai.TypeString
			if param.Type == "integer" {
				typ = genai.TypeInteger
			}
			props[param.Name] = &genai.Schema{Type: typ, Description: param.Description}
		}
		if len(s.Sources) > 1 {
			enum := make([]string, len(s.Sources))
			for i, id := range s.Sources {
				enum[i] = string(id)
			}
			props["source"] = &genai.Schema{
				Type:        genai.TypeString,
				Description: "Source to query; defaults to " + enum[0],
				Enum:        enum,
			}
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        string(s.Capability),
			Description: s.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   s.Required(),
			},
		})
	}
	return append(decls, &genai.FunctionDeclaration{
		Name:        stopFunction,
		Description: "End the research session when the record is complete or no source has more to offer.",
		Parameters: &genai.Schema{
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"reason": {Type: genai.TypeString, Description: "Why research is finished"},
			},
			Required: []string{"reason"},
		},
	})
}

// contents replays the transcript as a conversation.
func contents(p research.Prompt) []*genai.Content {
	out := []*genai.Content{
		genai.NewContentFromText(fmt.Sprintf("Research the taxon %q.", p.Key), genai.RoleUser),
	}
	for _, t := range p.Transcript {
		switch t.Decision.Kind {
		case research.DecisionReport:
			out = append(out, genai.NewContentFromText(t.Decision.Text, genai.RoleModel))
		case research.DecisionCall:
			call := t.Decision.Call
			out = append(out, genai.NewContentFromParts([]*genai.Part{
				genai.NewPartFromFunctionCall(string(call.Capability), callArgs(call)),
			}, genai.RoleModel))
			if t.Invocation != nil {
				out = append(out, genai.NewContentFromParts([]*genai.Part{
					genai.NewPartFromFunctionResponse(string(call.Capability), response(t.Invocation)),
				}, genai.RoleUser))
			}
		}
	}
	return out
}

func callArgs(call research.ToolCall) map[string]any {
	args := make(map[string]any, len(call.Args)+1)
	for k, v := range call.Args {
		args[k] = v
	}
	if call.Source != "" {
		args["source"] = string(call.Source)
	}
	return args
}

func response(inv *research.Invocation) map[string]any {
	if inv.Failed() {
		return map[string]any{"error": inv.Error, "kind": inv.ErrorKind}
	}
	var payload any
	if err := json.Unmarshal(inv.Payload, &payload); err != nil {
		return map[string]any{"output": string(inv.Payload)}
	}
	return map[string]any{"source": string(inv.Source), "output": payload}
}

// decision converts a function call into a research decision.
func decision(fc *genai.FunctionCall) research.Decision {
	if fc.Name == stopFunction {
		reason, _ := fc.Args["reason"].(string)
		return research.Stop(reason)
	}
	args := make(sources.Args, len(fc.Args))
	var source types.SourceID
	for k, v := range fc.Args {
		s := stringify(v)
		if k == "source" {
			source = types.SourceID(s)
			continue
		}
		args[k] = s
	}
	return research.CallTool(types.Capability(fc.Name), source, args)
}

func stringify(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(x)
	}
}
