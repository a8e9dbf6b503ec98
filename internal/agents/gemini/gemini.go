// Package gemini is an evaluator agent backed by a Gemini model with a
// JSON response type.
package gemini

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"google.golang.org/genai"

	"github.com/agentstation/corroborate/internal/agents/verdict"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/logging"
	"github.com/agentstation/corroborate/pkg/panel"
	"github.com/agentstation/corroborate/pkg/records"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gemini-2.0-flash"

// Config configures the agent.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Temperature *float64
}

// Agent asks Gemini which candidate is correct.
type Agent struct {
	id     string
	lens   string
	model  string
	temp   *float32
	client *genai.Client
}

var _ panel.Agent = (*Agent)(nil)

// New creates an agent on the Gemini API backend. index selects the
// reviewer lens.
func New(ctx context.Context, id string, index int, cfg Config) (*Agent, error) {
	if cfg.APIKey == "" {
		return nil, &errors.AuthenticationError{
			Provider: "gemini",
			Method:   "api-key",
			Message:  "API key required for the Gemini API",
		}
	}

	config := &genai.ClientConfig{
		Backend: genai.BackendGeminiAPI,
		APIKey:  cfg.APIKey,
	}
	if cfg.BaseURL != "" {
		config.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, config)
	if err != nil {
		return nil, errors.NewConfigError("gemini", "create client", err)
	}

	a := &Agent{
		id:     id,
		lens:   verdict.Lens(index),
		model:  cfg.Model,
		client: client,
	}
	if a.model == "" {
		a.model = DefaultModel
	}
	if cfg.Temperature != nil {
		a.temp = genai.Ptr(float32(*cfg.Temperature))
	}
	return a, nil
}

// ID implements panel.Agent.
func (a *Agent) ID() string { return a.id }

// Model returns the model in use.
func (a *Agent) Model() string { return a.model }

// Evaluate implements panel.Agent.
func (a *Agent) Evaluate(ctx context.Context, field records.FieldName, candidates []records.Candidate, ec panel.Context) (records.PanelSignal, error) {
	system, user := verdict.Prompt(a.lens, field, candidates, ec)
	user += "\nRespond with a JSON object with keys candidate_index, confidence, rationale."

	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(system, genai.RoleUser),
		ResponseMIMEType:  "application/json",
		Temperature:       a.temp,
	}

	start := time.Now()
	resp, err := a.client.Models.GenerateContent(ctx, a.model, genai.Text(user), config)
	if err != nil {
		return records.PanelSignal{}, classify(err)
	}

	logging.FromContext(ctx).Debug().
		Str("agent_id", a.id).
		Str("model", a.model).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Msg("Model verdict received")

	text := resp.Text()
	if text == "" {
		return records.PanelSignal{}, fmt.Errorf("empty response from %s", a.model)
	}
	v, err := verdict.Parse(text)
	if err != nil {
		return records.PanelSignal{}, err
	}
	return verdict.ToSignal(a.id, field, candidates, ec, v)
}

func classify(err error) error {
	var apiErr genai.APIError
	if stderrors.As(err, &apiErr) {
		return errors.WrapAPI("gemini", apiErr.Code, err)
	}
	return fmt.Errorf("gemini generate: %w", err)
}
