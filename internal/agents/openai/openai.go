// Package openai is an evaluator agent backed by an OpenAI chat model with
// structured JSON output.
package openai

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/agentstation/corroborate/internal/agents/verdict"
	"github.com/agentstation/corroborate/pkg/errors"
	"github.com/agentstation/corroborate/pkg/logging"
	"github.com/agentstation/corroborate/pkg/panel"
	"github.com/agentstation/corroborate/pkg/records"
)

// DefaultModel is used when Config.Model is empty.
const DefaultModel = "gpt-4o-mini"

// Config configures the agent.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature *float64
	// MaxRetries is the SDK's own retry count. The panel's timeout still
	// bounds the whole call.
	MaxRetries int
}

// Agent asks the model which candidate is correct.
type Agent struct {
	id     string
	lens   string
	client openai.Client
	cfg    Config
}

var _ panel.Agent = (*Agent)(nil)

// New creates an agent. index selects the reviewer lens.
func New(id string, index int, cfg Config) (*Agent, error) {
	if cfg.APIKey == "" {
		return nil, errors.NewAuthenticationError("openai", "api-key", "API key is required", nil)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 300
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	return &Agent{
		id:     id,
		lens:   verdict.Lens(index),
		client: openai.NewClient(opts...),
		cfg:    cfg,
	}, nil
}

// ID implements panel.Agent.
func (a *Agent) ID() string { return a.id }

// Model returns the chat model in use.
func (a *Agent) Model() string { return a.cfg.Model }

// Evaluate implements panel.Agent.
func (a *Agent) Evaluate(ctx context.Context, field records.FieldName, candidates []records.Candidate, ec panel.Context) (records.PanelSignal, error) {
	system, user := verdict.Prompt(a.lens, field, candidates, ec)

	params := openai.ChatCompletionNewParams{
		Model: a.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		MaxTokens: openai.Int(int64(a.cfg.MaxTokens)),
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONSchema: &openai.ResponseFormatJSONSchemaParam{
				JSONSchema: openai.ResponseFormatJSONSchemaJSONSchemaParam{
					Name:        verdict.SchemaName,
					Description: openai.String("Which candidate value is correct"),
					Schema:      verdict.Schema(),
					Strict:      openai.Bool(true),
				},
			},
		},
	}
	if a.cfg.Temperature != nil {
		params.Temperature = openai.Float(*a.cfg.Temperature)
	}

	start := time.Now()
	resp, err := a.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return records.PanelSignal{}, classify(err)
	}

	logging.FromContext(ctx).Debug().
		Str("agent_id", a.id).
		Str("model", a.cfg.Model).
		Int64("duration_ms", time.Since(start).Milliseconds()).
		Int64("prompt_tokens", resp.Usage.PromptTokens).
		Int64("completion_tokens", resp.Usage.CompletionTokens).
		Msg("Model verdict received")

	if len(resp.Choices) == 0 {
		return records.PanelSignal{}, fmt.Errorf("no choices in response")
	}
	v, err := verdict.Parse(resp.Choices[0].Message.Content)
	if err != nil {
		return records.PanelSignal{}, err
	}
	return verdict.ToSignal(a.id, field, candidates, ec, v)
}

// classify maps SDK errors onto the engine's error taxonomy.
func classify(err error) error {
	var apiErr *openai.Error
	if stderrors.As(err, &apiErr) {
		return errors.WrapAPI("openai", apiErr.StatusCode, err)
	}
	return fmt.Errorf("openai chat: %w", err)
}
