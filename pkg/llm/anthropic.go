package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/shipsight/shipsight/pkg/config"
	"github.com/shipsight/shipsight/pkg/models"
)

// MessagesClient captures the subset of the Anthropic SDK used by the
// adapter. Satisfied by *sdk.MessageService; tests pass a mock.
type MessagesClient interface {
	New(ctx context.Context, body sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// AnthropicClient implements Client over the Anthropic Messages API.
type AnthropicClient struct {
	msg         MessagesClient
	model       string
	maxTokens   int
	temperature float64
}

// NewAnthropicClient builds a client from configuration. apiKey must be
// non-empty; callers use Disabled{} when no key is available.
func NewAnthropicClient(apiKey string, cfg *config.LLMConfig) (*AnthropicClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("anthropic: api key is required")
	}
	ac := sdk.NewClient(option.WithAPIKey(apiKey))
	return NewAnthropicClientWith(&ac.Messages, cfg), nil
}

// NewAnthropicClientWith builds a client over an existing MessagesClient.
func NewAnthropicClientWith(msg MessagesClient, cfg *config.LLMConfig) *AnthropicClient {
	return &AnthropicClient{
		msg:         msg,
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
	}
}

const extractSystemPrompt = `You extract shipment identifiers from support tickets.
Reply with a single JSON object and nothing else:
{"identifiers": {"<slot>": "<value>", ...}, "mode": "<ocean|rail|air|otr|yard|unknown>", "confidence": <0..1>}
Valid slots: tracking_id, load_number, container_number, booking_number,
bill_of_lading, carrier_id, shipper_id, awb, pro_number, rail_car.
Omit slots you cannot determine. Never invent values.`

// ExtractIdentifiers implements Client.
func (c *AnthropicClient) ExtractIdentifiers(ctx context.Context, req ExtractRequest) (*ExtractResult, error) {
	var sb strings.Builder
	sb.WriteString("Ticket description:\n")
	sb.WriteString(req.Description)
	if len(req.Known) > 0 {
		known, _ := json.Marshal(req.Known)
		sb.WriteString("\n\nIdentifiers already known (do not contradict): ")
		sb.Write(known)
	}
	if req.ModeHint != "" && req.ModeHint != models.ModeUnknown {
		sb.WriteString("\n\nMode hint: ")
		sb.WriteString(string(req.ModeHint))
	}

	text, err := c.complete(ctx, extractSystemPrompt, sb.String())
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Identifiers map[string]string `json:"identifiers"`
		Mode        string            `json:"mode"`
		Confidence  float64           `json:"confidence"`
	}
	if err := json.Unmarshal(extractJSON(text), &parsed); err != nil {
		return nil, fmt.Errorf("anthropic: unparseable extraction response: %w", err)
	}

	mode := models.Mode(parsed.Mode)
	if !mode.IsValid() {
		mode = models.ModeUnknown
	}
	out := &ExtractResult{
		Identifiers: make(map[string]string, len(parsed.Identifiers)),
		Mode:        mode,
		Confidence:  parsed.Confidence,
	}
	for slot, v := range parsed.Identifiers {
		if v = strings.TrimSpace(v); v != "" {
			out.Identifiers[slot] = v
		}
	}
	return out, nil
}

const suggestSystemPrompt = `You are a shipment-tracking support analyst proposing root-cause hypotheses.
Reply with a single JSON array and nothing else:
[{"category": "<category>", "description": "<one line>", "prior": <0.10..0.35>}, ...]
Use only these categories: %s.
Do not repeat categories that are already under investigation.`

// SuggestHypotheses implements Client.
func (c *AnthropicClient) SuggestHypotheses(ctx context.Context, req SuggestRequest) ([]Suggestion, error) {
	cats := make([]string, 0, len(models.AllCategories()))
	for _, cat := range models.AllCategories() {
		cats = append(cats, string(cat))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticket: %s\nMode: %s\n", req.Description, req.Mode)
	if len(req.Existing) > 0 {
		fmt.Fprintf(&sb, "Already under investigation: %v\n", req.Existing)
	}
	sb.WriteString("Evidence so far:\n")
	for _, ev := range req.Evidence {
		rel := "opposes"
		if ev.Supports {
			rel = "supports"
		}
		fmt.Fprintf(&sb, "- [%s, weight %d, %s] %s\n", ev.Source, ev.Weight, rel, ev.Finding)
	}
	fmt.Fprintf(&sb, "Propose at most %d new hypotheses.", req.Max)

	text, err := c.complete(ctx, fmt.Sprintf(suggestSystemPrompt, strings.Join(cats, ", ")), sb.String())
	if err != nil {
		return nil, err
	}

	var parsed []struct {
		Category    string  `json:"category"`
		Description string  `json:"description"`
		Prior       float64 `json:"prior"`
	}
	if err := json.Unmarshal(extractJSON(text), &parsed); err != nil {
		return nil, fmt.Errorf("anthropic: unparseable suggestion response: %w", err)
	}

	out := make([]Suggestion, 0, len(parsed))
	for _, p := range parsed {
		cat := models.Category(p.Category)
		if !cat.IsValid() {
			continue
		}
		out = append(out, Suggestion{
			Category:    cat,
			Description: p.Description,
			Prior:       clampPrior(p.Prior),
		})
		if req.Max > 0 && len(out) >= req.Max {
			break
		}
	}
	return out, nil
}

// Close implements Client. The SDK client holds no persistent connection.
func (c *AnthropicClient) Close() error { return nil }

func (c *AnthropicClient) complete(ctx context.Context, system, prompt string) (string, error) {
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: int64(c.maxTokens),
		System:    []sdk.TextBlockParam{{Text: system}},
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(prompt)),
		},
	}
	if c.temperature > 0 {
		params.Temperature = sdk.Float(c.temperature)
	}

	msg, err := c.msg.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return sb.String(), nil
}

// extractJSON strips markdown fences the model occasionally wraps around its
// JSON reply.
func extractJSON(text string) []byte {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}
	return []byte(strings.TrimSpace(text))
}

func clampPrior(p float64) float64 {
	if p < 0.10 {
		return 0.10
	}
	if p > 0.35 {
		return 0.35
	}
	return p
}
