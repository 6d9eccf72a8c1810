package llm

import (
	"context"
	"errors"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shipsight/shipsight/pkg/config"
	"github.com/shipsight/shipsight/pkg/models"
)

type fakeMessages struct {
	reply  string
	err    error
	params sdk.MessageNewParams
}

func (f *fakeMessages) New(_ context.Context, body sdk.MessageNewParams, _ ...option.RequestOption) (*sdk.Message, error) {
	f.params = body
	if f.err != nil {
		return nil, f.err
	}
	return &sdk.Message{
		Content: []sdk.ContentBlockUnion{{Type: "text", Text: f.reply}},
	}, nil
}

func testLLMConfig() *config.LLMConfig {
	return &config.LLMConfig{Model: "claude-sonnet-4-20250514", MaxTokens: 1024}
}

func TestExtractIdentifiersParsesResponse(t *testing.T) {
	fake := &fakeMessages{
		reply: `{"identifiers": {"container_number": "MSCU5285725", "carrier_id": " MSC ", "load_number": "  "}, "mode": "ocean", "confidence": 0.92}`,
	}
	c := NewAnthropicClientWith(fake, testLLMConfig())

	res, err := c.ExtractIdentifiers(context.Background(), ExtractRequest{
		Description: "container MSCU5285725 stuck since Friday",
	})
	require.NoError(t, err)
	assert.Equal(t, models.ModeOcean, res.Mode)
	assert.Equal(t, 0.92, res.Confidence)
	assert.Equal(t, "MSCU5285725", res.Identifiers["container_number"])
	assert.Equal(t, "MSC", res.Identifiers["carrier_id"], "values are trimmed")
	assert.NotContains(t, res.Identifiers, "load_number", "blank values are dropped")

	assert.Equal(t, sdk.Model("claude-sonnet-4-20250514"), fake.params.Model)
	assert.Equal(t, int64(1024), fake.params.MaxTokens)
}

func TestExtractIdentifiersStripsMarkdownFences(t *testing.T) {
	fake := &fakeMessages{
		reply: "```json\n{\"identifiers\": {\"load_number\": \"U110123982\"}, \"mode\": \"otr\", \"confidence\": 0.8}\n```",
	}
	c := NewAnthropicClientWith(fake, testLLMConfig())

	res, err := c.ExtractIdentifiers(context.Background(), ExtractRequest{Description: "x"})
	require.NoError(t, err)
	assert.Equal(t, models.ModeOTR, res.Mode)
	assert.Equal(t, "U110123982", res.Identifiers["load_number"])
}

func TestExtractIdentifiersUnknownMode(t *testing.T) {
	fake := &fakeMessages{
		reply: `{"identifiers": {}, "mode": "teleport", "confidence": 0.9}`,
	}
	c := NewAnthropicClientWith(fake, testLLMConfig())

	res, err := c.ExtractIdentifiers(context.Background(), ExtractRequest{Description: "x"})
	require.NoError(t, err)
	assert.Equal(t, models.ModeUnknown, res.Mode)
}

func TestExtractIdentifiersAPIErrorIsUnavailable(t *testing.T) {
	fake := &fakeMessages{err: errors.New("connection refused")}
	c := NewAnthropicClientWith(fake, testLLMConfig())

	_, err := c.ExtractIdentifiers(context.Background(), ExtractRequest{Description: "x"})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestExtractIdentifiersRejectsGarbage(t *testing.T) {
	fake := &fakeMessages{reply: "I could not find any identifiers, sorry!"}
	c := NewAnthropicClientWith(fake, testLLMConfig())

	_, err := c.ExtractIdentifiers(context.Background(), ExtractRequest{Description: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unparseable")
}

func TestSuggestHypothesesParsesResponse(t *testing.T) {
	fake := &fakeMessages{
		reply: `[
			{"category": "carrier_api_down", "description": "Carrier API outage", "prior": 0.5},
			{"category": "gremlins", "description": "Not a real category", "prior": 0.2},
			{"category": "eld_not_enabled", "description": "ELD never set up", "prior": 0.01}
		]`,
	}
	c := NewAnthropicClientWith(fake, testLLMConfig())

	out, err := c.SuggestHypotheses(context.Background(), SuggestRequest{
		Description: "truck not updating",
		Mode:        models.ModeOTR,
		Max:         5,
	})
	require.NoError(t, err)
	require.Len(t, out, 2, "invalid categories are discarded")
	assert.Equal(t, models.CategoryCarrierAPIDown, out[0].Category)
	assert.Equal(t, 0.35, out[0].Prior, "priors are clamped from above")
	assert.Equal(t, models.CategoryELDNotEnabled, out[1].Category)
	assert.Equal(t, 0.10, out[1].Prior, "priors are clamped from below")
}

func TestSuggestHypothesesHonorsMax(t *testing.T) {
	fake := &fakeMessages{
		reply: `[
			{"category": "carrier_api_down", "description": "a", "prior": 0.2},
			{"category": "eld_not_enabled", "description": "b", "prior": 0.2},
			{"category": "load_not_found", "description": "c", "prior": 0.2}
		]`,
	}
	c := NewAnthropicClientWith(fake, testLLMConfig())

	out, err := c.SuggestHypotheses(context.Background(), SuggestRequest{Max: 2})
	require.NoError(t, err)
	assert.Len(t, out, 2)
}

func TestDisabledClient(t *testing.T) {
	var c Client = Disabled{}

	_, err := c.ExtractIdentifiers(context.Background(), ExtractRequest{})
	assert.ErrorIs(t, err, ErrUnavailable)
	_, err = c.SuggestHypotheses(context.Background(), SuggestRequest{})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NoError(t, c.Close())
}
