// Package openai extracts runner features with OpenAI chat completions
// constrained by a strict JSON schema.
package openai

import (
	"context"
	"errors"
	"math"
	"strings"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/okian/halfpace/internal/domain/extraction"
	"github.com/okian/halfpace/internal/domain/features"
)

// DefaultModel is used when no model is configured.
const DefaultModel = goopenai.GPT4o

const op = "openai.extract"

// Extractor implements extraction.Extractor against the chat completions API.
type Extractor struct {
	client *goopenai.Client
	model  string
}

// Option configures an Extractor.
type Option func(*options)

type options struct {
	baseURL string
	model   string
}

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// WithModel selects the chat model.
func WithModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.model = model
		}
	}
}

// New creates an extractor authenticated with apiKey.
func New(apiKey string, opts ...Option) *Extractor {
	o := options{model: DefaultModel}
	for _, opt := range opts {
		opt(&o)
	}
	config := goopenai.DefaultConfig(apiKey)
	if o.baseURL != "" {
		config.BaseURL = o.baseURL
	}
	return &Extractor{
		client: goopenai.NewClientWithConfig(config),
		model:  o.model,
	}
}

// Model returns the configured chat model.
func (e *Extractor) Model() string {
	return e.model
}

// Extract sends text with the fixed instruction and decodes the structured reply.
func (e *Extractor) Extract(ctx context.Context, text string) (features.Extracted, error) {
	resp, err := e.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: e.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: extraction.SystemInstruction},
			{Role: goopenai.ChatMessageRoleUser, Content: text},
		},
		// go-openai omits a zero temperature from the request.
		Temperature: math.SmallestNonzeroFloat32,
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &goopenai.ChatCompletionResponseFormatJSONSchema{
				Name:   extraction.SchemaName,
				Schema: extraction.Schema(),
				Strict: true,
			},
		},
	})
	if err != nil {
		return features.Extracted{}, extraction.Wrap(op, err)
	}
	if len(resp.Choices) == 0 {
		return features.Extracted{}, extraction.Wrap(op, errors.New("no choices in response"))
	}

	msg := resp.Choices[0].Message
	if msg.Refusal != "" {
		return features.Extracted{}, extraction.Wrap(op, errors.New("model refused: "+msg.Refusal))
	}
	return extraction.Decode(op, []byte(strings.TrimSpace(msg.Content)))
}

var _ extraction.Extractor = (*Extractor)(nil)
