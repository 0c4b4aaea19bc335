// Package gemini extracts runner features with Gemini structured output.
package gemini

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/okian/halfpace/internal/domain/extraction"
	"github.com/okian/halfpace/internal/domain/features"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

const op = "gemini.extract"

// Extractor implements extraction.Extractor against the Gemini API.
type Extractor struct {
	client *genai.Client
	model  string
}

// Option configures an Extractor.
type Option func(*options)

type options struct {
	baseURL string
	model   string
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// WithModel selects the Gemini model.
func WithModel(model string) Option {
	return func(o *options) {
		if model != "" {
			o.model = model
		}
	}
}

// New creates an extractor authenticated with apiKey.
func New(ctx context.Context, apiKey string, opts ...Option) (*Extractor, error) {
	o := options{model: DefaultModel}
	for _, opt := range opts {
		opt(&o)
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:      apiKey,
		Backend:     genai.BackendGeminiAPI,
		HTTPOptions: genai.HTTPOptions{BaseURL: o.baseURL},
	})
	if err != nil {
		return nil, extraction.Wrap("gemini.new", err)
	}
	return &Extractor{client: client, model: o.model}, nil
}

// Model returns the configured model name.
func (e *Extractor) Model() string {
	return e.model
}

// responseSchema mirrors extraction.Schema in Gemini's OpenAPI subset.
func responseSchema() *genai.Schema {
	nullable := genai.Ptr(true)
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			features.FieldSex: {
				Type:        genai.TypeString,
				Nullable:    nullable,
				Description: "Płeć osoby, tak jak została podana w tekście",
			},
			features.FieldAge: {
				Type:        genai.TypeInteger,
				Nullable:    nullable,
				Description: "Wiek w latach",
			},
			features.FieldTime5kmSeconds: {
				Type:        genai.TypeInteger,
				Nullable:    nullable,
				Description: "Czas na 5 km w sekundach",
			},
		},
		Required:         features.Required,
		PropertyOrdering: features.Required,
	}
}

// Extract sends text with the fixed instruction and decodes the JSON reply.
func (e *Extractor) Extract(ctx context.Context, text string) (features.Extracted, error) {
	resp, err := e.client.Models.GenerateContent(ctx, e.model, genai.Text(text), &genai.GenerateContentConfig{
		SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: extraction.SystemInstruction}}},
		Temperature:       genai.Ptr[float32](0),
		ResponseMIMEType:  "application/json",
		ResponseSchema:    responseSchema(),
	})
	if err != nil {
		return features.Extracted{}, extraction.Wrap(op, err)
	}
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return features.Extracted{}, extraction.Wrap(op, errors.New("empty response"))
	}
	if reason := resp.Candidates[0].FinishReason; reason != "" && reason != genai.FinishReasonStop {
		return features.Extracted{}, extraction.Wrap(op, fmt.Errorf("generation stopped: %s", reason))
	}
	return extraction.Decode(op, []byte(resp.Text()))
}

var _ extraction.Extractor = (*Extractor)(nil)
