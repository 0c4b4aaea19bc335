// Package extraction defines the contract for turning a runner's free-text
// self-description into structured features via a hosted language model.
package extraction

import (
	"context"
	"errors"
	"fmt"

	"github.com/okian/halfpace/internal/domain/features"
)

// SystemInstruction is the fixed instruction sent with every extraction.
const SystemInstruction = "Wyciągasz dane z tekstu. Zwróć JSON: {sex, age, time_5km_seconds}. " +
	"Jeśli czegoś brakuje, użyj null. Czas przelicz na sekundy."

// SchemaName names the structured-output schema at the provider.
const SchemaName = "features"

// ErrExtraction is the single failure kind surfaced by every extractor:
// transport, authentication, and undecodable responses all wrap it.
var ErrExtraction = errors.New("feature extraction failed")

// Extractor maps free text to features. Fields the model could not find are
// left nil. Errors always wrap ErrExtraction.
type Extractor interface {
	Extract(ctx context.Context, text string) (features.Extracted, error)
}

// Func adapts a plain function to Extractor.
type Func func(ctx context.Context, text string) (features.Extracted, error)

// Extract calls f.
func (f Func) Extract(ctx context.Context, text string) (features.Extracted, error) {
	return f(ctx, text)
}

// Wrap tags err with op and ErrExtraction unless it already carries it.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrExtraction) {
		return err
	}
	return fmt.Errorf("%s: %w: %w", op, ErrExtraction, err)
}
