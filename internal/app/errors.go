package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/okian/halfpace/internal/domain/features"
)

// Sentinel error kinds returned by Predict. Extraction and estimation
// failures wrap extraction.ErrExtraction and estimator.ErrEstimation.
var (
	ErrEmptyDescription  = errors.New("description is empty")
	ErrMissingAPIKey     = errors.New("language model API key is missing")
	ErrMissingFields     = errors.New("required fields are missing")
	ErrUnrecognizedSex   = errors.New("sex is not recognized")
	ErrInvalidPrediction = errors.New("estimator returned an invalid duration")
	ErrNoExtractor       = errors.New("no extractor configured")
)

// MissingFieldsError lists the fields the language model could not find, in
// validation order.
type MissingFieldsError struct {
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingFields, strings.Join(e.Fields, ", "))
}

// Is lets errors.Is match ErrMissingFields.
func (e *MissingFieldsError) Is(target error) bool {
	return target == ErrMissingFields
}

// Labels returns the user-facing names of the missing fields.
func (e *MissingFieldsError) Labels() []string {
	return features.DisplayNames(e.Fields)
}
