// Package lgbm serves predictions from a LightGBM text model exported by the
// training pipeline.
package lgbm

import (
	"bufio"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"github.com/dmitryikh/leaves"

	"github.com/okian/halfpace/internal/domain/estimator"
	"github.com/okian/halfpace/internal/domain/record"
	"github.com/okian/halfpace/pkg/logger"
)

// Predictor is the subset of *leaves.Ensemble used for inference.
type Predictor interface {
	PredictSingle(fvals []float64, nEstimators int) float64
	NFeatures() int
}

// Model is a loaded regression model bound to its feature schema.
type Model struct {
	predictor Predictor
	schema    Schema
}

// New binds an already loaded predictor to schema.
func New(p Predictor, schema Schema) (*Model, error) {
	if err := schema.Validate(); err != nil {
		return nil, err
	}
	if n := p.NFeatures(); n != len(schema.FeatureNames) {
		return nil, fmt.Errorf("%w: model expects %d features, schema lists %d",
			estimator.ErrSchemaMismatch, n, len(schema.FeatureNames))
	}
	return &Model{predictor: p, schema: schema}, nil
}

// Load reads a LightGBM model (optionally gzip-compressed) and its schema
// sidecar from disk.
func Load(modelPath string) (*Model, error) {
	file, err := os.Open(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open model file: %w", err)
	}
	defer file.Close()

	var reader io.Reader = file
	if strings.HasSuffix(modelPath, ".gz") || strings.HasSuffix(modelPath, ".gzip") {
		gzReader, err := gzip.NewReader(file)
		if err != nil {
			return nil, fmt.Errorf("failed to create gzip reader: %w", err)
		}
		defer gzReader.Close()
		reader = gzReader
	}

	ensemble, err := leaves.LGEnsembleFromReader(bufio.NewReader(reader), true)
	if err != nil {
		return nil, fmt.Errorf("failed to load LightGBM model: %w", err)
	}

	schema, found, err := LoadSchema(modelPath)
	if err != nil {
		return nil, err
	}
	if !found {
		logger.Get().Warn(context.Background(), "model schema sidecar not found, using default",
			logger.String("model", modelPath),
			logger.String("schema", SchemaPath(modelPath)))
	}

	m, err := New(ensemble, schema)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// Predict implements estimator.Estimator.
func (m *Model) Predict(ctx context.Context, in record.Input) (float64, error) {
	if err := ctx.Err(); err != nil {
		return 0, fmt.Errorf("%w: %w", estimator.ErrEstimation, err)
	}
	row, err := m.schema.Encode(in)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", estimator.ErrEstimation, err)
	}
	pred := m.predictor.PredictSingle(row, 0)
	if math.IsNaN(pred) {
		return 0, fmt.Errorf("%w: model returned NaN", estimator.ErrEstimation)
	}
	return pred, nil
}

// Schema returns the schema the model was bound to.
func (m *Model) Schema() Schema {
	return m.schema
}

var _ estimator.Estimator = (*Model)(nil)
