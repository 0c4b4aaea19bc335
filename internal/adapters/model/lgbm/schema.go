package lgbm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"

	"github.com/okian/halfpace/internal/domain/estimator"
	"github.com/okian/halfpace/internal/domain/record"
)

// Schema describes the feature layout the model was trained on.
type Schema struct {
	FeatureNames []string                  `json:"feature_names"`
	Categories   map[string]map[string]int `json:"categories"`
}

// DefaultSchema is used when the model ships without a sidecar file.
func DefaultSchema() Schema {
	return Schema{
		FeatureNames: slices.Clone(record.Columns),
		Categories: map[string]map[string]int{
			record.ColumnSex: {record.SexFemale: 0, record.SexMale: 1},
		},
	}
}

// Validate checks that the schema matches the record layout column by column.
func (s Schema) Validate() error {
	if !slices.Equal(s.FeatureNames, record.Columns) {
		return fmt.Errorf("%w: model features %q, record columns %q",
			estimator.ErrSchemaMismatch, s.FeatureNames, record.Columns)
	}
	for col := range s.Categories {
		if !slices.Contains(s.FeatureNames, col) {
			return fmt.Errorf("%w: categories for unknown column %q", estimator.ErrSchemaMismatch, col)
		}
	}
	return nil
}

// Encode turns in into the numeric feature vector the ensemble expects.
func (s Schema) Encode(in record.Input) ([]float64, error) {
	values := in.Values()
	row := make([]float64, len(s.FeatureNames))
	for i, name := range s.FeatureNames {
		v := values[i]
		if codes, ok := s.Categories[name]; ok {
			str, isStr := v.(string)
			if !isStr {
				return nil, fmt.Errorf("%w: column %q is categorical, got %T", estimator.ErrSchemaMismatch, name, v)
			}
			code, known := codes[str]
			if !known {
				return nil, fmt.Errorf("%w: unknown %q category %q", estimator.ErrSchemaMismatch, name, str)
			}
			row[i] = float64(code)
			continue
		}
		switch n := v.(type) {
		case float64:
			row[i] = n
		case int:
			row[i] = float64(n)
		default:
			return nil, fmt.Errorf("%w: column %q is numeric, got %T", estimator.ErrSchemaMismatch, name, v)
		}
	}
	return row, nil
}

// SchemaPath returns the sidecar location for a model file:
// model.txt and model.txt.gz both map to model.schema.json.
func SchemaPath(modelPath string) string {
	ext := filepath.Ext(modelPath)
	if ext == ".gz" || ext == ".gzip" {
		modelPath = modelPath[:len(modelPath)-len(ext)]
		ext = filepath.Ext(modelPath)
	}
	return modelPath[:len(modelPath)-len(ext)] + ".schema.json"
}

// LoadSchema reads the sidecar next to modelPath. A missing sidecar yields
// DefaultSchema and found == false.
func LoadSchema(modelPath string) (schema Schema, found bool, err error) {
	data, err := os.ReadFile(SchemaPath(modelPath))
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultSchema(), false, nil
	}
	if err != nil {
		return Schema{}, false, fmt.Errorf("failed to read model schema: %w", err)
	}
	if err := json.Unmarshal(data, &schema); err != nil {
		return Schema{}, true, fmt.Errorf("failed to parse model schema: %w", err)
	}
	return schema, true, schema.Validate()
}
