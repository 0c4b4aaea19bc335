package extraction

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/okian/halfpace/internal/domain/features"
)

// schemaJSON is the strict JSON schema for features.Extracted. Every
// property is required but nullable, which is how strict structured output
// expresses optional values.
const schemaJSON = `{
  "type": "object",
  "properties": {
    "sex": {
      "type": ["string", "null"],
      "description": "Płeć osoby, tak jak została podana w tekście"
    },
    "age": {
      "type": ["integer", "null"],
      "description": "Wiek w latach"
    },
    "time_5km_seconds": {
      "type": ["integer", "null"],
      "description": "Czas na 5 km w sekundach"
    }
  },
  "required": ["sex", "age", "time_5km_seconds"],
  "additionalProperties": false
}`

// Schema returns the strict JSON schema describing the three extracted fields.
func Schema() json.RawMessage {
	return json.RawMessage(schemaJSON)
}

// payload mirrors features.Extracted with the numeric fields left raw so
// they can be coerced.
type payload struct {
	Sex            *string         `json:"sex"`
	Age            json.RawMessage `json:"age"`
	Time5kmSeconds json.RawMessage `json:"time_5km_seconds"`
}

// Decode parses a provider's JSON payload into features. Unknown fields and
// trailing data are rejected. Numeric fields accept integers, integral
// floats such as 30.0 and numeric strings such as "30"; anything else fails.
func Decode(op string, data []byte) (features.Extracted, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return features.Extracted{}, Wrap(op, errors.New("empty response"))
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var p payload
	if err := dec.Decode(&p); err != nil {
		return features.Extracted{}, Wrap(op, err)
	}
	if dec.More() {
		return features.Extracted{}, Wrap(op, errors.New("unexpected data after JSON object"))
	}

	age, err := wholeNumber(features.FieldAge, p.Age)
	if err != nil {
		return features.Extracted{}, Wrap(op, err)
	}
	seconds, err := wholeNumber(features.FieldTime5kmSeconds, p.Time5kmSeconds)
	if err != nil {
		return features.Extracted{}, Wrap(op, err)
	}
	return features.Extracted{Sex: p.Sex, Age: age, Time5kmSeconds: seconds}, nil
}

// wholeNumber reads an optional integer field. Absent and null give nil.
func wholeNumber(field string, raw json.RawMessage) (*int, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	text := string(raw)
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("%s: %w", field, err)
		}
		text = strings.TrimSpace(s)
	}
	v, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("%s: %s is not a number", field, raw)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v != math.Trunc(v) || math.Abs(v) > math.MaxInt32 {
		return nil, fmt.Errorf("%s: %s is not a whole number", field, raw)
	}
	return features.Int(int(v)), nil
}
