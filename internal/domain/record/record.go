// Package record assembles the single-row input the race-time estimator was
// trained on.
package record

import (
	"errors"
	"strings"

	"github.com/okian/halfpace/internal/domain/features"
)

// Canonical sex codes expected by the estimator.
const (
	SexMale   = "M"
	SexFemale = "K"
)

// Column names in the exact order of the trained schema.
const (
	ColumnSex     = "Płeć"
	ColumnTime5km = "5 km Czas"
	ColumnAge     = "Wiek"
)

// Columns is the ordered column list of Input.
var Columns = []string{ColumnSex, ColumnTime5km, ColumnAge}

// ErrIncomplete is returned by FromFeatures when a required field is absent.
var ErrIncomplete = errors.New("extracted features are incomplete")

var sexSynonyms = map[string]string{
	"mężczyzna": SexMale,
	"man":       SexMale,
	"male":      SexMale,
	"m":         SexMale,
	"kobieta":   SexFemale,
	"woman":     SexFemale,
	"female":    SexFemale,
	"k":         SexFemale,
}

// Number is any numeric kind the 5 km time may arrive as.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Input is one row for the estimator. JSON keys match the trained column
// names so the diagnostic panel shows exactly what the model sees.
type Input struct {
	Sex     string  `json:"Płeć"`
	Time5km float64 `json:"5 km Czas"`
	Age     int     `json:"Wiek"`
}

// Values returns the row in Columns order.
func (in Input) Values() []any {
	return []any{in.Sex, in.Time5km, in.Age}
}

// NormalizeSex maps a free-form sex description to M or K, ignoring case.
// Values outside the synonym table are returned unchanged.
func NormalizeSex(sex string) string {
	if code, ok := sexSynonyms[strings.ToLower(sex)]; ok {
		return code
	}
	return sex
}

// IsKnownSexCode reports whether code is one of the canonical codes.
func IsKnownSexCode(code string) bool {
	return code == SexMale || code == SexFemale
}

// Build assembles the estimator row. The caller guarantees the values were
// present after extraction.
func Build[T Number](sex string, age int, time5kmSeconds T) Input {
	return Input{
		Sex:     NormalizeSex(sex),
		Time5km: float64(time5kmSeconds),
		Age:     age,
	}
}

// FromFeatures builds the row from a complete extraction.
func FromFeatures(f features.Extracted) (Input, error) {
	if !f.Complete() {
		return Input{}, ErrIncomplete
	}
	return Build(*f.Sex, *f.Age, *f.Time5kmSeconds), nil
}
