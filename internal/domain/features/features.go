// Package features contains the structured record extracted from a runner's
// free-text self-description and the check for its required fields.
package features

// Field names as they appear in the extraction schema.
const (
	FieldSex            = "sex"
	FieldAge            = "age"
	FieldTime5kmSeconds = "time_5km_seconds"
)

// Required lists the fields the estimator needs, in validation order.
var Required = []string{FieldSex, FieldAge, FieldTime5kmSeconds}

var displayNames = map[string]string{
	FieldSex:            "Płeć",
	FieldAge:            "Wiek",
	FieldTime5kmSeconds: "Czas na 5km",
}

// Extracted is the result of one extraction. A nil field means the language
// model could not find the value in the text; it is never a zero default.
type Extracted struct {
	Sex            *string `json:"sex"`
	Age            *int    `json:"age"`
	Time5kmSeconds *int    `json:"time_5km_seconds"`
}

// Missing reports which required fields are absent, in the fixed order
// sex, age, time_5km_seconds. An empty slice means the record is complete.
func Missing(f Extracted) []string {
	missing := make([]string, 0, len(Required))
	for _, name := range Required {
		if !f.has(name) {
			missing = append(missing, name)
		}
	}
	return missing
}

// Complete reports whether every required field is present.
func (f Extracted) Complete() bool {
	return len(Missing(f)) == 0
}

func (f Extracted) has(name string) bool {
	switch name {
	case FieldSex:
		return f.Sex != nil
	case FieldAge:
		return f.Age != nil
	case FieldTime5kmSeconds:
		return f.Time5kmSeconds != nil
	default:
		return false
	}
}

// DisplayName returns the user-facing label of a field name. Unknown names
// are returned unchanged.
func DisplayName(name string) string {
	if label, ok := displayNames[name]; ok {
		return label
	}
	return name
}

// DisplayNames maps every name through DisplayName, keeping order.
func DisplayNames(names []string) []string {
	labels := make([]string, len(names))
	for i, n := range names {
		labels[i] = DisplayName(n)
	}
	return labels
}

// String returns a pointer to v.
func String(v string) *string { return &v }

// Int returns a pointer to v.
func Int(v int) *int { return &v }
