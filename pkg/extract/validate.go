package extract

import (
	"fmt"
	"regexp"
	"strings"
)

// Field is one requested output field.
type Field struct {
	Key         string `json:"key"`
	Description string `json:"description,omitempty"`
}

// Keys returns the field keys in order.
func Keys(fields []Field) []string {
	keys := make([]string, len(fields))
	for i, f := range fields {
		keys[i] = f.Key
	}
	return keys
}

// Missing returns, in field order, the keys whose value is absent or blank.
func Missing(res Result, fields []Field) []string {
	var missing []string
	for _, f := range fields {
		if strings.TrimSpace(res[f.Key]) == "" {
			missing = append(missing, f.Key)
		}
	}
	return missing
}

// Validate returns a *ValidationError when any requested field is missing.
func Validate(res Result, fields []Field) error {
	if missing := Missing(res, fields); len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

var keyRe = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ValidKey reports whether key can be used as an XML tag name.
func ValidKey(key string) bool { return keyRe.MatchString(key) }

// ValidateFields checks a requested field set: at least one field, every key
// XML-safe, no duplicates, and no collision with an input column. Problems are
// reported together in a *FieldSetError.
func ValidateFields(fields []Field, columns []string) error {
	if len(fields) == 0 {
		return &FieldSetError{Problems: []string{"at least one output field is required"}}
	}

	cols := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		cols[c] = struct{}{}
	}

	var problems []string
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		switch {
		case f.Key == "":
			problems = append(problems, fmt.Sprintf("field %d: key is empty", i+1))
			continue
		case !ValidKey(f.Key):
			problems = append(problems, fmt.Sprintf("field %q: must start with a letter and contain only letters, digits and underscores", f.Key))
		}

		if _, dup := seen[f.Key]; dup {
			problems = append(problems, fmt.Sprintf("field %q: duplicate key", f.Key))
		}
		seen[f.Key] = struct{}{}

		if _, clash := cols[f.Key]; clash {
			problems = append(problems, fmt.Sprintf("field %q: collides with an input column", f.Key))
		}
	}

	if len(problems) > 0 {
		return &FieldSetError{Problems: problems}
	}
	return nil
}

// ParseField parses "key" or "key=description" as used on the command line.
func ParseField(s string) Field {
	key, desc, _ := strings.Cut(s, "=")
	return Field{Key: strings.TrimSpace(key), Description: strings.TrimSpace(desc)}
}
