package extract

import (
	"fmt"
	"strings"
)

// ExtractionError reports model text that did not contain the expected
// structure. Raw is the model text as received; Processed is what was left
// after stripping wrappers.
type ExtractionError struct {
	Reason    string
	Raw       string
	Processed string
	Err       error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extract: %s: %v", e.Reason, e.Err)
	}
	return "extract: " + e.Reason
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// ValidationError lists requested fields that were absent or blank, in the
// order they were requested.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return "extract: missing fields: " + strings.Join(e.Missing, ", ")
}

// FieldSetError lists problems with a requested field set.
type FieldSetError struct {
	Problems []string
}

func (e *FieldSetError) Error() string {
	return "extract: invalid fields: " + strings.Join(e.Problems, "; ")
}
