package extract

import (
	"encoding/json"
	"strings"
)

// JSONSlice reduces model text to the candidate JSON object:
//  1. drop everything through the last </think>;
//  2. if a ```json fence exists, keep what follows its last occurrence;
//  3. drop everything from the next ``` fence;
//  4. keep the span from the first '{' to the last '}'.
func JSONSlice(text string) (string, error) {
	out := text
	if i := strings.LastIndex(out, "</think>"); i >= 0 {
		out = out[i+len("</think>"):]
	}
	if i := strings.LastIndex(out, "```json"); i >= 0 {
		out = out[i+len("```json"):]
	}
	if i := strings.Index(out, "```"); i >= 0 {
		out = out[:i]
	}

	first := strings.Index(out, "{")
	last := strings.LastIndex(out, "}")
	if first < 0 || last < first {
		return "", &ExtractionError{Reason: "no json object", Raw: text, Processed: out}
	}

	return out[first : last+1], nil
}

// JSONBlock slices text with JSONSlice and strictly decodes the result into v.
// Failures are *ExtractionError carrying the raw and processed text.
func JSONBlock(text string, v any) error {
	processed, err := JSONSlice(text)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(processed), v); err != nil {
		return &ExtractionError{Reason: "invalid json", Raw: text, Processed: processed, Err: err}
	}

	return nil
}

// JSONMap is JSONBlock into a generic object.
func JSONMap(text string) (map[string]any, error) {
	var m map[string]any
	if err := JSONBlock(text, &m); err != nil {
		return nil, err
	}
	return m, nil
}
