package prompts

import (
	"regexp"
	"strings"

	"github.com/germanamz/taskbot/pkg/extract"
)

var placeholderRe = regexp.MustCompile(`\{([^{}\n]+)\}`)

// BuildBatchRowPrompt substitutes every {column} placeholder in template with
// the row's value. Placeholders naming no column are left verbatim.
// Substitution is a single pass, so values are never re-expanded.
func BuildBatchRowPrompt(template string, row map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		if v, ok := row[m[1:len(m)-1]]; ok {
			return v
		}
		return m
	})
}

// Placeholders returns the distinct placeholder names in template, in order
// of first appearance.
func Placeholders(template string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, m := range placeholderRe.FindAllStringSubmatch(template, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

// BatchOutputFormat is the XML directive appended to every batch row prompt.
func BatchOutputFormat(fields []extract.Field) string {
	var b strings.Builder
	b.WriteString("Return your response using the following XML format:\n<output>")
	for _, f := range fields {
		b.WriteString("<" + f.Key + "></" + f.Key + ">")
	}
	b.WriteString("</output>")
	return b.String()
}

// BuildBatchPrompt is the full prompt for one row: the substituted template
// followed by the output directive.
func BuildBatchPrompt(template string, row map[string]string, fields []extract.Field) string {
	return BuildBatchRowPrompt(template, row) + "\n\n" + BatchOutputFormat(fields)
}

// DefaultBatchTemplate is the fallback template used when no template is
// given and suggestion fails: the task followed by every column.
func DefaultBatchTemplate(task string, headers []string) string {
	parts := make([]string, len(headers))
	for i, h := range headers {
		parts[i] = h + ": {" + h + "}"
	}
	return task + "\n\nData: " + strings.Join(parts, ", ")
}

// BuildTemplateSuggestionPrompt asks the model to draft a batch template
// from the column names, a CSV sample, the task and the wanted fields. The
// reply is expected as <suggestion><promptTemplate>…</promptTemplate></suggestion>.
func BuildTemplateSuggestionPrompt(headers []string, sampleCSV, task string, fields []extract.Field) string {
	var out strings.Builder
	for i, f := range fields {
		if i > 0 {
			out.WriteString("\n")
		}
		desc := f.Description
		if desc == "" {
			desc = noDescription + "."
		}
		out.WriteString(`- "` + f.Key + `": ` + desc)
	}

	return `I have a CSV file with the following columns:
` + strings.Join(headers, ", ") + `

Here is the first row:
` + strings.TrimRight(sampleCSV, "\n") + `

I want to use this data for the following task:
` + task + `

I also need to extract the following information as output fields:
` + out.String() + `

Based on the available columns, the task description, and the required output fields, please suggest a prompt template.
The template should use {column_name} syntax for placeholders and *only* include the columns from the CSV that are necessary as *inputs* to accomplish the task and derive the specified output fields. Do not include any extraneous columns or columns that are not direct inputs.

**Format the promptTemplate as follows:**

Task: [Your task description here]

Inputs:
- {column_1}
- {column_2}
...

Provide your response in XML format like this:
<suggestion>
  <promptTemplate>Your suggested template with all relevant {columns}</promptTemplate>
</suggestion>
`
}
