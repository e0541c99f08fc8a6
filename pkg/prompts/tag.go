package prompts

import (
	"strings"

	"github.com/germanamz/taskbot/pkg/extract"
)

const noDescription = "No description provided"

// BuildTagPrompt asks the model to answer task with one <key> tag per field
// inside an <output> block. Each placeholder tag holds the field description,
// or "value" when there is none.
func BuildTagPrompt(task string, fields []extract.Field) string {
	var b strings.Builder

	b.WriteString("Task: ")
	b.WriteString(task)
	b.WriteString("\n\nPlease provide your response as structured data with the following fields:\n")
	for _, f := range fields {
		desc := f.Description
		if desc == "" {
			desc = noDescription
		}
		b.WriteString(`- "` + f.Key + `": ` + desc + "\n")
	}

	b.WriteString("\nFormat your response as XML with each field wrapped in its own tag like this:\n<output>\n")
	for _, f := range fields {
		placeholder := f.Description
		if placeholder == "" {
			placeholder = "value"
		}
		b.WriteString("  <" + f.Key + ">" + placeholder + "</" + f.Key + ">\n")
	}
	b.WriteString("</output>\n\n")
	b.WriteString("IMPORTANT: Only include the exact fields requested, with no additional text or explanation outside the <output> tags.")

	return b.String()
}
