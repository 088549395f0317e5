package llmclient

import "strings"

// ExtractJSONObject pulls the first top-level {...} object out of a raw LLM
// response, stripping Markdown code fences first. This mirrors the
// teacher's tag_resolver bracket-scanning approach (index of "[" / last
// index of "]") applied here to a JSON object instead of an array, and the
// original Python subscription matcher's ```json fence-stripping.
func ExtractJSONObject(raw string) string {
	text := strings.TrimSpace(raw)

	if strings.Contains(text, "```json") {
		parts := strings.SplitN(text, "```json", 2)
		if len(parts) == 2 {
			if end := strings.Index(parts[1], "```"); end >= 0 {
				text = strings.TrimSpace(parts[1][:end])
			}
		}
	} else if strings.Contains(text, "```") {
		parts := strings.SplitN(text, "```", 3)
		if len(parts) >= 2 {
			text = strings.TrimSpace(parts[1])
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end < 0 || end < start {
		return text
	}
	return text[start : end+1]
}
