package enrich

import (
	"fmt"
	"regexp"
	"strings"
)

const systemPrompt = `Return ONLY valid JSON. No markdown, no explanations. Exact structure: {"summary":"","en":"","pl":"","es":""}`

const promptTemplate = `Analyze tech news. Return ONLY valid JSON, no markdown:

{
  "summary": "1-2 sentence summary in original language (max 110 chars)",
  "en": "English summary/translation (max 110 chars)",
  "pl": "Polish summary/translation (max 110 chars)",
  "es": "Spanish summary/translation (max 110 chars)"
}

TITLE: %s
DESCRIPTION: %s

JSON ONLY:`

var (
	fencePattern  = regexp.MustCompile("(?i)```(?:json)?\\s*")
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

func buildPrompt(title, description string) string {
	return fmt.Sprintf(promptTemplate, title, description)
}

// extractJSON strips markdown fences and any prose around the outermost object.
func extractJSON(raw string) string {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(raw, ""))
	if match := objectPattern.FindString(cleaned); match != "" {
		return match
	}
	return cleaned
}
