package prompt

import (
	"fmt"
	"unicode/utf8"
)

// MaxDocumentChars bounds the document text sent to the model.
const MaxDocumentChars = 24000

// GetSystemPrompt provides strict directions and schema for JSON output.
func GetSystemPrompt() string {
	return `You are a compliance analyst screening documents for Controlled Unclassified Information (CUI). You must produce one valid JSON object only (no markdown, no commentary) that follows the schema below. Do not include code fences.

Requirements:
- Output must be a single JSON object.
- patterns_found maps a category name to the number of occurrences found. Use these names where they apply: SSN, DoD_ID, Email, CAGE, Export_Controlled, Privacy, Proprietary.
- cui_categories lists the keys of patterns_found that have a count above zero.
- risk_level is one of LOW, MEDIUM, HIGH. LOW when nothing was found, HIGH when ten or more occurrences were found or export-controlled content is present, otherwise MEDIUM.
- cui_detected is true when cui_categories is not empty.
- Never quote the sensitive values themselves.

Schema (example with empty values):
{
  "filename": "<string>",
  "cui_detected": false,
  "risk_level": "LOW",
  "patterns_found": {},
  "cui_categories": []
}`
}

// GetUserPrompt wraps the document text, truncated to MaxDocumentChars.
func GetUserPrompt(filename, text string) string {
	truncated := ""
	if utf8.RuneCountInString(text) > MaxDocumentChars {
		text = string([]rune(text)[:MaxDocumentChars])
		truncated = " (truncated)"
	}
	return fmt.Sprintf("Screen the document %q%s and respond with the JSON per schema.\n\n---\n%s\n---", filename, truncated, text)
}
