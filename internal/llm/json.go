package llm

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var codeFenceRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")

// stripFences removes markdown code fences that models sometimes wrap
// around JSON output despite instructions not to.
func stripFences(response string) string {
	trimmed := strings.TrimSpace(response)
	if m := codeFenceRe.FindStringSubmatch(trimmed); m != nil {
		return strings.TrimSpace(m[1])
	}
	return trimmed
}

// DecodeObject parses a JSON object from an LLM response, tolerating
// code fences and surrounding prose.
func DecodeObject(response string, v any) error {
	cleaned := stripFences(response)
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), v); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no valid JSON object in response")
}

// DecodeArray parses a JSON array from an LLM response, tolerating
// code fences and surrounding prose.
func DecodeArray(response string, v any) error {
	cleaned := stripFences(response)
	if err := json.Unmarshal([]byte(cleaned), v); err == nil {
		return nil
	}

	start := strings.Index(cleaned, "[")
	end := strings.LastIndex(cleaned, "]")
	if start >= 0 && end > start {
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), v); err == nil {
			return nil
		}
	}
	return fmt.Errorf("no valid JSON array in response")
}
