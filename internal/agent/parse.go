package agent

import (
	"fmt"
	"strings"
)

// extractJSONObject finds the outermost JSON object in a model
// response, tolerating prose or markdown fences around it.
func extractJSONObject(response string) (string, error) {
	start := strings.Index(response, "{")
	end := strings.LastIndex(response, "}")
	if start == -1 || end == -1 || end <= start {
		preview := response
		if len(preview) > 300 {
			preview = preview[:300] + "... (truncated)"
		}
		return "", fmt.Errorf("no JSON object found in response (got %d chars): %q", len(response), preview)
	}
	return response[start : end+1], nil
}

// extractJSONArray finds the outermost JSON array in a model response.
func extractJSONArray(response string) (string, error) {
	start := strings.Index(response, "[")
	end := strings.LastIndex(response, "]")
	if start == -1 || end == -1 || end <= start {
		preview := response
		if len(preview) > 300 {
			preview = preview[:300] + "... (truncated)"
		}
		return "", fmt.Errorf("no JSON array found in response (got %d chars): %q", len(response), preview)
	}
	return response[start : end+1], nil
}
