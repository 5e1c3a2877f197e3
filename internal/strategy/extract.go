package strategy

import (
	"regexp"
	"strings"
)

// fencePattern matches the first fenced block, optionally tagged json.
var fencePattern = regexp.MustCompile("(?s)```(?i:json)?\\s*(.*?)\\s*```")

// ExtractPayload returns the trimmed body of the first fenced code block in
// raw, or raw unchanged when it carries no fence. Later blocks are ignored.
func ExtractPayload(raw string) string {
	m := fencePattern.FindStringSubmatch(raw)
	if m == nil {
		return raw
	}
	return strings.TrimSpace(m[1])
}
