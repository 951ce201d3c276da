// Package fence extracts the first fenced Markdown code block from agent
// output, failing closed when a step demands code and none is present.
package fence

import (
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```[^\n]*\n(.*?)```")

// Extract returns the trimmed contents of the first fenced code block in
// text and true, or "" and false if no fence is present.
func Extract(text string) (string, bool) {
	m := fencePattern.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	return strings.TrimSpace(m[1]), true
}
