package flow

import (
	"fmt"
	"os/exec"
	"regexp"
	"strings"
)

// AllowedCommandBinaries is the total command surface this system may ever
// spawn. Nothing outside this set reaches the executor, regardless of how
// it is spelled or quoted.
var AllowedCommandBinaries = map[string]bool{
	"claude":   true,
	"gemini":   true,
	"codex":    true,
	"ollama":   true,
	"deepseek": true,
}

// APIOnlyCommandBinaries bypass the PATH-discoverability check: they are
// invoked through an API client rather than a local executable.
var APIOnlyCommandBinaries = map[string]bool{
	"deepseek": true,
}

type disallowedPattern struct {
	re    *regexp.Regexp
	label string
}

// disallowedCommandPatterns enumerates every forbidden shell metacharacter.
// Order matters only for the reported label; all patterns are checked.
var disallowedCommandPatterns = []disallowedPattern{
	{regexp.MustCompile(`\n`), `\n`},
	{regexp.MustCompile(`\r`), `\r`},
	{regexp.MustCompile(`&&`), "&&"},
	{regexp.MustCompile(`;`), ";"},
	{regexp.MustCompile(`\|`), "|"},
	{regexp.MustCompile("`"), "`"},
	{regexp.MustCompile(`\$\{`), "${"},
	{regexp.MustCompile(`\$[A-Za-z_][A-Za-z0-9_]*`), "$VAR"},
	{regexp.MustCompile(`\$\(`), "$("},
	{regexp.MustCompile(`~`), "~"},
	{regexp.MustCompile(`>>`), ">>"},
	{regexp.MustCompile(`(^|[^>])>([^>]|$)`), ">"},
}

// lookPath is overridable in tests.
var lookPath = exec.LookPath

// validateCommand implements the critical security contract from §4.4:
// tokenize, reject forbidden metacharacters anywhere in the raw string,
// reject a first token carrying a path separator, and require the binary to
// be in the allowlist and (unless API-only) discoverable on PATH.
func validateCommand(command string, stepPosition int) error {
	var found []string
	for _, p := range disallowedCommandPatterns {
		if p.re.MatchString(command) {
			found = append(found, p.label)
		}
	}
	if len(found) > 0 {
		return fmt.Errorf("step #%d: command contains disallowed operator(s): %s", stepPosition, strings.Join(found, ", "))
	}

	tokens, err := tokenizeCommand(command)
	if err != nil {
		return fmt.Errorf("step #%d: command has invalid syntax: %v", stepPosition, err)
	}
	if len(tokens) == 0 {
		return fmt.Errorf("step #%d: command must not be empty", stepPosition)
	}

	binary := tokens[0]
	if strings.ContainsAny(binary, "/\\") {
		return fmt.Errorf("step #%d: command must name a bare binary, not a path: %q", stepPosition, binary)
	}

	if APIOnlyCommandBinaries[binary] {
		return nil
	}

	if !AllowedCommandBinaries[binary] {
		return fmt.Errorf("step #%d: command uses a binary outside the allowlist: %q (allowed: claude, codex, deepseek, gemini, ollama)", stepPosition, binary)
	}

	if _, err := lookPath(binary); err != nil {
		return fmt.Errorf("step #%d: command uses a binary not found on PATH: %q", stepPosition, binary)
	}

	return nil
}
