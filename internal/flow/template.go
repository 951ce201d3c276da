package flow

import (
	"fmt"
	"regexp"
)

// ReservedTemplateKeys names step in the built-in context that step keys may
// never collide with.
var ReservedTemplateKeys = map[string]bool{
	"user_prompt":  true,
	"full_context": true,
	"last_output":  true,
	"instruction":  true,
}

var placeholderPattern = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// extractTemplateVariables returns the set of `{name}` placeholders
// referenced by an input_template.
func extractTemplateVariables(template string) map[string]bool {
	vars := make(map[string]bool)
	for _, m := range placeholderPattern.FindAllStringSubmatch(template, -1) {
		vars[m[1]] = true
	}
	return vars
}

// validateTemplateReferences checks that every placeholder in every step's
// input_template resolves to a reserved key or the key of a strictly
// earlier step. This is what makes StepOutput's "later step may reference
// only earlier successful steps" invariant a parse-time guarantee.
func validateTemplateReferences(steps []FlowStep) error {
	available := make(map[string]bool, len(ReservedTemplateKeys)+len(steps))
	for k := range ReservedTemplateKeys {
		available[k] = true
	}
	for _, step := range steps {
		for name := range extractTemplateVariables(step.InputTemplate) {
			if !available[name] {
				return fmt.Errorf("step %q references unknown variable %q in input_template", step.Key, name)
			}
		}
		available[step.Key] = true
	}
	return nil
}

// RenderTemplate performs the "small custom renderer" substitution called
// for in the design notes: it walks the template, replaces every `{name}`
// with context[name], and fails loudly if a name is missing. Because
// unknown placeholders are already rejected at parse time by
// validateTemplateReferences, a render-time miss here indicates a
// programming defect rather than user input.
func RenderTemplate(template string, context map[string]string) (string, error) {
	var missing string
	result := placeholderPattern.ReplaceAllStringFunc(template, func(match string) string {
		name := placeholderPattern.FindStringSubmatch(match)[1]
		value, ok := context[name]
		if !ok {
			missing = name
			return match
		}
		return value
	})
	if missing != "" {
		return "", fmt.Errorf("template references undefined variable %q", missing)
	}
	return result, nil
}
