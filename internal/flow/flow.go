// Package flow loads, validates, and resolves the ordered list of FlowStep
// that the orchestrator executes. It owns the hardened command parser and
// the flow-path resolution cascade.
package flow

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/juniormartinxo/council/internal/limits"
	"github.com/juniormartinxo/council/internal/paths"
	"github.com/juniormartinxo/council/internal/signature"
)

const FlowConfigEnvVar = "FLOW_CONFIG"

// Source identifies which cascade position produced a resolved flow.
type Source string

const (
	SourceCLI     Source = "cli"
	SourceEnv     Source = "env"
	SourceCWD     Source = "cwd"
	SourceUser    Source = "user"
	SourceDefault Source = "default"
)

// Implicit reports whether the front-end must ask for confirmation before
// running this flow (§4.4): cascade positions #1 (env) and #2 (cwd).
func (s Source) Implicit() bool {
	return s == SourceEnv || s == SourceCWD
}

// FlowStep is immutable once parsed.
type FlowStep struct {
	Key             string
	AgentName       string
	RoleDesc        string
	Command         string
	Instruction     string
	InputTemplate   string
	Style           string
	IsCode          bool
	Enabled         bool
	TimeoutSeconds  int
	MaxInputChars   int
	MaxOutputChars  int
	MaxContextChars int
}

const defaultInputTemplate = "{instruction}\n\n{full_context}"

// ResolvedFlowConfig records which cascade position was used and the path,
// if any (the built-in default has no path).
type ResolvedFlowConfig struct {
	Path   string
	Source Source
}

// ConfigError is the ConfigError taxonomy member: bad flow, bad env, bad
// signature under strict mode.
type ConfigError struct{ msg string }

func (e *ConfigError) Error() string { return e.msg }

func cfgErrf(format string, args ...any) *ConfigError {
	return &ConfigError{msg: fmt.Sprintf(format, args...)}
}

// ResolveFlowConfig implements the cascade from §4.4: explicit CLI path,
// then FLOW_CONFIG, then ./flow.json, then <home>/flow.json, then the
// built-in default.
func ResolveFlowConfig(cliPath string) (ResolvedFlowConfig, error) {
	if cliPath = strings.TrimSpace(cliPath); cliPath != "" {
		p, err := validateConfigPath(cliPath, "--flow-config")
		if err != nil {
			return ResolvedFlowConfig{}, err
		}
		return ResolvedFlowConfig{Path: p, Source: SourceCLI}, nil
	}

	if envPath := strings.TrimSpace(os.Getenv(FlowConfigEnvVar)); envPath != "" {
		p, err := validateConfigPath(envPath, FlowConfigEnvVar)
		if err != nil {
			return ResolvedFlowConfig{}, err
		}
		return ResolvedFlowConfig{Path: p, Source: SourceEnv}, nil
	}

	if cwd, err := os.Getwd(); err == nil {
		candidate := filepath.Join(cwd, "flow.json")
		if _, err := os.Stat(candidate); err == nil {
			return ResolvedFlowConfig{Path: candidate, Source: SourceCWD}, nil
		}
	}

	userPath, err := paths.UserFlowConfigPath()
	if err == nil {
		if _, err := os.Stat(userPath); err == nil {
			return ResolvedFlowConfig{Path: userPath, Source: SourceUser}, nil
		}
	}

	return ResolvedFlowConfig{Source: SourceDefault}, nil
}

func validateConfigPath(raw, source string) (string, error) {
	path := raw
	info, err := os.Stat(path)
	if err != nil {
		return "", cfgErrf("flow config not found (%s): %s", source, path)
	}
	if info.IsDir() {
		return "", cfgErrf("flow config path (%s) is not a file: %s", source, path)
	}
	return path, nil
}

// LoadFlowSteps loads and validates the flow named by cliPath (or resolved
// via the cascade when empty), verifying its signature sidecar when a
// signature is present or required.
func LoadFlowSteps(cliPath string, lim *limits.Limits) ([]FlowStep, ResolvedFlowConfig, error) {
	resolved, err := ResolveFlowConfig(cliPath)
	if err != nil {
		return nil, ResolvedFlowConfig{}, err
	}
	if resolved.Path == "" {
		return DefaultFlowSteps(), resolved, nil
	}

	raw, err := os.ReadFile(resolved.Path)
	if err != nil {
		return nil, resolved, cfgErrf("failed to read flow config at %s: %v", resolved.Path, err)
	}

	requireSignature, err := signature.ParseRequireSignatureEnv()
	if err != nil {
		return nil, resolved, cfgErrf("%v", err)
	}
	if _, err := signature.Verify(resolved.Path, raw, signature.VerifyOptions{RequireSignature: requireSignature}); err != nil {
		return nil, resolved, cfgErrf("signature verification failed for %s: %v", resolved.Path, err)
	}

	steps, err := ParseFlowSteps(raw)
	if err != nil {
		return nil, resolved, err
	}
	return applyLimitDefaults(steps, lim), resolved, nil
}

func applyLimitDefaults(steps []FlowStep, lim *limits.Limits) []FlowStep {
	if lim == nil {
		return steps
	}
	for i := range steps {
		if steps[i].MaxInputChars == 0 {
			steps[i].MaxInputChars = lim.MaxInputChars
		}
		if steps[i].MaxOutputChars == 0 {
			steps[i].MaxOutputChars = lim.MaxOutputChars
		}
		if steps[i].MaxContextChars == 0 {
			steps[i].MaxContextChars = lim.MaxContextChars
		}
	}
	return steps
}

type rawStep struct {
	Key             *string `json:"key"`
	ID              *string `json:"id"`
	AgentName       *string `json:"agent_name"`
	Agent           *string `json:"agent"`
	RoleDesc        *string `json:"role_desc"`
	Role            *string `json:"role"`
	Command         *string `json:"command"`
	Instruction     *string `json:"instruction"`
	InputTemplate   *string `json:"input_template"`
	Style           *string `json:"style"`
	IsCode          *bool   `json:"is_code"`
	Enabled         *bool   `json:"enabled"`
	Timeout         *int    `json:"timeout"`
	MaxInputChars   *int    `json:"max_input_chars"`
	MaxOutputChars  *int    `json:"max_output_chars"`
	MaxContextChars *int    `json:"max_context_chars"`
}

type wrappedPayload struct {
	Steps []json.RawMessage `json:"steps"`
}

// ParseFlowSteps parses either a bare JSON array of steps or an object with
// a top-level "steps" array, applying every validation rule from §4.4.
func ParseFlowSteps(raw []byte) ([]FlowStep, error) {
	rawSteps, err := extractRawSteps(raw)
	if err != nil {
		return nil, err
	}

	steps := make([]FlowStep, 0, len(rawSteps))
	for i, rs := range rawSteps {
		step, err := parseOneStep(rs, i+1)
		if err != nil {
			return nil, err
		}
		steps = append(steps, step)
	}

	if len(steps) == 0 {
		return nil, cfgErrf("flow config must contain at least 1 step")
	}

	seen := make(map[string]bool, len(steps))
	for _, s := range steps {
		if seen[s.Key] {
			return nil, cfgErrf("duplicate step key: %s", s.Key)
		}
		seen[s.Key] = true
		if ReservedTemplateKeys[s.Key] {
			return nil, cfgErrf("step key %q collides with a reserved template name", s.Key)
		}
	}

	if err := validateTemplateReferences(steps); err != nil {
		return nil, cfgErrf("%v", err)
	}

	return steps, nil
}

func extractRawSteps(raw []byte) ([]json.RawMessage, error) {
	var asArray []json.RawMessage
	if err := json.Unmarshal(raw, &asArray); err == nil {
		return asArray, nil
	}
	var wrapped wrappedPayload
	if err := json.Unmarshal(raw, &wrapped); err == nil && wrapped.Steps != nil {
		return wrapped.Steps, nil
	}
	return nil, cfgErrf(`invalid flow config format: expected a JSON array of steps or an object with a "steps" array`)
}

func parseOneStep(raw json.RawMessage, position int) (FlowStep, error) {
	var rs rawStep
	if err := json.Unmarshal(raw, &rs); err != nil {
		return FlowStep{}, cfgErrf("step #%d is invalid: expected a JSON object", position)
	}

	key := firstNonEmpty(rs.Key, rs.ID)
	if key == "" {
		key = fmt.Sprintf("step_%d", position)
	}

	agentName := firstNonEmpty(rs.AgentName, rs.Agent)
	if agentName == "" {
		return FlowStep{}, cfgErrf("step #%d: missing required field 'agent_name' (or 'agent')", position)
	}
	roleDesc := firstNonEmpty(rs.RoleDesc, rs.Role)
	if roleDesc == "" {
		return FlowStep{}, cfgErrf("step #%d: missing required field 'role_desc' (or 'role')", position)
	}
	if rs.Command == nil || strings.TrimSpace(*rs.Command) == "" {
		return FlowStep{}, cfgErrf("step #%d: missing required field 'command'", position)
	}
	command := strings.TrimSpace(*rs.Command)
	if err := validateCommand(command, position); err != nil {
		return FlowStep{}, err
	}
	if rs.Instruction == nil || strings.TrimSpace(*rs.Instruction) == "" {
		return FlowStep{}, cfgErrf("step #%d: missing required field 'instruction'", position)
	}

	inputTemplate := defaultInputTemplate
	if rs.InputTemplate != nil && strings.TrimSpace(*rs.InputTemplate) != "" {
		inputTemplate = *rs.InputTemplate
	}

	style := "blue"
	if rs.Style != nil && strings.TrimSpace(*rs.Style) != "" {
		style = *rs.Style
	}

	timeout := 120
	if rs.Timeout != nil {
		if *rs.Timeout <= 0 {
			return FlowStep{}, cfgErrf("step #%d: field 'timeout' must be a positive integer", position)
		}
		timeout = *rs.Timeout
	}

	maxInput, err := positiveOrZero(rs.MaxInputChars, "max_input_chars", position)
	if err != nil {
		return FlowStep{}, err
	}
	maxOutput, err := positiveOrZero(rs.MaxOutputChars, "max_output_chars", position)
	if err != nil {
		return FlowStep{}, err
	}
	maxContext, err := positiveOrZero(rs.MaxContextChars, "max_context_chars", position)
	if err != nil {
		return FlowStep{}, err
	}

	return FlowStep{
		Key:             key,
		AgentName:       agentName,
		RoleDesc:        roleDesc,
		Command:         command,
		Instruction:     *rs.Instruction,
		InputTemplate:   inputTemplate,
		Style:           style,
		IsCode:          rs.IsCode != nil && *rs.IsCode,
		Enabled:         rs.Enabled == nil || *rs.Enabled,
		TimeoutSeconds:  timeout,
		MaxInputChars:   maxInput,
		MaxOutputChars:  maxOutput,
		MaxContextChars: maxContext,
	}, nil
}

func positiveOrZero(v *int, field string, position int) (int, error) {
	if v == nil {
		return 0, nil
	}
	if *v <= 0 {
		return 0, cfgErrf("step #%d: field %q must be a positive integer", position, field)
	}
	return *v, nil
}

func firstNonEmpty(vals ...*string) string {
	for _, v := range vals {
		if v != nil && strings.TrimSpace(*v) != "" {
			return strings.TrimSpace(*v)
		}
	}
	return ""
}
