// Package scaffold writes the project bootstrap file emitted by `flow init`:
// a YAML document describing the COUNCIL_HOME layout and the environment
// variables a new project can set, alongside the JSON flow file itself.
package scaffold

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ProjectScaffold is serialized to <cwd>/.council.yaml on `flow init`. It is
// documentation for the operator, never read back by the core.
type ProjectScaffold struct {
	CouncilHome string            `yaml:"council_home"`
	FlowConfig  string            `yaml:"flow_config"`
	Env         map[string]string `yaml:"env"`
}

// DefaultProjectScaffold documents the environment variables §6 defines,
// with their defaults, so a new project's operator sees the full knob set
// without reading source.
func DefaultProjectScaffold(councilHome, flowConfigPath string) ProjectScaffold {
	return ProjectScaffold{
		CouncilHome: councilHome,
		FlowConfig:  flowConfigPath,
		Env: map[string]string{
			"FLOW_CONFIG":            flowConfigPath,
			"COUNCIL_HOME":           councilHome,
			"REQUIRE_FLOW_SIGNATURE": "false",
			"TRUSTED_FLOW_KEYS_DIR":  "",
			"MAX_CONTEXT_CHARS":      "100000",
			"MAX_INPUT_CHARS":        "120000",
			"MAX_OUTPUT_CHARS":       "200000",
			"LOG_LEVEL":              "INFO",
			"LOG_MAX_BYTES":          "5242880",
			"LOG_BACKUP_COUNT":       "5",
		},
	}
}

// Write renders s as YAML to path, creating or truncating the file with
// owner-readable-and-writable permissions.
func Write(path string, s ProjectScaffold) error {
	data, err := yaml.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshaling project scaffold: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
