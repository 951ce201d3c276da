// Package prereq answers the question "can this flow actually run here",
// checking every enabled step's binary against PATH without launching
// anything. It backs the doctor command.
package prereq

import (
	"path/filepath"

	"github.com/juniormartinxo/council/internal/flow"
)

// BinaryStatus reports whether a single binary required by the flow is
// available, and flags a world-writable install location as a supply-chain
// risk worth surfacing (though not worth blocking on).
type BinaryStatus struct {
	Binary             string
	ResolvedPath       string
	IsAvailable        bool
	IsAPIOnly          bool
	IsWorldWritableLoc bool
}

// lookPath and statMode are overridable for tests.
var lookPath = defaultLookPath
var statMode = defaultStatMode

// EvaluateFlowPrerequisites checks the PATH-discoverability of every binary
// referenced by an enabled step. API-only binaries (§4.4's
// AllowedCommandBinaries minus PATH-checked ones) are reported as always
// available since they are never resolved from PATH.
func EvaluateFlowPrerequisites(steps []flow.FlowStep) []BinaryStatus {
	var statuses []BinaryStatus
	for _, binary := range CollectRequiredBinaries(steps) {
		if flow.APIOnlyCommandBinaries[binary] {
			statuses = append(statuses, BinaryStatus{Binary: binary, IsAvailable: true, IsAPIOnly: true})
			continue
		}

		resolved, err := lookPath(binary)
		if err != nil {
			statuses = append(statuses, BinaryStatus{Binary: binary, IsAvailable: false})
			continue
		}

		dir := filepath.Dir(resolved)
		statuses = append(statuses, BinaryStatus{
			Binary:             binary,
			ResolvedPath:       resolved,
			IsAvailable:        true,
			IsWorldWritableLoc: isWorldWritableDirectory(dir),
		})
	}
	return statuses
}

// CollectRequiredBinaries returns the deduplicated, order-preserving list of
// binaries referenced by enabled steps' commands.
func CollectRequiredBinaries(steps []flow.FlowStep) []string {
	var required []string
	seen := make(map[string]bool)
	for _, step := range steps {
		if !step.Enabled {
			continue
		}
		binary := extractBinaryName(step.Command)
		if binary == "" || seen[binary] {
			continue
		}
		seen[binary] = true
		required = append(required, binary)
	}
	return required
}

// FindMissingBinaries filters statuses down to the ones that are not
// available at all.
func FindMissingBinaries(statuses []BinaryStatus) []BinaryStatus {
	var missing []BinaryStatus
	for _, s := range statuses {
		if !s.IsAvailable {
			missing = append(missing, s)
		}
	}
	return missing
}

// FindWorldWritableBinaryLocations filters statuses down to available
// binaries installed in a world-writable directory.
func FindWorldWritableBinaryLocations(statuses []BinaryStatus) []BinaryStatus {
	var flagged []BinaryStatus
	for _, s := range statuses {
		if s.IsAvailable && s.IsWorldWritableLoc {
			flagged = append(flagged, s)
		}
	}
	return flagged
}

func extractBinaryName(command string) string {
	fields := splitFirstField(command)
	if fields == "" {
		return ""
	}
	return filepath.Base(fields)
}

// splitFirstField extracts the first token with the same quote-aware
// tokenizer validateCommand used, so a quoted binary name resolves to the
// bare name. A command that does not tokenize yields "".
func splitFirstField(command string) string {
	tokens, err := flow.TokenizeCommand(command)
	if err != nil || len(tokens) == 0 {
		return ""
	}
	return tokens[0]
}

func defaultLookPath(binary string) (string, error) {
	return execLookPath(binary)
}
