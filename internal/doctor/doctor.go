// Package doctor validates that a flow can actually run here: the flow
// parses cleanly and every enabled step's binary is on PATH. It never
// executes a step.
package doctor

import (
	"fmt"
	"strings"

	"github.com/juniormartinxo/council/internal/flow"
	"github.com/juniormartinxo/council/internal/prereq"
)

// Report is the full prerequisite check result for one flow.
type Report struct {
	FlowSource    flow.Source
	FlowPath      string
	Statuses      []prereq.BinaryStatus
	Missing       []prereq.BinaryStatus
	WorldWritable []prereq.BinaryStatus
}

// Run loads the flow (cliPath resolved the same way `run` resolves it) and
// evaluates prerequisites without executing anything.
func Run(cliPath string) (*Report, error) {
	steps, resolved, err := flow.LoadFlowSteps(cliPath, nil)
	if err != nil {
		return nil, err
	}

	statuses := prereq.EvaluateFlowPrerequisites(steps)
	return &Report{
		FlowSource:    resolved.Source,
		FlowPath:      resolved.Path,
		Statuses:      statuses,
		Missing:       prereq.FindMissingBinaries(statuses),
		WorldWritable: prereq.FindWorldWritableBinaryLocations(statuses),
	}, nil
}

// Summary renders a per-binary status report, one line per binary, matching
// the plain diagnostic style of the CLI's other subcommands.
func (r *Report) Summary() string {
	var b strings.Builder
	source := string(r.FlowSource)
	if r.FlowPath != "" {
		source = fmt.Sprintf("%s (%s)", source, r.FlowPath)
	}
	fmt.Fprintf(&b, "flow source: %s\n", source)

	for _, s := range r.Statuses {
		switch {
		case !s.IsAvailable:
			fmt.Fprintf(&b, "  ✗ %s: not found on PATH\n", s.Binary)
		case s.IsAPIOnly:
			fmt.Fprintf(&b, "  ✓ %s: API-only, PATH check skipped\n", s.Binary)
		case s.IsWorldWritableLoc:
			fmt.Fprintf(&b, "  ⚠ %s: found at %s (world-writable directory)\n", s.Binary, s.ResolvedPath)
		default:
			fmt.Fprintf(&b, "  ✓ %s: found at %s\n", s.Binary, s.ResolvedPath)
		}
	}
	return b.String()
}

// OK reports whether the flow can run: no missing binaries. A
// world-writable location is a warning, not a blocker.
func (r *Report) OK() bool {
	return len(r.Missing) == 0
}
