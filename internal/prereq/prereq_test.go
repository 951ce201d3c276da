package prereq

import (
	"errors"
	"testing"

	"github.com/juniormartinxo/council/internal/flow"
)

func stepsFor(commands ...string) []flow.FlowStep {
	var steps []flow.FlowStep
	for i, c := range commands {
		steps = append(steps, flow.FlowStep{
			Key:     "s" + string(rune('a'+i)),
			Command: c,
			Enabled: true,
		})
	}
	return steps
}

func TestCollectRequiredBinaries_DedupesAndSkipsDisabled(t *testing.T) {
	steps := stepsFor("claude foo", "claude bar", "gemini baz")
	steps[2].Enabled = false
	got := CollectRequiredBinaries(steps)
	if len(got) != 1 || got[0] != "claude" {
		t.Fatalf("expected [claude], got %v", got)
	}
}

func TestEvaluateFlowPrerequisites_MissingBinary(t *testing.T) {
	origLookPath := lookPath
	lookPath = func(string) (string, error) { return "", errors.New("not found") }
	defer func() { lookPath = origLookPath }()

	steps := stepsFor("claude foo")
	statuses := EvaluateFlowPrerequisites(steps)
	missing := FindMissingBinaries(statuses)
	if len(missing) != 1 || missing[0].Binary != "claude" {
		t.Fatalf("expected claude missing, got %+v", missing)
	}
}

func TestEvaluateFlowPrerequisites_APIOnlySkipsPathCheck(t *testing.T) {
	origLookPath := lookPath
	lookPath = func(string) (string, error) { return "", errors.New("not found") }
	defer func() { lookPath = origLookPath }()

	steps := stepsFor("deepseek foo")
	statuses := EvaluateFlowPrerequisites(steps)
	if len(statuses) != 1 || !statuses[0].IsAvailable || !statuses[0].IsAPIOnly {
		t.Fatalf("expected deepseek reported available and api-only, got %+v", statuses)
	}
}

func TestEvaluateFlowPrerequisites_WorldWritableFlagged(t *testing.T) {
	origLookPath := lookPath
	origStatMode := statMode
	lookPath = func(string) (string, error) { return "/tmp/bin/claude", nil }
	statMode = func(string) (uint32, error) { return 0o777, nil }
	defer func() { lookPath = origLookPath; statMode = origStatMode }()

	steps := stepsFor("claude foo")
	statuses := EvaluateFlowPrerequisites(steps)
	flagged := FindWorldWritableBinaryLocations(statuses)
	if len(flagged) != 1 {
		t.Fatalf("expected 1 world-writable location flagged, got %d", len(flagged))
	}
}
