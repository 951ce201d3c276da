package doctor

import (
	"strings"
	"testing"

	"github.com/juniormartinxo/council/internal/prereq"
)

func TestReport_OKWhenNoMissingBinaries(t *testing.T) {
	r := &Report{}
	if !r.OK() {
		t.Fatal("expected OK with no missing binaries")
	}
}

func TestReport_SummaryListsEachBinary(t *testing.T) {
	r := &Report{FlowSource: "default", Statuses: []prereq.BinaryStatus{
		{Binary: "claude", ResolvedPath: "/usr/bin/claude", IsAvailable: true},
		{Binary: "codex"},
	}}
	summary := r.Summary()
	if summary == "" {
		t.Fatal("expected non-empty summary")
	}
	for _, binary := range []string{"claude", "codex"} {
		if !strings.Contains(summary, binary) {
			t.Fatalf("expected summary to list %q, got %q", binary, summary)
		}
	}
}
