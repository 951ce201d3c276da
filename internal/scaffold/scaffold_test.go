package scaffold

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestWrite_ProducesReadableYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".council.yaml")

	s := DefaultProjectScaffold("/home/x/.config/council", "/home/x/project/flow.json")
	if err := Write(path, s); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading scaffold: %v", err)
	}

	var readBack ProjectScaffold
	if err := yaml.Unmarshal(data, &readBack); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if readBack.CouncilHome != s.CouncilHome {
		t.Fatalf("got %q, want %q", readBack.CouncilHome, s.CouncilHome)
	}
	if readBack.Env["LOG_LEVEL"] != "INFO" {
		t.Fatalf("expected default LOG_LEVEL, got %+v", readBack.Env)
	}
}
