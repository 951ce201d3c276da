package flow

import (
	"os"
	"strings"
	"testing"
)

func withStubLookPath(t *testing.T, found bool) {
	t.Helper()
	old := lookPath
	if found {
		lookPath = func(string) (string, error) { return "/usr/bin/x", nil }
	} else {
		lookPath = func(string) (string, error) { return "", os.ErrNotExist }
	}
	t.Cleanup(func() { lookPath = old })
}

// TestValidateCommand_RejectsEveryForbiddenMetacharacter covers §8 invariant
// 1's full enumerated set, regardless of where the metacharacter sits in the
// string.
func TestValidateCommand_RejectsEveryForbiddenMetacharacter(t *testing.T) {
	withStubLookPath(t, true)

	cases := []struct {
		name    string
		command string
	}{
		{"pipe", "claude | cat"},
		{"pipe-leading", "|claude"},
		{"double-ampersand", "claude && rm -rf /"},
		{"semicolon", "claude ; rm -rf /"},
		{"semicolon-trailing", "claude;"},
		{"backtick", "claude `whoami`"},
		{"command-substitution", "claude $(whoami)"},
		{"brace-expansion", "claude ${HOME}"},
		{"bare-var-mid-string", "claude $HOME/x"},
		{"bare-var-underscore", "claude $_secret"},
		{"tilde-leading", "~/claude"},
		{"tilde-mid-string", "claude ~/rest"},
		{"double-redirect", "claude >> out.txt"},
		{"single-redirect", "claude > out.txt"},
		{"carriage-return", "claude\r -p hi"},
		{"newline", "claude\n-p hi"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := validateCommand(tc.command, 1); err == nil {
				t.Fatalf("expected %q to be rejected, got nil error", tc.command)
			}
		})
	}
}

// TestValidateCommand_DoubleRedirectDoesNotMaskSingleRedirectLabel confirms
// a lone ">" is still rejected and reported even though ">>" has a pattern
// of its own.
func TestValidateCommand_DoubleRedirectDoesNotMaskSingleRedirectLabel(t *testing.T) {
	withStubLookPath(t, true)

	err := validateCommand("claude > out.txt", 1)
	if err == nil {
		t.Fatal("expected rejection")
	}
	if !strings.Contains(err.Error(), ">") {
		t.Fatalf("expected error to mention '>', got %q", err.Error())
	}
}

func TestValidateCommand_PlainAllowedCommandPasses(t *testing.T) {
	withStubLookPath(t, true)

	if err := validateCommand("claude -p hello", 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidateCommand_PathAsFirstTokenRejected(t *testing.T) {
	withStubLookPath(t, true)

	cases := []string{"/usr/bin/claude", "./claude", `..\claude`, `claude\bin`}
	for _, c := range cases {
		if err := validateCommand(c, 1); err == nil {
			t.Fatalf("expected %q with a path-shaped binary to be rejected", c)
		}
	}
}

func TestValidateCommand_AllowlistCheckedBeforePathLookup(t *testing.T) {
	// Neither on PATH nor in the allowlist: the config-authoring error
	// (outside allowlist) must surface, not the environment-dependent one.
	withStubLookPath(t, false)

	err := validateCommand("bash -c true", 1)
	if err == nil {
		t.Fatal("expected rejection")
	}
	if !strings.Contains(err.Error(), "outside the allowlist") {
		t.Fatalf("expected allowlist error to take precedence over PATH lookup, got %q", err.Error())
	}
}

func TestValidateCommand_AllowedBinaryMissingFromPathReportsPathError(t *testing.T) {
	withStubLookPath(t, false)

	err := validateCommand("claude -p hi", 1)
	if err == nil {
		t.Fatal("expected rejection")
	}
	if !strings.Contains(err.Error(), "not found on PATH") {
		t.Fatalf("expected PATH error for an allowlisted-but-missing binary, got %q", err.Error())
	}
}

func TestValidateCommand_APIOnlyBinarySkipsPathLookupEvenWhenMissing(t *testing.T) {
	withStubLookPath(t, false)

	if err := validateCommand("deepseek -p hi", 1); err != nil {
		t.Fatalf("unexpected error for API-only binary: %v", err)
	}
}

// TestValidateCommand_S6RejectedCommand grounds the end-to-end scenario:
// command="claude -p ; rm -rf /" must fail parsing citing the forbidden ";"
// operator, and the underlying tokenizer/executor must never be reached.
func TestValidateCommand_S6RejectedCommand(t *testing.T) {
	withStubLookPath(t, true)

	err := validateCommand("claude -p ; rm -rf /", 1)
	if err == nil {
		t.Fatal("expected S6 command to be rejected")
	}
	if !strings.Contains(err.Error(), ";") {
		t.Fatalf("expected error to cite the forbidden ';' operator, got %q", err.Error())
	}
	if !strings.Contains(err.Error(), "disallowed operator") {
		t.Fatalf("expected a disallowed-operator error, got %q", err.Error())
	}
}
