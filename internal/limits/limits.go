// Package limits parses the process-wide char/size caps from the environment.
//
// Every value fails fast: a variable that is present but non-numeric or
// non-positive aborts the process at construction time rather than silently
// falling back to a default.
package limits

import (
	"fmt"
	"os"
	"strconv"
)

const (
	MaxContextCharsEnvVar = "MAX_CONTEXT_CHARS"
	MaxInputCharsEnvVar   = "MAX_INPUT_CHARS"
	MaxOutputCharsEnvVar  = "MAX_OUTPUT_CHARS"

	DefaultMaxContextChars = 100_000
	DefaultMaxInputChars   = 120_000
	DefaultMaxOutputChars  = 200_000
)

// Limits is the read-only accessor consulted by State, Executor, and Config
// defaults. It is constructed once at startup and threaded explicitly to
// every collaborator — never a package-level global.
type Limits struct {
	MaxContextChars int
	MaxInputChars   int
	MaxOutputChars  int
}

// Load reads the three limit environment variables and fails fast on the
// first invalid one.
func Load() (*Limits, error) {
	contextChars, err := readPositiveIntEnv(MaxContextCharsEnvVar, DefaultMaxContextChars)
	if err != nil {
		return nil, err
	}
	inputChars, err := readPositiveIntEnv(MaxInputCharsEnvVar, DefaultMaxInputChars)
	if err != nil {
		return nil, err
	}
	outputChars, err := readPositiveIntEnv(MaxOutputCharsEnvVar, DefaultMaxOutputChars)
	if err != nil {
		return nil, err
	}
	return &Limits{
		MaxContextChars: contextChars,
		MaxInputChars:   inputChars,
		MaxOutputChars:  outputChars,
	}, nil
}

// readPositiveIntEnv reads envVar, returning def if unset or blank, and
// failing if the value is present but not a positive integer.
func readPositiveIntEnv(envVar string, def int) (int, error) {
	raw := os.Getenv(envVar)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("environment variable %s must be an integer, got %q", envVar, raw)
	}
	if value <= 0 {
		return 0, fmt.Errorf("environment variable %s must be a positive integer, got %d", envVar, value)
	}
	return value, nil
}
