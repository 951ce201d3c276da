// Package paths resolves the on-disk layout under COUNCIL_HOME: the audit
// log, the trust store, the history ledger, and the default flow file.
package paths

import (
	"os"
	"path/filepath"
	"runtime"
)

const (
	AppName          = "council"
	CouncilHomeEnvVar = "COUNCIL_HOME"
)

// CouncilHome returns the base directory for state/log/trust-store, honoring
// COUNCIL_HOME when set. When create is true, the directory is created with
// owner-only permissions.
func CouncilHome(create bool) (string, error) {
	home := os.Getenv(CouncilHomeEnvVar)
	if home == "" {
		var err error
		home, err = defaultCouncilHome()
		if err != nil {
			return "", err
		}
	}
	if create {
		if err := os.MkdirAll(home, 0o700); err != nil {
			return "", err
		}
		_ = os.Chmod(home, 0o700)
	}
	return home, nil
}

func defaultCouncilHome() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(homeDir, "AppData", "Roaming", AppName), nil
	case "darwin":
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(homeDir, "Library", "Application Support", AppName), nil
	default:
		if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
			return filepath.Join(xdg, AppName), nil
		}
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(homeDir, ".config", AppName), nil
	}
}

// LogPath returns <COUNCIL_HOME>/council.log.
func LogPath() (string, error) {
	home, err := CouncilHome(false)
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "council.log"), nil
}

// TrustedFlowKeysDir returns the trust-store directory, honoring
// TRUSTED_FLOW_KEYS_DIR when set.
func TrustedFlowKeysDir(create bool) (string, error) {
	if override := os.Getenv("TRUSTED_FLOW_KEYS_DIR"); override != "" {
		if create {
			if err := os.MkdirAll(override, 0o700); err != nil {
				return "", err
			}
			_ = os.Chmod(override, 0o700)
		}
		return override, nil
	}
	home, err := CouncilHome(create)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, "trusted_flow_keys")
	if create {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", err
		}
		_ = os.Chmod(dir, 0o700)
	}
	return dir, nil
}

// UserFlowConfigPath returns <COUNCIL_HOME>/flow.json.
func UserFlowConfigPath() (string, error) {
	home, err := CouncilHome(false)
	if err != nil {
		return "", err
	}
	return filepath.Join(home, "flow.json"), nil
}

// HistoryDBDir returns <COUNCIL_HOME>/db.
func HistoryDBDir(create bool) (string, error) {
	home, err := CouncilHome(create)
	if err != nil {
		return "", err
	}
	dir := filepath.Join(home, "db")
	if create {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return "", err
		}
		_ = os.Chmod(dir, 0o700)
	}
	return dir, nil
}

// HistoryLedgerPath returns <COUNCIL_HOME>/db/history.jsonl.
func HistoryLedgerPath(create bool) (string, error) {
	dir, err := HistoryDBDir(create)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.jsonl"), nil
}
