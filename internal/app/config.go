package app

import (
	"os"
	"path/filepath"
)

// ConfigFileName is the optional per-project config file, read from the
// store directory when present.
const ConfigFileName = "config.yaml"

// ConfigPath returns the path to the optional config.yaml inside root's store.
func ConfigPath(root string) string {
	return filepath.Join(root, ".intent-engine", ConfigFileName)
}

// EnsureConfigFile writes a default config.yaml into the store directory if
// one is not already present. Called during lazy initialization.
func EnsureConfigFile(root string) error {
	path := ConfigPath(root)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return os.WriteFile(path, []byte(defaultConfig), 0o600)
	}
	return nil
}

const defaultConfig = `# intent-engine project configuration
# Optional tuning knobs; every key below has a safe built-in default.

# busy_timeout_ms: 5000
# events_retention_days: 30
# events_prune_batch: 500
`
