package app

import (
	"errors"
	"os"

	"gopkg.in/yaml.v3"
)

// Settings represents the optional per-project config.yaml.
// Field names match snake_case YAML keys.
type Settings struct {
	BusyTimeoutMS             int `yaml:"busy_timeout_ms"`
	EventsRetentionDays       int `yaml:"events_retention_days"`
	EventsPruneBatch          int `yaml:"events_prune_batch"`
	EventsSummarizeThreshold  int `yaml:"events_summarize_threshold"`
	EventsSummarizeKeepRecent int `yaml:"events_summarize_keep_recent"`
}

// EventMaintenanceSettings are effective runtime values used by the doctor
// command's optional --gc maintenance path.
type EventMaintenanceSettings struct {
	RetentionDays       int `json:"retention_days"`
	PruneBatch          int `json:"prune_batch"`
	SummarizeThreshold  int `json:"summarize_threshold"`
	SummarizeKeepRecent int `json:"summarize_keep_recent"`
}

const (
	defaultEventsRetentionDays   = 30
	defaultEventsPruneBatch      = 500
	defaultEventsSummarizeThresh = 200
	defaultEventsSummarizeKeep   = 50
	defaultBusyTimeoutMS         = 5000
)

// LoadSettings reads root's config.yaml, if present. Missing file returns
// zero-value Settings with no error (every field has a built-in default).
func LoadSettings(root string) (Settings, error) {
	if root == "" {
		return Settings{}, nil
	}
	b, err := os.ReadFile(ConfigPath(root))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Settings{}, nil
		}
		return Settings{}, err
	}
	var s Settings
	if err := yaml.Unmarshal(b, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// EffectiveEventMaintenanceSettings returns validated maintenance values with
// defaults, clamped to sane bounds.
func EffectiveEventMaintenanceSettings(root string) EventMaintenanceSettings {
	cfg := EventMaintenanceSettings{
		RetentionDays:       defaultEventsRetentionDays,
		PruneBatch:          defaultEventsPruneBatch,
		SummarizeThreshold:  defaultEventsSummarizeThresh,
		SummarizeKeepRecent: defaultEventsSummarizeKeep,
	}

	s, err := LoadSettings(root)
	if err != nil {
		return cfg
	}

	if s.EventsRetentionDays > 0 {
		cfg.RetentionDays = s.EventsRetentionDays
	}
	if s.EventsPruneBatch > 0 {
		cfg.PruneBatch = s.EventsPruneBatch
	}
	if s.EventsSummarizeThreshold > 0 {
		cfg.SummarizeThreshold = s.EventsSummarizeThreshold
	}
	if s.EventsSummarizeKeepRecent > 0 {
		cfg.SummarizeKeepRecent = s.EventsSummarizeKeepRecent
	}

	if cfg.RetentionDays > 3650 {
		cfg.RetentionDays = 3650
	}
	if cfg.PruneBatch > 10000 {
		cfg.PruneBatch = 10000
	}
	if cfg.SummarizeThreshold < 20 {
		cfg.SummarizeThreshold = 20
	}
	return cfg
}

// EffectiveBusyTimeoutMS returns the configured SQLite busy_timeout, falling
// back to the built-in default.
func EffectiveBusyTimeoutMS(root string) int {
	if s, err := LoadSettings(root); err == nil && s.BusyTimeoutMS > 0 {
		return s.BusyTimeoutMS
	}
	return defaultBusyTimeoutMS
}
