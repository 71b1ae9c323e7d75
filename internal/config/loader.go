package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/harun/sheetflow/pkg/sheet"
)

// Loader reads and writes the configuration file.
type Loader struct {
	configPath string
}

// NewLoader creates a config loader. An empty path means the default
// location under the user's home directory.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load reads the configuration, layering environment variables
// (SHEETFLOW_*) over the file over the defaults. A missing file is not
// an error.
func (l *Loader) Load() (*Config, error) {
	configPath := l.Path()
	if configPath == "" {
		return nil, fmt.Errorf("resolve config path: no home directory")
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	v.SetEnvPrefix("SHEETFLOW")
	v.AutomaticEnv()

	cfg := DefaultConfig()
	if _, err := os.Stat(configPath); err == nil {
		if err := validateRawSections(configPath); err != nil {
			return nil, err
		}
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := v.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	applyLegacyKeys(v, cfg)
	normalizeColumnKeys(cfg)
	applyDerivedPaths(cfg)
	return cfg, nil
}

// validateRawSections checks the shape-sensitive sections against their
// schemas on the raw file bytes, before viper gets a chance to lowercase
// the keys.
func validateRawSections(configPath string) error {
	raw, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var sections struct {
		Columns json.RawMessage `json:"columns"`
	}
	// A malformed file surfaces through viper's own read error.
	if err := json.Unmarshal(raw, &sections); err != nil {
		return nil
	}
	if len(sections.Columns) > 0 && string(sections.Columns) != "null" {
		if err := ValidateColumnsJSON(sections.Columns); err != nil {
			return err
		}
	}
	return nil
}

// normalizeColumnKeys restores canonical uppercase column letters. Viper
// lowercases every map key it reads, so a file-loaded "E" arrives as "e"
// and would never match the planner's uppercase letters.
func normalizeColumnKeys(cfg *Config) {
	if len(cfg.Columns) == 0 {
		return
	}
	cols := make(map[string]sheet.AIConfig, len(cfg.Columns))
	for letter, ai := range cfg.Columns {
		cols[strings.ToUpper(letter)] = ai
	}
	cfg.Columns = cols
}

// applyLegacyKeys maps configuration keys from older releases onto the
// current layout.
func applyLegacyKeys(v *viper.Viper, cfg *Config) {
	// The work marker used to be configured as a full header phrase
	// under "work_indicator_row". Header matching is a substring check,
	// so the long phrase still works as the marker itself.
	if legacy := v.GetString("spreadsheet.markers.work_indicator_row"); legacy != "" &&
		!v.IsSet("spreadsheet.markers.work") {
		cfg.Spreadsheet.Markers.Work = legacy
	}
}

// applyDerivedPaths fills in paths that default relative to DataDir.
func applyDerivedPaths(cfg *Config) {
	if cfg.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return
		}
		cfg.DataDir = filepath.Join(home, ".sheetflow")
	}
	if cfg.Sessions.Dir == "" {
		cfg.Sessions.Dir = filepath.Join(cfg.DataDir, "sessions")
	}
	if cfg.History.Path == "" {
		cfg.History.Path = filepath.Join(cfg.DataDir, "history.db")
	}
	if cfg.Logging.File == "" {
		cfg.Logging.File = filepath.Join(cfg.DataDir, "sheetflow.log")
	}
	if cfg.Browser.UserDataDir == "" {
		cfg.Browser.UserDataDir = filepath.Join(cfg.DataDir, "chrome-profile")
	}
}

// SessionValidity converts the configured validity into a duration.
func (c *Config) SessionValidity() time.Duration {
	return time.Duration(c.Sessions.ValidityDays) * 24 * time.Hour
}

// Save writes the configuration to the loader's path.
func (l *Loader) Save(cfg *Config) error {
	configPath := l.Path()
	if configPath == "" {
		return fmt.Errorf("resolve config path: no home directory")
	}
	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("json")
	cols := make(map[string]sheet.AIConfig, len(cfg.Columns))
	for letter, ai := range cfg.Columns {
		cols[strings.ToUpper(letter)] = ai
	}

	v.Set("data_dir", cfg.DataDir)
	v.Set("spreadsheet", cfg.Spreadsheet)
	v.Set("columns", cols)
	v.Set("browser", cfg.Browser)
	v.Set("driver", cfg.Driver)
	v.Set("resilience", cfg.Resilience)
	v.Set("run", cfg.Run)
	v.Set("sessions", cfg.Sessions)
	v.Set("bridge", cfg.Bridge)
	v.Set("gateway", cfg.Gateway)
	v.Set("history", cfg.History)
	v.Set("logging", cfg.Logging)
	v.Set("schedule", cfg.Schedule)

	if err := v.WriteConfig(); err != nil {
		if os.IsNotExist(err) {
			return v.SafeWriteConfig()
		}
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Path returns the effective config file path.
func (l *Loader) Path() string {
	if l.configPath != "" {
		return l.configPath
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".sheetflow", "sheetflow.json")
}

// Load reads the configuration from the given path (or the default).
func Load(configPath string) (*Config, error) {
	return NewLoader(configPath).Load()
}
