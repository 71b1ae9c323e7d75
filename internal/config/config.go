// Package config holds the full sheetflow configuration: which sheet to
// process, which AI service drives each copy column, and the tuning for
// the browser, retries, sessions, and observability.
package config

import (
	"fmt"
	"strings"

	"github.com/harun/sheetflow/internal/logger"
	"github.com/harun/sheetflow/pkg/bridge"
	"github.com/harun/sheetflow/pkg/browser"
	"github.com/harun/sheetflow/pkg/driver"
	"github.com/harun/sheetflow/pkg/orchestrator"
	"github.com/harun/sheetflow/pkg/resilience"
	"github.com/harun/sheetflow/pkg/sheet"
)

// Config is the root configuration.
type Config struct {
	// DataDir roots all state: sessions, history, logs.
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	Spreadsheet SpreadsheetConfig `json:"spreadsheet" mapstructure:"spreadsheet"`

	// Columns maps copy-column letters ("E") to the AI service that
	// drives them.
	Columns map[string]sheet.AIConfig `json:"columns" mapstructure:"columns"`

	Browser    browser.Config      `json:"browser" mapstructure:"browser"`
	Driver     driver.Timeouts     `json:"driver" mapstructure:"driver"`
	Resilience resilience.Config   `json:"resilience" mapstructure:"resilience"`
	Run        orchestrator.Config `json:"run" mapstructure:"run"`
	Sessions   SessionsConfig      `json:"sessions" mapstructure:"sessions"`
	Bridge     bridge.Config       `json:"bridge" mapstructure:"bridge"`
	Gateway    GatewayConfig       `json:"gateway" mapstructure:"gateway"`
	History    HistoryConfig       `json:"history" mapstructure:"history"`
	Logging    logger.Config       `json:"logging" mapstructure:"logging"`

	// Schedule is an optional five-field cron expression for unattended
	// runs.
	Schedule string `json:"schedule,omitempty" mapstructure:"schedule"`
}

// SpreadsheetConfig selects the sheet and its layout markers.
type SpreadsheetConfig struct {
	// Ref addresses the workbook (a file path for the CSV source).
	Ref       string `json:"ref" mapstructure:"ref"`
	SheetName string `json:"sheet_name" mapstructure:"sheet_name"`

	Markers         sheet.Markers `json:"markers" mapstructure:"markers"`
	HeaderScanStart int           `json:"header_scan_start" mapstructure:"header_scan_start"`
	HeaderScanEnd   int           `json:"header_scan_end" mapstructure:"header_scan_end"`
	MaxRows         int           `json:"max_rows" mapstructure:"max_rows"`
	MaxCols         int           `json:"max_cols" mapstructure:"max_cols"`
}

// SessionsConfig controls session persistence.
type SessionsConfig struct {
	Dir string `json:"dir" mapstructure:"dir"`
	// ValidityDays is how long a saved session is trusted.
	ValidityDays int `json:"validity_days" mapstructure:"validity_days"`
}

// GatewayConfig controls the progress/metrics HTTP endpoint.
type GatewayConfig struct {
	Enabled bool   `json:"enabled" mapstructure:"enabled"`
	Addr    string `json:"addr" mapstructure:"addr"`
}

// HistoryConfig controls run-summary persistence.
type HistoryConfig struct {
	Path string `json:"path" mapstructure:"path"`
}

// DefaultConfig returns the standard configuration.
func DefaultConfig() *Config {
	return &Config{
		Spreadsheet: SpreadsheetConfig{
			SheetName:       "Sheet1",
			Markers:         sheet.DefaultMarkers(),
			HeaderScanStart: 4,
			HeaderScanEnd:   10,
			MaxRows:         100,
			MaxCols:         50,
		},
		Browser:    browser.DefaultConfig(),
		Driver:     driver.DefaultTimeouts(),
		Resilience: resilience.DefaultConfig(),
		Run:        orchestrator.DefaultConfig(),
		Sessions:   SessionsConfig{ValidityDays: 7},
		Bridge:     bridge.DefaultConfig(),
		Gateway:    GatewayConfig{Addr: "127.0.0.1:8787"},
		Logging:    logger.DefaultConfig(),
	}
}

// PlannerConfig translates the spreadsheet section into planner settings.
func (c *Config) PlannerConfig() sheet.PlannerConfig {
	return sheet.PlannerConfig{
		Markers:         c.Spreadsheet.Markers,
		HeaderScanStart: c.Spreadsheet.HeaderScanStart,
		HeaderScanEnd:   c.Spreadsheet.HeaderScanEnd,
		MaxRows:         c.Spreadsheet.MaxRows,
		MaxCols:         c.Spreadsheet.MaxCols,
	}
}

// Validate checks the configuration for mistakes worth failing fast on.
func (c *Config) Validate() error {
	if c.Spreadsheet.Ref == "" {
		return fmt.Errorf("spreadsheet.ref is required")
	}
	if c.Spreadsheet.SheetName == "" {
		return fmt.Errorf("spreadsheet.sheet_name is required")
	}
	m := c.Spreadsheet.Markers
	if m.Work == "" || m.Copy == "" || m.Done == "" || m.InProgress == "" {
		return fmt.Errorf("spreadsheet.markers must all be set")
	}
	if c.Spreadsheet.HeaderScanStart > c.Spreadsheet.HeaderScanEnd {
		return fmt.Errorf("spreadsheet.header_scan_start %d is after header_scan_end %d",
			c.Spreadsheet.HeaderScanStart, c.Spreadsheet.HeaderScanEnd)
	}

	for letter, ai := range c.Columns {
		if sheet.ColumnNumber(letter) == 0 {
			return fmt.Errorf("columns: %q is not a column letter", letter)
		}
		if ai.Service != "" && !driver.Supported(ai.Service) {
			return fmt.Errorf("columns.%s: unsupported service %q (supported: %v)",
				letter, ai.Service, driver.Services())
		}
	}

	if c.Run.Mode != "" && !orchestrator.ValidMode(c.Run.Mode) {
		return fmt.Errorf("run.mode must be %q or %q, got %q",
			orchestrator.ModeColumn, orchestrator.ModeSimple, c.Run.Mode)
	}
	if c.Run.DefaultService != "" && !driver.Supported(c.Run.DefaultService) {
		return fmt.Errorf("run.default_service: unsupported service %q", c.Run.DefaultService)
	}
	if c.Sessions.ValidityDays < 0 {
		return fmt.Errorf("sessions.validity_days cannot be negative")
	}
	if c.Schedule != "" {
		if err := orchestrator.ValidateSchedule(c.Schedule); err != nil {
			return err
		}
	}
	if c.Gateway.Enabled && c.Gateway.Addr == "" {
		return fmt.Errorf("gateway.addr is required when the gateway is enabled")
	}
	return nil
}

// ColumnDefaults resolves the columns section into the planner's
// defaults map, filling in the default service for entries that omit it.
// Letters are uppercased so they match the planner's column letters no
// matter how the config source cased them.
func (c *Config) ColumnDefaults() map[string]sheet.AIConfig {
	if len(c.Columns) == 0 {
		return nil
	}
	out := make(map[string]sheet.AIConfig, len(c.Columns))
	for letter, ai := range c.Columns {
		if ai.Service == "" {
			ai.Service = "chatgpt"
		}
		ai.Service = driver.CanonicalService(ai.Service)
		out[strings.ToUpper(letter)] = ai
	}
	return out
}
