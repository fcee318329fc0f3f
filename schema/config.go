package schema

import (
	"errors"
	"strings"
)

// ServiceConfig defines defaults and limits for the core service.
type ServiceConfig struct {
	Hostname               string
	HomePath               string
	DefaultLab             LabID
	DefaultDurationSeconds int
	ScrollbackMaxLines     int
	HistoryMax             int
	// DisableAuditLogging disables audit trail debug logs for commands.
	DisableAuditLogging bool
}

const (
	// DefaultHostname is the host shown in the prompt.
	DefaultHostname = "cloudlab"
	// DefaultHomePath is the initial working directory of a session.
	DefaultHomePath = "/home/user"
	// DefaultLab is used when a client does not name a lab.
	DefaultLab LabID = "sandbox"
	// DefaultDurationSeconds is the default lab session length.
	DefaultDurationSeconds = 3600
	// DefaultScrollbackMaxLines is the default per-session scrollback limit.
	DefaultScrollbackMaxLines = 5000
	// DefaultHistoryMax is the default command history limit.
	DefaultHistoryMax = 200
)

// NormalizeServiceConfig applies defaults and validates the config.
func NormalizeServiceConfig(cfg ServiceConfig) (ServiceConfig, error) {
	cfg.Hostname = strings.TrimSpace(cfg.Hostname)
	if cfg.Hostname == "" {
		cfg.Hostname = DefaultHostname
	}
	cfg.HomePath = strings.TrimSpace(cfg.HomePath)
	if cfg.HomePath == "" {
		cfg.HomePath = DefaultHomePath
	}
	if !strings.HasPrefix(cfg.HomePath, "/") {
		return ServiceConfig{}, errors.New("home path must be absolute")
	}
	if strings.TrimSpace(string(cfg.DefaultLab)) == "" {
		cfg.DefaultLab = DefaultLab
	}
	if _, err := NormalizeLabID(string(cfg.DefaultLab)); err != nil {
		return ServiceConfig{}, err
	}
	if cfg.DefaultDurationSeconds <= 0 {
		cfg.DefaultDurationSeconds = DefaultDurationSeconds
	}
	if cfg.ScrollbackMaxLines <= 0 {
		cfg.ScrollbackMaxLines = DefaultScrollbackMaxLines
	}
	if cfg.HistoryMax <= 0 {
		cfg.HistoryMax = DefaultHistoryMax
	}
	return cfg, nil
}
