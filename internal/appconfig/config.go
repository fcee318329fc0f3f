package appconfig

import (
	"os"
	"path/filepath"

	"pkt.systems/labterm/schema"
)

// Config is the top-level application configuration.
type Config struct {
	ConfigVersion int               `mapstructure:"config_version" yaml:"config_version"`
	StateDir      string            `mapstructure:"state_dir" yaml:"state_dir"`
	Terminal      TerminalConfig    `mapstructure:"terminal" yaml:"terminal"`
	HTTP          HTTPConfig        `mapstructure:"http" yaml:"http"`
	SSH           SSHConfig         `mapstructure:"ssh" yaml:"ssh"`
	Auth          AuthConfig        `mapstructure:"auth" yaml:"auth"`
	Transcripts   TranscriptsConfig `mapstructure:"transcripts" yaml:"transcripts"`
	Logging       LoggingConfig     `mapstructure:"logging" yaml:"logging"`
}

// CurrentConfigVersion marks the supported config version.
const CurrentConfigVersion = 1

// TerminalConfig controls the simulated shell sessions.
type TerminalConfig struct {
	Hostname               string `mapstructure:"hostname" yaml:"hostname"`
	HomePath               string `mapstructure:"home_path" yaml:"home_path"`
	DefaultLab             string `mapstructure:"default_lab" yaml:"default_lab"`
	DefaultDurationSeconds int    `mapstructure:"default_duration_seconds" yaml:"default_duration_seconds"`
	ScrollbackMaxLines     int    `mapstructure:"scrollback_max_lines" yaml:"scrollback_max_lines"`
	HistoryMax             int    `mapstructure:"history_max" yaml:"history_max"`
}

// HTTPConfig configures the admin HTTP server.
type HTTPConfig struct {
	Addr       string `mapstructure:"addr" yaml:"addr"`
	BasePath   string `mapstructure:"base_path" yaml:"base_path"`
	AdminToken string `mapstructure:"admin_token" yaml:"admin_token"`

	// StreamHistory bounds the events kept per session for SSE replay.
	StreamHistory int `mapstructure:"stream_history" yaml:"stream_history"`
}

// SSHConfig configures the SSH server.
type SSHConfig struct {
	Addr        string `mapstructure:"addr" yaml:"addr"`
	HostKeyPath string `mapstructure:"host_key_path" yaml:"host_key_path"`
}

// AuthConfig configures auth storage and seed users.
type AuthConfig struct {
	UserFile  string     `mapstructure:"user_file" yaml:"user_file"`
	SeedUsers []SeedUser `mapstructure:"seed_users" yaml:"seed_users"`
}

// TranscriptsConfig controls transcript archiving of ended sessions.
type TranscriptsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir     string `mapstructure:"dir" yaml:"dir"`
}

// LoggingConfig controls audit logging behavior.
type LoggingConfig struct {
	DisableAuditTrails bool `mapstructure:"disable_audit_trails" yaml:"disable_audit_trails"`
}

// SeedUser seeds a user record in the auth store. TOTPSecret is optional.
type SeedUser struct {
	Username     string `mapstructure:"username" yaml:"username"`
	PasswordHash string `mapstructure:"password_hash" yaml:"password_hash"`
	TOTPSecret   string `mapstructure:"totp_secret" yaml:"totp_secret"`
}

// ServiceConfig maps the terminal section onto the core service config.
func (c Config) ServiceConfig() schema.ServiceConfig {
	return schema.ServiceConfig{
		Hostname:               c.Terminal.Hostname,
		HomePath:               c.Terminal.HomePath,
		DefaultLab:             schema.LabID(c.Terminal.DefaultLab),
		DefaultDurationSeconds: c.Terminal.DefaultDurationSeconds,
		ScrollbackMaxLines:     c.Terminal.ScrollbackMaxLines,
		HistoryMax:             c.Terminal.HistoryMax,
		DisableAuditLogging:    c.Logging.DisableAuditTrails,
	}
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() (Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return Config{}, err
	}
	base := filepath.Join(home, ".labterm")
	return Config{
		ConfigVersion: CurrentConfigVersion,
		StateDir:      filepath.Join(base, "state"),
		Terminal: TerminalConfig{
			Hostname:               schema.DefaultHostname,
			HomePath:               schema.DefaultHomePath,
			DefaultLab:             string(schema.DefaultLab),
			DefaultDurationSeconds: schema.DefaultDurationSeconds,
			ScrollbackMaxLines:     schema.DefaultScrollbackMaxLines,
			HistoryMax:             schema.DefaultHistoryMax,
		},
		HTTP: HTTPConfig{
			Addr:          "127.0.0.1:27580",
			BasePath:      "",
			AdminToken:    "",
			StreamHistory: 1000,
		},
		SSH: SSHConfig{
			Addr:        ":27522",
			HostKeyPath: filepath.Join(base, "ssh_host_key"),
		},
		Auth: AuthConfig{
			UserFile:  filepath.Join(base, "users.json"),
			SeedUsers: []SeedUser{},
		},
		Transcripts: TranscriptsConfig{
			Enabled: true,
			Dir:     filepath.Join(base, "state", "transcripts"),
		},
		Logging: LoggingConfig{
			DisableAuditTrails: false,
		},
	}, nil
}

// DefaultConfigPath returns the standard config path.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".labterm", "config.yaml"), nil
}
