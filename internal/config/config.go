// Package config loads the supervisor's YAML+env configuration: the set
// of repos it knows about, the executor profiles it can spawn, the
// workspace base directory, and the optional GitHub/GCP integrations.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config is the full supervisor configuration.
type Config struct {
	Workspace WorkspaceConfig           `mapstructure:"workspace" yaml:"workspace"`
	Repos     []RepoConfig              `mapstructure:"repos" yaml:"repos"`
	Executors map[string]ExecutorConfig `mapstructure:"executors" yaml:"executors,omitempty"`
	GitHub    GitHubConfig              `mapstructure:"github" yaml:"github,omitempty"`
	GCP       GCPConfig                 `mapstructure:"gcp" yaml:"gcp,omitempty"`
	Server    ServerConfig              `mapstructure:"server" yaml:"server,omitempty"`
}

// WorkspaceConfig controls where worktrees are materialized and how long
// they linger before the orphan sweeper reclaims them.
type WorkspaceConfig struct {
	BaseDir    string `mapstructure:"base_dir" yaml:"base_dir,omitempty"`
	TTL        string `mapstructure:"ttl" yaml:"ttl,omitempty"`
	MaxWorkers int    `mapstructure:"max_workers" yaml:"max_workers,omitempty"`
}

// RepoConfig is one git repository the supervisor can materialize
// worktrees against.
type RepoConfig struct {
	ID                  string   `mapstructure:"id" yaml:"id"`
	Name                string   `mapstructure:"name" yaml:"name"`
	Path                string   `mapstructure:"path" yaml:"path"`
	SetupScript         string   `mapstructure:"setup_script" yaml:"setup_script,omitempty"`
	CleanupScript       string   `mapstructure:"cleanup_script" yaml:"cleanup_script,omitempty"`
	DevServerScript     string   `mapstructure:"dev_server_script" yaml:"dev_server_script,omitempty"`
	CopyFiles           []string `mapstructure:"copy_files" yaml:"copy_files,omitempty"`
	ParallelSetupScript bool     `mapstructure:"parallel_setup_script" yaml:"parallel_setup_script,omitempty"`
}

// ExecutorConfig is one registered executor profile (claude-code, codex,
// droid, opencode), naming which adapter it resolves to and any
// adapter-specific overrides.
type ExecutorConfig struct {
	Adapter string `mapstructure:"adapter" yaml:"adapter"`
	Command string `mapstructure:"command" yaml:"command,omitempty"`
}

// GitHubConfig mints the short-lived installation token passed to
// executors as GITHUB_TOKEN, via the GitHub App authentication flow.
type GitHubConfig struct {
	AppID            int64  `mapstructure:"app_id" yaml:"app_id,omitempty"`
	InstallationID   int64  `mapstructure:"installation_id" yaml:"installation_id,omitempty"`
	PrivateKeySecret string `mapstructure:"private_key_secret" yaml:"private_key_secret,omitempty"`
}

// GCPConfig configures the optional Cloud Logging/Secret Manager gateway
// decorator (internal/gateway.CloudShipping); left zero-valued when the
// supervisor should only use its in-memory gateway.
type GCPConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled,omitempty"`
	ProjectID string `mapstructure:"project_id" yaml:"project_id,omitempty"`
	LogName   string `mapstructure:"log_name" yaml:"log_name,omitempty"`
}

// ServerConfig controls the supervisor's local control surface.
type ServerConfig struct {
	Addr   string `mapstructure:"addr" yaml:"addr,omitempty"`
	LogDir string `mapstructure:"log_dir" yaml:"log_dir,omitempty"`
}

// Load reads configuration from whatever source viper was already pointed
// at (config file, env, flags) and applies defaults.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyDefaults(cfg)
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Workspace.BaseDir == "" {
		cfg.Workspace.BaseDir = "./worktrees"
	}
	if cfg.Workspace.TTL == "" {
		cfg.Workspace.TTL = "24h"
	}
	if cfg.Workspace.MaxWorkers == 0 {
		cfg.Workspace.MaxWorkers = 4
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = "127.0.0.1:8787"
	}
	if cfg.Server.LogDir == "" {
		cfg.Server.LogDir = "./logs"
	}
	if cfg.GCP.LogName == "" {
		cfg.GCP.LogName = "agentium-supervisor"
	}
}

// Validate checks the fields required for the supervisor to start at all,
// independent of whether any repo is actually configured yet.
func (c *Config) Validate() error {
	if c.Workspace.BaseDir == "" {
		return fmt.Errorf("workspace base_dir is required")
	}
	if _, err := time.ParseDuration(c.Workspace.TTL); err != nil {
		return fmt.Errorf("invalid workspace ttl: %w", err)
	}
	if c.Workspace.MaxWorkers <= 0 {
		return fmt.Errorf("workspace max_workers must be positive")
	}
	for _, r := range c.Repos {
		if r.ID == "" {
			return fmt.Errorf("repo entry missing id")
		}
		if r.Path == "" {
			return fmt.Errorf("repo %s missing path", r.ID)
		}
	}
	if c.GCP.Enabled && c.GCP.ProjectID == "" {
		return fmt.Errorf("gcp.project_id is required when gcp.enabled is true")
	}
	return nil
}

// GitHubConfigured reports whether enough GitHub App credentials are
// present to mint installation tokens.
func (c *Config) GitHubConfigured() bool {
	return c.GitHub.AppID != 0 && c.GitHub.InstallationID != 0 && c.GitHub.PrivateKeySecret != ""
}
