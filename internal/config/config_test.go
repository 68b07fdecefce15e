package config

import "testing"

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name: "valid config",
			config: Config{
				Workspace: WorkspaceConfig{BaseDir: "/tmp/wt", TTL: "24h", MaxWorkers: 4},
			},
			wantErr: false,
		},
		{
			name:    "missing base dir",
			config:  Config{Workspace: WorkspaceConfig{TTL: "24h", MaxWorkers: 4}},
			wantErr: true,
		},
		{
			name:    "invalid ttl",
			config:  Config{Workspace: WorkspaceConfig{BaseDir: "/tmp/wt", TTL: "not-a-duration", MaxWorkers: 4}},
			wantErr: true,
		},
		{
			name:    "zero workers",
			config:  Config{Workspace: WorkspaceConfig{BaseDir: "/tmp/wt", TTL: "24h"}},
			wantErr: true,
		},
		{
			name: "repo missing path",
			config: Config{
				Workspace: WorkspaceConfig{BaseDir: "/tmp/wt", TTL: "24h", MaxWorkers: 4},
				Repos:     []RepoConfig{{ID: "r1"}},
			},
			wantErr: true,
		},
		{
			name: "gcp enabled without project id",
			config: Config{
				Workspace: WorkspaceConfig{BaseDir: "/tmp/wt", TTL: "24h", MaxWorkers: 4},
				GCP:       GCPConfig{Enabled: true},
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	applyDefaults(cfg)

	if cfg.Workspace.BaseDir == "" {
		t.Error("expected a default workspace base dir")
	}
	if cfg.Workspace.MaxWorkers != 4 {
		t.Errorf("default max_workers = %d, want 4", cfg.Workspace.MaxWorkers)
	}
	if cfg.Server.Addr == "" {
		t.Error("expected a default server addr")
	}
}

func TestGitHubConfigured(t *testing.T) {
	cfg := &Config{}
	if cfg.GitHubConfigured() {
		t.Error("empty config should not report GitHub configured")
	}

	cfg.GitHub = GitHubConfig{AppID: 1, InstallationID: 2, PrivateKeySecret: "secret-ref"}
	if !cfg.GitHubConfigured() {
		t.Error("fully populated GitHub config should report configured")
	}
}
