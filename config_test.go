package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/utilitywarehouse/release-mirror/mirror"
)

func TestParseConfigFile(t *testing.T) {
	configYAML := `
defaults:
  root: /srv/releases
  sync_timeout: 5m
  on_error: abort
  source: api
  auth:
    token: tkn

repositories:
  - remote: acme/widget
    download_source: true
  - remote: acme/gadget
    root: /mnt/archive
    on_error: continue
    source: gh
    auth:
      github_app_id: "1234"
      github_app_installation_id: "5678"
      github_app_private_key_path: /etc/keys/app.pem
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(configYAML), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	conf, err := parseConfigFile(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := conf.validateAndApplyDefaults(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &Config{
		Defaults: DefaultConfig{
			Root:        "/srv/releases",
			SyncTimeout: 5 * time.Minute,
			OnError:     "abort",
			Source:      "api",
			Auth:        mirror.Auth{Token: "tkn"},
		},
		Repositories: []mirror.RepositoryConfig{
			{
				Remote:         "acme/widget",
				Root:           "/srv/releases",
				DownloadSource: true,
				OnError:        "abort",
				Source:         "api",
				Auth:           mirror.Auth{Token: "tkn"},
			},
			{
				Remote:  "acme/gadget",
				Root:    "/mnt/archive",
				OnError: "continue",
				Source:  "gh",
				Auth: mirror.Auth{
					GithubAppID:             "1234",
					GithubAppInstallationID: "5678",
					GithubAppPrivateKeyPath: "/etc/keys/app.pem",
				},
			},
		},
	}

	if diff := cmp.Diff(want, conf); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
}

func TestParseConfigFile_missing(t *testing.T) {
	if _, err := parseConfigFile(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Errorf("expected error for missing config file")
	}
}

func TestValidateAndApplyDefaults(t *testing.T) {
	tests := []struct {
		name    string
		conf    Config
		wantErr bool
	}{
		{
			name: "empty config gets default timeout",
			conf: Config{},
		},
		{
			name:    "too short sync timeout",
			conf:    Config{Defaults: DefaultConfig{SyncTimeout: 10 * time.Millisecond}},
			wantErr: true,
		},
		{
			name: "partial github app config",
			conf: Config{Defaults: DefaultConfig{
				Auth: mirror.Auth{GithubAppID: "1234"},
			}},
			wantErr: true,
		},
		{
			name: "full github app config",
			conf: Config{Defaults: DefaultConfig{
				Auth: mirror.Auth{
					GithubAppID:             "1234",
					GithubAppInstallationID: "5678",
					GithubAppPrivateKeyPath: "/etc/keys/app.pem",
				},
			}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.conf.validateAndApplyDefaults()
			if (err != nil) != tt.wantErr {
				t.Fatalf("validateAndApplyDefaults() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil && tt.conf.Defaults.SyncTimeout == 0 {
				t.Errorf("expected default sync timeout to be applied")
			}
		})
	}
}

func TestValidateAndApplyDefaults_downloadSourceInheritance(t *testing.T) {
	conf := Config{
		Defaults: DefaultConfig{Root: "/srv/releases", DownloadSource: true},
		Repositories: []mirror.RepositoryConfig{
			{Remote: "acme/widget"},
			{Remote: "acme/gadget", DownloadSource: true},
		},
	}

	if err := conf.validateAndApplyDefaults(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, repo := range conf.Repositories {
		if !repo.DownloadSource {
			t.Errorf("expected download_source to be inherited for %s", repo.Remote)
		}
	}
}
