package main

import (
	"fmt"
	"os"
	"time"

	"github.com/utilitywarehouse/release-mirror/mirror"
	"gopkg.in/yaml.v3"
)

const defaultSyncTimeout = 30 * time.Minute

// Config is the file-based configuration of the mirror. Repositories given
// as CLI arguments are appended to Repositories before defaults are
// applied.
type Config struct {
	// default config for all the repositories if not set
	Defaults DefaultConfig `yaml:"defaults"`
	// List of mirrored repositories.
	Repositories []mirror.RepositoryConfig `yaml:"repositories"`
}

// DefaultConfig is the default config for repositories if not set at repo level
type DefaultConfig struct {
	// Root is the absolute path to the root dir under which every
	// repository's release tree is created
	Root string `yaml:"root"`

	// DownloadSource makes every sync also fetch the source snapshot
	// per release
	DownloadSource bool `yaml:"download_source"`

	// SyncTimeout represents the total time allowed for one repository's
	// complete sync
	SyncTimeout time.Duration `yaml:"sync_timeout"`

	// OnError is the per-release failure policy, 'continue' or 'abort'
	OnError string `yaml:"on_error"`

	// Source is the release source adapter, 'gh' or 'api'
	Source string `yaml:"source"`

	// Auth config to access private repositories
	Auth mirror.Auth `yaml:"auth"`
}

func parseConfigFile(path string) (*Config, error) {
	yamlFile, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	conf := &Config{}
	if err := yaml.Unmarshal(yamlFile, conf); err != nil {
		return nil, err
	}

	return conf, nil
}

// validateAndApplyDefaults verifies the defaults block and copies it onto
// repository configs where they left a value unset.
func (conf *Config) validateAndApplyDefaults() error {
	if conf.Defaults.SyncTimeout == 0 {
		conf.Defaults.SyncTimeout = defaultSyncTimeout
	}
	if conf.Defaults.SyncTimeout < time.Second {
		return fmt.Errorf("provided sync timeout is too short (%s), must be > %s", conf.Defaults.SyncTimeout, time.Second)
	}

	// if any of the github app config is set all should be set
	dAuth := conf.Defaults.Auth
	if dAuth.GithubAppID != "" ||
		dAuth.GithubAppInstallationID != "" ||
		dAuth.GithubAppPrivateKeyPath != "" {
		if dAuth.GithubAppID == "" ||
			dAuth.GithubAppInstallationID == "" ||
			dAuth.GithubAppPrivateKeyPath == "" {
			return fmt.Errorf("all of the Github app attributes are required")
		}
	}

	for i := range conf.Repositories {
		repo := &conf.Repositories[i]

		if repo.Root == "" {
			repo.Root = conf.Defaults.Root
		}

		if repo.OnError == "" {
			repo.OnError = conf.Defaults.OnError
		}

		if repo.Source == "" {
			repo.Source = conf.Defaults.Source
		}

		if conf.Defaults.DownloadSource {
			repo.DownloadSource = true
		}

		if (repo.Auth == mirror.Auth{}) {
			repo.Auth = conf.Defaults.Auth
		}
	}

	return nil
}
