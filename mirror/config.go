package mirror

import (
	"fmt"
	"path/filepath"
	"strings"
)

// error policy applied when a single release's fetch fails
const (
	// OnErrorContinue logs the failure, rolls back the release directory
	// and carries on with the next release
	OnErrorContinue = "continue"
	// OnErrorAbort rolls back the release directory and stops the whole
	// sync of the repository
	OnErrorAbort = "abort"
)

// valid values for the release source adapter
const (
	SourceGHCLI = "gh"
	SourceAPI   = "api"
)

// RepositoryConfig represents the config of one mirrored repository.
type RepositoryConfig struct {
	// Remote is the repository to mirror releases from. It can be an
	// OWNER/REPO identifier, a github.com URL or an absolute path to an
	// already-checked-out working copy.
	Remote string `yaml:"remote"`

	// Root is the absolute path to the root dir under which the
	// per-repository destination tree will be created
	Root string `yaml:"root"`

	// DownloadSource makes the sync also fetch the source snapshot of
	// each release's tag
	DownloadSource bool `yaml:"download_source"`

	// OnError selects the per-release failure policy, 'continue' or
	// 'abort'. default is 'continue'
	OnError string `yaml:"on_error"`

	// Source selects the release source adapter, 'gh' or 'api'.
	// default is 'gh'
	Source string `yaml:"source"`

	// Auth config to access private repositories and raise rate limits
	Auth Auth `yaml:"auth"`
}

// Auth represents authentication config of the repository
type Auth struct {
	// personal access token, falls back to the GITHUB_TOKEN env var
	Token string `yaml:"token"`

	// Github App details, used to mint an installation token when no
	// static token is set
	// The application id or the client ID of the Github app
	GithubAppID string `yaml:"github_app_id"`
	// The installation id of the app (in the organization).
	GithubAppInstallationID string `yaml:"github_app_installation_id"`
	// path to the github app private key
	GithubAppPrivateKeyPath string `yaml:"github_app_private_key_path"`
}

// RepoRef is a parsed repository reference.
type RepoRef struct {
	// Owner and Name identify the repository on the release source.
	// Owner is empty for local working copies.
	Owner string
	Name  string

	// LocalPath is set when the reference points at an
	// already-checked-out working copy
	LocalPath string
}

// ParseRemote parses the remote reference of a repository config.
// Accepted forms are an absolute local path, OWNER/REPO and github.com
// HTTPS/SCP style URLs.
func ParseRemote(remote string) (RepoRef, error) {
	remote = strings.TrimSpace(remote)
	if remote == "" {
		return RepoRef{}, fmt.Errorf("repository remote cannot be empty")
	}

	if filepath.IsAbs(remote) {
		name := strings.TrimSuffix(filepath.Base(remote), ".git")
		return RepoRef{Name: name, LocalPath: remote}, nil
	}

	ref := remote
	for _, prefix := range []string{
		"https://github.com/",
		"http://github.com/",
		"ssh://git@github.com/",
		"git@github.com:",
	} {
		if strings.HasPrefix(ref, prefix) {
			ref = strings.TrimPrefix(ref, prefix)
			break
		}
	}
	ref = strings.TrimSuffix(strings.TrimSuffix(ref, "/"), ".git")

	parts := strings.Split(ref, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return RepoRef{}, fmt.Errorf("unable to parse remote '%s', expected OWNER/REPO", remote)
	}

	return RepoRef{Owner: parts[0], Name: parts[1]}, nil
}

// Slug returns the path of the repository's destination tree relative to
// the root.
func (r RepoRef) Slug() string {
	if r.Owner == "" {
		return r.Name
	}
	return filepath.Join(r.Owner, r.Name)
}

// CloneURL returns the HTTPS URL used for the ephemeral checkout.
func (r RepoRef) CloneURL() string {
	return fmt.Sprintf("https://github.com/%s/%s.git", r.Owner, r.Name)
}

func (c *RepositoryConfig) validate() error {
	if !filepath.IsAbs(c.Root) {
		return fmt.Errorf("repository root '%s' must be absolute", c.Root)
	}

	switch c.OnError {
	case "":
		c.OnError = OnErrorContinue
	case OnErrorContinue, OnErrorAbort:
	default:
		return fmt.Errorf("wrong on_error value provided, must be one of %s, %s",
			OnErrorContinue, OnErrorAbort)
	}

	switch c.Source {
	case "":
		c.Source = SourceGHCLI
	case SourceGHCLI, SourceAPI:
	default:
		return fmt.Errorf("wrong source value provided, must be one of %s, %s",
			SourceGHCLI, SourceAPI)
	}

	return nil
}
