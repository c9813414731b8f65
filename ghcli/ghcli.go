// Package ghcli implements a release source backed by the `gh`
// executable. All operations are plain process invocations run inside the
// repository's working context so authentication, pagination and rate
// limit handling stay gh's problem.
package ghcli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/utilitywarehouse/release-mirror/internal/utils"
	"github.com/utilitywarehouse/release-mirror/mirror"
)

const (
	// listLimit caps the number of releases fetched per listing, gh
	// defaults to 30 which is far too low for busy repositories
	listLimit = "1000"

	releaseMetadataFile    = "_release.json"
	releaseDescriptionFile = "_description.md"
)

// releaseView models the fields of `gh release view --json` needed for
// the asset-count decision and the metadata files.
type releaseView struct {
	Name         string `json:"name"`
	TagName      string `json:"tagName"`
	IsDraft      bool   `json:"isDraft"`
	IsPrerelease bool   `json:"isPrerelease"`
	PublishedAt  string `json:"publishedAt"`
	Body         string `json:"body"`
	Assets       []struct {
		Name string `json:"name"`
		Size int64  `json:"size"`
		URL  string `json:"url"`
	} `json:"assets"`
}

// Source is a mirror.ReleaseSource which shells out to gh.
type Source struct {
	ghExec string
	envs   []string
	log    *slog.Logger
}

// New returns a gh backed release source. envs are passed to every gh
// invocation, a GH_TOKEN entry enables authenticated access.
func New(ghExec string, envs []string, log *slog.Logger) *Source {
	if ghExec == "" {
		ghExec = "gh"
	}
	if log == nil {
		log = slog.Default()
	}
	return &Source{ghExec: ghExec, envs: envs, log: log}
}

// List returns releases of the repository checked out at workDir, in the
// order gh reports them.
func (s *Source) List(ctx context.Context, workDir string) ([]mirror.Release, error) {
	// gh release list --limit 1000
	out, err := utils.RunCommand(ctx, s.log, s.envs, workDir, s.ghExec,
		"release", "list", "--limit", listLimit)
	if err != nil {
		return nil, err
	}
	return ParseReleaseList(out)
}

// ParseReleaseList parses the tab-separated output of `gh release list`,
// one release per line: title, status, tag, date. A line that does not
// split into exactly four fields is a fatal parse error.
func ParseReleaseList(out string) ([]mirror.Release, error) {
	var releases []mirror.Release

	for i, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fields := strings.Split(line, "\t")
		if len(fields) != 4 {
			return nil, fmt.Errorf("release list line %d: expected 4 tab-separated fields, got %d", i+1, len(fields))
		}
		releases = append(releases, mirror.Release{
			Title:  fields[0],
			Status: fields[1],
			Tag:    fields[2],
			Date:   fields[3],
		})
	}

	return releases, nil
}

// AssetCount returns the number of downloadable assets of the release.
func (s *Source) AssetCount(ctx context.Context, workDir, tag string) (int, error) {
	view, _, err := s.view(ctx, workDir, tag)
	if err != nil {
		return 0, err
	}
	return len(view.Assets), nil
}

// Describe writes the release metadata files into dst.
func (s *Source) Describe(ctx context.Context, workDir, tag, dst string) error {
	view, raw, err := s.view(ctx, workDir, tag)
	if err != nil {
		return err
	}

	indented := bytes.NewBuffer(nil)
	if err := json.Indent(indented, raw, "", "    "); err != nil {
		return fmt.Errorf("unable to indent release metadata err:%w", err)
	}
	indented.WriteString("\n")

	if err := os.WriteFile(filepath.Join(dst, releaseMetadataFile), indented.Bytes(), 0644); err != nil {
		return fmt.Errorf("unable to write release metadata err:%w", err)
	}

	description := fmt.Sprintf("# %s\n\n%s\n", view.Name, view.Body)
	if err := os.WriteFile(filepath.Join(dst, releaseDescriptionFile), []byte(description), 0644); err != nil {
		return fmt.Errorf("unable to write release description err:%w", err)
	}

	return nil
}

// Download writes all assets of the release into dst.
func (s *Source) Download(ctx context.Context, workDir, tag, dst string) error {
	// gh release download <tag> --dir <dst>
	_, err := utils.RunCommand(ctx, s.log, s.envs, workDir, s.ghExec,
		"release", "download", tag, "--dir", dst)
	return err
}

// DownloadSource writes the source archive of the release's tag into dst.
func (s *Source) DownloadSource(ctx context.Context, workDir, tag, dst string) error {
	// gh release download <tag> --archive=tar.gz --dir <dst>
	_, err := utils.RunCommand(ctx, s.log, s.envs, workDir, s.ghExec,
		"release", "download", tag, "--archive=tar.gz", "--dir", dst)
	return err
}

func (s *Source) view(ctx context.Context, workDir, tag string) (*releaseView, []byte, error) {
	// gh release view <tag> --json name,tagName,isDraft,isPrerelease,publishedAt,body,assets
	out, err := utils.RunCommand(ctx, s.log, s.envs, workDir, s.ghExec,
		"release", "view", tag,
		"--json", "name,tagName,isDraft,isPrerelease,publishedAt,body,assets")
	if err != nil {
		return nil, nil, err
	}

	view := &releaseView{}
	if err := json.Unmarshal([]byte(out), view); err != nil {
		return nil, nil, fmt.Errorf("unable to decode release view err:%w", err)
	}
	return view, []byte(out), nil
}
