// Package githubapi implements a release source which talks to the GitHub
// REST API directly instead of shelling out to gh. It needs no local
// working context, the workDir argument of every operation is ignored.
package githubapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/utilitywarehouse/release-mirror/mirror"
)

const (
	acceptJSON   = "application/vnd.github+json"
	acceptStream = "application/octet-stream"
	apiVersion   = "2022-11-28"

	defaultBaseURL = "https://api.github.com"

	// releases per listing page, the API maximum
	perPage = 100

	releaseMetadataFile    = "_release.json"
	releaseDescriptionFile = "_description.md"
)

// release models the fields of the releases API responses required for
// the sync decisions and the metadata files.
type release struct {
	Name        string  `json:"name"`
	TagName     string  `json:"tag_name"`
	Draft       bool    `json:"draft"`
	Prerelease  bool    `json:"prerelease"`
	PublishedAt string  `json:"published_at"`
	Body        string  `json:"body"`
	TarballURL  string  `json:"tarball_url"`
	Assets      []asset `json:"assets"`
}

type asset struct {
	// Name is the filename of the release asset.
	Name string `json:"name"`
	// URL is the API URL of the asset, downloadable with an
	// octet-stream Accept header.
	URL  string `json:"url"`
	Size int64  `json:"size"`
}

type releaseRecord struct {
	rel release
	raw json.RawMessage
}

// Source is a mirror.ReleaseSource backed by the GitHub REST API.
type Source struct {
	client  *http.Client
	baseURL string
	owner   string
	repo    string
	token   string
	log     *slog.Logger

	// byTag caches records from the listing so the per-release
	// operations need no extra metadata requests. Syncs are sequential
	// so plain map access is fine.
	byTag map[string]releaseRecord
}

// New returns an API backed release source for owner/repo. token may be
// empty for public repositories within rate limits.
func New(owner, repo, token string, log *slog.Logger) *Source {
	if log == nil {
		log = slog.Default()
	}
	return &Source{
		client:  &http.Client{Timeout: 60 * time.Second},
		baseURL: defaultBaseURL,
		owner:   owner,
		repo:    repo,
		token:   token,
		log:     log,
		byTag:   make(map[string]releaseRecord),
	}
}

// List returns all releases of the repository, following the API's Link
// header pagination, in the order the API returns them.
func (s *Source) List(ctx context.Context, _ string) ([]mirror.Release, error) {
	var releases []mirror.Release

	url := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d", s.baseURL, s.owner, s.repo, perPage)
	for url != "" {
		s.log.Debug("fetching release list page", "url", url)

		resp, err := s.get(ctx, url, acceptJSON)
		if err != nil {
			return nil, fmt.Errorf("fetch release list: %w", err)
		}

		var page []json.RawMessage
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("decode release list: %w", err)
		}

		for _, raw := range page {
			var rel release
			if err := json.Unmarshal(raw, &rel); err != nil {
				return nil, fmt.Errorf("decode release: %w", err)
			}
			s.byTag[rel.TagName] = releaseRecord{rel: rel, raw: raw}
			releases = append(releases, mirror.Release{
				Title:  rel.Name,
				Status: statusOf(rel),
				Tag:    rel.TagName,
				Date:   rel.PublishedAt,
			})
		}

		url = nextPageURL(resp.Header.Get("Link"))
	}

	return releases, nil
}

// AssetCount returns the number of downloadable assets of the release.
func (s *Source) AssetCount(ctx context.Context, _, tag string) (int, error) {
	rec, err := s.record(ctx, tag)
	if err != nil {
		return 0, err
	}
	return len(rec.rel.Assets), nil
}

// Describe writes the release metadata files into dst.
func (s *Source) Describe(ctx context.Context, _, tag, dst string) error {
	rec, err := s.record(ctx, tag)
	if err != nil {
		return err
	}

	indented := bytes.NewBuffer(nil)
	if err := json.Indent(indented, rec.raw, "", "    "); err != nil {
		return fmt.Errorf("unable to indent release metadata err:%w", err)
	}
	indented.WriteString("\n")

	if err := os.WriteFile(filepath.Join(dst, releaseMetadataFile), indented.Bytes(), 0644); err != nil {
		return fmt.Errorf("unable to write release metadata err:%w", err)
	}

	description := fmt.Sprintf("# %s\n\n%s\n", rec.rel.Name, rec.rel.Body)
	if err := os.WriteFile(filepath.Join(dst, releaseDescriptionFile), []byte(description), 0644); err != nil {
		return fmt.Errorf("unable to write release description err:%w", err)
	}

	return nil
}

// Download writes all assets of the release into dst, one file per asset,
// each written atomically via a temp file in dst.
func (s *Source) Download(ctx context.Context, _, tag, dst string) error {
	rec, err := s.record(ctx, tag)
	if err != nil {
		return err
	}

	for _, a := range rec.rel.Assets {
		if a.URL == "" {
			return fmt.Errorf("asset %q has empty url", a.Name)
		}
		s.log.Debug("downloading asset", "tag", tag, "asset", a.Name)
		if err := s.downloadFile(ctx, a.URL, acceptStream, filepath.Join(dst, a.Name)); err != nil {
			return fmt.Errorf("download asset %q: %w", a.Name, err)
		}
	}

	return nil
}

// DownloadSource writes the source tarball of the release's tag into dst.
// The filename is taken from the Content-Disposition header, the API tags
// source downloads with the git sha.
func (s *Source) DownloadSource(ctx context.Context, _, tag, dst string) error {
	rec, err := s.record(ctx, tag)
	if err != nil {
		return err
	}
	if rec.rel.TarballURL == "" {
		return fmt.Errorf("release %q has empty tarball_url", tag)
	}

	// the API rejects application/octet-stream for this endpoint
	resp, err := s.get(ctx, rec.rel.TarballURL, acceptJSON)
	if err != nil {
		return fmt.Errorf("download source: %w", err)
	}
	defer resp.Body.Close()

	filename := filenameFromDisposition(resp.Header.Get("Content-Disposition"))
	if filename == "" {
		filename = fmt.Sprintf("%s-%s.tar.gz", s.repo, tag)
	}

	return writeFileAtomically(filepath.Join(dst, filename), func(f *os.File) error {
		if _, err := io.Copy(f, resp.Body); err != nil {
			return fmt.Errorf("stream source: %w", err)
		}
		return nil
	})
}

// record returns the cached release for tag, fetching it from the
// releases/tags endpoint on a cache miss.
func (s *Source) record(ctx context.Context, tag string) (releaseRecord, error) {
	if rec, ok := s.byTag[tag]; ok {
		return rec, nil
	}

	url := fmt.Sprintf("%s/repos/%s/%s/releases/tags/%s", s.baseURL, s.owner, s.repo, tag)
	resp, err := s.get(ctx, url, acceptJSON)
	if err != nil {
		return releaseRecord{}, fmt.Errorf("fetch release metadata: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return releaseRecord{}, fmt.Errorf("read release metadata: %w", err)
	}

	var rel release
	if err := json.Unmarshal(raw, &rel); err != nil {
		return releaseRecord{}, fmt.Errorf("decode release metadata: %w", err)
	}

	rec := releaseRecord{rel: rel, raw: raw}
	s.byTag[tag] = rec
	return rec, nil
}

func (s *Source) downloadFile(ctx context.Context, url, accept, path string) error {
	resp, err := s.get(ctx, url, accept)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return writeFileAtomically(path, func(f *os.File) error {
		if _, err := io.Copy(f, resp.Body); err != nil {
			return fmt.Errorf("stream asset: %w", err)
		}
		return nil
	})
}

// get performs a GET and returns the response only on a 2xx status, any
// other status is turned into an error with a bounded body excerpt.
func (s *Source) get(ctx context.Context, url, accept string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", apiVersion)
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		resp.Body.Close()
		return nil, fmt.Errorf("status=%s body=%s", resp.Status, string(b))
	}

	return resp, nil
}

// writeFileAtomically writes a file to outPath by writing to a temporary
// file in the destination directory and then renaming it into place.
func writeFileAtomically(outPath string, write func(f *os.File) error) error {
	dir := filepath.Dir(outPath)

	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	// Best-effort cleanup: if we fail prior to rename, remove the temp file.
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if err := write(tmp); err != nil {
		return err
	}

	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpName, outPath); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	return nil
}

func statusOf(rel release) string {
	switch {
	case rel.Draft:
		return "Draft"
	case rel.Prerelease:
		return "Pre-release"
	default:
		return "Published"
	}
}

// nextPageURL extracts the rel="next" target from a Link header, empty
// when there is no next page.
func nextPageURL(link string) string {
	for _, part := range strings.Split(link, ",") {
		sections := strings.Split(part, ";")
		if len(sections) < 2 {
			continue
		}
		if strings.TrimSpace(sections[1]) != `rel="next"` {
			continue
		}
		url := strings.TrimSpace(sections[0])
		return strings.TrimSuffix(strings.TrimPrefix(url, "<"), ">")
	}
	return ""
}

func filenameFromDisposition(disposition string) string {
	if disposition == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil {
		return ""
	}
	return params["filename"]
}
