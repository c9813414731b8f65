// Package mirror reconciles a local release-directory tree with the remote
// release list of a repository. Releases already present locally are left
// untouched, missing ones are fetched exactly once and a failed fetch is
// rolled back so the release is retried, not skipped, on the next run.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
	"github.com/utilitywarehouse/release-mirror/internal/utils"
)

// ReleaseOutcome is the terminal state of one release within a sync run.
type ReleaseOutcome int

const (
	// OutcomeDownloaded means the release directory was created and all
	// requested artifacts were written into it
	OutcomeDownloaded ReleaseOutcome = iota
	// OutcomeSkipped means the release directory already existed
	OutcomeSkipped
	// OutcomeSkippedNoAssets means the release reported zero assets, no
	// directory was created so it will be re-checked on the next run
	OutcomeSkippedNoAssets
	// OutcomeFailed means the fetch failed and the partially created
	// directory was rolled back
	OutcomeFailed
)

// ReleaseResult captures the outcome of one release within a sync run.
// Failure causes are recorded here and decided centrally by Sync, never
// silently discarded.
type ReleaseResult struct {
	Release Release
	Outcome ReleaseOutcome
	Err     error
}

// Repository represents the mirrored release tree of the given remote.
// A Repository is safe for concurrent use by multiple goroutines although
// releases of a single sync are always processed sequentially.
type Repository struct {
	remote         string        // remote reference as given in config
	ref            RepoRef       // parsed remote reference
	root           string        // absolute path to the destination root
	dir            string        // absolute path to this repository's release tree
	downloadSource bool          // also fetch source snapshot per release
	onError        string        // per-release failure policy
	source         ReleaseSource // release listing/downloading capability
	fs             afero.Fs      // destination tree filesystem
	envs           []string      // envs passed to the ephemeral git checkout
	log            *slog.Logger
}

// New creates a new release mirror repository from the given config.
// Nothing is fetched until Sync is called.
func New(conf RepositoryConfig, source ReleaseSource, fsys afero.Fs, envs []string, log *slog.Logger) (*Repository, error) {
	if source == nil {
		return nil, fmt.Errorf("release source must be provided")
	}

	if err := conf.validate(); err != nil {
		return nil, err
	}

	ref, err := ParseRemote(conf.Remote)
	if err != nil {
		return nil, err
	}

	if fsys == nil {
		fsys = afero.NewOsFs()
	}

	if log == nil {
		log = slog.Default()
	}
	log = log.With("repo", ref.Slug())

	return &Repository{
		remote:         conf.Remote,
		ref:            ref,
		root:           conf.Root,
		dir:            filepath.Join(conf.Root, ref.Slug()),
		downloadSource: conf.DownloadSource,
		onError:        conf.OnError,
		source:         source,
		fs:             fsys,
		envs:           envs,
		log:            log,
	}, nil
}

// Remote returns the remote reference of the repository as given in config.
func (r *Repository) Remote() string {
	return r.remote
}

// Directory returns the absolute path of the repository's release tree.
func (r *Repository) Directory() string {
	return r.dir
}

// Sync reconciles the destination tree with the remote release list.
//  1. resolve a working context, cloning remotes into an ephemeral
//     workspace which is torn down before Sync returns
//  2. retrieve the ordered release list
//  3. fetch every release not yet present, rolling back partial
//     directories on failure
//
// Failures while resolving the context or retrieving the release list are
// fatal. A failure of a single release is isolated: under the 'continue'
// policy it is logged and the loop moves on, under 'abort' Sync stops and
// returns that release's error.
func (r *Repository) Sync(ctx context.Context) error {
	start := time.Now()
	defer updateSyncLatency(r.ref.Slug(), start)

	err := r.sync(ctx)
	recordSync(r.ref.Slug(), err == nil)
	return err
}

func (r *Repository) sync(ctx context.Context) error {
	start := time.Now()

	workDir := r.ref.LocalPath
	if workDir == "" {
		ws, err := newWorkspace(ctx, r.log, r.envs, r.ref)
		if err != nil {
			return fmt.Errorf("unable to resolve working context for repo:%s err:%w", r.ref.Slug(), err)
		}
		defer ws.Close()
		workDir = ws.dir
	}

	releases, err := r.source.List(ctx, workDir)
	if err != nil {
		return fmt.Errorf("unable to list releases repo:%s err:%w", r.ref.Slug(), err)
	}

	// a tag which is not usable as a directory name means the listing
	// itself is malformed, treat it as fatal before touching the tree
	for _, rel := range releases {
		if err := validateTag(rel.Tag); err != nil {
			return fmt.Errorf("malformed release list repo:%s err:%w", r.ref.Slug(), err)
		}
	}

	if err := r.fs.MkdirAll(r.dir, utils.DefaultDirMode); err != nil {
		return fmt.Errorf("unable to create destination dir err:%w", err)
	}

	var results []ReleaseResult
	for _, rel := range releases {
		res := r.syncRelease(ctx, workDir, rel)
		results = append(results, res)

		switch res.Outcome {
		case OutcomeDownloaded:
			recordReleaseDownload(r.ref.Slug())
		case OutcomeFailed:
			r.log.Error("release sync failed", "tag", rel.Tag, "err", res.Err)
			if r.onError == OnErrorAbort {
				return fmt.Errorf("unable to sync release tag:%s err:%w", rel.Tag, res.Err)
			}
		}
	}

	var downloaded, skipped, failed int
	var failures []error
	for _, res := range results {
		switch res.Outcome {
		case OutcomeDownloaded:
			downloaded++
		case OutcomeSkipped, OutcomeSkippedNoAssets:
			skipped++
		case OutcomeFailed:
			failed++
			failures = append(failures, res.Err)
		}
	}

	r.log.Info("sync cycle complete", "time", time.Since(start),
		"releases", len(results), "downloaded", downloaded, "skipped", skipped, "failed", failed)

	// every attempted release failing points at a systemic cause
	// (auth, rate limit) rather than one bad release
	if failed > 0 && downloaded == 0 {
		return fmt.Errorf("all %d attempted releases failed err:%w", failed, errors.Join(failures...))
	}

	return nil
}

// syncRelease brings a single release from "absent" to "present". Any
// failure after the release directory is created removes it again so a
// half-downloaded release is never mistaken for a synced one.
func (r *Repository) syncRelease(ctx context.Context, workDir string, rel Release) ReleaseResult {
	releasePath := filepath.Join(r.dir, rel.Tag)

	exists, err := afero.DirExists(r.fs, releasePath)
	if err != nil {
		return ReleaseResult{Release: rel, Outcome: OutcomeFailed,
			Err: fmt.Errorf("unable to check release dir err:%w", err)}
	}
	if exists {
		r.log.Debug("release already synced, skipping", "tag", rel.Tag)
		return ReleaseResult{Release: rel, Outcome: OutcomeSkipped}
	}

	count, err := r.source.AssetCount(ctx, workDir, rel.Tag)
	if err != nil {
		return ReleaseResult{Release: rel, Outcome: OutcomeFailed,
			Err: fmt.Errorf("unable to get asset count err:%w", err)}
	}
	if count == 0 {
		// no directory is created so the release is re-checked on the
		// next run in case it gains assets later
		r.log.Debug("release has no assets, skipping", "tag", rel.Tag)
		return ReleaseResult{Release: rel, Outcome: OutcomeSkippedNoAssets}
	}

	// Mkdir and not MkdirAll, creation racing with an external actor
	// must fail loudly
	if err := r.fs.Mkdir(releasePath, utils.DefaultDirMode); err != nil {
		return ReleaseResult{Release: rel, Outcome: OutcomeFailed,
			Err: fmt.Errorf("unable to create release dir err:%w", err)}
	}

	r.log.Info("downloading release", "tag", rel.Tag, "assets", count)

	if err := r.fetchRelease(ctx, workDir, rel, releasePath); err != nil {
		if rmErr := r.fs.RemoveAll(releasePath); rmErr != nil {
			r.log.Error("unable to roll back release dir", "tag", rel.Tag, "err", rmErr)
		}
		return ReleaseResult{Release: rel, Outcome: OutcomeFailed, Err: err}
	}

	return ReleaseResult{Release: rel, Outcome: OutcomeDownloaded}
}

func (r *Repository) fetchRelease(ctx context.Context, workDir string, rel Release, releasePath string) error {
	if err := r.source.Describe(ctx, workDir, rel.Tag, releasePath); err != nil {
		return fmt.Errorf("unable to write release metadata err:%w", err)
	}

	if err := r.source.Download(ctx, workDir, rel.Tag, releasePath); err != nil {
		return fmt.Errorf("unable to download release assets err:%w", err)
	}

	if r.downloadSource {
		if err := r.source.DownloadSource(ctx, workDir, rel.Tag, releasePath); err != nil {
			return fmt.Errorf("unable to download release source err:%w", err)
		}
	}

	return nil
}
