package mirror

import "context"

// Release represents one published release of a repository.
// It is constructed transiently from the release listing and discarded
// once the sync decision for it is made. The only durable state is the
// presence of a directory named after its tag under the destination root.
type Release struct {
	// Title is the display name of the release, may be empty
	Title string
	// Status is the publication state as reported by the release source
	// (eg. "Draft", "Pre-release", "Latest")
	Status string
	// Tag uniquely identifies the release within its repository and is
	// used verbatim as the local directory name
	Tag string
	// Date is the publication timestamp, kept as an opaque string
	Date string
}

// ReleaseSource abstracts release listing and asset downloads for a single
// repository. It can be backed by a process-invocation adapter around the
// `gh` executable (ghcli) or by a direct client against the GitHub REST
// API (githubapi).
//
// workDir is the resolved working context of the repository. The process
// adapter runs its commands there; the API adapter ignores it.
type ReleaseSource interface {
	// List returns the ordered sequence of releases of the repository.
	// Ordering follows whatever the release source returns, no
	// independent sort is imposed.
	List(ctx context.Context, workDir string) ([]Release, error)

	// AssetCount returns the number of downloadable assets attached to
	// the release with the given tag.
	AssetCount(ctx context.Context, workDir, tag string) (int, error)

	// Describe writes the release's metadata files (_release.json and
	// _description.md) into dst.
	Describe(ctx context.Context, workDir, tag, dst string) error

	// Download writes all assets of the release with the given tag into
	// dst. On failure dst is left in an undefined partial state and the
	// caller must roll back.
	Download(ctx context.Context, workDir, tag, dst string) error

	// DownloadSource writes the repository source archive for the given
	// tag into dst.
	DownloadSource(ctx context.Context, workDir, tag, dst string) error
}
