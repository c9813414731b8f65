package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/utilitywarehouse/release-mirror/internal/utils"
)

// workspace is an ephemeral single-commit checkout of a remote repository.
// It is exclusively owned by the sync call that created it and must be
// torn down via Close before that call returns, regardless of outcome.
type workspace struct {
	dir string
	log *slog.Logger
}

// newWorkspace creates a shallow, single-commit checkout of the remote
// under the system temp dir.
func newWorkspace(ctx context.Context, log *slog.Logger, envs []string, ref RepoRef) (*workspace, error) {
	root := filepath.Join(os.TempDir(), "release-mirror")
	if err := os.MkdirAll(root, utils.DefaultDirMode); err != nil {
		return nil, fmt.Errorf("unable to create workspace root err:%w", err)
	}

	dir := filepath.Join(root, ref.Name+"-"+uuid.NewString())

	// git clone --quiet --depth 1 --single-branch <remote> <dir>
	if _, err := utils.RunCommand(ctx, log, envs, "",
		"git", "clone", "--quiet", "--depth", "1", "--single-branch", ref.CloneURL(), dir); err != nil {
		// clone may have left a partial dir behind
		os.RemoveAll(dir)
		return nil, fmt.Errorf("unable to clone repo err:%w", err)
	}

	return &workspace{dir: dir, log: log}, nil
}

// Close removes the workspace and everything in it.
func (w *workspace) Close() {
	if err := os.RemoveAll(w.dir); err != nil {
		w.log.Error("unable to remove workspace", "path", w.dir, "err", err)
	}
}
