package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/utilitywarehouse/release-mirror/internal/lock"
)

func TestMain(m *testing.M) {
	lock.EnableDeadlockDetection()
	os.Exit(m.Run())
}

func TestPool_AddAndLookup(t *testing.T) {
	fs := afero.NewMemMapFs()
	pool := NewPool(nil)

	repo := testRepository(t, RepositoryConfig{Remote: "acme/widget", Root: "/dest"}, newFakeSource(fs), fs)
	if err := pool.Add(repo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// same repository under a different remote form is a duplicate
	dup := testRepository(t, RepositoryConfig{Remote: "https://github.com/acme/widget.git", Root: "/dest"}, newFakeSource(fs), fs)
	if err := pool.Add(dup); !errors.Is(err, ErrExist) {
		t.Errorf("Add() error = %v, want ErrExist", err)
	}

	if _, err := pool.Repository("acme/widget"); err != nil {
		t.Errorf("Repository() error = %v", err)
	}
	if _, err := pool.Repository("acme/other"); !errors.Is(err, ErrNotExist) {
		t.Errorf("Repository() error = %v, want ErrNotExist", err)
	}

	paths := pool.RepositoriesDirPath()
	if len(paths) != 1 || paths[0] != "/dest/acme/widget" {
		t.Errorf("RepositoriesDirPath() = %v", paths)
	}
}

func TestPool_SyncAllContinuesPastFailures(t *testing.T) {
	fs := afero.NewMemMapFs()
	pool := NewPool(nil)

	// local working copy paths so no ephemeral git checkout is made
	badSrc := newFakeSource(fs)
	badSrc.listErr = fmt.Errorf("simulated list failure")
	bad := testRepository(t, RepositoryConfig{Remote: "/src/bad", Root: "/dest"}, badSrc, fs)

	goodSrc := newFakeSource(fs, Release{Tag: "v1"})
	good := testRepository(t, RepositoryConfig{Remote: "/src/good", Root: "/dest"}, goodSrc, fs)

	for _, repo := range []*Repository{bad, good} {
		if err := pool.Add(repo); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	// the failing repository must not block the remaining ones but the
	// aggregate error is still reported
	err := pool.SyncAll(context.Background(), time.Minute)
	if err == nil {
		t.Fatalf("expected error from failing repository")
	}
	if len(goodSrc.downloads) != 1 {
		t.Errorf("good repo downloads = %v, want [v1]", goodSrc.downloads)
	}
}

func TestPool_SyncByRemote(t *testing.T) {
	fs := afero.NewMemMapFs()
	pool := NewPool(nil)

	src := newFakeSource(fs, Release{Tag: "v1"})
	repo := testRepository(t, RepositoryConfig{Remote: "/src/widget", Root: "/dest"}, src, fs)
	if err := pool.Add(repo); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if err := pool.Sync(context.Background(), "/src/widget"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(src.downloads) != 1 {
		t.Errorf("downloads = %v, want [v1]", src.downloads)
	}

	if err := pool.Sync(context.Background(), "acme/other"); !errors.Is(err, ErrNotExist) {
		t.Errorf("Sync() error = %v, want ErrNotExist", err)
	}
}

func TestSync_workspaceRemoteCloneFailure(t *testing.T) {
	// a remote ref forces an ephemeral checkout, pointing it at a
	// non-existent repository makes the clone fail fast
	fs := afero.NewMemMapFs()
	src := newFakeSource(fs, Release{Tag: "v1"})

	conf := RepositoryConfig{Remote: "acme/does-not-exist-xxxx", Root: "/dest"}
	repo := testRepository(t, conf, src, fs)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := repo.Sync(ctx); err == nil {
		t.Fatalf("expected error when working context cannot be resolved")
	}
	// nothing was listed or fetched
	if src.listCalls != 0 {
		t.Errorf("listCalls = %d, want 0", src.listCalls)
	}
}
