package mirror

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utilitywarehouse/release-mirror/internal/lock"
)

var (
	ErrExist    = errors.New("repo already exist")
	ErrNotExist = errors.New("repo does not exist")
)

// Pool represents the collection of mirrored repositories. It provides a
// simple wrapper around Repository methods and syncs its repositories one
// at a time, in the order they were added.
// A Pool is safe for concurrent use by multiple goroutines.
type Pool struct {
	lock  lock.RWMutex
	log   *slog.Logger
	repos []*Repository
}

// NewPool creates an empty repository pool.
func NewPool(log *slog.Logger) *Pool {
	if log == nil {
		log = slog.Default()
	}
	return &Pool{log: log}
}

// Add adds the given repository to the pool.
func (p *Pool) Add(repo *Repository) error {
	if existing, _ := p.Repository(repo.Remote()); existing != nil {
		return ErrExist
	}

	p.lock.Lock()
	defer p.lock.Unlock()

	p.repos = append(p.repos, repo)
	return nil
}

// Repository returns the repository matching the given remote reference.
func (p *Pool) Repository(remote string) (*Repository, error) {
	ref, err := ParseRemote(remote)
	if err != nil {
		return nil, err
	}

	p.lock.RLock()
	defer p.lock.RUnlock()

	for _, repo := range p.repos {
		if repo.ref.Slug() == ref.Slug() {
			return repo, nil
		}
	}
	return nil, ErrNotExist
}

// RepositoriesDirPath returns local release tree paths of all the
// repositories in the pool.
func (p *Pool) RepositoriesDirPath() []string {
	p.lock.RLock()
	defer p.lock.RUnlock()

	var paths []string
	for _, repo := range p.repos {
		paths = append(paths, repo.Directory())
	}
	return paths
}

// Sync is a wrapper around the matching repository's Sync method.
func (p *Pool) Sync(ctx context.Context, remote string) error {
	repo, err := p.Repository(remote)
	if err != nil {
		return err
	}
	return repo.Sync(ctx)
}

// SyncAll syncs every repository in the pool in the foreground, one after
// another, each with the given timeout. Failures are collected so one
// broken repository does not block the remaining ones; the aggregated
// error is returned once all repositories have been processed.
func (p *Pool) SyncAll(ctx context.Context, timeout time.Duration) error {
	p.lock.RLock()
	defer p.lock.RUnlock()

	var errs []error
	for _, repo := range p.repos {
		sCtx, cancel := context.WithTimeout(ctx, timeout)
		err := repo.Sync(sCtx)
		cancel()
		if err != nil {
			p.log.Error("repository sync failed", "remote", repo.Remote(), "err", err)
			errs = append(errs, fmt.Errorf("repo:%s err:%w", repo.Remote(), err))
		}

		if ctx.Err() != nil {
			break
		}
	}

	return errors.Join(errs...)
}
