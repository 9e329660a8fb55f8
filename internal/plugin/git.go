// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Eva Contributors

package plugin

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// Fetcher acquires plugin sources from a remote.
type Fetcher interface {
	// Fetch places the plugin described by entry in dest.
	Fetch(ctx context.Context, entry CatalogEntry, dest string) error
	// Update brings an existing checkout up to date.
	Update(ctx context.Context, dir string) error
}

// GitFetcher clones and pulls git repositories, retrying transient failures
// with exponential backoff.
type GitFetcher struct {
	retries uint64
	base    time.Duration
}

// GitOption configures a GitFetcher.
type GitOption func(*GitFetcher)

// WithRetries sets the number of retries and the initial backoff.
func WithRetries(n uint64, base time.Duration) GitOption {
	return func(g *GitFetcher) {
		g.retries = n
		g.base = base
	}
}

// NewGitFetcher creates a fetcher that retries three times starting at
// 500ms.
func NewGitFetcher(opts ...GitOption) *GitFetcher {
	g := &GitFetcher{retries: 3, base: 500 * time.Millisecond}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GitFetcher) backoff() retry.Backoff {
	return retry.WithMaxRetries(g.retries, retry.NewExponential(g.base))
}

// Fetch implements Fetcher by cloning entry.URL into dest. Anything already
// at dest is removed first.
func (g *GitFetcher) Fetch(ctx context.Context, entry CatalogEntry, dest string) error {
	if entry.URL == "" {
		return oops.In("git").With("plugin", entry.ID).Errorf("catalog entry has no URL")
	}
	return g.Clone(ctx, entry.URL, dest)
}

// Clone clones url into dest.
func (g *GitFetcher) Clone(ctx context.Context, url, dest string) error {
	if err := os.RemoveAll(dest); err != nil {
		return oops.In("git").With("dest", dest).Wrapf(err, "clear clone destination")
	}

	attempt := 0
	err := retry.Do(ctx, g.backoff(), func(ctx context.Context) error {
		attempt++
		_, err := git.PlainCloneContext(ctx, dest, false, &git.CloneOptions{URL: url})
		if err == nil {
			return nil
		}
		_ = os.RemoveAll(dest)
		slog.Debug("git clone failed", "url", url, "attempt", attempt, "error", err)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return oops.In("git").With("url", url).With("attempts", attempt).Wrapf(err, "clone repository")
	}
	slog.Info("cloned repository", "url", url, "dest", dest)
	return nil
}

// Update implements Fetcher with a pull of the checked out branch.
func (g *GitFetcher) Update(ctx context.Context, dir string) error {
	repo, err := git.PlainOpen(dir)
	if err != nil {
		return oops.In("git").With("dir", dir).Wrapf(err, "open repository")
	}
	wt, err := repo.Worktree()
	if err != nil {
		return oops.In("git").With("dir", dir).Wrapf(err, "open worktree")
	}

	err = retry.Do(ctx, g.backoff(), func(ctx context.Context) error {
		err := wt.PullContext(ctx, &git.PullOptions{RemoteName: git.DefaultRemoteName})
		if err == nil || errors.Is(err, git.NoErrAlreadyUpToDate) {
			return nil
		}
		if errors.Is(err, git.ErrNonFastForwardUpdate) {
			return err
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return oops.In("git").With("dir", dir).Wrapf(err, "pull repository")
	}
	return nil
}
