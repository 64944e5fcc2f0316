// Package gitlocal implements the gitprovider.Provider interface using local git CLI commands.
// It resolves code deployments (§2.3): given a job's RepoURL and Ref, it
// clones/checks out the commit an agent's workspace should run from.
package gitlocal

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/Strob0t/CodeForge/internal/git"
	"github.com/Strob0t/CodeForge/internal/port/gitprovider"
)

const providerName = "local"

// Provider interacts with local git repositories via the git CLI.
type Provider struct {
	pool *git.Pool
}

// NewProvider creates a Provider that limits concurrent git operations via pool.
func NewProvider(pool *git.Pool) *Provider {
	return &Provider{pool: pool}
}

// Name returns "local".
func (p *Provider) Name() string { return providerName }

// Capabilities returns what the local git provider supports.
func (p *Provider) Capabilities() gitprovider.Capabilities {
	return gitprovider.Capabilities{
		Clone: true,
	}
}

// CloneURL returns the URL as-is for local git operations.
func (p *Provider) CloneURL(_ context.Context, repo string) (string, error) {
	return repo, nil
}

// ListRepos is not supported for the local provider.
func (p *Provider) ListRepos(_ context.Context) ([]string, error) {
	return nil, fmt.Errorf("gitlocal: ListRepos not supported")
}

// Clone clones a repository to the given local path. If destPath already
// holds a git checkout, Clone leaves it in place and returns nil.
func (p *Provider) Clone(ctx context.Context, url, destPath string) error {
	absPath, err := filepath.Abs(destPath)
	if err != nil {
		return fmt.Errorf("gitlocal: resolve path: %w", err)
	}

	return p.pool.Run(ctx, func() error {
		if _, statErr := os.Stat(filepath.Join(absPath, ".git")); statErr == nil {
			return nil
		}
		if _, execErr := runGit(ctx, "", "clone", url, absPath); execErr != nil {
			return fmt.Errorf("gitlocal: clone: %w", execErr)
		}
		return nil
	})
}

// ResolveCommit resolves ref against repoURL using ls-remote, so resolution
// does not require an existing local checkout.
func (p *Provider) ResolveCommit(ctx context.Context, repoURL, ref string) (string, error) {
	var sha string
	err := p.pool.Run(ctx, func() error {
		out, err := runGit(ctx, "", "ls-remote", repoURL, ref)
		if err != nil {
			return fmt.Errorf("gitlocal: ls-remote %s@%s: %w", repoURL, ref, err)
		}
		fields := strings.Fields(strings.SplitN(out, "\n", 2)[0])
		if len(fields) == 0 {
			return fmt.Errorf("gitlocal: ref %q not found on %s", ref, repoURL)
		}
		sha = fields[0]
		return nil
	})
	return sha, err
}

// Checkout pins a local clone to the given commit (or branch/tag), fetching
// first so commits not present at clone time are reachable.
func (p *Provider) Checkout(ctx context.Context, repoPath, commitish string) error {
	return p.pool.Run(ctx, func() error {
		if _, err := runGit(ctx, repoPath, "fetch", "--all"); err != nil {
			return fmt.Errorf("gitlocal: fetch: %w", err)
		}
		if _, err := runGit(ctx, repoPath, "checkout", commitish); err != nil {
			return fmt.Errorf("gitlocal: checkout %s: %w", commitish, err)
		}
		return nil
	})
}

// HeadCommit returns the current commit hash of a local checkout.
func (p *Provider) HeadCommit(ctx context.Context, repoPath string) (string, error) {
	var sha string
	err := p.pool.Run(ctx, func() error {
		out, err := runGit(ctx, repoPath, "rev-parse", "HEAD")
		if err != nil {
			return fmt.Errorf("gitlocal: rev-parse HEAD: %w", err)
		}
		sha = strings.TrimSpace(out)
		return nil
	})
	return sha, err
}

// runGit executes a git command and returns its stdout; on failure the
// error carries the trimmed stderr.
func runGit(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	if dir != "" {
		cmd.Dir = dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("%s: %w", strings.TrimSpace(stderr.String()), err)
	}
	return stdout.String(), nil
}
