// Package gitprovider defines the Git provider port (interface) and capabilities.
package gitprovider

import "context"

// Capabilities declares which operations a git provider supports.
type Capabilities struct {
	Clone       bool `json:"clone"`
	Push        bool `json:"push"`
	PullRequest bool `json:"pull_request"`
	Webhook     bool `json:"webhook"`
	Issues      bool `json:"issues"`
}

// Provider is the port interface for interacting with a Git hosting platform.
type Provider interface {
	// Name returns the unique identifier for this provider (e.g. "github", "gitlab").
	Name() string

	// Capabilities returns what this provider supports.
	Capabilities() Capabilities

	// CloneURL returns the clone URL for a given repository identifier.
	CloneURL(ctx context.Context, repo string) (string, error)

	// ListRepos returns a list of repository identifiers accessible to the user.
	ListRepos(ctx context.Context) ([]string, error)

	// ResolveCommit resolves a ref (branch, tag, or commit-ish) on repoURL to
	// the commit SHA a code deployment should pin to. Used when a job's
	// CodeDeployment names a Ref instead of a Commit (§2.3).
	ResolveCommit(ctx context.Context, repoURL, ref string) (string, error)

	// Clone clones repoURL into destPath.
	Clone(ctx context.Context, repoURL, destPath string) error

	// Checkout fetches and checks out commitish in the local checkout at
	// repoPath, so an agent's workspace lands on the commit resolved at
	// add_job time.
	Checkout(ctx context.Context, repoPath, commitish string) error
}
