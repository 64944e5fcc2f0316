package agentloop

import (
	"context"
	"fmt"
	"net/url"
	"path/filepath"

	"github.com/Strob0t/CodeForge/internal/domain/credential"
	"github.com/Strob0t/CodeForge/internal/domain/job"
)

// resolveCode returns the working directory an agent should launch from for
// jtr's code deployment, cloning and checking out a git repo when needed.
func (l *Loop) resolveCode(ctx context.Context, jobID string, dep job.CodeDeployment, cred *credential.Resolved) (string, error) {
	switch dep.Kind {
	case job.CodeServerAvailableFolder:
		return dep.Paths[0], nil

	case job.CodeGitRepoCommit, job.CodeGitRepoBranch:
		if l.git == nil {
			return "", fmt.Errorf("agentloop: job %s requires git but no git provider is configured", jobID)
		}
		dest := filepath.Join(l.cfg.WorkDir, jobID, "code")
		cloneURL := withCredentials(dep.RepoURL, cred)

		if err := l.git.Clone(ctx, cloneURL, dest); err != nil {
			return "", fmt.Errorf("agentloop: clone %s: %w", dep.RepoURL, err)
		}
		commitish := dep.Commit
		if commitish == "" {
			commitish = dep.Ref
		}
		if err := l.git.Checkout(ctx, dest, commitish); err != nil {
			return "", fmt.Errorf("agentloop: checkout %s@%s: %w", dep.RepoURL, commitish, err)
		}
		if dep.Subpath != "" {
			dest = filepath.Join(dest, dep.Subpath)
		}
		return dest, nil

	default:
		return "", fmt.Errorf("agentloop: unsupported code deployment kind %q", dep.Kind)
	}
}

// withCredentials embeds a USERNAME_PASSWORD credential into an https URL's
// userinfo. SSH_KEY credentials are left to the host's own SSH agent/config,
// since gitprovider.Provider has no per-call SSH transport knob.
func withCredentials(repoURL string, cred *credential.Resolved) string {
	if cred == nil || cred.Kind != credential.KindUsernamePassword {
		return repoURL
	}
	u, err := url.Parse(repoURL)
	if err != nil {
		return repoURL
	}
	u.User = url.UserPassword(cred.Username, string(cred.Password))
	return u.String()
}
