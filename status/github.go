package status

import (
	"context"
	"fmt"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
)

// GitHubReporter posts commit statuses to a GitHub repository.
type GitHubReporter struct {
	client *github.Client
	owner  string
	repo   string
}

// NewGitHubReporter creates a GitHub status reporter.
// token is a personal access token or GitHub App token.
// owner and repo identify the repository (e.g., "acme", "widgets").
func NewGitHubReporter(token, owner, repo string) (*GitHubReporter, error) {
	if token == "" {
		return nil, fmt.Errorf("GitHub token is required")
	}
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("owner and repo are required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
	tc := oauth2.NewClient(context.Background(), ts)
	client := github.NewClient(tc)

	return &GitHubReporter{
		client: client,
		owner:  owner,
		repo:   repo,
	}, nil
}

// SetBaseURL points the reporter at a GitHub Enterprise instance or a test
// server. url must end with a trailing slash.
func (r *GitHubReporter) SetBaseURL(url string) error {
	parsed, err := r.client.BaseURL.Parse(url)
	if err != nil {
		return fmt.Errorf("parse base URL: %w", err)
	}
	r.client.BaseURL = parsed
	return nil
}

// Report implements Reporter.
func (r *GitHubReporter) Report(ctx context.Context, update Update) error {
	statusContext := update.Context
	if statusContext == "" {
		statusContext = DefaultContext
	}

	// GitHub has no "running" state, pending covers both.
	state := update.State
	if state == StateRunning {
		state = StatePending
	}

	status := &github.RepoStatus{
		State:       github.String(string(state)),
		Description: github.String(update.Description),
		Context:     github.String(statusContext),
	}
	if update.TargetURL != "" {
		status.TargetURL = github.String(update.TargetURL)
	}

	_, _, err := r.client.Repositories.CreateStatus(ctx, r.owner, r.repo, update.Commit, status)
	if err != nil {
		return fmt.Errorf("create commit status: %w", err)
	}

	return nil
}
