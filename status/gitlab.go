package status

import (
	"context"
	"fmt"

	"github.com/xanzy/go-gitlab"
)

// GitLabReporter posts commit statuses to a GitLab project.
type GitLabReporter struct {
	client    *gitlab.Client
	projectID string // Numeric ID or "namespace/project"
}

// NewGitLabReporter creates a GitLab status reporter.
// token is a personal access token.
// baseURL is the GitLab instance URL (empty for gitlab.com).
// projectID can be a numeric ID or "namespace/project" path.
func NewGitLabReporter(token, baseURL, projectID string) (*GitLabReporter, error) {
	if token == "" {
		return nil, fmt.Errorf("GitLab token is required")
	}
	if projectID == "" {
		return nil, fmt.Errorf("project ID is required")
	}

	var client *gitlab.Client
	var err error

	if baseURL != "" {
		client, err = gitlab.NewClient(token, gitlab.WithBaseURL(baseURL))
	} else {
		client, err = gitlab.NewClient(token)
	}

	if err != nil {
		return nil, fmt.Errorf("create GitLab client: %w", err)
	}

	return &GitLabReporter{
		client:    client,
		projectID: projectID,
	}, nil
}

// Report implements Reporter.
func (r *GitLabReporter) Report(ctx context.Context, update Update) error {
	statusContext := update.Context
	if statusContext == "" {
		statusContext = DefaultContext
	}

	opts := &gitlab.SetCommitStatusOptions{
		State:       gitlabState(update.State),
		Description: gitlab.Ptr(update.Description),
		Context:     gitlab.Ptr(statusContext),
	}
	if update.TargetURL != "" {
		opts.TargetURL = gitlab.Ptr(update.TargetURL)
	}

	_, _, err := r.client.Commits.SetCommitStatus(r.projectID, update.Commit, opts, gitlab.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("set commit status: %w", err)
	}

	return nil
}

// gitlabState maps shared states onto GitLab build states.
func gitlabState(state State) gitlab.BuildStateValue {
	switch state {
	case StatePending:
		return gitlab.Pending
	case StateRunning:
		return gitlab.Running
	case StateSuccess:
		return gitlab.Success
	case StateError:
		return gitlab.Failed
	default:
		return gitlab.Failed
	}
}
