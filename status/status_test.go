package status

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xanzy/go-gitlab"
)

func TestNewGitHubReporter(t *testing.T) {
	t.Run("requires token", func(t *testing.T) {
		if _, err := NewGitHubReporter("", "acme", "widgets"); err == nil {
			t.Error("expected error for empty token")
		}
	})

	t.Run("requires owner and repo", func(t *testing.T) {
		if _, err := NewGitHubReporter("tok", "", "widgets"); err == nil {
			t.Error("expected error for empty owner")
		}
		if _, err := NewGitHubReporter("tok", "acme", ""); err == nil {
			t.Error("expected error for empty repo")
		}
	})
}

func TestGitHubReporter_Report(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 1}`))
	}))
	defer server.Close()

	reporter, err := NewGitHubReporter("tok", "acme", "widgets")
	if err != nil {
		t.Fatalf("NewGitHubReporter() error = %v", err)
	}
	if err := reporter.SetBaseURL(server.URL + "/"); err != nil {
		t.Fatalf("SetBaseURL() error = %v", err)
	}

	update := Update{
		Commit:      "abc123",
		State:       StateSuccess,
		Description: "all tests passed",
		TargetURL:   "https://ci.example.com/runs/1",
	}
	if err := reporter.Report(context.Background(), update); err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	if !strings.Contains(gotPath, "/repos/acme/widgets/statuses/abc123") {
		t.Errorf("path = %q, want statuses path", gotPath)
	}
	if gotBody["state"] != "success" {
		t.Errorf("state = %v, want success", gotBody["state"])
	}
	if gotBody["context"] != DefaultContext {
		t.Errorf("context = %v, want %q", gotBody["context"], DefaultContext)
	}
	if gotBody["target_url"] != update.TargetURL {
		t.Errorf("target_url = %v, want %q", gotBody["target_url"], update.TargetURL)
	}
}

func TestGitHubReporter_RunningMapsToPending(t *testing.T) {
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id": 1}`))
	}))
	defer server.Close()

	reporter, _ := NewGitHubReporter("tok", "acme", "widgets")
	reporter.SetBaseURL(server.URL + "/")

	reporter.Report(context.Background(), Update{Commit: "abc123", State: StateRunning})
	if gotBody["state"] != "pending" {
		t.Errorf("state = %v, want pending", gotBody["state"])
	}
}

func TestNewGitLabReporter(t *testing.T) {
	t.Run("requires token", func(t *testing.T) {
		if _, err := NewGitLabReporter("", "", "group/project"); err == nil {
			t.Error("expected error for empty token")
		}
	})

	t.Run("requires project ID", func(t *testing.T) {
		if _, err := NewGitLabReporter("tok", "", ""); err == nil {
			t.Error("expected error for empty project ID")
		}
	})
}

func TestGitLabReporter_Report(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": 1, "status": "success"}`))
	}))
	defer server.Close()

	reporter, err := NewGitLabReporter("tok", server.URL, "group/project")
	if err != nil {
		t.Fatalf("NewGitLabReporter() error = %v", err)
	}

	update := Update{
		Commit:      "abc123",
		State:       StateSuccess,
		Description: "all tests passed",
	}
	if err := reporter.Report(context.Background(), update); err != nil {
		t.Fatalf("Report() error = %v", err)
	}

	if !strings.Contains(gotPath, "/statuses/abc123") {
		t.Errorf("path = %q, want statuses path", gotPath)
	}
	if gotBody["state"] != "success" {
		t.Errorf("state = %v, want success", gotBody["state"])
	}
	if gotBody["context"] != DefaultContext {
		t.Errorf("context = %v, want %q", gotBody["context"], DefaultContext)
	}
}

func TestGitlabState(t *testing.T) {
	tests := []struct {
		in   State
		want gitlab.BuildStateValue
	}{
		{StatePending, gitlab.Pending},
		{StateRunning, gitlab.Running},
		{StateSuccess, gitlab.Success},
		{StateFailure, gitlab.Failed},
		{StateError, gitlab.Failed},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			if got := gitlabState(tt.in); got != tt.want {
				t.Errorf("gitlabState(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

type flakyReporter struct {
	failures int
	calls    int
}

func (f *flakyReporter) Report(ctx context.Context, update Update) error {
	f.calls++
	if f.calls <= f.failures {
		return errors.New("transient error")
	}
	return nil
}

func TestRetryReporter(t *testing.T) {
	t.Run("retries transient failures", func(t *testing.T) {
		flaky := &flakyReporter{failures: 2}
		r := NewRetryReporter(flaky, 3)
		r.Delay = time.Millisecond

		if err := r.Report(context.Background(), Update{Commit: "abc123"}); err != nil {
			t.Fatalf("Report() error = %v", err)
		}
		if flaky.calls != 3 {
			t.Errorf("calls = %d, want 3", flaky.calls)
		}
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		flaky := &flakyReporter{failures: 10}
		r := NewRetryReporter(flaky, 2)
		r.Delay = time.Millisecond

		if err := r.Report(context.Background(), Update{Commit: "abc123"}); err == nil {
			t.Error("expected error after exhausting retries")
		}
		if flaky.calls != 2 {
			t.Errorf("calls = %d, want 2", flaky.calls)
		}
	})
}

func TestNopReporter(t *testing.T) {
	if err := (NopReporter{}).Report(context.Background(), Update{Commit: "abc123"}); err != nil {
		t.Errorf("Report() error = %v", err)
	}
}
