// Package config resolves pipeline settings from defaults, an optional
// project file, and CI environment variables, in that order of precedence.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sethvargo/go-envconfig"
	"gopkg.in/yaml.v3"
)

// FileName is the project config file searched for in the project directory.
const FileName = "stagehand.yaml"

// DefaultWorkspaceRoot is where workspaces are created when nothing else
// is configured.
const DefaultWorkspaceRoot = "/tmp"

// Settings is the resolved pipeline configuration.
type Settings struct {
	Job           string `yaml:"job" env:"JOB_NAME"`
	Commit        string `yaml:"commit" env:"GIT_COMMIT"`
	WorkspaceRoot string `yaml:"workspace_root" env:"WORKSPACE_ROOT"`
	ProjectDir    string `yaml:"project_dir" env:"PROJECT_DIR"`

	Python           string   `yaml:"python" env:"PYTHON"`
	RequirementsFile string   `yaml:"requirements_file" env:"REQUIREMENTS_FILE"`
	SetupScript      string   `yaml:"setup_script" env:"SETUP_SCRIPT"`
	TestDir          string   `yaml:"test_dir" env:"TEST_DIR"`
	TestCommand      string   `yaml:"test_command" env:"TEST_COMMAND"`
	TestArgs         []string `yaml:"test_args"`

	History HistorySettings `yaml:"history" env:",prefix=HISTORY_"`
	Status  StatusSettings  `yaml:"status" env:",prefix=STATUS_"`
	Notify  NotifySettings  `yaml:"notify" env:",prefix=NOTIFY_"`
}

// HistorySettings configures the run record store.
type HistorySettings struct {
	Path string `yaml:"path" env:"PATH"`
}

// StatusSettings configures commit status reporting.
type StatusSettings struct {
	Provider  string `yaml:"provider" env:"PROVIDER"` // "github" or "gitlab"
	Token     string `yaml:"-" env:"TOKEN"`
	BaseURL   string `yaml:"base_url" env:"BASE_URL"`
	Owner     string `yaml:"owner" env:"OWNER"`
	Repo      string `yaml:"repo" env:"REPO"`
	ProjectID string `yaml:"project_id" env:"PROJECT_ID"`
	TargetURL string `yaml:"target_url" env:"TARGET_URL"`
}

// NotifySettings configures event delivery.
type NotifySettings struct {
	SlackWebhook string `yaml:"slack_webhook" env:"SLACK_WEBHOOK"`
	SlackChannel string `yaml:"slack_channel" env:"SLACK_CHANNEL"`
	WebhookURL   string `yaml:"webhook_url" env:"WEBHOOK_URL"`
}

// Load resolves settings for a project directory. The project's
// stagehand.yaml is read if present, then environment variables override
// whatever the file set.
func Load(ctx context.Context, projectDir string) (Settings, error) {
	var settings Settings

	path := filepath.Join(projectDir, FileName)
	if err := loadFile(path, &settings); err != nil {
		return Settings{}, err
	}

	if err := envconfig.Process(ctx, &settings); err != nil {
		return Settings{}, fmt.Errorf("process environment: %w", err)
	}

	if settings.ProjectDir == "" {
		settings.ProjectDir = projectDir
	}
	if settings.WorkspaceRoot == "" {
		settings.WorkspaceRoot = DefaultWorkspaceRoot
	}

	return settings, nil
}

// loadFile reads a yaml config file into settings. A missing file is not
// an error.
func loadFile(path string, settings *Settings) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, settings); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// Validate checks that required settings are present.
func (s Settings) Validate() error {
	if s.Job == "" {
		return fmt.Errorf("job is required (set job in %s or JOB_NAME)", FileName)
	}
	if s.Commit == "" {
		return fmt.Errorf("commit is required (set commit in %s or GIT_COMMIT)", FileName)
	}
	return nil
}
