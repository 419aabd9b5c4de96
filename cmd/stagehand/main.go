// Command stagehand runs the provision-test-teardown pipeline for a
// Python project commit.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	"github.com/joho/godotenv"

	"github.com/stagehand-dev/stagehand/config"
	"github.com/stagehand-dev/stagehand/history"
	"github.com/stagehand-dev/stagehand/notify"
	"github.com/stagehand-dev/stagehand/pipeline"
	"github.com/stagehand-dev/stagehand/status"
	"github.com/stagehand-dev/stagehand/workspace"
)

var cli struct {
	Verbose bool   `short:"v" help:"Enable verbose logging"`
	EnvFile string `help:"Env file loaded before reading configuration" default:".env"`

	Run struct {
		Project string `short:"p" help:"Project directory" default:"."`
		Job     string `help:"Job name (overrides config and JOB_NAME)"`
		Commit  string `help:"Commit SHA (overrides config and GIT_COMMIT)"`
		Root    string `help:"Workspace root (overrides config and WORKSPACE_ROOT)"`
		DumpEnv bool   `name:"dump-env" help:"Print the activated environment before each stage"`
	} `cmd:"" help:"Run the pipeline for one commit"`

	Cleanup struct {
		Project string `short:"p" help:"Project directory" default:"."`
		Job     string `help:"Job name (overrides config)"`
		Commit  string `help:"Commit SHA (overrides config)"`
		Root    string `help:"Workspace root (overrides config)"`
	} `cmd:"" help:"Remove a leftover workspace without running the pipeline"`

	History struct {
		Path  string `help:"Run store path (overrides config)"`
		Job   string `help:"Only show runs for this job"`
		Limit int    `help:"Maximum runs to show" default:"20"`
	} `cmd:"" help:"Show recent pipeline runs"`
}

func main() {
	kctx := kong.Parse(&cli)

	logLevel := slog.LevelInfo
	if cli.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(cli.EnvFile); err != nil && !os.IsNotExist(err) {
		slog.Warn("env file not loaded", "path", cli.EnvFile, "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	switch kctx.Command() {
	case "run":
		err = runPipeline(ctx)
	case "cleanup":
		err = runCleanup(ctx)
	case "history":
		err = runHistory(ctx)
	default:
		err = fmt.Errorf("unknown command: %s", kctx.Command())
	}

	if err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func runPipeline(ctx context.Context) error {
	settings, err := loadSettings(ctx, cli.Run.Project, cli.Run.Job, cli.Run.Commit, cli.Run.Root)
	if err != nil {
		return err
	}

	cfg := pipelineConfig(settings)
	cfg.DumpEnv = cli.Run.DumpEnv

	opts := []pipeline.Option{
		pipeline.WithNotifier(buildNotifier(settings.Notify)),
	}

	reporter, err := buildReporter(settings.Status)
	if err != nil {
		return err
	}
	if reporter != nil {
		opts = append(opts, pipeline.WithStatusReporter(reporter))
	}

	if settings.History.Path != "" {
		store, err := history.Open(settings.History.Path)
		if err != nil {
			return fmt.Errorf("open run store: %w", err)
		}
		defer store.Close()
		opts = append(opts, pipeline.WithHistory(store))
	}

	runner := pipeline.NewRunner(cfg, opts...)

	result, err := runner.Run(ctx, settings.Job, settings.Commit, settings.WorkspaceRoot)
	fmt.Fprintln(os.Stdout, result.Summary())
	return err
}

func runCleanup(ctx context.Context) error {
	settings, err := loadSettings(ctx, cli.Cleanup.Project, cli.Cleanup.Job, cli.Cleanup.Commit, cli.Cleanup.Root)
	if err != nil {
		return err
	}

	ws, err := workspace.New(settings.WorkspaceRoot, settings.Job, settings.Commit)
	if err != nil {
		return err
	}

	if !ws.Exists() {
		slog.Info("nothing to clean up", "dir", ws.Dir())
		return nil
	}
	if err := ws.Remove(); err != nil {
		return fmt.Errorf("remove workspace: %w", err)
	}
	slog.Info("workspace removed", "dir", ws.Dir())
	return nil
}

func runHistory(ctx context.Context) error {
	path := cli.History.Path
	if path == "" {
		settings, err := config.Load(ctx, ".")
		if err != nil {
			return err
		}
		path = settings.History.Path
	}
	if path == "" {
		return fmt.Errorf("no run store configured (set history.path or --path)")
	}

	store, err := history.Open(path)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer store.Close()

	var runs []history.Run
	if cli.History.Job != "" {
		runs, err = store.ListByJob(ctx, cli.History.Job, cli.History.Limit)
	} else {
		runs, err = store.ListRecent(ctx, cli.History.Limit)
	}
	if err != nil {
		return err
	}

	for _, run := range runs {
		fmt.Printf("%-40s %-8s %s@%s %s (%v)\n",
			run.RunID, run.Status, run.Job, run.Commit,
			run.StartedAt.Format("2006-01-02 15:04:05"), run.Duration)
	}
	return nil
}

// loadSettings resolves settings for a project and applies CLI overrides.
func loadSettings(ctx context.Context, project, job, commit, root string) (config.Settings, error) {
	settings, err := config.Load(ctx, project)
	if err != nil {
		return config.Settings{}, err
	}

	if job != "" {
		settings.Job = job
	}
	if commit != "" {
		settings.Commit = commit
	}
	if root != "" {
		settings.WorkspaceRoot = root
	}

	if err := settings.Validate(); err != nil {
		return config.Settings{}, err
	}
	return settings, nil
}

func pipelineConfig(settings config.Settings) pipeline.Config {
	cfg := pipeline.DefaultConfig(settings.ProjectDir)
	if settings.Python != "" {
		cfg.Python = settings.Python
	}
	if settings.RequirementsFile != "" {
		cfg.RequirementsFile = settings.RequirementsFile
	}
	if settings.SetupScript != "" {
		cfg.SetupScript = settings.SetupScript
	}
	if settings.TestDir != "" {
		cfg.TestDir = settings.TestDir
	}
	if settings.TestCommand != "" {
		cfg.TestCommand = settings.TestCommand
	}
	if settings.TestArgs != nil {
		cfg.TestArgs = settings.TestArgs
	}
	cfg.Output = os.Stdout
	return cfg
}

// buildNotifier assembles the notifier stack from settings. The log
// notifier is always present; Slack and webhooks are added when configured.
func buildNotifier(settings config.NotifySettings) notify.Notifier {
	notifiers := []notify.Notifier{notify.NewLogNotifier(slog.Default())}

	if settings.SlackWebhook != "" {
		var slackOpts []notify.SlackOption
		if settings.SlackChannel != "" {
			slackOpts = append(slackOpts, notify.WithSlackChannel(settings.SlackChannel))
		}
		notifiers = append(notifiers, notify.NewSlackNotifier(settings.SlackWebhook, slackOpts...))
	}
	if settings.WebhookURL != "" {
		notifiers = append(notifiers, notify.NewWebhookNotifier(settings.WebhookURL, nil))
	}

	if len(notifiers) == 1 {
		return notifiers[0]
	}
	return notify.NewMultiNotifier(notifiers...)
}

// buildReporter creates the commit status reporter from settings, or nil
// when status reporting is not configured.
func buildReporter(settings config.StatusSettings) (status.Reporter, error) {
	var reporter status.Reporter
	var err error

	switch settings.Provider {
	case "":
		return nil, nil
	case "github":
		reporter, err = status.NewGitHubReporter(settings.Token, settings.Owner, settings.Repo)
	case "gitlab":
		reporter, err = status.NewGitLabReporter(settings.Token, settings.BaseURL, settings.ProjectID)
	default:
		return nil, fmt.Errorf("unknown status provider: %s", settings.Provider)
	}
	if err != nil {
		return nil, err
	}

	if settings.TargetURL != "" {
		reporter = targetURLReporter{Reporter: reporter, targetURL: settings.TargetURL}
	}
	return status.NewRetryReporter(reporter, 3), nil
}

// targetURLReporter fills in the configured details link on every update.
type targetURLReporter struct {
	status.Reporter
	targetURL string
}

func (r targetURLReporter) Report(ctx context.Context, update status.Update) error {
	if update.TargetURL == "" {
		update.TargetURL = r.targetURL
	}
	return r.Reporter.Report(ctx, update)
}
