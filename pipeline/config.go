package pipeline

import "io"

// Default command and layout settings matching a conventional Python project.
const (
	DefaultPython           = "python3"
	DefaultRequirementsFile = "requirements.txt"
	DefaultSetupScript      = "setup.py"
	DefaultTestDir          = "test"
	DefaultTestCommand      = "pytest"
	DefaultVenvName         = "venv"
)

// Config configures pipeline behavior for one project.
type Config struct {
	ProjectDir       string   // Project checkout the pipeline builds and tests (required)
	Python           string   // Interpreter used to create the virtualenv (default: "python3")
	RequirementsFile string   // Dependency manifest at the project root (default: "requirements.txt")
	SetupScript      string   // Build descriptor at the project root (default: "setup.py")
	InstallArgs      []string // Arguments to the build descriptor (default: "install --no-data")
	TestDir          string   // Test directory relative to the project root (default: "test")
	TestCommand      string   // Test runner binary resolved in the venv (default: "pytest")
	TestArgs         []string // Test runner arguments (default: "-s" for streamed output)
	VenvName         string   // Virtualenv directory name inside the workspace (default: "venv")

	// DumpEnv prints the activated environment before each stage. Disabled
	// by default: the process environment can carry credentials.
	DumpEnv bool

	Output io.Writer // Destination for stage banners and streamed test output
}

// DefaultConfig returns a Config with conventional defaults for the project.
func DefaultConfig(projectDir string) Config {
	return Config{
		ProjectDir:       projectDir,
		Python:           DefaultPython,
		RequirementsFile: DefaultRequirementsFile,
		SetupScript:      DefaultSetupScript,
		InstallArgs:      []string{"install", "--no-data"},
		TestDir:          DefaultTestDir,
		TestCommand:      DefaultTestCommand,
		TestArgs:         []string{"-s"},
		VenvName:         DefaultVenvName,
	}
}

// withDefaults fills zero-value fields so a partially specified Config
// behaves like DefaultConfig.
func (c Config) withDefaults() Config {
	if c.Python == "" {
		c.Python = DefaultPython
	}
	if c.RequirementsFile == "" {
		c.RequirementsFile = DefaultRequirementsFile
	}
	if c.SetupScript == "" {
		c.SetupScript = DefaultSetupScript
	}
	if c.InstallArgs == nil {
		c.InstallArgs = []string{"install", "--no-data"}
	}
	if c.TestDir == "" {
		c.TestDir = DefaultTestDir
	}
	if c.TestCommand == "" {
		c.TestCommand = DefaultTestCommand
	}
	if c.TestArgs == nil {
		c.TestArgs = []string{"-s"}
	}
	if c.VenvName == "" {
		c.VenvName = DefaultVenvName
	}
	return c
}
