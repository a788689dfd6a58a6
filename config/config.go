// Package config loads the runner configuration file and the environment
// driven run policy.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// DefaultResultsDirName is created next to the config file when no
	// results directory is configured.
	DefaultResultsDirName = "__assets__"
	// DefaultRegion of the reporting service.
	DefaultRegion = "us-west-1"
	// DefaultBrowser is used when neither the environment nor the suite
	// names one.
	DefaultBrowser = "chrome"
	// DefaultTimeout bounds one framework execution.
	DefaultTimeout = 30 * time.Minute
	// DefaultPreExecTimeout bounds each pre-exec command.
	DefaultPreExecTimeout = 5 * time.Minute
)

// Config represents the runner configuration for one project. Both YAML and
// JSON files are accepted.
type Config struct {
	Sauce      Sauce     `yaml:"sauce"`
	Framework  Framework `yaml:"cypress"`
	Suites     []Suite   `yaml:"suites"`
	Artifacts  Artifacts `yaml:"artifacts"`
	ResultsDir string    `yaml:"resultsDir"`

	// Path of the file the config was loaded from.
	Path string `yaml:"-"`
}

// Sauce holds the reporting service settings.
type Sauce struct {
	Region   string   `yaml:"region"`
	Metadata Metadata `yaml:"metadata"`
}

// Metadata is attached to the remote job.
type Metadata struct {
	Tags  []string `yaml:"tags"`
	Build string   `yaml:"build"`
}

// Framework describes how to invoke the test framework.
type Framework struct {
	// Command is the executable and its leading arguments, e.g.
	// ["npx", "cypress", "run"].
	Command    []string `yaml:"command"`
	ConfigFile string   `yaml:"configFile"`
	Version    string   `yaml:"version"`

	// Record and Key forward the run to the framework's own dashboard.
	// Recording needs both.
	Record bool   `yaml:"record"`
	Key    string `yaml:"key"`

	// Reporters are enabled next to the built-in spec reporter.
	Reporters []Reporter `yaml:"reporters"`
}

// Reporter is an additional framework reporter.
type Reporter struct {
	Name    string         `yaml:"name"`
	Options map[string]any `yaml:"options"`
}

// Artifacts configures what is kept after a run.
type Artifacts struct {
	// Retain maps a glob, relative to the project directory, to the name of
	// the zip archive that receives the matching files in the results
	// directory.
	Retain map[string]string `yaml:"retain"`
}

// Suite is a named group of specs run together.
type Suite struct {
	Name     string      `yaml:"name"`
	Browser  string      `yaml:"browser"`
	Headless bool        `yaml:"headless"`
	PreExec  []string    `yaml:"preExec"`
	Env      Env         `yaml:"env"`
	Config   SuiteConfig `yaml:"config"`
	// Timeout in nanoseconds, as written by saucectl.
	Timeout int64 `yaml:"timeout"`
}

// SuiteConfig holds the framework specific suite settings.
type SuiteConfig struct {
	TestingType        string   `yaml:"testingType"`
	SpecPattern        []string `yaml:"specPattern"`
	ExcludeSpecPattern []string `yaml:"excludeSpecPattern"`
	Headless           bool     `yaml:"headless"`
	Env                Env      `yaml:"env"`
}

// Env is a set of environment variables.
type Env map[string]string

// DefaultCommand invokes the framework when the config names none.
func DefaultCommand() []string {
	return []string{"npx", "cypress", "run"}
}

// Load loads the runner configuration from path.
func Load(path string) (*Config, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	data, err := os.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = absPath

	if cfg.ResultsDir == "" {
		cfg.ResultsDir = filepath.Join(filepath.Dir(absPath), DefaultResultsDirName)
	} else if !filepath.IsAbs(cfg.ResultsDir) {
		cfg.ResultsDir = filepath.Join(filepath.Dir(absPath), cfg.ResultsDir)
	}

	return cfg, nil
}

// Parse parses a runner configuration and applies defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if cfg.Sauce.Region == "" {
		cfg.Sauce.Region = DefaultRegion
	}
	if len(cfg.Framework.Command) == 0 {
		cfg.Framework.Command = DefaultCommand()
	}

	return cfg, nil
}

// Suite returns the suite with the given name.
func (cfg *Config) Suite(name string) (*Suite, error) {
	names := make([]string, 0, len(cfg.Suites))
	for i := range cfg.Suites {
		if cfg.Suites[i].Name == name {
			return &cfg.Suites[i], nil
		}
		names = append(names, fmt.Sprintf("%q", cfg.Suites[i].Name))
	}
	return nil, fmt.Errorf("could not find suite named %q; available suites=[%s]", name, strings.Join(names, ","))
}

// ProjectDir returns the directory the config file lives in.
func (cfg *Config) ProjectDir() string {
	return filepath.Dir(cfg.Path)
}

// SuiteTimeout returns the suite's execution timeout, or fallback if the
// suite sets none.
func (s *Suite) SuiteTimeout(fallback time.Duration) time.Duration {
	if s.Timeout > 0 {
		return time.Duration(s.Timeout)
	}
	return fallback
}

// IsHeadless reports whether the suite runs headless. The nested config
// field is honored for older configs.
func (s *Suite) IsHeadless() bool {
	return s.Headless || s.Config.Headless
}

// TestingType returns the configured testing type, e2e by default.
func (s *Suite) TestingType() string {
	if s.Config.TestingType == "" {
		return "e2e"
	}
	return s.Config.TestingType
}

// MergedEnv returns the suite env overlaid with the suite config env.
func (s *Suite) MergedEnv() Env {
	env := Env{}
	for k, v := range s.Env {
		env[k] = v
	}
	for k, v := range s.Config.Env {
		env[k] = v
	}
	return env
}

// ResolveBrowser picks the browser for a suite: the SAUCE_BROWSER override,
// then the suite setting, then chrome. Webkit is bundled with the runner, so
// a webkit suite ignores the override.
func ResolveBrowser(envBrowser string, suite *Suite) string {
	if strings.Contains(strings.ToLower(suite.Browser), "webkit") {
		return "webkit"
	}
	if envBrowser != "" {
		return envBrowser
	}
	if suite.Browser != "" {
		return suite.Browser
	}
	return DefaultBrowser
}

// RunPolicy carries the environment driven switches of a run. It is
// populated once at process start and passed to the components that need it.
type RunPolicy struct {
	// RecordVideo is true when the framework records videos. A missing
	// video is only worth a warning when it is.
	RecordVideo bool
	// HostOS is the operating system the process runs on.
	HostOS string
	// ConsoleLog is the console log file included with the assets.
	ConsoleLog string
}

// PolicyFromEnv builds the RunPolicy from the process environment.
func PolicyFromEnv() RunPolicy {
	return RunPolicy{
		RecordVideo: ShouldRecordVideo(os.Getenv("SAUCE_CYPRESS_VIDEO_RECORDING")),
		HostOS:      runtime.GOOS,
		ConsoleLog:  "console.log",
	}
}

// ShouldRecordVideo interprets SAUCE_CYPRESS_VIDEO_RECORDING. Recording is on
// unless the variable is set to something other than "true".
func ShouldRecordVideo(value string) bool {
	if value == "" {
		return true
	}
	return strings.EqualFold(value, "true")
}
