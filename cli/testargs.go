package cli

// This file contains argument and environment processing for invoking the
// test framework.

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"al.essio.dev/pkg/shellescape"

	"github.com/cyreport/cyreport/config"
)

// syncWebAssetsEnv makes the framework keep its own output folders, which
// are then synced by the web assets integration.
const syncWebAssetsEnv = "SAUCE_SYNC_WEB_ASSETS"

const (
	// ReporterConfigName is written to the results directory when extra
	// reporters are configured.
	ReporterConfigName = "sauce-reporter-config.json"
	// multiReporter fans the run out to several reporters, since the
	// framework supports only one.
	multiReporter = "cypress-multi-reporters"
)

// FrameworkOptions holds everything needed to invoke the framework for one
// suite.
type FrameworkOptions struct {
	Command     []string
	ProjectDir  string
	ConfigFile  string
	Browser     string
	Headless    bool
	TestingType string

	SpecPattern        []string
	ExcludeSpecPattern []string

	// OutputDir receives videos and screenshots. Empty leaves the framework
	// defaults in place.
	OutputDir   string
	RecordVideo bool
	Env         config.Env

	// Record and Key forward the run to the framework's dashboard.
	Record bool
	Key    string
	// ReporterConfig is the multi reporter config file. Empty keeps the
	// framework's reporter.
	ReporterConfig string
}

func syncWebAssets(suite *config.Suite) bool {
	return strings.EqualFold(suite.Config.Env[syncWebAssetsEnv], "true")
}

// frameworkOptions derives the framework invocation of suite.
func frameworkOptions(cfg *config.Config, suite *config.Suite, browser string, policy config.RunPolicy) (FrameworkOptions, error) {
	configFile := filepath.Join(cfg.ProjectDir(), cfg.Framework.ConfigFile)
	if cfg.Framework.ConfigFile == "" {
		return FrameworkOptions{}, fmt.Errorf("no cypress config file configured in %s", cfg.Path)
	}
	if _, err := os.Stat(configFile); err != nil {
		return FrameworkOptions{}, fmt.Errorf("unable to locate the cypress config file, looked for %q: %w", configFile, err)
	}

	opts := FrameworkOptions{
		Command:            cfg.Framework.Command,
		ProjectDir:         filepath.Dir(configFile),
		ConfigFile:         filepath.Base(configFile),
		Browser:            browser,
		Headless:           suite.IsHeadless(),
		TestingType:        suite.TestingType(),
		SpecPattern:        suite.Config.SpecPattern,
		ExcludeSpecPattern: suite.Config.ExcludeSpecPattern,
		RecordVideo:        policy.RecordVideo,
		Env:                suite.MergedEnv(),
	}
	if cfg.Framework.Record && cfg.Framework.Key != "" {
		opts.Record = true
		opts.Key = cfg.Framework.Key
	}
	if !syncWebAssets(suite) {
		opts.OutputDir = cfg.ResultsDir
	}
	return opts, nil
}

// BuildRunArgs builds the full framework command line.
func BuildRunArgs(opts FrameworkOptions) ([]string, error) {
	command := opts.Command
	if len(command) == 0 {
		command = config.DefaultCommand()
	}
	args := append([]string{}, command...)

	args = append(args,
		"--project", opts.ProjectDir,
		"--config-file", opts.ConfigFile,
		"--browser", opts.Browser,
	)
	if opts.Headless {
		args = append(args, "--headless")
	} else {
		args = append(args, "--headed")
	}

	testingType := opts.TestingType
	if testingType == "" {
		testingType = "e2e"
	}
	args = append(args, "--"+testingType)

	excludes := opts.ExcludeSpecPattern
	if excludes == nil {
		excludes = []string{}
	}
	testingConfig := map[string]any{
		"excludeSpecPattern": excludes,
	}
	if len(opts.SpecPattern) > 0 {
		testingConfig["specPattern"] = opts.SpecPattern
	}
	frameworkConfig := map[string]any{
		testingType:        testingConfig,
		"video":            opts.RecordVideo,
		"videoCompression": false,
	}
	if opts.OutputDir != "" {
		frameworkConfig["videosFolder"] = opts.OutputDir
		frameworkConfig["screenshotsFolder"] = opts.OutputDir
	}
	if opts.ReporterConfig != "" {
		frameworkConfig["reporter"] = multiReporter
		frameworkConfig["reporterOptions"] = map[string]any{"configFile": opts.ReporterConfig}
	}
	configJSON, err := json.Marshal(frameworkConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to encode framework config: %w", err)
	}
	args = append(args, "--config", string(configJSON))

	if len(opts.SpecPattern) > 0 {
		args = append(args, "--spec", strings.Join(opts.SpecPattern, ","))
	}

	if len(opts.Env) > 0 {
		envJSON, err := json.Marshal(opts.Env)
		if err != nil {
			return nil, fmt.Errorf("failed to encode framework env: %w", err)
		}
		args = append(args, "--env", string(envJSON))
	}

	if opts.Record {
		args = append(args, "--record", "--key", opts.Key)
	}

	return args, nil
}

// writeReporterConfig writes the multi reporter config enabling the spec
// reporter and the given reporters to dir, and returns its path.
func writeReporterConfig(reporters []config.Reporter, dir string) (string, error) {
	enabled := []string{"spec"}
	reporterConfig := map[string]any{}
	for _, r := range reporters {
		enabled = append(enabled, r.Name)
		options := r.Options
		if options == nil {
			options = map[string]any{}
		}
		reporterConfig[camelCase(r.Name)+"ReporterOptions"] = options
	}
	reporterConfig["reporterEnabled"] = strings.Join(enabled, ", ")

	data, err := json.Marshal(reporterConfig)
	if err != nil {
		return "", fmt.Errorf("failed to encode reporter config: %w", err)
	}
	path := filepath.Join(dir, ReporterConfigName)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write reporter config: %w", err)
	}
	return path, nil
}

// camelCase turns a reporter name like "mocha-junit-reporter" into the key
// prefix the multi reporter looks up, "mochaJunitReporter".
func camelCase(name string) string {
	var words []string
	var word []rune
	flush := func() {
		if len(word) > 0 {
			words = append(words, strings.ToLower(string(word)))
			word = word[:0]
		}
	}
	prev := rune(0)
	for _, r := range name {
		switch {
		case !unicode.IsLetter(r) && !unicode.IsDigit(r):
			flush()
		case unicode.IsUpper(r) && unicode.IsLower(prev):
			flush()
			word = append(word, r)
		default:
			word = append(word, r)
		}
		prev = r
	}
	flush()

	var b strings.Builder
	for i, w := range words {
		if i > 0 {
			rs := []rune(w)
			rs[0] = unicode.ToUpper(rs[0])
			w = string(rs)
		}
		b.WriteString(w)
	}
	return b.String()
}

// BuildEnv returns base extended by the variables the framework plugins
// read. Later entries win, so suite variables override base ones.
func BuildEnv(base []string, suite *config.Suite, resultsDir string) []string {
	env := append([]string{}, base...)

	webAssetsDir := ""
	if syncWebAssets(suite) {
		webAssetsDir = resultsDir
	}
	env = append(env,
		"CYPRESS_SAUCE_SUITE_NAME="+suite.Name,
		"CYPRESS_SAUCE_ARTIFACTS_DIRECTORY="+resultsDir,
		"SAUCE_WEB_ASSETS_DIR="+webAssetsDir,
		// Experimental webkit support looks for its browsers below
		// node_modules/playwright-core/.local-browsers.
		"PLAYWRIGHT_BROWSERS_PATH=0",
	)

	suiteEnv := suite.MergedEnv()
	keys := make([]string, 0, len(suiteEnv))
	for k := range suiteEnv {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, k+"="+suiteEnv[k])
	}

	return env
}

// commandString renders argv with shell escaping, for logging. The record
// key is masked.
func commandString(argv []string) string {
	parts := make([]string, 0, len(argv))
	for i, arg := range argv {
		if i > 0 && argv[i-1] == "--key" {
			arg = "****"
		}
		parts = append(parts, shellescape.Quote(arg))
	}
	return strings.Join(parts, " ")
}
