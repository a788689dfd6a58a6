package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/cyreport/cyreport/config"
	"github.com/cyreport/cyreport/reporting"
)

const AppName = "cyreport"

type App struct {
	logger  zerolog.Logger
	cli     *cli.App
	version string
}

func New() *App {

	// Set default log level to info
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	logger :=
		log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339Nano,
		})

	app := &App{
		logger:  logger,
		version: "dev",
		cli: &cli.App{
			Name:  AppName,
			Usage: "Run cypress suites and publish their results",
			Flags: []cli.Flag{
				&cli.BoolFlag{
					Name:  "verbose",
					Usage: "Enable verbose (debug) logging",
				},
			},
			Before: func(ctx *cli.Context) error {
				if ctx.Bool("verbose") {
					zerolog.SetGlobalLevel(zerolog.DebugLevel)
				}
				return nil
			},
		},
	}
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "run",
		Usage:  "Run a suite, collect its artifacts and publish them",
		Action: app.run,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:     "config",
				Aliases:  []string{"c"},
				Usage:    "Runner configuration file",
				Required: true,
			},
			suiteFlag(),
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "Execution timeout for suites that configure none",
				Value: config.DefaultTimeout,
			},
			&cli.DurationFlag{
				Name:  "pre-exec-timeout",
				Usage: "Timeout of each pre-exec command",
				Value: config.DefaultPreExecTimeout,
			},
		}, reportingFlags()...),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "report",
		Usage:  "Collect and publish the artifacts of a finished run",
		Action: app.report,
		Flags: append([]cli.Flag{
			resultsDirFlag(),
			suiteFlag(),
			browserFlag(),
			platformFlag(),
			specFlag(),
			&cli.StringFlag{
				Name:  "region",
				Usage: "Region of the reporting service",
				Value: config.DefaultRegion,
			},
			&cli.StringSliceFlag{
				Name:  "tag",
				Usage: "Tag attached to the job (repeatable)",
			},
			&cli.StringFlag{
				Name:  "build",
				Usage: "Build name attached to the job",
			},
			&cli.StringFlag{
				Name:  "framework-version",
				Usage: "Version of the test framework",
			},
		}, reportingFlags()...),
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:  "merge",
		Usage: "Run a single merge step",
		Subcommands: []*cli.Command{
			{
				Name:   "junit",
				Usage:  "Merge the per-spec junit fragments into junit.xml",
				Action: app.mergeJUnit,
				Flags: []cli.Flag{
					resultsDirFlag(),
					specFlag(),
					&cli.StringFlag{
						Name:     "name",
						Usage:    "Name of the merged report, usually the suite name",
						Required: true,
					},
					browserFlag(),
					platformFlag(),
				},
			},
			{
				Name:      "video",
				Usage:     "Concatenate videos of identical geometry",
				ArgsUsage: "VIDEO...",
				Action:    app.mergeVideo,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "output",
						Aliases:  []string{"o"},
						Usage:    "Merged video file",
						Required: true,
					},
				},
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:   "list",
		Usage:  "List previous runs",
		Action: app.list,
		Flags: []cli.Flag{
			rootFlag(),
			&cli.StringFlag{
				Name:  "suite",
				Usage: "Filter by suite name",
			},
			&cli.IntFlag{
				Name:    "limit",
				Aliases: []string{"n"},
				Usage:   "Limit number of results (default: 20)",
				Value:   20,
			},
		},
	})
	app.cli.Commands = append(app.cli.Commands, &cli.Command{
		Name:      "view",
		Usage:     "View a previous run",
		ArgsUsage: "[ID|INDEX]",
		Action:    app.view,
		Flags: []cli.Flag{
			rootFlag(),
		},
		Description: `View a previous run.

Arguments:
  0           View last run (default)
  -1          View 2nd last run
  -2          View 3rd last run
  <hex-id>    View run matching the hex ID prefix

Examples:
  cyreport view           # View last run
  cyreport view -- -1     # View 2nd last run
  cyreport view abc123    # View run with ID starting with abc123`,
	})
	return app
}

func (a *App) Run(args []string) error {
	return a.cli.Run(args)
}

// SetVersion sets the version information for the CLI application
func (a *App) SetVersion(version, commit, date string) {
	a.version = version
	a.cli.Version = version
	if commit != "none" && len(commit) >= 8 {
		a.cli.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit[:8], date)
	}
}

func (a *App) userAgent() string {
	return AppName + "/" + a.version
}

func suiteFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "suite",
		Aliases:  []string{"s"},
		Usage:    "Name of the suite",
		Required: true,
	}
}

func resultsDirFlag() cli.Flag {
	return &cli.StringFlag{
		Name:     "results-dir",
		Aliases:  []string{"r"},
		Usage:    "Directory holding the per-spec artifacts",
		Required: true,
	}
}

func browserFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "browser",
		Usage: "Browser the suite ran in",
		Value: config.DefaultBrowser,
	}
}

func platformFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "platform",
		Usage: "Platform name (default: IMAGE_NAME:IMAGE_TAG)",
	}
}

func specFlag() cli.Flag {
	return &cli.StringSliceFlag{
		Name:  "spec",
		Usage: "Spec in execution order (repeatable, default: discovered from the results directory)",
	}
}

func rootFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "root",
		Usage: "Directory searched for run records",
		Value: ".",
	}
}

func reportingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "username",
			Usage:   "Reporting service user",
			EnvVars: []string{"SAUCE_USERNAME"},
		},
		&cli.StringFlag{
			Name:    "access-key",
			Usage:   "Reporting service access key",
			EnvVars: []string{"SAUCE_ACCESS_KEY"},
		},
		&cli.StringFlag{
			Name:  "status-file",
			Usage: "File the reporting outcome is written to",
			Value: reporting.DefaultStatusFile,
		},
		&cli.BoolFlag{
			Name:  "skip-reporting",
			Usage: "Collect assets without publishing them",
		},
	}
}

// platformName returns the platform flag, or the execution image name.
func platformName(ctx *cli.Context) string {
	if p := ctx.String("platform"); p != "" {
		return p
	}
	return reporting.ImagePlatformName(os.Getenv)
}
