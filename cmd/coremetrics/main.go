package main

import (
	"os"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"
)

var (
	version = "dev"
	commit  = "none"    //nolint:unused // set via ldflags at build time
	date    = "unknown" //nolint:unused // set via ldflags at build time
)

// configEnvVar selects the config file. It is also honored when it is
// set by a .env file, which is loaded after flag parsing.
const configEnvVar = "COREMETRICS_CONFIG"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "coremetrics",
		Usage:   "Collect code metric history of PHP framework cores",
		Version: version,
		Description: `coremetrics mirrors a framework repository, measures its core at a
semi-annual cadence from the framework's anchor date to HEAD, measures the
metric movement of recent commits, and writes one JSON report per framework.

Running without a command is the same as "coremetrics collect".`,
		Flags: append([]cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (TOML, YAML, or JSON)",
				EnvVars: []string{configEnvVar},
			},
			&cli.StringSliceFlag{
				Name:  "env-file",
				Value: cli.NewStringSlice(".env"),
				Usage: "Environment files to load; missing files are ignored",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "Enable debug logging",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Value: "text",
				Usage: "Log format: text, json",
			},
		}, collectFlags()...),
		Before: func(c *cli.Context) error {
			return loadEnv(c.StringSlice("env-file")...)
		},
		Action: runCollectCmd,
		Commands: []*cli.Command{
			collectCmd(),
			frameworksCmd(),
			summaryCmd(),
			initCmd(),
			configCmd(),
			cacheCmd(),
		},
	}
}
