package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/coremetrics/internal/logging"
	"github.com/panbanda/coremetrics/internal/output"
	"github.com/panbanda/coremetrics/pkg/config"
)

// loadEnv loads the given .env files without overriding variables that are
// already set.
func loadEnv(paths ...string) error {
	for _, path := range paths {
		if path == "" {
			continue
		}
		if err := godotenv.Load(path); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
	}
	return nil
}

// loadConfig resolves the config file from --config or the environment
// and applies --project-dir.
func loadConfig(c *cli.Context) (*config.LoadResult, error) {
	path := c.String("config")
	if path == "" {
		path = os.Getenv(configEnvVar)
	}
	loaded, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if dir := c.String("project-dir"); dir != "" {
		loaded.Config.Paths.ProjectDir = dir
	}
	return loaded, nil
}

// messages returns a text formatter for status lines on stdout.
func messages(c *cli.Context) *output.Formatter {
	f, _ := output.NewFormatter(output.FormatText, "",
		output.WithWriter(c.App.Writer),
		output.WithColor(!color.NoColor),
	)
	return f
}

func newLogger(c *cli.Context) *logrus.Logger {
	return logging.New(logging.Options{
		Verbose: c.Bool("verbose"),
		Format:  c.String("log-format"),
		Out:     c.App.ErrWriter,
		NoColor: color.NoColor,
	})
}

// selectFrameworks expands the --framework value into configured ids.
func selectFrameworks(cfg *config.Config, name string) ([]string, error) {
	if name == "" || name == "all" {
		return cfg.FrameworkIDs(), nil
	}
	if _, err := cfg.Framework(name); err != nil {
		return nil, err
	}
	return []string{name}, nil
}

// validatePositive rejects a flag value below 1.
func validatePositive(flag string, v int) error {
	if v <= 0 {
		return fmt.Errorf("--%s must be a positive integer (got %d)", flag, v)
	}
	return nil
}
