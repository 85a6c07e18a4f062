package main

import (
	"strings"

	"github.com/fatih/color"
	"github.com/urfave/cli/v2"

	"github.com/panbanda/coremetrics/internal/output"
)

// outputFlags are the flags shared by commands that render results.
func outputFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "format",
			Aliases: []string{"f"},
			Value:   "text",
			Usage:   "Output format: text, json, markdown",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Write output to file",
		},
	}
}

func newFormatter(c *cli.Context) (*output.Formatter, error) {
	return output.NewFormatter(output.ParseFormat(c.String("format")), c.String("output"),
		output.WithWriter(c.App.Writer),
		output.WithColor(!color.NoColor),
	)
}

func frameworksCmd() *cli.Command {
	return &cli.Command{
		Name:   "frameworks",
		Usage:  "List the configured frameworks",
		Flags:  outputFlags(),
		Action: runFrameworksCmd,
	}
}

// frameworkInfo is the JSON form of one row of the frameworks table.
type frameworkInfo struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	RepoURL    string   `json:"repoUrl"`
	StartDate  string   `json:"startDate"`
	CoreSubdir string   `json:"coreSubdir"`
	Extensions []string `json:"extensions"`
	Report     string   `json:"report"`
}

func runFrameworksCmd(c *cli.Context) error {
	loaded, err := loadConfig(c)
	if err != nil {
		return err
	}
	cfg := loaded.Config

	formatter, err := newFormatter(c)
	if err != nil {
		return err
	}
	defer formatter.Close()

	infos := make([]frameworkInfo, 0, len(cfg.Frameworks))
	rows := make([][]string, 0, len(cfg.Frameworks))
	for _, id := range cfg.FrameworkIDs() {
		fw, err := cfg.Framework(id)
		if err != nil {
			return err
		}
		info := frameworkInfo{
			ID:         id,
			Name:       fw.Name,
			RepoURL:    fw.RepoURL,
			StartDate:  fw.StartDate,
			CoreSubdir: fw.CoreSubdir,
			Extensions: fw.Extensions,
			Report:     cfg.Paths.ReportPath(id),
		}
		infos = append(infos, info)
		rows = append(rows, []string{
			info.ID,
			info.Name,
			info.StartDate,
			info.CoreSubdir,
			strings.Join(info.Extensions, " "),
			info.RepoURL,
		})
	}

	return formatter.Output(output.NewTable("Frameworks",
		[]string{"ID", "Name", "Since", "Core", "Extensions", "Repository"},
		rows, nil, infos))
}
