package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/botrunner/pkg/report"
)

var reportCommand = &cli.Command{
	Name:      "report",
	Usage:     "Print a report written by run --report",
	ArgsUsage: "<report-dir>",
	Action:    showReport,
}

func showReport(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("exactly one report directory is required")
	}

	index, details, err := report.ReadReport(c.Args().First())
	if err != nil {
		return err
	}
	printReport(c.App.Writer, index, details)
	return nil
}
