package cli

import (
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/botrunner/pkg/expr"
	"github.com/devicelab-dev/botrunner/pkg/flow"
)

var actionsCommand = &cli.Command{
	Name:      "actions",
	Usage:     "List the available step actions and their fields",
	ArgsUsage: "[action]...",
	Action:    listActions,
}

func listActions(c *cli.Context) error {
	reg := flow.DefaultRegistry()
	names := c.Args().Slice()
	if len(names) == 0 {
		names = reg.Actions()
	}

	out := c.App.Writer
	for _, name := range names {
		schema, err := reg.Schema(name)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		fmt.Fprintf(out, "%s%s%s\n", color(colorBold), name, color(colorReset))
		for _, spec := range schema {
			fmt.Fprintf(out, "  %-18s %s\n", spec.Name, spec.Field.Describe())
		}
		fmt.Fprintln(out)
	}

	if c.NArg() == 0 {
		fmt.Fprintf(out, "%sfunctions%s\n", color(colorBold), color(colorReset))
		for _, kind := range []expr.Kind{expr.KindText, expr.KindMapping, expr.KindSequence} {
			fmt.Fprintf(out, "  %-18s %s\n", kind, strings.Join(expr.FunctionNames(kind), ", "))
		}
	}
	return nil
}
