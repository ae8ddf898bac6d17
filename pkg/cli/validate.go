package cli

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/devicelab-dev/botrunner/pkg/flow"
)

var validateCommand = &cli.Command{
	Name:      "validate",
	Usage:     "Validate bot files without running them",
	ArgsUsage: "<bot-file-or-folder>...",
	Description: `Check bot files and every file they reach through run_bot. All
problems are reported together, one line per field.

Examples:
  botrunner validate login.yaml
  botrunner validate bots/ --template-var host=example.com`,
	Flags: []cli.Flag{
		&cli.BoolFlag{
			Name:  "template",
			Usage: "Render bot files as templates before parsing",
		},
		&cli.StringSliceFlag{
			Name:    "template-var",
			Aliases: []string{"e"},
			Usage:   "Template variable (KEY=VALUE); implies --template",
		},
	},
	Action: validateBots,
}

func validateBots(c *cli.Context) error {
	if c.NArg() < 1 {
		return fmt.Errorf("at least one bot file or folder is required")
	}

	vars := make(map[string]any)
	for k, v := range getConfig(c).Vars {
		vars[k] = v
	}
	cliVars, err := parseTemplateVars(c.StringSlice("template-var"))
	if err != nil {
		return err
	}
	for k, v := range cliVars {
		vars[k] = v
	}

	checker := flow.NewChecker(flow.NewParser(flow.DefaultRegistry()), flow.LoadOptions{
		Template:        c.Bool("template") || len(vars) > 0,
		TemplateContext: vars,
	})

	out := c.App.Writer
	var problems []error
	files := 0
	for _, path := range c.Args().Slice() {
		result := checker.Check(path)
		files += len(result.Files)
		problems = append(problems, result.Errors...)
	}

	if len(problems) > 0 {
		printProblems(out, problems)
		return fmt.Errorf("%d problem(s) found in bot files", len(problems))
	}
	fmt.Fprintf(out, "  %s✓%s %d bot file(s) valid\n", color(colorGreen), color(colorReset), files)
	return nil
}
