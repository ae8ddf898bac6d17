package flow

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/devicelab-dev/botrunner/pkg/expr"
)

// CheckError is a problem found in a bot file.
type CheckError struct {
	File string
	Err  error
}

func (e *CheckError) Error() string {
	return fmt.Sprintf("%s: %v", e.File, e.Err)
}

func (e *CheckError) Unwrap() error { return e.Err }

// CheckResult is the outcome of checking bot files.
type CheckResult struct {
	// Files lists every bot file reached, including run_bot targets, in
	// the order they were checked.
	Files []string
	// Errors holds all problems found.
	Errors []error
}

// IsValid returns true if there are no errors.
func (r *CheckResult) IsValid() bool {
	return len(r.Errors) == 0
}

// Checker validates bot files ahead of a run, following run_bot references
// and detecting bots that invoke themselves.
type Checker struct {
	parser *Parser
	opts   LoadOptions
}

// NewChecker creates a Checker.
func NewChecker(p *Parser, opts LoadOptions) *Checker {
	return &Checker{parser: p, opts: opts}
}

// Check validates a bot file, or every .yaml/.yml file under a directory.
func (c *Checker) Check(path string) *CheckResult {
	result := &CheckResult{}

	files, err := BotFiles(path)
	if err != nil {
		result.Errors = append(result.Errors, &CheckError{File: path, Err: err})
		return result
	}

	checked := make(map[string]bool)
	for _, file := range files {
		c.checkFile(file, c.opts, result, checked, nil)
	}
	return result
}

// BotFiles returns path itself for a file, or every .yaml/.yml file under
// path for a directory, in lexical order.
func BotFiles(path string) ([]string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("cannot access: %w", err)
	}
	if !info.IsDir() {
		return []string{filepath.Clean(path)}, nil
	}

	var files []string
	err = filepath.Walk(path, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(p))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Clean(p))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan directory: %w", err)
	}
	return files, nil
}

func (c *Checker) checkFile(file string, opts LoadOptions, result *CheckResult, checked map[string]bool, chain []string) {
	for _, ancestor := range chain {
		if ancestor == file {
			cycle := append(append([]string(nil), chain...), file)
			result.Errors = append(result.Errors, &CheckError{
				File: file,
				Err:  fmt.Errorf("circular run_bot reference: %s", strings.Join(cycle, " -> ")),
			})
			return
		}
	}
	if checked[file] {
		return
	}
	checked[file] = true
	result.Files = append(result.Files, file)

	bot, err := c.parser.LoadFile(file, opts)
	if err != nil {
		result.Errors = append(result.Errors, &CheckError{File: file, Err: err})
		return
	}

	chain = append(chain, file)
	c.checkSteps(bot.Steps, result, checked, chain)
	c.checkSteps(bot.ExceptionSteps, result, checked, chain)
}

func (c *Checker) checkSteps(steps *StepList, result *CheckResult, checked map[string]bool, chain []string) {
	for _, step := range steps.Steps() {
		if step.Action == "run_bot" {
			// placeholder paths are only known at run time
			data := step.ValidatedData()
			if path, ok := data["path"].(string); ok && expr.CountPlaceholders(path) == 0 {
				c.checkFile(filepath.Clean(path), subBotOptions(data), result, checked, chain)
			}
		}
		for _, nested := range step.Children() {
			c.checkSteps(nested, result, checked, chain)
		}
	}
}

// subBotOptions mirrors how run_bot loads its target: rendered only when
// parse_template is set, with the step's own template_context.
func subBotOptions(data map[string]any) LoadOptions {
	opts := LoadOptions{}
	opts.Template, _ = data["parse_template"].(bool)
	if ctx, ok := data["template_context"].(map[string]any); ok {
		opts.TemplateContext = ctx
	}
	return opts
}
