package cli

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/devicelab-dev/botrunner/pkg/config"
	"github.com/devicelab-dev/botrunner/pkg/report"
)

const okBot = `title: Homepage
steps:
  - title: Open
    action: navigate
    url: https://{{ .host }}/
  - title: Home
    action: store_page_url
`

const failingBot = `title: Broken
steps:
  - title: Home
    action: store_page_url
  - title: Loop
    action: iterate_over
    iterator: ${Home__url}
  - title: Never
    action: navigate
    url: https://example.com/never
`

// runApp runs the CLI with isolated config lookup and captured output.
func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	config.ResetHome()
	t.Setenv("BOTRUNNER_HOME", t.TempDir())
	t.Cleanup(config.ResetHome)

	var out bytes.Buffer
	app := NewApp()
	app.Writer = &out
	app.ErrWriter = io.Discard
	err := app.Run(append([]string{"botrunner"}, args...))
	return out.String(), err
}

func writeBot(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestGlobalFlags(t *testing.T) {
	want := map[string]bool{"config": false, "driver": false, "webdriver-url": false, "verbose": false, "log-file": false}
	for _, f := range GlobalFlags {
		for _, name := range f.Names() {
			if _, ok := want[name]; ok {
				want[name] = true
			}
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("global flag --%s not defined", name)
		}
	}
}

func TestRunCommand_NoArgs(t *testing.T) {
	_, err := runApp(t, "--driver", "mock", "run")
	if err == nil || !strings.Contains(err.Error(), "at least one bot") {
		t.Errorf("expected missing-argument error, got %v", err)
	}
}

func TestRunCommand_UnknownDriver(t *testing.T) {
	bot := writeBot(t, t.TempDir(), "bot.yaml", okBot)
	_, err := runApp(t, "--driver", "selenium", "run", bot)
	if err == nil || !strings.Contains(err.Error(), "unknown driver") {
		t.Errorf("expected unknown driver error, got %v", err)
	}
}

func TestRunCommand_MockDriver(t *testing.T) {
	dir := t.TempDir()
	bot := writeBot(t, dir, "bot.yaml", okBot)
	reportDir := filepath.Join(dir, "report")
	metricsFile := filepath.Join(dir, "botrunner.prom")

	out, err := runApp(t, "--driver", "mock", "run",
		"--no-screenshots",
		"--template-var", "host=example.com",
		"--report", reportDir,
		"--metrics-textfile", metricsFile,
		bot)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}

	for _, want := range []string{"[1/1]", "Homepage", "Open", "TOTAL", "Report: " + reportDir} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	index, details, err := report.ReadReport(reportDir)
	if err != nil {
		t.Fatalf("ReadReport: %v", err)
	}
	if index.Status != report.StatusSucceeded || index.Runner.Driver != "mock" {
		t.Errorf("index = %q driver %q", index.Status, index.Runner.Driver)
	}
	home, _ := details[0].Context["Home"].(map[string]any)
	if home["url"] != "https://example.com/" {
		t.Errorf("context Home = %v, want rendered URL", details[0].Context["Home"])
	}

	metrics, err := os.ReadFile(metricsFile)
	if err != nil {
		t.Fatalf("metrics not written: %v", err)
	}
	if !strings.Contains(string(metrics), "botrunner_runs_total") {
		t.Errorf("metrics missing run counter:\n%s", metrics)
	}
}

func TestRunCommand_FailingBot(t *testing.T) {
	dir := t.TempDir()
	bot := writeBot(t, dir, "bot.yaml", failingBot)

	out, err := runApp(t, "--driver", "mock", "run", "--no-screenshots", bot)
	if err == nil || !strings.Contains(err.Error(), "1 of 1 bots failed") {
		t.Fatalf("expected failed run, got %v", err)
	}
	if !strings.Contains(out, "Loop") || !strings.Contains(out, "FAIL") {
		t.Errorf("output does not show the failure:\n%s", out)
	}
}

func TestRunCommand_Screenshots(t *testing.T) {
	dir := t.TempDir()
	bot := writeBot(t, dir, "bot.yaml", strings.ReplaceAll(okBot, "{{ .host }}", "example.com"))
	shots := filepath.Join(dir, "shots")

	if _, err := runApp(t, "--driver", "mock", "run", "--screenshots-dir", shots, bot); err != nil {
		t.Fatalf("run failed: %v", err)
	}
	for _, name := range []string{"Open.png", "Home.png"} {
		if _, err := os.Stat(filepath.Join(shots, name)); err != nil {
			t.Errorf("screenshot %s not saved: %v", name, err)
		}
	}
}

func TestRunCommand_Parallel(t *testing.T) {
	dir := t.TempDir()
	static := strings.ReplaceAll(okBot, "{{ .host }}", "example.com")
	for _, name := range []string{"a.yaml", "b.yaml", "c.yml"} {
		writeBot(t, dir, name, strings.Replace(static, "Homepage", "Bot "+name, 1))
	}

	out, err := runApp(t, "--driver", "mock", "run", "--no-screenshots", "--parallel", "2", dir)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "3/3") {
		t.Errorf("expected 3/3 bots in summary:\n%s", out)
	}
}

func TestRunCommand_ValidationStopsRun(t *testing.T) {
	bot := writeBot(t, t.TempDir(), "bot.yaml", `title: Bad
steps:
  - title: Open
    action: navigate
`)
	out, err := runApp(t, "--driver", "mock", "run", bot)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, "Validation failed") || !strings.Contains(out, "Open.url") {
		t.Errorf("output does not list the field error:\n%s", out)
	}
}

func TestRunCommand_InvalidDelay(t *testing.T) {
	bot := writeBot(t, t.TempDir(), "bot.yaml", okBot)
	_, err := runApp(t, "--driver", "mock", "run", "--delay", "2s", "--delay-max", "1s", bot)
	if err == nil || !strings.Contains(err.Error(), "--delay-max") {
		t.Errorf("expected delay error, got %v", err)
	}
}

func TestValidateCommand(t *testing.T) {
	dir := t.TempDir()
	writeBot(t, dir, "child.yaml", "title: Child\nsteps:\n  - title: Home\n    action: store_page_url\n")
	parent := writeBot(t, dir, "parent.yaml", "title: Parent\nsteps:\n  - title: Sub\n    action: run_bot\n    path: "+filepath.Join(dir, "child.yaml")+"\n")

	out, err := runApp(t, "validate", parent)
	if err != nil {
		t.Fatalf("validate failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "2 bot file(s) valid") {
		t.Errorf("expected both files checked:\n%s", out)
	}

	bad := writeBot(t, dir, "bad.yaml", "title: Bad\nsteps:\n  - title: X\n    action: fly\n")
	out, err = runApp(t, "validate", bad)
	if err == nil {
		t.Fatal("expected validation error")
	}
	if !strings.Contains(out, `Unknown action "fly"`) {
		t.Errorf("expected unknown action message:\n%s", out)
	}
}

func TestActionsCommand(t *testing.T) {
	out, err := runApp(t, "actions")
	if err != nil {
		t.Fatalf("actions failed: %v", err)
	}
	for _, want := range []string{"navigate", "iterate_over", "make_request", "method", "functions", "zero_pad"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}

	_, err = runApp(t, "actions", "teleport")
	if err == nil {
		t.Error("expected error for unknown action")
	}
}

func TestReportCommand(t *testing.T) {
	dir := t.TempDir()
	bot := writeBot(t, dir, "bot.yaml", strings.ReplaceAll(okBot, "{{ .host }}", "example.com"))
	reportDir := filepath.Join(dir, "report")
	if _, err := runApp(t, "--driver", "mock", "run", "--no-screenshots", "--report", reportDir, bot); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	out, err := runApp(t, "report", reportDir)
	if err != nil {
		t.Fatalf("report failed: %v", err)
	}
	if !strings.Contains(out, "succeeded: 1 bots, 1 succeeded") {
		t.Errorf("unexpected report output:\n%s", out)
	}
}

func TestParseTemplateVars(t *testing.T) {
	got, err := parseTemplateVars([]string{"host=example.com", "query=a=b"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got["host"] != "example.com" || got["query"] != "a=b" {
		t.Errorf("got %v", got)
	}

	for _, bad := range []string{"novalue", "=x"} {
		if _, err := parseTemplateVars([]string{bad}); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}

func TestLoadCapabilities(t *testing.T) {
	dir := t.TempDir()
	path := writeBot(t, dir, "caps.json", `{"browserName": "chrome", "goog:chromeOptions": {"args": ["--headless"]}}`)

	caps, err := loadCapabilities(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if caps["browserName"] != "chrome" {
		t.Errorf("browserName = %v", caps["browserName"])
	}

	if _, err := loadCapabilities(filepath.Join(dir, "missing.json")); err == nil {
		t.Error("expected error for missing file")
	}
	bad := writeBot(t, dir, "bad.json", `{not json`)
	if _, err := loadCapabilities(bad); err == nil {
		t.Error("expected error for invalid JSON")
	}
}

func TestCloneCapabilities(t *testing.T) {
	if cloneCapabilities(nil) != nil {
		t.Error("expected nil for nil caps")
	}
	orig := map[string]interface{}{"browserName": "chrome"}
	clone := cloneCapabilities(orig)
	clone["browserName"] = "firefox"
	if orig["browserName"] != "chrome" {
		t.Error("clone shares the original map")
	}
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "0ms"},
		{999 * time.Millisecond, "999ms"},
		{1500 * time.Millisecond, "1.5s"},
		{65 * time.Second, "1m 5s"},
	}
	for _, tt := range tests {
		if got := formatDuration(tt.d); got != tt.want {
			t.Errorf("formatDuration(%s) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestRunCommand_MetricsAddr(t *testing.T) {
	bot := writeBot(t, t.TempDir(), "bot.yaml", strings.ReplaceAll(okBot, "{{ .host }}", "example.com"))
	if _, err := runApp(t, "--driver", "mock", "run", "--no-screenshots", "--metrics-addr", "127.0.0.1:0", bot); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	_, err := runApp(t, "--driver", "mock", "run", "--no-screenshots", "--metrics-addr", "not-an-address", bot)
	if err == nil || !strings.Contains(err.Error(), "failed to listen") {
		t.Errorf("expected listen error, got %v", err)
	}
}

func TestRunCommand_SaveReportUnderHome(t *testing.T) {
	bot := writeBot(t, t.TempDir(), "bot.yaml", strings.ReplaceAll(okBot, "{{ .host }}", "example.com"))

	out, err := runApp(t, "--driver", "mock", "run", "--no-screenshots", "--save-report", bot)
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}

	found, err := filepath.Glob(filepath.Join(config.GetHome(), "reports", "*", "report.json"))
	if err != nil || len(found) != 1 {
		t.Fatalf("report.json under home reports = %v (%v)", found, err)
	}
	if !strings.Contains(out, "Report: "+filepath.Dir(found[0])) {
		t.Errorf("output does not name the report dir:\n%s", out)
	}
}

func TestConfigFlagAcceptsDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "botrunner.yaml"), []byte("driver: mock\nscreenshots:\n  enabled: false\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	bot := writeBot(t, dir, "bot.yaml", strings.ReplaceAll(okBot, "{{ .host }}", "example.com"))

	out, err := runApp(t, "--config", dir, "run", bot)
	if err != nil {
		t.Fatalf("run with config dir failed: %v\n%s", err, out)
	}
	if !strings.Contains(out, "TOTAL") {
		t.Errorf("expected summary:\n%s", out)
	}
}
