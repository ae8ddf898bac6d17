package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestGetHome_EnvVar(t *testing.T) {
	ResetHome()
	t.Setenv("BOTRUNNER_HOME", "/custom/path")

	got := GetHome()
	if got != "/custom/path" {
		t.Errorf("GetHome() = %q, want %q", got, "/custom/path")
	}
}

func TestGetHome_FallbackNotEmpty(t *testing.T) {
	ResetHome()
	t.Setenv("BOTRUNNER_HOME", "")

	if got := GetHome(); got == "" {
		t.Error("GetHome() returned empty string")
	}
}

func TestGetHome_Cached(t *testing.T) {
	ResetHome()
	t.Setenv("BOTRUNNER_HOME", "/first")

	first := GetHome()

	// Change env; the cached value must not move
	t.Setenv("BOTRUNNER_HOME", "/second")
	second := GetHome()

	if first != second {
		t.Errorf("GetHome() not cached: first=%q, second=%q", first, second)
	}
}

func TestGetReportsDir(t *testing.T) {
	ResetHome()
	t.Setenv("BOTRUNNER_HOME", "/test/home")

	got := GetReportsDir("2026-01-02")
	want := filepath.Join("/test/home", "reports", "2026-01-02")
	if got != want {
		t.Errorf("GetReportsDir() = %q, want %q", got, want)
	}
}

func TestLoadDefault_FromHome(t *testing.T) {
	home := t.TempDir()
	if err := os.WriteFile(filepath.Join(home, "botrunner.yml"), []byte("driver: mock\n"), 0644); err != nil {
		t.Fatal(err)
	}

	// Run from an empty working directory so only the home file matches
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })
	ResetHome()
	t.Setenv("BOTRUNNER_HOME", home)

	cfg, err := LoadDefault()
	if err != nil {
		t.Fatalf("LoadDefault: %v", err)
	}
	if cfg.Driver != DriverMock {
		t.Errorf("Driver = %q, want mock", cfg.Driver)
	}
}
