package config

import (
	"os"
	"path/filepath"
	"sync"
)

const envHome = "BOTRUNNER_HOME"

var (
	homeOnce sync.Once
	homeDir  string
)

// GetHome returns the botrunner home directory.
//
// Resolution order:
//  1. $BOTRUNNER_HOME environment variable
//  2. Parent of the binary's directory (if binary is in <home>/bin/)
//  3. Current working directory (development fallback)
func GetHome() string {
	homeOnce.Do(func() {
		homeDir = resolveHome()
	})
	return homeDir
}

// GetReportsDir returns <home>/reports/<runID>.
func GetReportsDir(runID string) string {
	return filepath.Join(GetHome(), "reports", runID)
}

// LoadDefault loads botrunner.yaml from the working directory, falling back
// to the home directory and then to the defaults.
func LoadDefault() (*Config, error) {
	dirs := []string{"."}
	if home := GetHome(); home != "" {
		dirs = append(dirs, home)
	}
	for _, dir := range dirs {
		if _, ok := findConfig(dir); ok {
			return LoadFromDir(dir)
		}
	}
	return Default(), nil
}

func resolveHome() string {
	// 1. Environment variable
	if env := os.Getenv(envHome); env != "" {
		return env
	}

	// 2. Binary-relative: if binary is at <home>/bin/botrunner, use <home>
	if execPath, err := os.Executable(); err == nil {
		if resolved, err := filepath.EvalSymlinks(execPath); err == nil {
			execPath = resolved
		}
		binDir := filepath.Dir(execPath)
		if filepath.Base(binDir) == "bin" {
			return filepath.Dir(binDir)
		}
	}

	// 3. Current working directory
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}

	return "."
}

// ResetHome resets the cached home directory (for testing).
func ResetHome() {
	homeOnce = sync.Once{}
	homeDir = ""
}
