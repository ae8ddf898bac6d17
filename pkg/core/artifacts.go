// Package core provides the execution model types for botrunner.
package core

import (
	"path/filepath"
	"strings"
	"unicode"
)

// Attachment represents a debug artifact captured during step execution
type Attachment struct {
	Name        string `json:"name"`        // Descriptive name: screenshot
	ContentType string `json:"contentType"` // MIME type: image/png
	Path        string `json:"path"`        // File path of the saved artifact
	Body        []byte `json:"-"`           // In-memory content (not serialized to JSON)
}

// Common attachment names
const (
	AttachmentScreenshot = "screenshot"
)

// Common content types
const (
	ContentTypePNG  = "image/png"
	ContentTypeJSON = "application/json"
)

// NewScreenshotAttachment creates a screenshot attachment
func NewScreenshotAttachment(path string, data []byte) Attachment {
	return Attachment{
		Name:        AttachmentScreenshot,
		ContentType: ContentTypePNG,
		Path:        path,
		Body:        data,
	}
}

// ArtifactConfig controls when screenshots are captured
type ArtifactConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	Dir              string `yaml:"dir" json:"dir"`
	CaptureOnSuccess bool   `yaml:"captureOnSuccess" json:"captureOnSuccess"` // Default: true
	CaptureOnFailure bool   `yaml:"captureOnFailure" json:"captureOnFailure"` // Default: true
}

// DefaultArtifactConfig returns the defaults: a screenshot after every step
// and on failure, written to ./screenshots.
func DefaultArtifactConfig() ArtifactConfig {
	return ArtifactConfig{
		Enabled:          true,
		Dir:              "screenshots",
		CaptureOnSuccess: true,
		CaptureOnFailure: true,
	}
}

// ShouldCapture returns true if a screenshot should be taken for the given status
func (c ArtifactConfig) ShouldCapture(status StepStatus) bool {
	if !c.Enabled {
		return false
	}
	switch status {
	case StatusFailed:
		return c.CaptureOnFailure
	case StatusSucceeded:
		return c.CaptureOnSuccess
	default:
		return false
	}
}

// ScreenshotPath returns the file a step's screenshot is written to.
// Characters that are unsafe in file names are replaced with underscores.
func (c ArtifactConfig) ScreenshotPath(stepTitle string) string {
	return filepath.Join(c.Dir, SanitizeFileName(stepTitle)+".png")
}

// SanitizeFileName maps a step title to a portable file name.
func SanitizeFileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "step"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r == '-', r == '_', r == '.', r == ' ':
			return r
		case unicode.IsLetter(r), unicode.IsDigit(r):
			return r
		default:
			return '_'
		}
	}, name)
}
