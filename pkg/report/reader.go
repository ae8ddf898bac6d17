package report

import (
	"fmt"
	"path/filepath"
)

// ReadIndex reads report.json from reportDir.
func ReadIndex(reportDir string) (*Index, error) {
	var index Index
	if err := readJSON(filepath.Join(reportDir, "report.json"), &index); err != nil {
		return nil, fmt.Errorf("read index: %w", err)
	}
	return &index, nil
}

// ReadBot reads the detail file of one index entry.
func ReadBot(reportDir string, entry BotEntry) (*BotDetail, error) {
	var detail BotDetail
	if err := readJSON(filepath.Join(reportDir, entry.DataFile), &detail); err != nil {
		return nil, fmt.Errorf("read bot %s: %w", entry.ID, err)
	}
	return &detail, nil
}

// ReadReport reads the index and every bot detail.
func ReadReport(reportDir string) (*Index, []BotDetail, error) {
	index, err := ReadIndex(reportDir)
	if err != nil {
		return nil, nil, err
	}
	details := make([]BotDetail, 0, len(index.Bots))
	for _, entry := range index.Bots {
		d, err := ReadBot(reportDir, entry)
		if err != nil {
			return nil, nil, err
		}
		details = append(details, *d)
	}
	return index, details, nil
}
