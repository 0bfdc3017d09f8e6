package report

import (
	"os"
	"path/filepath"
	"time"
)

const archiveLayout = "2006-01-02_15-04-05"

// WriteArchive stores content as <outputDir>/<timestamp>.md and returns the path.
func WriteArchive(content, outputDir string, generatedAt time.Time) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(outputDir, generatedAt.Format(archiveLayout)+".md")
	return path, os.WriteFile(path, []byte(content), 0644)
}
