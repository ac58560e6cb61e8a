package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const maxNameLength = 100

// LocalStorage saves downloaded transcripts under dated directories
type LocalStorage struct {
	outputDir string
	now       func() time.Time
}

// NewLocalStorage creates a new local storage handler
func NewLocalStorage(outputDir string) *LocalStorage {
	return &LocalStorage{
		outputDir: outputDir,
		now:       time.Now,
	}
}

// Dir is the archive root
func (ls *LocalStorage) Dir() string {
	return ls.outputDir
}

// SaveArtifact writes the artifact stream and a JSON metadata sidecar to
// outputs/YYYY/MM/DD/<timestamp>_<name>.<format> and returns the artifact path.
func (ls *LocalStorage) SaveArtifact(name, format string, content io.Reader, meta any) (string, error) {
	now := ls.now()
	dateDir := filepath.Join(ls.outputDir,
		fmt.Sprintf("%d", now.Year()),
		fmt.Sprintf("%02d", now.Month()),
		fmt.Sprintf("%02d", now.Day()))

	if err := os.MkdirAll(dateDir, 0o755); err != nil {
		return "", fmt.Errorf("create date directory: %w", err)
	}

	baseFilename := fmt.Sprintf("%s_%s", now.Format("20060102_150405"), sanitizeFilename(name))
	artifactPath := filepath.Join(dateDir, baseFilename+"."+format)

	if err := writeFile(artifactPath, content); err != nil {
		return "", fmt.Errorf("save artifact: %w", err)
	}

	if meta != nil {
		metaJSON, err := json.MarshalIndent(meta, "", "  ")
		if err != nil {
			return "", fmt.Errorf("marshal metadata: %w", err)
		}
		if err := os.WriteFile(filepath.Join(dateDir, baseFilename+"_meta.json"), metaJSON, 0o644); err != nil {
			return "", fmt.Errorf("save metadata: %w", err)
		}
	}

	return artifactPath, nil
}

func writeFile(path string, content io.Reader) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, content); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

// sanitizeFilename keeps names portable across filesystems
func sanitizeFilename(name string) string {
	name = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 32 {
			return -1
		}
		return r
	}, strings.TrimSpace(name))

	name = strings.Trim(name, ". ")
	if name == "" {
		name = "untitled"
	}
	if r := []rune(name); len(r) > maxNameLength {
		name = string(r[:maxNameLength])
	}
	return name
}
