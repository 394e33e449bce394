// Package workspace manages the on-disk case directory layout and the
// artifact I/O shared by the convergence loop, the CLI, and the MCP tools.
package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// DefaultBasePath is the default root directory for convergence case data.
const DefaultBasePath = ".visor/cases"

// Well-known artifact filenames inside a case directory.
const (
	StateFilename      = "state.json"
	ProgressFilename   = "progress.md"
	GuardrailsFilename = "guardrails.md"
	ActivityFilename   = "activity.log"
)

// CaseDir returns the per-case directory path: {basePath}/{name}/
func CaseDir(basePath, name string) string {
	return filepath.Join(basePath, name)
}

// EnsureCaseDir creates the per-case directory (and its reports/
// subdirectory) if it doesn't exist.
func EnsureCaseDir(basePath, name string) (string, error) {
	dir := CaseDir(basePath, name)
	if err := os.MkdirAll(filepath.Join(dir, "reports"), 0755); err != nil {
		return "", fmt.Errorf("create case dir: %w", err)
	}
	return dir, nil
}

// ListCaseDirs lists all case directories under the base path.
func ListCaseDirs(basePath string) ([]string, error) {
	entries, err := os.ReadDir(basePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list case dirs: %w", err)
	}
	var dirs []string
	for _, e := range entries {
		if e.IsDir() {
			dirs = append(dirs, filepath.Join(basePath, e.Name()))
		}
	}
	return dirs, nil
}

// ReportFilename returns the action report path for a loop iteration,
// relative to the case directory.
func ReportFilename(iteration int) string {
	return filepath.Join("reports", fmt.Sprintf("iter_%02d.yaml", iteration))
}

// CaptureFilename returns the rendered-capture path for a loop iteration,
// relative to the case directory.
func CaptureFilename(iteration int) string {
	return fmt.Sprintf("capture_%02d.png", iteration)
}

// SourceFilename returns the diagram-source path for a loop iteration,
// relative to the case directory.
func SourceFilename(iteration int) string {
	return fmt.Sprintf("diagram_%02d.mmd", iteration)
}

// ReadArtifact reads a typed JSON artifact from the per-case directory.
func ReadArtifact[T any](caseDir, filename string) (*T, error) {
	path := filepath.Join(caseDir, filename)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read artifact %s: %w", filename, err)
	}
	var result T
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("parse artifact %s: %w", filename, err)
	}
	return &result, nil
}

// WriteArtifact writes a typed JSON artifact to the per-case directory.
func WriteArtifact(caseDir, filename string, data any) error {
	path := filepath.Join(caseDir, filename)
	raw, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal artifact %s: %w", filename, err)
	}
	if err := os.WriteFile(path, raw, 0644); err != nil {
		return fmt.Errorf("write artifact %s: %w", filename, err)
	}
	return nil
}

// ReadText reads a text artifact from the per-case directory. A missing
// file is not an error; it reads as empty.
func ReadText(caseDir, filename string) (string, error) {
	data, err := os.ReadFile(filepath.Join(caseDir, filename))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("read %s: %w", filename, err)
	}
	return string(data), nil
}

// WriteText writes a text artifact to the per-case directory.
// Returns the full path for the user to open.
func WriteText(caseDir, filename, content string) (string, error) {
	path := filepath.Join(caseDir, filename)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write %s: %w", filename, err)
	}
	return path, nil
}

// AppendLine appends a single line to a text artifact, creating it on
// first use.
func AppendLine(caseDir, filename, line string) error {
	path := filepath.Join(caseDir, filename)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", filename, err)
	}
	defer f.Close()
	if !strings.HasSuffix(line, "\n") {
		line += "\n"
	}
	if _, err := f.WriteString(line); err != nil {
		return fmt.Errorf("append %s: %w", filename, err)
	}
	return nil
}
