package workspace

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadSuite reads a batch manifest (YAML or JSON) and returns the parsed
// Suite. Relative entry paths are resolved against the manifest's
// directory; entries without a name take the capture's base filename.
func LoadSuite(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read suite: %w", err)
	}
	s, err := ParseSuite(data, filepath.Ext(path))
	if err != nil {
		return nil, err
	}
	s.resolve(filepath.Dir(path))
	return s, nil
}

// ParseSuite parses a batch manifest from bytes. ext is the file
// extension (e.g. ".json", ".yaml") for format hint; empty = detect from
// content.
func ParseSuite(data []byte, ext string) (*Suite, error) {
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	if ext == ".yaml" {
		var s Suite
		if err := yaml.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse suite yaml: %w", err)
		}
		return validateSuite(&s)
	}
	if ext == ".json" {
		var s Suite
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse suite json: %w", err)
		}
		return validateSuite(&s)
	}
	// Detect: try JSON first (starts with {), else YAML
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		var s Suite
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse suite json: %w", err)
		}
		return validateSuite(&s)
	}
	var s Suite
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse suite yaml: %w", err)
	}
	return validateSuite(&s)
}

func validateSuite(s *Suite) (*Suite, error) {
	for i, e := range s.Entries {
		if e.Capture == "" {
			return nil, fmt.Errorf("suite entry %d: capture path required", i)
		}
	}
	return s, nil
}

// resolve anchors relative entry paths at dir and fills default names.
func (s *Suite) resolve(dir string) {
	for i := range s.Entries {
		e := &s.Entries[i]
		e.Capture = resolvePath(dir, e.Capture)
		e.Reference = resolvePath(dir, e.Reference)
		e.Source = resolvePath(dir, e.Source)
		if e.Name == "" {
			base := filepath.Base(e.Capture)
			e.Name = strings.TrimSuffix(base, filepath.Ext(base))
		}
	}
}

func resolvePath(dir, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(dir, p)
}
