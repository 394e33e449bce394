package workspace

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSuiteFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write suite file: %v", err)
	}
	return path
}

func TestLoadSuite_YAML(t *testing.T) {
	path := writeSuiteFile(t, "suite.yaml", `entries:
  - name: checkout
    capture: captures/checkout.png
    reference: refs/checkout.png
    source: sources/checkout.mmd
  - capture: /abs/ingest.png
`)
	s, err := LoadSuite(path)
	if err != nil {
		t.Fatalf("LoadSuite: %v", err)
	}
	if s == nil || len(s.Entries) != 2 {
		t.Fatalf("want 2 entries, got %+v", s)
	}
	dir := filepath.Dir(path)
	if s.Entries[0].Name != "checkout" {
		t.Errorf("first entry name: got %q", s.Entries[0].Name)
	}
	if want := filepath.Join(dir, "captures/checkout.png"); s.Entries[0].Capture != want {
		t.Errorf("capture path: got %q, want %q", s.Entries[0].Capture, want)
	}
	if want := filepath.Join(dir, "refs/checkout.png"); s.Entries[0].Reference != want {
		t.Errorf("reference path: got %q, want %q", s.Entries[0].Reference, want)
	}
	if s.Entries[1].Capture != "/abs/ingest.png" {
		t.Errorf("absolute path rewritten: got %q", s.Entries[1].Capture)
	}
	if s.Entries[1].Name != "ingest" {
		t.Errorf("default name: got %q", s.Entries[1].Name)
	}
}

func TestLoadSuite_JSON(t *testing.T) {
	path := writeSuiteFile(t, "suite.json", `{"entries":[{"name":"a","capture":"a.png"}]}`)
	s, err := LoadSuite(path)
	if err != nil {
		t.Fatalf("LoadSuite: %v", err)
	}
	if len(s.Entries) != 1 || s.Entries[0].Name != "a" {
		t.Errorf("got %+v", s)
	}
}

func TestParseSuite_DetectJSON(t *testing.T) {
	data := []byte(`{"entries":[{"name":"a","capture":"/a.png"}]}`)
	s, err := ParseSuite(data, "")
	if err != nil {
		t.Fatalf("ParseSuite: %v", err)
	}
	if len(s.Entries) != 1 || s.Entries[0].Name != "a" {
		t.Errorf("got %+v", s)
	}
}

func TestParseSuite_DetectYAML(t *testing.T) {
	data := []byte("entries:\n  - name: x\n    capture: /x.png\n")
	s, err := ParseSuite(data, "")
	if err != nil {
		t.Fatalf("ParseSuite: %v", err)
	}
	if len(s.Entries) != 1 || s.Entries[0].Name != "x" {
		t.Errorf("got %+v", s)
	}
}

func TestParseSuite_MissingCapture(t *testing.T) {
	data := []byte("entries:\n  - name: broken\n")
	if _, err := ParseSuite(data, ".yaml"); err == nil {
		t.Fatal("want error for entry without capture path")
	}
}
