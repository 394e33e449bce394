// Package skills holds the remediation playbooks the convergence loop
// delegates to when a direct patch cannot fix a defect. Each skill is
// an embedded markdown playbook an operator or agent follows.
package skills

import (
	"embed"
	"fmt"
	"sort"
	"strings"
)

// Skill names routable by the diagnosis layer.
const (
	GeneratorDebugger = "generator-debugger"
	ContentModeler    = "content-modeler"
	LayoutDebugger    = "layout-debugger"
	DiagramDebugger   = "diagram-debugger"
	Direct            = "direct"
)

//go:embed playbooks/*.md
var playbookFS embed.FS

// Playbook reads a skill playbook by name from the embedded markdown
// files.
func Playbook(name string) (string, error) {
	data, err := playbookFS.ReadFile("playbooks/" + name + ".md")
	if err != nil {
		return "", fmt.Errorf("skill %q not found (available: %s): %w",
			name, strings.Join(List(), ", "), err)
	}
	return string(data), nil
}

// List returns the names of all embedded skill playbooks, sorted.
func List() []string {
	entries, _ := playbookFS.ReadDir("playbooks")
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".md") {
			names = append(names, strings.TrimSuffix(e.Name(), ".md"))
		}
	}
	sort.Strings(names)
	return names
}

// Instructions builds the remediation brief for a skill: the defect
// being handed off followed by the skill's playbook. Unknown skills get
// a bare invocation line so the loop still has something to dispatch.
func Instructions(name, defect string) string {
	pb, err := Playbook(name)
	if err != nil {
		return fmt.Sprintf("Invoke %s on: %s", name, defect)
	}
	return fmt.Sprintf("Issue: %s\n\n%s", defect, pb)
}
