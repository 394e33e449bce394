package display

import "testing"

func TestPass(t *testing.T) {
	cases := []struct {
		code, want string
	}{
		{"structure", "Structure"},
		{"components", "Components"},
		{"connections", "Connections"},
		{"styling", "Styling"},
		{"layout", "Layout"},
		{"badges", "Badges"},
		{"unknown-pass", "unknown-pass"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := Pass(tc.code); got != tc.want {
			t.Errorf("Pass(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestPassPath(t *testing.T) {
	got := PassPath([]string{"structure", "layout", "badges"})
	want := "Structure → Layout → Badges"
	if got != want {
		t.Errorf("PassPath = %q, want %q", got, want)
	}
	if got := PassPath(nil); got != "" {
		t.Errorf("PassPath(nil) = %q, want empty", got)
	}
}

func TestDefectType(t *testing.T) {
	cases := []struct {
		code, want string
	}{
		{"missing-element", "Missing Element"},
		{"wrong-label", "Wrong Label"},
		{"missing-group", "Missing Group"},
		{"missing-badge", "Missing Badge"},
		{"wrong-connection", "Wrong Connection"},
		{"bad-syntax", "Bad Syntax"},
		{"wrong-position", "Wrong Position"},
		{"bad-spacing", "Bad Spacing"},
		{"wrong-routing", "Wrong Routing"},
		{"wrong-color", "Wrong Color"},
		{"missing-icon", "Missing Icon"},
		{"layout-overflow", "Layout Overflow"},
		{"mystery", "mystery"},
		{"", ""},
	}
	for _, tc := range cases {
		if got := DefectType(tc.code); got != tc.want {
			t.Errorf("DefectType(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestDefectTypeWithCode(t *testing.T) {
	if got := DefectTypeWithCode("missing-badge"); got != "Missing Badge (missing-badge)" {
		t.Errorf("got %q", got)
	}
	if got := DefectTypeWithCode("mystery"); got != "mystery" {
		t.Errorf("got %q", got)
	}
}

func TestSource(t *testing.T) {
	if got := Source("content"); got != "Content" {
		t.Errorf("got %q", got)
	}
	if got := Source("rendering"); got != "Rendering" {
		t.Errorf("got %q", got)
	}
	if got := Source("other"); got != "other" {
		t.Errorf("got %q", got)
	}
}

func TestPhase(t *testing.T) {
	cases := []struct {
		code, want string
	}{
		{"RENDER", "Render"},
		{"CAPTURE", "Capture"},
		{"EVALUATE", "Evaluate"},
		{"DIAGNOSE", "Diagnose"},
		{"OTHER", "OTHER"},
	}
	for _, tc := range cases {
		if got := Phase(tc.code); got != tc.want {
			t.Errorf("Phase(%q) = %q, want %q", tc.code, got, tc.want)
		}
	}
}

func TestOutcome(t *testing.T) {
	if got := Outcome("CONTINUE"); got != "Continue" {
		t.Errorf("got %q", got)
	}
	if got := Outcome("CONVERGE"); got != "Converged" {
		t.Errorf("got %q", got)
	}
	if got := Outcome("ESCALATE"); got != "Escalated" {
		t.Errorf("got %q", got)
	}
}

func TestStatus(t *testing.T) {
	if got := Status("running"); got != "Running" {
		t.Errorf("got %q", got)
	}
	if got := Status("escalated"); got != "Escalated" {
		t.Errorf("got %q", got)
	}
}

func TestRoute(t *testing.T) {
	if got := Route("direct"); got != "Direct Fix" {
		t.Errorf("got %q", got)
	}
	if got := Route("delegate"); got != "Delegate" {
		t.Errorf("got %q", got)
	}
	if got := Route("none"); got != "No Action" {
		t.Errorf("got %q", got)
	}
}

func TestSkill(t *testing.T) {
	if got := Skill("layout-debugger"); got != "Layout Debugger" {
		t.Errorf("got %q", got)
	}
	if got := Skill("content-modeler"); got != "Content Modeler" {
		t.Errorf("got %q", got)
	}
	if got := Skill("custom"); got != "custom" {
		t.Errorf("got %q", got)
	}
}

func TestSkillWithCode(t *testing.T) {
	if got := SkillWithCode("layout-debugger"); got != "Layout Debugger (layout-debugger)" {
		t.Errorf("got %q", got)
	}
}

func TestRootCause(t *testing.T) {
	if got := RootCause("render_layer"); got != "Render Layer" {
		t.Errorf("got %q", got)
	}
	if got := RootCause("diagram_template"); got != "Diagram Template" {
		t.Errorf("got %q", got)
	}
	if got := RootCause("elsewhere"); got != "elsewhere" {
		t.Errorf("got %q", got)
	}
}

func TestDefectKey(t *testing.T) {
	got := DefectKey("badges:code missing badges")
	want := "Badges / code missing badges"
	if got != want {
		t.Errorf("DefectKey = %q, want %q", got, want)
	}
	if got := DefectKey("nokey"); got != "nokey" {
		t.Errorf("DefectKey = %q, want passthrough", got)
	}
}
