package evaluate

import (
	"fmt"
	"image"
	"log/slog"
	"math"
	"strings"

	"github.com/dpopsuev/visor/internal/config"
	"github.com/dpopsuev/visor/internal/logging"
	"github.com/dpopsuev/visor/internal/mermaid"
	"github.com/dpopsuev/visor/pkg/vision"
)

// Input is one capture to score. Generated is nil when rendering failed,
// Reference is nil when no reference render exists, and Source may be empty
// when only a raster is available. Every pass degrades rather than errors
// on missing inputs.
type Input struct {
	Generated image.Image
	Reference image.Image
	Source    string
}

// Evaluator runs the six passes with thresholds from a single injected
// config. It holds no per-run state; one instance can score any number of
// captures.
type Evaluator struct {
	cfg config.Config
	log *slog.Logger
}

func New(cfg config.Config) *Evaluator {
	return &Evaluator{cfg: cfg, log: logging.New("evaluate")}
}

// Evaluate runs every pass and folds the weighted scores into the overall
// percentage. The iteration number is carried through for reporting only.
func (e *Evaluator) Evaluate(in Input, iteration int) Result {
	passes := map[Pass]PassResult{
		PassStructure:   e.structure(in),
		PassComponents:  e.components(in),
		PassConnections: e.connections(in),
		PassStyling:     e.styling(in),
		PassLayout:      e.layout(in),
		PassBadges:      e.badges(in),
	}

	var overall float64
	for _, pr := range passes {
		overall += pr.WeightedScore()
	}

	res := Result{
		Passes:       passes,
		OverallScore: overall,
		Converged:    overall >= e.cfg.Target,
		Iteration:    iteration,
	}
	e.log.Debug("evaluation complete",
		slog.Int("iteration", iteration),
		slog.Float64("overall", overall),
		slog.Bool("converged", res.Converged))
	return res
}

// structure checks subgraph hierarchy and rendering integrity: empty
// placeholder boxes and content density on the raster, declared groups in
// the source.
func (e *Evaluator) structure(in Input) PassResult {
	var findings, defects []string
	score := 100.0

	if in.Generated != nil {
		boxes := vision.DetectEmptyRegions(in.Generated, e.cfg.Vision)
		if len(boxes) > 0 {
			defects = append(defects, fmt.Sprintf("VISUAL: Found %d empty/placeholder boxes", len(boxes)))
			score -= math.Min(40, float64(len(boxes))*10)
			findings = append(findings, fmt.Sprintf("Empty box regions detected at: %v", head(boxes, 3)))
		} else {
			findings = append(findings, "VISUAL: No empty placeholder boxes detected")
		}

		density := vision.ContentDensity(in.Generated, e.cfg.Vision)
		findings = append(findings, fmt.Sprintf("VISUAL: Content density: %.1f%%", density*100))
		if density < e.cfg.Evaluator.DensityVeryLow {
			defects = append(defects, fmt.Sprintf("VISUAL: Very low content density (%.1f%%) - diagram may be mostly empty", density*100))
			score -= 25
		} else if density < e.cfg.Evaluator.DensityLow {
			defects = append(defects, fmt.Sprintf("VISUAL: Low content density (%.1f%%) - missing content", density*100))
			score -= 10
		}

		if in.Reference != nil {
			refDensity := vision.ContentDensity(in.Reference, e.cfg.Vision)
			diff := math.Abs(refDensity - density)
			findings = append(findings, fmt.Sprintf("VISUAL: Reference density: %.1f%%, diff: %.1f%%", refDensity*100, diff*100))
			if diff > e.cfg.Evaluator.DensityDiffMax {
				defects = append(defects, fmt.Sprintf("VISUAL: Content density differs significantly from reference (%.1f%%)", diff*100))
				score -= 15
			}
		}
	} else {
		defects = append(defects, "VISUAL: No generated image to analyze")
		score -= 30
	}

	if in.Source != "" {
		found := 0
		for _, group := range e.cfg.Template.Groups {
			if mermaid.HasGroup(in.Source, group) {
				found++
			} else {
				defects = append(defects, "CODE: Missing subgraph: "+group)
			}
		}
		findings = append(findings, fmt.Sprintf("CODE: Found %d/%d expected subgraphs", found, len(e.cfg.Template.Groups)))
		if missing := len(e.cfg.Template.Groups) - found; missing > 0 {
			score -= math.Min(20, float64(missing)*2)
		}
	}

	var suggestions []string
	if len(defects) > 0 {
		suggestions = []string{
			"Check for rendering issues causing empty boxes",
			"Ensure all lanes and sections are defined as subgraphs",
		}
	}
	return PassResult{
		Pass:        PassStructure,
		Score:       math.Max(0, score),
		Findings:    findings,
		Defects:     defects,
		Suggestions: suggestions,
	}
}

// components checks that the expected inventory is present: visible label
// regions on the raster, component names in the source. Code coverage can
// only cap the score, never raise it.
func (e *Evaluator) components(in Input) PassResult {
	var findings, defects []string
	score := 100.0

	if in.Generated != nil {
		genRegions := vision.TextRegions(in.Generated, e.cfg.Vision)
		findings = append(findings, fmt.Sprintf("VISUAL: Detected ~%d text/label regions", genRegions))

		if in.Reference != nil {
			refRegions := vision.TextRegions(in.Reference, e.cfg.Vision)
			findings = append(findings, fmt.Sprintf("VISUAL: Reference has ~%d text regions", refRegions))
			// Lenient ratios: the reference render is busier than a
			// generated diagram is expected to be.
			if float64(genRegions) < float64(refRegions)*e.cfg.Evaluator.RefLabelsSevere {
				defects = append(defects, fmt.Sprintf("VISUAL: Very few labels compared to reference (%d vs %d)", genRegions, refRegions))
				score -= 20
			} else if float64(genRegions) < float64(refRegions)*e.cfg.Evaluator.RefLabelsLow {
				defects = append(defects, fmt.Sprintf("VISUAL: Fewer labels than reference (%d vs %d)", genRegions, refRegions))
				score -= 10
			}
		}

		if genRegions < e.cfg.Evaluator.MinTextRegions {
			defects = append(defects, fmt.Sprintf("VISUAL: Too few visible labels (%d < %d expected)", genRegions, e.cfg.Evaluator.MinTextRegions))
			score -= 20
		}
	} else {
		defects = append(defects, "VISUAL: No generated image for component analysis")
		score -= 25
	}

	var missing []string
	if in.Source != "" {
		found := 0
		for _, comp := range e.cfg.Template.Components {
			if mermaid.ContainsFold(in.Source, comp) {
				found++
			} else {
				missing = append(missing, comp)
			}
		}
		coverage := float64(found) / float64(len(e.cfg.Template.Components))
		findings = append(findings, fmt.Sprintf("CODE: Component coverage: %d/%d (%.0f%%)", found, len(e.cfg.Template.Components), coverage*100))
		if len(missing) > 0 {
			defects = append(defects, fmt.Sprintf("CODE: Missing %d components: %s", len(missing), strings.Join(head(missing, 5), ", ")))
			score = math.Min(score, 50+coverage*50)
		}
	}

	return PassResult{
		Pass:        PassComponents,
		Score:       math.Max(0, math.Min(100, score)),
		Findings:    findings,
		Defects:     defects,
		Suggestions: componentSuggestions(missing),
	}
}

func componentSuggestions(missing []string) []string {
	var out []string
	for _, comp := range head(missing, 3) {
		out = append(out, fmt.Sprintf("Add %s node - search the platform docs for '%s architecture'", comp, comp))
	}
	return out
}

// connections is a source-only pass: edge count, labeled edges and the
// expected flow labels. Without source there is nothing to count and the
// score settles at a fixed midpoint.
func (e *Evaluator) connections(in Input) PassResult {
	var findings, defects []string
	score := 100.0

	if in.Source != "" {
		total := mermaid.CountConnections(in.Source)
		findings = append(findings, fmt.Sprintf("Total connections found: %d", total))
		findings = append(findings, fmt.Sprintf("Labeled edges: %d", mermaid.CountLabeledEdges(in.Source)))

		if total >= e.cfg.Template.MinConnections {
			findings = append(findings, fmt.Sprintf("Connection count meets minimum (%d)", e.cfg.Template.MinConnections))
		} else {
			defects = append(defects, fmt.Sprintf("Insufficient connections: %d < %d", total, e.cfg.Template.MinConnections))
			score -= 20
		}

		for _, label := range e.cfg.Template.FlowLabels {
			if mermaid.ContainsFold(in.Source, label) {
				findings = append(findings, "Found flow label: "+label)
			} else {
				defects = append(defects, "Missing flow label: "+label)
				score -= 5
			}
		}
	} else {
		score = 75
	}

	var suggestions []string
	if len(defects) > 0 {
		suggestions = []string{"Add edge labels for data flow types"}
	}
	return PassResult{
		Pass:        PassConnections,
		Score:       math.Max(0, score),
		Findings:    findings,
		Defects:     defects,
		Suggestions: suggestions,
	}
}

// styling checks the badge style classes carry the expected fill colors and
// that enough per-group style overrides exist.
func (e *Evaluator) styling(in Input) PassResult {
	var findings, defects []string
	score := 100.0

	if in.Source != "" {
		expected := []struct {
			class string
			color string
		}{
			{e.cfg.Template.LaneBadgeClass, e.cfg.Template.LaneBadgeColor},
			{e.cfg.Template.SectionBadgeClass, e.cfg.Template.SectionBadgeColor},
		}
		for _, want := range expected {
			if mermaid.HasClassDef(in.Source, want.class) {
				findings = append(findings, "Found classDef: "+want.class)
				if mermaid.ContainsFold(in.Source, want.color) {
					findings = append(findings, "  Color correct: "+want.color)
				} else {
					defects = append(defects, fmt.Sprintf("Wrong color for %s, expected %s", want.class, want.color))
					score -= 10
				}
			} else {
				defects = append(defects, "Missing classDef: "+want.class)
				score -= 15
			}
		}

		styleCount := mermaid.CountStyleAssignments(in.Source)
		findings = append(findings, fmt.Sprintf("Subgraph styles found: %d", styleCount))
		if styleCount < e.cfg.Template.MinStyleAssignments {
			defects = append(defects, "Insufficient subgraph styling")
			score -= 10
		}
	} else {
		score = 70
	}

	var suggestions []string
	if len(defects) > 0 {
		suggestions = []string{"Add classDef for lane and section badges"}
	}
	return PassResult{
		Pass:        PassStyling,
		Score:       math.Max(0, score),
		Findings:    findings,
		Defects:     defects,
		Suggestions: suggestions,
	}
}

// layout is the pass that must fail chaotic renders: chaos scoring, lane
// band coherence and left-to-right flow, with similarity to the reference
// reported as informational only.
func (e *Evaluator) layout(in Input) PassResult {
	var findings, defects []string
	score := 100.0

	if in.Generated != nil {
		chaos := vision.LayoutChaos(in.Generated, e.cfg.Vision)
		findings = append(findings, fmt.Sprintf("VISUAL: Chaos score: %.0f/100", chaos.Score))
		if chaos.Chaotic {
			defects = append(defects, fmt.Sprintf("VISUAL: CHAOTIC LAYOUT DETECTED (score=%.0f)", chaos.Score))
			for _, reason := range chaos.Reasons {
				defects = append(defects, "  - "+reason)
			}
			score -= 40
		} else {
			findings = append(findings, "VISUAL: Layout organization is acceptable")
		}

		coherence := vision.RowCoherence(in.Generated, e.cfg.Vision)
		findings = append(findings, fmt.Sprintf("VISUAL: Horizontal bands: %d (expected: %d)", len(coherence.Bands), e.cfg.Template.MinLanes))
		findings = append(findings, fmt.Sprintf("VISUAL: Coherence ratio: %.1f%%", coherence.Coherence*100))
		if coherence.Chaotic {
			defects = append(defects, "VISUAL: Content not organized in horizontal lanes")
			score -= 20
		}
		if len(coherence.Bands) < e.cfg.Evaluator.MinHorizontalBands {
			defects = append(defects, fmt.Sprintf("VISUAL: Missing horizontal lane structure (found %d)", len(coherence.Bands)))
			score -= 15
		} else if len(coherence.Bands) > e.cfg.Evaluator.MaxHorizontalBands {
			defects = append(defects, fmt.Sprintf("VISUAL: Too many fragmented bands (%d) - layout may be scattered", len(coherence.Bands)))
			score -= 10
		}

		if !chaos.ProperFlow {
			defects = append(defects, "VISUAL: Content doesn't span left-to-right properly")
			score -= 15
		} else {
			findings = append(findings, "VISUAL: Left-to-right flow verified")
		}
	}

	// Similarity to the reference never moves the score: a reference scan
	// and a fresh render differ pixel-wise even when the layout matches.
	switch {
	case in.Generated != nil && in.Reference != nil:
		ssim := vision.Similarity(in.Reference, in.Generated)
		findings = append(findings, fmt.Sprintf("VISUAL: SSIM similarity to reference: %.1f%% (informational)", ssim*100))

		genB, refB := in.Generated.Bounds(), in.Reference.Bounds()
		genRatio := float64(genB.Dx()) / float64(genB.Dy())
		refRatio := float64(refB.Dx()) / float64(refB.Dy())
		findings = append(findings, fmt.Sprintf("VISUAL: Aspect ratio diff: %.2f (informational)", math.Abs(genRatio-refRatio)))
	case in.Generated != nil:
		defects = append(defects, "VISUAL: No reference image for SSIM comparison")
		score -= 10
	default:
		defects = append(defects, "VISUAL: No generated image for layout analysis")
		score -= 50
	}

	if in.Source != "" {
		switch mermaid.Direction(in.Source) {
		case e.cfg.Template.Direction:
			findings = append(findings, "CODE: Flowchart direction: Left-to-Right (correct)")
		case "TB":
			defects = append(defects, "CODE: Flowchart direction is TB, should be "+e.cfg.Template.Direction)
			score -= 10
		}

		if lanes := mermaid.CountLanes(in.Source); lanes < e.cfg.Template.MinLanes {
			defects = append(defects, fmt.Sprintf("CODE: Missing lane subgraphs: expected %d, found %d", e.cfg.Template.MinLanes, lanes))
			score -= 5
		}
	}

	var suggestions []string
	if len(defects) > 0 {
		suggestions = []string{
			"Use the layout-debugger skill for layout issues",
			"Ensure content flows left-to-right in horizontal lanes",
			"Check that badges are positioned correctly (purple=left, blue=center)",
			"Compare visual output with the reference image",
		}
	}
	return PassResult{
		Pass:        PassLayout,
		Score:       math.Max(0, score),
		Findings:    findings,
		Defects:     defects,
		Suggestions: suggestions,
	}
}

// badges checks position quality, not just presence: lane badges must
// cluster in the left rail and section badges in the center band, and
// scattered badge families fail harder than missing ones.
func (e *Evaluator) badges(in Input) PassResult {
	var findings, defects []string
	score := 100.0

	expectedLane := len(e.cfg.Template.LaneBadges)
	expectedSection := len(e.cfg.Template.SectionBadges)

	if in.Generated != nil {
		report := vision.BadgePositions(in.Generated, e.cfg.Vision)
		purpleDetected := len(report.PurpleClusters)
		blueDetected := len(report.BlueClusters)

		findings = append(findings, fmt.Sprintf("VISUAL: Purple badges detected: ~%d (expected: %d)", purpleDetected, expectedLane))
		findings = append(findings, fmt.Sprintf("VISUAL: Blue badges detected: ~%d (expected: %d)", blueDetected, expectedSection))
		findings = append(findings, fmt.Sprintf("VISUAL: Badge position quality: %.0f%%", report.Quality))

		if totalPurple := report.PurpleInZone + report.PurpleMisplaced; totalPurple > 0 {
			ratio := float64(report.PurpleInZone) / float64(totalPurple)
			switch {
			case ratio < e.cfg.Evaluator.LaneRatioScattered:
				defects = append(defects, fmt.Sprintf("VISUAL: Only %.0f%% of purple badges in left zone - SCATTERED!", ratio*100))
				score -= 25
			case ratio < e.cfg.Evaluator.LaneRatioGood:
				defects = append(defects, fmt.Sprintf("VISUAL: %.0f%% purple badges in left zone (need >%.0f%%)", ratio*100, e.cfg.Evaluator.LaneRatioGood*100))
				score -= 15
			default:
				findings = append(findings, fmt.Sprintf("VISUAL: Purple badges well-positioned (%.0f%% in left zone)", ratio*100))
			}
		}

		if totalBlue := report.BlueInZone + report.BlueMisplaced; totalBlue > 0 {
			ratio := float64(report.BlueInZone) / float64(totalBlue)
			switch {
			case ratio < e.cfg.Evaluator.SectionRatioScattered:
				defects = append(defects, fmt.Sprintf("VISUAL: Only %.0f%% of blue badges in center zone - SCATTERED!", ratio*100))
				score -= 20
			case ratio < e.cfg.Evaluator.SectionRatioGood:
				defects = append(defects, fmt.Sprintf("VISUAL: %.0f%% blue badges in center zone (need >%.0f%%)", ratio*100, e.cfg.Evaluator.SectionRatioGood*100))
				score -= 10
			default:
				findings = append(findings, fmt.Sprintf("VISUAL: Blue badges well-positioned (%.0f%% in center zone)", ratio*100))
			}
		}

		if purpleDetected == 0 {
			defects = append(defects, "VISUAL: NO purple lane badges detected!")
			score -= 35
		} else if purpleDetected < expectedLane {
			missing := expectedLane - purpleDetected
			defects = append(defects, fmt.Sprintf("VISUAL: Missing %d purple lane badge(s)", missing))
			score -= float64(missing) * 10
		}

		if blueDetected == 0 {
			defects = append(defects, "VISUAL: NO blue section badges detected!")
			score -= 30
		} else if blueDetected < expectedSection {
			missing := expectedSection - blueDetected
			defects = append(defects, fmt.Sprintf("VISUAL: Missing %d blue section badge(s)", missing))
			score -= float64(missing) * 8
		}

		if report.Quality < e.cfg.Evaluator.PositionQualityPoor {
			defects = append(defects, fmt.Sprintf("VISUAL: Badge positions are POOR (%.0f%%) - layout quality issue", report.Quality))
			score -= 20
		} else if report.Quality < e.cfg.Evaluator.PositionQualityFair {
			defects = append(defects, fmt.Sprintf("VISUAL: Badge positions need improvement (%.0f%%)", report.Quality))
			score -= 10
		}

		if in.Reference != nil {
			// Reference scans overcount badge-colored pixels, so the
			// comparison stays informational.
			refReport := vision.BadgePositions(in.Reference, e.cfg.Vision)
			findings = append(findings, fmt.Sprintf("VISUAL: Reference badges - purple: ~%d, blue: ~%d (informational)",
				len(refReport.PurpleClusters), len(refReport.BlueClusters)))
		}
	} else {
		defects = append(defects, "VISUAL: No generated image for badge detection")
		score -= 40
	}

	if in.Source != "" {
		declared := 0
		all := append(append([]string{}, e.cfg.Template.LaneBadges...), e.cfg.Template.SectionBadges...)
		for _, label := range all {
			if mermaid.HasBadge(in.Source, label) {
				declared++
			}
		}
		findings = append(findings, fmt.Sprintf("CODE: %d/%d badges defined in code", declared, len(all)))

		if strings.Contains(in.Source, e.cfg.Template.LaneBadgeClass) && strings.Contains(in.Source, e.cfg.Template.SectionBadgeClass) {
			findings = append(findings, "CODE: Badge styling classes defined")
		} else {
			defects = append(defects, fmt.Sprintf("CODE: Missing badge styling classes (%s/%s)", e.cfg.Template.LaneBadgeClass, e.cfg.Template.SectionBadgeClass))
			score -= 5
		}
	}

	var suggestions []string
	if len(defects) > 0 {
		suggestions = []string{
			fmt.Sprintf("Check that all %d badges (%s purple, %s blue) render visually",
				expectedLane+expectedSection, badgeRange(e.cfg.Template.LaneBadges), badgeRange(e.cfg.Template.SectionBadges)),
			fmt.Sprintf("Verify badge colors match: purple=%s, blue=%s", e.cfg.Template.LaneBadgeColor, e.cfg.Template.SectionBadgeColor),
			"Use invisible connections (~~~) for badge positioning",
		}
	}
	return PassResult{
		Pass:        PassBadges,
		Score:       math.Max(0, score),
		Findings:    findings,
		Defects:     defects,
		Suggestions: suggestions,
	}
}

func badgeRange(labels []string) string {
	if len(labels) == 0 {
		return ""
	}
	if len(labels) == 1 {
		return labels[0]
	}
	return labels[0] + "-" + labels[len(labels)-1]
}

func head[T any](s []T, n int) []T {
	if len(s) > n {
		return s[:n]
	}
	return s
}
