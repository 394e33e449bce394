// Package config centralizes every tunable of the convergence engine in one
// structure: quality target, iteration caps, per-pass diagnosis thresholds,
// pixel-analysis options, evaluator heuristics, the diagram template
// convention and capture settings. A single Config flows from the CLI into
// the evaluators and the controller; tests vary sensitivity by overriding
// fields instead of editing algorithm code.
package config

import (
	"time"

	"github.com/dpopsuev/visor/pkg/vision"
)

// Config is the root of all engine tunables.
type Config struct {
	// Target is the overall score at or above which the loop converges.
	Target float64 `json:"target" yaml:"target"`
	// MaxIterations bounds the convergence loop. Exhausting it is a
	// terminal report, not an error.
	MaxIterations int `json:"max_iterations" yaml:"max_iterations"`
	// GutterThreshold is how many times the same defect signature may
	// recur before the loop escalates.
	GutterThreshold int `json:"gutter_threshold" yaml:"gutter_threshold"`

	// PassThresholds are the per-pass scores below which the classifier
	// derives defects. Distinct from Target: a pass can drag diagnosis
	// while the overall score still converges.
	PassThresholds map[string]float64 `json:"pass_thresholds" yaml:"pass_thresholds"`

	Vision    vision.Options `json:"vision" yaml:"vision"`
	Evaluator Evaluator      `json:"evaluator" yaml:"evaluator"`
	Template  Template       `json:"template" yaml:"template"`
	Capture   Capture        `json:"capture" yaml:"capture"`
}

// Evaluator holds the heuristic cutoffs shared by the pass evaluators.
// Penalty amounts are part of the scoring rubric and stay in the pass code;
// only the thresholds that decide whether a penalty fires live here.
type Evaluator struct {
	// Structure pass density checks.
	DensityVeryLow float64 `json:"density_very_low" yaml:"density_very_low"` // below: diagram mostly empty
	DensityLow     float64 `json:"density_low" yaml:"density_low"`
	DensityDiffMax float64 `json:"density_diff_max" yaml:"density_diff_max"` // max deviation from reference

	// Components pass label checks.
	MinTextRegions    int     `json:"min_text_regions" yaml:"min_text_regions"`
	RefLabelsSevere   float64 `json:"ref_labels_severe" yaml:"ref_labels_severe"` // fraction of reference labels
	RefLabelsLow      float64 `json:"ref_labels_low" yaml:"ref_labels_low"`

	// Layout pass band structure.
	MinHorizontalBands int `json:"min_horizontal_bands" yaml:"min_horizontal_bands"`
	MaxHorizontalBands int `json:"max_horizontal_bands" yaml:"max_horizontal_bands"` // above: fragmented

	// Badges pass zone ratios. Below Scattered the badge family counts as
	// scattered, which is a larger penalty than a plain undercount.
	LaneRatioScattered    float64 `json:"lane_ratio_scattered" yaml:"lane_ratio_scattered"`
	LaneRatioGood         float64 `json:"lane_ratio_good" yaml:"lane_ratio_good"`
	SectionRatioScattered float64 `json:"section_ratio_scattered" yaml:"section_ratio_scattered"`
	SectionRatioGood      float64 `json:"section_ratio_good" yaml:"section_ratio_good"`
	PositionQualityPoor   float64 `json:"position_quality_poor" yaml:"position_quality_poor"`
	PositionQualityFair   float64 `json:"position_quality_fair" yaml:"position_quality_fair"`
}

// Template describes the diagram convention a render is scored against:
// which groups, components, badges and labels the generated source text is
// expected to declare.
type Template struct {
	// Direction is the declared flow direction, e.g. "LR".
	Direction string `json:"direction" yaml:"direction"`
	// Groups are the subgraph identifiers the source must define.
	Groups []string `json:"groups" yaml:"groups"`
	// Components are node labels expected somewhere in the source.
	Components []string `json:"components" yaml:"components"`
	// FlowLabels are edge annotations expected on the main data paths.
	FlowLabels []string `json:"flow_labels" yaml:"flow_labels"`

	// The two badge families: lane badges on the left rail and section
	// badges in the central band.
	LaneBadges        []string `json:"lane_badges" yaml:"lane_badges"`
	SectionBadges     []string `json:"section_badges" yaml:"section_badges"`
	LaneBadgeClass    string   `json:"lane_badge_class" yaml:"lane_badge_class"`
	SectionBadgeClass string   `json:"section_badge_class" yaml:"section_badge_class"`
	LaneBadgeColor    string   `json:"lane_badge_color" yaml:"lane_badge_color"`
	SectionBadgeColor string   `json:"section_badge_color" yaml:"section_badge_color"`

	MinConnections      int `json:"min_connections" yaml:"min_connections"`
	MinStyleAssignments int `json:"min_style_assignments" yaml:"min_style_assignments"`
	MinLanes            int `json:"min_lanes" yaml:"min_lanes"`
}

// Capture configures the headless-browser screenshot step.
type Capture struct {
	ViewportWidth  int `json:"viewport_width" yaml:"viewport_width"`
	ViewportHeight int `json:"viewport_height" yaml:"viewport_height"`
	// Selector is the element to wait for and screenshot.
	Selector string `json:"selector" yaml:"selector"`
	// SettleMS is extra wait after the selector appears, for font loading
	// and layout animation.
	SettleMS int `json:"settle_ms" yaml:"settle_ms"`
}

// Settle returns the post-render wait as a duration.
func (c Capture) Settle() time.Duration {
	return time.Duration(c.SettleMS) * time.Millisecond
}

// Default returns the calibrated configuration. The strict profile: these
// values fail scattered and half-rendered diagrams on purpose.
func Default() Config {
	return Config{
		Target:          95.0,
		MaxIterations:   10,
		GutterThreshold: 3,

		PassThresholds: map[string]float64{
			"structure":   80,
			"components":  90,
			"connections": 85,
			"styling":     80,
			"layout":      70,
			"badges":      90,
		},

		Vision: vision.DefaultOptions(),

		Evaluator: Evaluator{
			DensityVeryLow: 0.10,
			DensityLow:     0.15,
			DensityDiffMax: 0.20,

			MinTextRegions:  15,
			RefLabelsSevere: 0.15,
			RefLabelsLow:    0.25,

			MinHorizontalBands: 3,
			MaxHorizontalBands: 15,

			LaneRatioScattered:    0.5,
			LaneRatioGood:         0.7,
			SectionRatioScattered: 0.4,
			SectionRatioGood:      0.6,
			PositionQualityPoor:   50,
			PositionQualityFair:   75,
		},

		Template: DefaultTemplate(),

		Capture: Capture{
			ViewportWidth:  1920,
			ViewportHeight: 1080,
			Selector:       "svg[id^='mermaid']",
			SettleMS:       2000,
		},
	}
}

// DefaultTemplate is the streaming-stack lane diagram convention: four
// horizontal lanes badged 1a-1d on the left, four vertical sections badged
// 2-5 through the center, content flowing left to right.
func DefaultTemplate() Template {
	return Template{
		Direction: "LR",
		Groups: []string{
			"lane_1a", "lane_1b", "lane_1c", "lane_1d",
			"platform", "section_2", "section_3", "section_4", "section_5",
			"producer",
		},
		Components: []string{
			"Producer", "Kafka", "Firehose", "Kinesis", "Event Hubs", "Pub/Sub",
			"S3", "Azure Blob", "GCS", "Exchange", "Stream Ingest",
			"Batch Ingest", "Managed App", "Aggregation", "Serverless Tasks",
			"Normalized", "Dynamic", "Stored Procs", "Instant",
			"Compute Pool", "Container", "Analytics", "Streaming",
		},
		FlowLabels: []string{"Streaming", "Batch", "row-set"},

		LaneBadges:        []string{"1a", "1b", "1c", "1d"},
		SectionBadges:     []string{"2", "3", "4", "5"},
		LaneBadgeClass:    "laneBadge",
		SectionBadgeClass: "sectionBadge",
		LaneBadgeColor:    "#7C3AED",
		SectionBadgeColor: "#2563EB",

		MinConnections:      25,
		MinStyleAssignments: 5,
		MinLanes:            4,
	}
}
