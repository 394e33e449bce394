// Package evaluate scores a rendered diagram against its reference across
// six weighted passes. Raster analysis is the primary signal; source-text
// checks are the secondary one. Pass scores are percentages and the pass
// weights sum to 1.0.
package evaluate

// Pass identifies one of the six evaluation passes.
type Pass string

const (
	PassStructure   Pass = "structure"
	PassComponents  Pass = "components"
	PassConnections Pass = "connections"
	PassStyling     Pass = "styling"
	PassLayout      Pass = "layout"
	PassBadges      Pass = "badges"
)

// AllPasses returns every pass in canonical execution order.
func AllPasses() []Pass {
	return []Pass{
		PassStructure,
		PassComponents,
		PassConnections,
		PassStyling,
		PassLayout,
		PassBadges,
	}
}

// Weight returns the share of the overall score the pass carries.
func (p Pass) Weight() float64 {
	switch p {
	case PassStructure:
		return 0.15
	case PassComponents:
		return 0.25
	case PassConnections:
		return 0.20
	case PassStyling:
		return 0.15
	case PassLayout:
		return 0.15
	case PassBadges:
		return 0.10
	default:
		return 0
	}
}

// Valid reports whether p is one of the six known passes.
func (p Pass) Valid() bool {
	switch p {
	case PassStructure, PassComponents, PassConnections, PassStyling, PassLayout, PassBadges:
		return true
	default:
		return false
	}
}
