// Package vision provides low-level pixel analysis for rendered diagram
// images: content density, color-cluster detection, badge position quality,
// horizontal band coherence, layout chaos scoring, empty-region detection
// and text-region estimation.
//
// All functions are stateless and read-only over the raster they are given;
// the caller owns the image. Tunables live in Options so callers can vary
// sensitivity without touching algorithm code.
package vision

import "image"

// Options holds every detection tunable. Zero values are not usable;
// start from DefaultOptions and override fields as needed.
type Options struct {
	// NearWhite is the luminance threshold below which a pixel counts as
	// content. Calibrated to white-background diagram renders.
	NearWhite float64 `json:"near_white" yaml:"near_white"`

	// MinClusterSize is the minimum pixel count for a color cluster to be
	// treated as a badge rather than noise.
	MinClusterSize int `json:"min_cluster_size" yaml:"min_cluster_size"`

	// Badge placement zones, as fractions of image width.
	LeftZoneFrac    float64 `json:"left_zone_frac" yaml:"left_zone_frac"`       // purple badges belong left of this
	CenterZoneStart float64 `json:"center_zone_start" yaml:"center_zone_start"` // blue badges belong inside this band
	CenterZoneEnd   float64 `json:"center_zone_end" yaml:"center_zone_end"`

	// Horizontal band detection.
	RowBandFrac      float64 `json:"row_band_frac" yaml:"row_band_frac"`           // row is "in a band" above this content fraction
	MinCoherence     float64 `json:"min_coherence" yaml:"min_coherence"`           // below this in-band fraction the layout is chaotic
	ScatterThreshold float64 `json:"scatter_threshold" yaml:"scatter_threshold"`   // column-density variance above this is chaotic

	// Chaos scoring.
	MinDensity          float64 `json:"min_density" yaml:"min_density"` // overall density below this is near-blank
	QuadrantVarianceMax float64 `json:"quadrant_variance_max" yaml:"quadrant_variance_max"`
	ChaosGrid           int     `json:"chaos_grid" yaml:"chaos_grid"`           // grid for the empty-cell sweep
	EmptyCellFrac       float64 `json:"empty_cell_frac" yaml:"empty_cell_frac"` // cell density below this counts as empty
	EmptyCellRatioMax   float64 `json:"empty_cell_ratio_max" yaml:"empty_cell_ratio_max"`
	ChaoticAt           float64 `json:"chaotic_at" yaml:"chaotic_at"` // chaos score at or above this is chaotic
	PenaltyLowDensity   float64 `json:"penalty_low_density" yaml:"penalty_low_density"`
	PenaltyUnbalanced   float64 `json:"penalty_unbalanced" yaml:"penalty_unbalanced"`
	PenaltyNoFlow       float64 `json:"penalty_no_flow" yaml:"penalty_no_flow"`
	PenaltyEmptyCells   float64 `json:"penalty_empty_cells" yaml:"penalty_empty_cells"`
	FlowFloorFrac       float64 `json:"flow_floor_frac" yaml:"flow_floor_frac"` // each third needs this fraction of mean density
	FlowMinDensity      float64 `json:"flow_min_density" yaml:"flow_min_density"`
	FlowFallbackFloor   float64 `json:"flow_fallback_floor" yaml:"flow_fallback_floor"`

	// Empty-region detection. The canvas offsets skip application chrome
	// (sidebar, toolbar) present in full-page captures.
	CanvasOffsetX    int     `json:"canvas_offset_x" yaml:"canvas_offset_x"`
	CanvasOffsetY    int     `json:"canvas_offset_y" yaml:"canvas_offset_y"`
	BoxGrid          int     `json:"box_grid" yaml:"box_grid"`
	BoxStride        int     `json:"box_stride" yaml:"box_stride"`
	BoxStdMax        float64 `json:"box_std_max" yaml:"box_std_max"`
	BoxEdgeMin       float64 `json:"box_edge_min" yaml:"box_edge_min"`
	BoxEdgeMax       float64 `json:"box_edge_max" yaml:"box_edge_max"`
	BoxEdgeThreshold float64 `json:"box_edge_threshold" yaml:"box_edge_threshold"`
	BoxMeanMin       float64 `json:"box_mean_min" yaml:"box_mean_min"`
	MinBoxSpan       int     `json:"min_box_span" yaml:"min_box_span"`

	// Text-region estimation.
	TextGrid          int     `json:"text_grid" yaml:"text_grid"`
	TextEdgeMin       float64 `json:"text_edge_min" yaml:"text_edge_min"`
	TextEdgeMax       float64 `json:"text_edge_max" yaml:"text_edge_max"`
	TextEdgeThreshold float64 `json:"text_edge_threshold" yaml:"text_edge_threshold"`
}

// DefaultOptions returns the calibrated defaults. These match the strict
// evaluation profile: do not relax them to make a bad render pass.
func DefaultOptions() Options {
	return Options{
		NearWhite:      240,
		MinClusterSize: 40,

		LeftZoneFrac:    0.30,
		CenterZoneStart: 0.25,
		CenterZoneEnd:   0.80,

		RowBandFrac:      0.05,
		MinCoherence:     0.60,
		ScatterThreshold: 0.025,

		MinDensity:          0.05,
		QuadrantVarianceMax: 0.01,
		ChaosGrid:           4,
		EmptyCellFrac:       0.02,
		EmptyCellRatioMax:   0.4,
		ChaoticAt:           40,
		PenaltyLowDensity:   30,
		PenaltyUnbalanced:   20,
		PenaltyNoFlow:       25,
		PenaltyEmptyCells:   25,
		FlowFloorFrac:       0.3,
		FlowMinDensity:      0.02,
		FlowFallbackFloor:   0.01,

		CanvasOffsetX:    260,
		CanvasOffsetY:    70,
		BoxGrid:          40,
		BoxStride:        20,
		BoxStdMax:        5,
		BoxEdgeMin:       0.08,
		BoxEdgeMax:       0.18,
		BoxEdgeThreshold: 30,
		BoxMeanMin:       240,
		MinBoxSpan:       150,

		TextGrid:          30,
		TextEdgeMin:       0.05,
		TextEdgeMax:       0.35,
		TextEdgeThreshold: 50,
	}
}

// ColorPredicate reports whether an 8-bit RGB pixel belongs to a color mask.
type ColorPredicate func(r, g, b uint8) bool

// PurpleBadge matches the purple badge family across the renderer palette
// (#7C3AED) and scanned-reference variants (#7d44cf, #a166ff).
func PurpleBadge(r, g, b uint8) bool {
	return r > 90 && r < 180 && g < 120 && b > 180
}

// BlueBadge matches the blue badge family across the renderer palette
// (#2563EB) and scanned-reference variants (#2ab5e8, #11567f).
func BlueBadge(r, g, b uint8) bool {
	return r < 80 && g > 60 && g < 200 && b > 100
}

// Cluster is one connected component of mask pixels.
type Cluster struct {
	X     float64 // centroid x
	Y     float64 // centroid y
	Count int     // pixel count
}

// grayImage is a float64 luminance raster used by the mask-based metrics.
type grayImage struct {
	pix  []float64
	w, h int
}

func (g *grayImage) at(x, y int) float64 { return g.pix[y*g.w+x] }

// toGray converts using the ITU-R 601-2 luma transform.
func toGray(img image.Image) *grayImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	g := &grayImage{pix: make([]float64, w*h), w: w, h: h}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, gr, bl := rgb8At(img, b.Min.X+x, b.Min.Y+y)
			g.pix[y*w+x] = (299*float64(r) + 587*float64(gr) + 114*float64(bl)) / 1000
		}
	}
	return g
}

// toChannelMean converts by averaging the three channels. Similarity uses
// this flat gray rather than the luma transform.
func toChannelMean(img image.Image) *grayImage {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	g := &grayImage{pix: make([]float64, w*h), w: w, h: h}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, gr, bl := rgb8At(img, b.Min.X+x, b.Min.Y+y)
			g.pix[y*w+x] = (float64(r) + float64(gr) + float64(bl)) / 3
		}
	}
	return g
}

// rgb8At reads a pixel as 8-bit RGB with a fast path for the common
// decoded-PNG representations.
func rgb8At(img image.Image, x, y int) (uint8, uint8, uint8) {
	switch im := img.(type) {
	case *image.RGBA:
		i := im.PixOffset(x, y)
		return im.Pix[i], im.Pix[i+1], im.Pix[i+2]
	case *image.NRGBA:
		i := im.PixOffset(x, y)
		return im.Pix[i], im.Pix[i+1], im.Pix[i+2]
	default:
		r, g, b, _ := img.At(x, y).RGBA()
		return uint8(r >> 8), uint8(g >> 8), uint8(b >> 8)
	}
}
