package vision

import (
	"fmt"
	"image"

	"gonum.org/v1/gonum/stat"
)

// ChaosReport is the composite layout-disorder assessment. Score is a 0-100
// penalty sum over four independent signals; it measures scatter and
// imbalance, not element presence.
type ChaosReport struct {
	Score   float64
	Chaotic bool
	Reasons []string

	Density          float64
	QuadrantVariance float64
	LeftThird        float64
	MiddleThird      float64
	RightThird       float64
	ProperFlow       bool
	EmptyRatio       float64
}

// LayoutChaos combines four penalty signals: near-blank canvas, unbalanced
// quadrant densities, missing left-to-right flow, and a high ratio of empty
// grid cells. Each triggered signal adds its fixed penalty.
func LayoutChaos(img image.Image, opts Options) ChaosReport {
	g := toGray(img)
	w, h := g.w, g.h
	if w == 0 || h == 0 {
		return ChaosReport{Score: 100, Chaotic: true, Reasons: []string{"empty raster"}}
	}

	mask := make([]bool, w*h)
	content := 0
	for i, v := range g.pix {
		if v < opts.NearWhite {
			mask[i] = true
			content++
		}
	}

	rep := ChaosReport{Density: float64(content) / float64(w*h)}

	countRect := func(x0, y0, x1, y1 int) int {
		n := 0
		for y := y0; y < y1; y++ {
			for x := x0; x < x1; x++ {
				if mask[y*w+x] {
					n++
				}
			}
		}
		return n
	}

	midH, midW := h/2, w/2
	quadArea := float64(midH * midW)
	quads := []float64{
		float64(countRect(0, 0, midW, midH)) / quadArea,
		float64(countRect(midW, 0, w, midH)) / quadArea,
		float64(countRect(0, midH, midW, h)) / quadArea,
		float64(countRect(midW, midH, w, h)) / quadArea,
	}
	rep.QuadrantVariance = stat.PopVariance(quads, nil)

	thirdW := w / 3
	thirdArea := float64(h * w / 3)
	rep.LeftThird = float64(countRect(0, 0, thirdW, h)) / thirdArea
	rep.MiddleThird = float64(countRect(thirdW, 0, 2*thirdW, h)) / thirdArea
	rep.RightThird = float64(countRect(2*thirdW, 0, w, h)) / thirdArea

	minThird := opts.FlowFallbackFloor
	if rep.Density > opts.FlowMinDensity {
		minThird = rep.Density * opts.FlowFloorFrac
	}
	rep.ProperFlow = rep.LeftThird > minThird &&
		rep.MiddleThird > minThird &&
		rep.RightThird > minThird

	grid := opts.ChaosGrid
	cellH, cellW := h/grid, w/grid
	emptyCells := 0
	for row := 0; row < grid; row++ {
		for col := 0; col < grid; col++ {
			cell := countRect(col*cellW, row*cellH, (col+1)*cellW, (row+1)*cellH)
			if float64(cell)/float64(cellH*cellW) < opts.EmptyCellFrac {
				emptyCells++
			}
		}
	}
	rep.EmptyRatio = float64(emptyCells) / float64(grid*grid)

	if rep.Density < opts.MinDensity {
		rep.Score += opts.PenaltyLowDensity
		rep.Reasons = append(rep.Reasons, fmt.Sprintf("Low content density: %.1f%%", rep.Density*100))
	}
	if rep.QuadrantVariance > opts.QuadrantVarianceMax {
		rep.Score += opts.PenaltyUnbalanced
		rep.Reasons = append(rep.Reasons, fmt.Sprintf("Unbalanced quadrants (variance=%.4f)", rep.QuadrantVariance))
	}
	if !rep.ProperFlow {
		rep.Score += opts.PenaltyNoFlow
		rep.Reasons = append(rep.Reasons, "Missing left-to-right flow")
	}
	if rep.EmptyRatio > opts.EmptyCellRatioMax {
		rep.Score += opts.PenaltyEmptyCells
		rep.Reasons = append(rep.Reasons, fmt.Sprintf("Too many empty regions: %.0f%%", rep.EmptyRatio*100))
	}

	rep.Chaotic = rep.Score >= opts.ChaoticAt
	return rep
}
