package vision

import (
	"image"

	"gonum.org/v1/gonum/stat"
)

// Band is a contiguous run of rows carrying content.
type Band struct {
	Start int // first row, inclusive
	End   int // last row, exclusive
}

// CoherenceReport describes how well content is organized into horizontal
// lanes versus scattered across the canvas.
type CoherenceReport struct {
	Bands []Band
	// Coherence is the fraction of content pixels inside detected bands.
	Coherence float64
	// Scatter is the population variance of per-column content density.
	// Low scatter means content flows evenly left to right.
	Scatter float64
	Chaotic bool
}

// RowCoherence projects the content mask onto both axes: contiguous rows
// above the band threshold form lanes, and column-density variance measures
// horizontal scatter. Chaotic when scatter exceeds the threshold or too
// little content falls inside lanes.
func RowCoherence(img image.Image, opts Options) CoherenceReport {
	g := toGray(img)
	w, h := g.w, g.h
	if w == 0 || h == 0 {
		return CoherenceReport{Chaotic: true}
	}

	rowCount := make([]int, h)
	colCount := make([]int, w)
	total := 0
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if g.at(x, y) < opts.NearWhite {
				rowCount[y]++
				colCount[x]++
				total++
			}
		}
	}

	var rep CoherenceReport
	inBand := false
	for y := 0; y < h; y++ {
		has := float64(rowCount[y])/float64(w) > opts.RowBandFrac
		switch {
		case has && !inBand:
			rep.Bands = append(rep.Bands, Band{Start: y})
			inBand = true
		case !has && inBand:
			rep.Bands[len(rep.Bands)-1].End = y
			inBand = false
		}
	}
	if inBand {
		rep.Bands[len(rep.Bands)-1].End = h
	}

	if total > 0 {
		bandContent := 0
		for _, b := range rep.Bands {
			for y := b.Start; y < b.End; y++ {
				bandContent += rowCount[y]
			}
		}
		rep.Coherence = float64(bandContent) / float64(total)
	}

	colDensity := make([]float64, w)
	for x := 0; x < w; x++ {
		colDensity[x] = float64(colCount[x]) / float64(h)
	}
	rep.Scatter = stat.PopVariance(colDensity, nil)

	rep.Chaotic = rep.Scatter > opts.ScatterThreshold || rep.Coherence < opts.MinCoherence
	return rep
}
