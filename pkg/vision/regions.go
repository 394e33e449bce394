package vision

import (
	"image"
	"math"
)

// edgeMap applies a 3x3 Laplacian edge filter (center 8, neighbors -1) and
// clamps the response to [0, 255]. Border pixels are copied from the source
// unfiltered.
func edgeMap(g *grayImage) *grayImage {
	out := &grayImage{pix: make([]float64, len(g.pix)), w: g.w, h: g.h}
	copy(out.pix, g.pix)
	for y := 1; y < g.h-1; y++ {
		for x := 1; x < g.w-1; x++ {
			i := y*g.w + x
			v := 8*g.pix[i] - g.pix[i-1] - g.pix[i+1] -
				g.pix[i-g.w-1] - g.pix[i-g.w] - g.pix[i-g.w+1] -
				g.pix[i+g.w-1] - g.pix[i+g.w] - g.pix[i+g.w+1]
			if v < 0 {
				v = 0
			} else if v > 255 {
				v = 255
			}
			out.pix[i] = v
		}
	}
	return out
}

// DetectEmptyRegions finds rectangular areas inside the diagram canvas that
// rendered as blank placeholders: near-uniform, very light cells with a
// moderate edge outline. Overlapping grid hits are merged and merged boxes
// smaller than MinBoxSpan on either axis are discarded.
func DetectEmptyRegions(img image.Image, opts Options) []image.Rectangle {
	mean := toChannelMean(img)
	edges := edgeMap(toGray(img))
	w, h := mean.w, mean.h

	grid := opts.BoxGrid
	stride := opts.BoxStride
	area := float64(grid * grid)

	var cells []image.Rectangle
	for y := opts.CanvasOffsetY; y < h-grid; y += stride {
		for x := opts.CanvasOffsetX; x < w-grid; x += stride {
			var sum, sumSq float64
			edgy := 0
			for dy := 0; dy < grid; dy++ {
				row := (y + dy) * w
				for dx := 0; dx < grid; dx++ {
					v := mean.pix[row+x+dx]
					sum += v
					sumSq += v * v
					if edges.pix[row+x+dx] > opts.BoxEdgeThreshold {
						edgy++
					}
				}
			}
			m := sum / area
			variance := sumSq/area - m*m
			if variance < 0 {
				variance = 0
			}
			std := math.Sqrt(variance)
			density := float64(edgy) / area

			if std < opts.BoxStdMax && density > opts.BoxEdgeMin && density < opts.BoxEdgeMax && m > opts.BoxMeanMin {
				cells = append(cells, image.Rect(x, y, x+grid, y+grid))
			}
		}
	}

	merged := mergeRects(cells)
	boxes := merged[:0]
	for _, b := range merged {
		if b.Dx() > opts.MinBoxSpan && b.Dy() > opts.MinBoxSpan {
			boxes = append(boxes, b)
		}
	}
	return boxes
}

// mergeRects unions overlapping or touching rectangles. Each rectangle
// absorbs every later one it intersects, growing as it goes.
func mergeRects(boxes []image.Rectangle) []image.Rectangle {
	if len(boxes) == 0 {
		return nil
	}
	merged := make([]image.Rectangle, 0, len(boxes))
	used := make([]bool, len(boxes))
	for i, b := range boxes {
		if used[i] {
			continue
		}
		cur := b
		for j := i + 1; j < len(boxes); j++ {
			if used[j] {
				continue
			}
			o := boxes[j]
			if cur.Max.X < o.Min.X || o.Max.X < cur.Min.X ||
				cur.Max.Y < o.Min.Y || o.Max.Y < cur.Min.Y {
				continue
			}
			cur = cur.Union(o)
			used[j] = true
		}
		merged = append(merged, cur)
		used[i] = true
	}
	return merged
}

// TextRegions estimates how many grid cells look like text or labels. Text
// shows up as small areas of moderate edge density, dense borders or blank
// fills do not.
func TextRegions(img image.Image, opts Options) int {
	edges := edgeMap(toGray(img))
	w, h := edges.w, edges.h

	grid := opts.TextGrid
	area := float64(grid * grid)
	count := 0
	for y := 0; y < h-grid; y += grid {
		for x := 0; x < w-grid; x += grid {
			edgy := 0
			for dy := 0; dy < grid; dy++ {
				row := (y + dy) * w
				for dx := 0; dx < grid; dx++ {
					if edges.pix[row+x+dx] > opts.TextEdgeThreshold {
						edgy++
					}
				}
			}
			density := float64(edgy) / area
			if density > opts.TextEdgeMin && density < opts.TextEdgeMax {
				count++
			}
		}
	}
	return count
}
