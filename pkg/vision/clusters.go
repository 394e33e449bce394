package vision

import "image"

// DetectClusters labels connected components (4-neighbor) of pixels matching
// the predicate and returns those at least minSize+1 pixels large, in
// scan-line discovery order. Smaller components are treated as noise.
func DetectClusters(img image.Image, pred ColorPredicate, minSize int) []Cluster {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w == 0 || h == 0 {
		return nil
	}

	mask := make([]bool, w*h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			r, g, bl := rgb8At(img, b.Min.X+x, b.Min.Y+y)
			mask[y*w+x] = pred(r, g, bl)
		}
	}

	visited := make([]bool, w*h)
	var clusters []Cluster
	queue := make([]int, 0, 256)

	for start := range mask {
		if !mask[start] || visited[start] {
			continue
		}

		queue = queue[:0]
		queue = append(queue, start)
		visited[start] = true

		var sumX, sumY, count int
		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]

			x, y := idx%w, idx/w
			sumX += x
			sumY += y
			count++

			for _, n := range [4]int{idx - w, idx + w, idx - 1, idx + 1} {
				if n < 0 || n >= len(mask) {
					continue
				}
				// left/right neighbors must stay on the same row
				if (n == idx-1 && x == 0) || (n == idx+1 && x == w-1) {
					continue
				}
				if mask[n] && !visited[n] {
					visited[n] = true
					queue = append(queue, n)
				}
			}
		}

		if count > minSize {
			clusters = append(clusters, Cluster{
				X:     float64(sumX) / float64(count),
				Y:     float64(sumY) / float64(count),
				Count: count,
			})
		}
	}
	return clusters
}

// BadgeReport describes where the two badge families sit relative to their
// expected zones: purple badges on the left rail, blue badges in the
// central band.
type BadgeReport struct {
	PurpleClusters  []Cluster
	BlueClusters    []Cluster
	PurpleInZone    int
	PurpleMisplaced int
	BlueInZone      int
	BlueMisplaced   int
	TotalBadges     int
	// Quality is correctly-placed / total * 100. Zero badges found means
	// quality 0: absence is a failure, not a vacuous pass.
	Quality float64
}

// BadgePositions detects both badge families and classifies each cluster
// against its expected zone.
func BadgePositions(img image.Image, opts Options) BadgeReport {
	width := float64(img.Bounds().Dx())

	rep := BadgeReport{
		PurpleClusters: DetectClusters(img, PurpleBadge, opts.MinClusterSize),
		BlueClusters:   DetectClusters(img, BlueBadge, opts.MinClusterSize),
	}

	leftEnd := width * opts.LeftZoneFrac
	centerStart := width * opts.CenterZoneStart
	centerEnd := width * opts.CenterZoneEnd

	for _, c := range rep.PurpleClusters {
		if c.X < leftEnd {
			rep.PurpleInZone++
		}
	}
	rep.PurpleMisplaced = len(rep.PurpleClusters) - rep.PurpleInZone

	for _, c := range rep.BlueClusters {
		if c.X > centerStart && c.X < centerEnd {
			rep.BlueInZone++
		}
	}
	rep.BlueMisplaced = len(rep.BlueClusters) - rep.BlueInZone

	rep.TotalBadges = len(rep.PurpleClusters) + len(rep.BlueClusters)
	if rep.TotalBadges > 0 {
		rep.Quality = float64(rep.PurpleInZone+rep.BlueInZone) / float64(rep.TotalBadges) * 100
	}
	return rep
}
