package vision

import "image"

// ContentDensity returns the fraction of pixels darker than the near-white
// threshold. A blank canvas scores near 0; a dense reference render sits
// around 0.08.
func ContentDensity(img image.Image, opts Options) float64 {
	g := toGray(img)
	if len(g.pix) == 0 {
		return 0
	}
	content := 0
	for _, v := range g.pix {
		if v < opts.NearWhite {
			content++
		}
	}
	return float64(content) / float64(len(g.pix))
}
