package vision

import (
	"image"

	xdraw "golang.org/x/image/draw"

	"gonum.org/v1/gonum/stat"
)

// Similarity computes a single-window SSIM-style statistic between two
// rasters on a 0..1 scale. The second image is rescaled to the first's
// dimensions before comparison.
//
// The value is informational only. Reference scans and live renders come
// from different imaging technologies and are not pixel-comparable, so
// this must never feed a pass score.
func Similarity(a, b image.Image) float64 {
	ab, bb := a.Bounds(), b.Bounds()
	if ab.Dx() != bb.Dx() || ab.Dy() != bb.Dy() {
		scaled := image.NewRGBA(image.Rect(0, 0, ab.Dx(), ab.Dy()))
		xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), b, bb, xdraw.Src, nil)
		b = scaled
	}

	ga := toChannelMean(a)
	gb := toChannelMean(b)

	const c1 = 0.01 * 0.01
	const c2 = 0.03 * 0.03

	mu1 := stat.Mean(ga.pix, nil)
	mu2 := stat.Mean(gb.pix, nil)
	var1 := stat.PopVariance(ga.pix, nil)
	var2 := stat.PopVariance(gb.pix, nil)
	cov := stat.Covariance(ga.pix, gb.pix, nil)

	ssim := ((2*mu1*mu2 + c1) * (2*cov + c2)) /
		((mu1*mu1 + mu2*mu2 + c1) * (var1 + var2 + c2))

	if ssim < 0 {
		return 0
	}
	if ssim > 1 {
		return 1
	}
	return ssim
}
