package vision

import (
	"image"
	"image/color"
	"math"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var (
	white       = color.NRGBA{255, 255, 255, 255}
	black       = color.NRGBA{0, 0, 0, 255}
	badgePurple = color.NRGBA{124, 58, 237, 255} // #7C3AED
	badgeBlue   = color.NRGBA{37, 99, 235, 255}  // #2563EB
)

// newCanvas builds a white raster, the background every renderer capture has.
func newCanvas(t *testing.T, w, h int) *image.NRGBA {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	fillRect(img, img.Bounds(), white)
	return img
}

func fillRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA) {
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			img.SetNRGBA(x, y, c)
		}
	}
}

// --- Density ---

func TestContentDensity(t *testing.T) {
	tests := []struct {
		name string
		draw func(*image.NRGBA)
		want float64
	}{
		{"blank canvas", func(img *image.NRGBA) {}, 0},
		{"quarter dark", func(img *image.NRGBA) {
			fillRect(img, image.Rect(0, 0, 50, 50), black)
		}, 0.25},
		{"at threshold is background", func(img *image.NRGBA) {
			fillRect(img, image.Rect(0, 0, 100, 100), color.NRGBA{240, 240, 240, 255})
		}, 0},
		{"below threshold is content", func(img *image.NRGBA) {
			fillRect(img, image.Rect(0, 0, 100, 100), color.NRGBA{239, 239, 239, 255})
		}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			img := newCanvas(t, 100, 100)
			tt.draw(img)
			got := ContentDensity(img, DefaultOptions())
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("ContentDensity = %f, want %f", got, tt.want)
			}
		})
	}
}

// --- Similarity ---

func TestSimilarity_Identical(t *testing.T) {
	img := newCanvas(t, 80, 60)
	fillRect(img, image.Rect(10, 10, 50, 40), black)
	got := Similarity(img, img)
	if math.Abs(got-1.0) > 1e-9 {
		t.Errorf("Similarity(img, img) = %f, want 1.0", got)
	}
}

func TestSimilarity_Opposite(t *testing.T) {
	a := newCanvas(t, 50, 50)
	b := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	fillRect(b, b.Bounds(), black)
	got := Similarity(a, b)
	if got > 0.001 {
		t.Errorf("Similarity(white, black) = %f, want near 0", got)
	}
}

func TestSimilarity_ScalesSecondImage(t *testing.T) {
	// Uniform rasters stay uniform under resampling, so a size mismatch
	// alone must not dent the score.
	gray := color.NRGBA{128, 128, 128, 255}
	a := image.NewNRGBA(image.Rect(0, 0, 100, 100))
	fillRect(a, a.Bounds(), gray)
	b := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	fillRect(b, b.Bounds(), gray)
	got := Similarity(a, b)
	if math.Abs(got-1.0) > 1e-6 {
		t.Errorf("Similarity across sizes = %f, want 1.0", got)
	}
}

// --- Clusters ---

func TestDetectClusters(t *testing.T) {
	img := newCanvas(t, 100, 50)
	fillRect(img, image.Rect(10, 10, 18, 18), badgePurple)
	fillRect(img, image.Rect(60, 30, 68, 38), badgePurple)

	got := DetectClusters(img, PurpleBadge, 40)
	want := []Cluster{
		{X: 13.5, Y: 13.5, Count: 64},
		{X: 63.5, Y: 33.5, Count: 64},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DetectClusters mismatch (-want +got):\n%s", diff)
	}
}

func TestDetectClusters_MinSize(t *testing.T) {
	img := newCanvas(t, 100, 100)
	fillRect(img, image.Rect(10, 10, 15, 18), badgePurple) // 40 px, not above the bar
	fillRect(img, image.Rect(50, 50, 56, 57), badgePurple) // 42 px

	got := DetectClusters(img, PurpleBadge, 40)
	if len(got) != 1 {
		t.Fatalf("DetectClusters returned %d clusters, want 1", len(got))
	}
	if got[0].Count != 42 {
		t.Errorf("kept cluster has %d pixels, want 42", got[0].Count)
	}
}

// --- Badge positions ---

func TestBadgePositions(t *testing.T) {
	img := newCanvas(t, 1000, 400)
	fillRect(img, image.Rect(50, 100, 58, 108), badgePurple)  // in left zone
	fillRect(img, image.Rect(500, 100, 508, 108), badgePurple) // out of zone
	fillRect(img, image.Rect(400, 200, 408, 208), badgeBlue)   // in center band
	fillRect(img, image.Rect(100, 200, 108, 208), badgeBlue)   // out of band

	got := BadgePositions(img, DefaultOptions())
	if got.TotalBadges != 4 {
		t.Fatalf("TotalBadges = %d, want 4", got.TotalBadges)
	}
	if got.PurpleInZone != 1 || got.PurpleMisplaced != 1 {
		t.Errorf("purple in/out = %d/%d, want 1/1", got.PurpleInZone, got.PurpleMisplaced)
	}
	if got.BlueInZone != 1 || got.BlueMisplaced != 1 {
		t.Errorf("blue in/out = %d/%d, want 1/1", got.BlueInZone, got.BlueMisplaced)
	}
	if math.Abs(got.Quality-50.0) > 1e-9 {
		t.Errorf("Quality = %f, want 50.0", got.Quality)
	}
}

func TestBadgePositions_NoBadges(t *testing.T) {
	img := newCanvas(t, 400, 200)
	got := BadgePositions(img, DefaultOptions())
	if got.TotalBadges != 0 {
		t.Errorf("TotalBadges = %d, want 0", got.TotalBadges)
	}
	if got.Quality != 0 {
		t.Errorf("Quality = %f, want 0 when nothing is found", got.Quality)
	}
}

// --- Row coherence ---

func TestRowCoherence_Banded(t *testing.T) {
	img := newCanvas(t, 400, 300)
	fillRect(img, image.Rect(0, 40, 400, 80), black)
	fillRect(img, image.Rect(0, 130, 400, 170), black)
	fillRect(img, image.Rect(0, 220, 400, 260), black)

	got := RowCoherence(img, DefaultOptions())
	wantBands := []Band{{40, 80}, {130, 170}, {220, 260}}
	if diff := cmp.Diff(wantBands, got.Bands); diff != "" {
		t.Errorf("Bands mismatch (-want +got):\n%s", diff)
	}
	if math.Abs(got.Coherence-1.0) > 1e-9 {
		t.Errorf("Coherence = %f, want 1.0", got.Coherence)
	}
	if got.Chaotic {
		t.Error("banded layout flagged chaotic")
	}
}

func TestRowCoherence_Scattered(t *testing.T) {
	img := newCanvas(t, 400, 300)
	for i := 0; i < 15; i++ {
		x := 10 + 26*i
		fillRect(img, image.Rect(x, 0, x+1, 300), black)
	}

	got := RowCoherence(img, DefaultOptions())
	if len(got.Bands) != 0 {
		t.Errorf("Bands = %v, want none for thin scattered columns", got.Bands)
	}
	if got.Coherence != 0 {
		t.Errorf("Coherence = %f, want 0", got.Coherence)
	}
	if got.Scatter <= DefaultOptions().ScatterThreshold {
		t.Errorf("Scatter = %f, want above %f", got.Scatter, DefaultOptions().ScatterThreshold)
	}
	if !got.Chaotic {
		t.Error("scattered layout not flagged chaotic")
	}
}

// --- Layout chaos ---

func TestLayoutChaos_Balanced(t *testing.T) {
	img := newCanvas(t, 320, 320)
	for y := 0; y < 320; y += 2 {
		fillRect(img, image.Rect(0, y, 320, y+1), black)
	}

	got := LayoutChaos(img, DefaultOptions())
	if got.Score != 0 {
		t.Errorf("Score = %f (reasons %v), want 0", got.Score, got.Reasons)
	}
	if got.Chaotic {
		t.Error("balanced layout flagged chaotic")
	}
	if !got.ProperFlow {
		t.Error("uniform content should satisfy left-to-right flow")
	}
}

func TestLayoutChaos_Blank(t *testing.T) {
	img := newCanvas(t, 320, 320)

	got := LayoutChaos(img, DefaultOptions())
	// Near-blank, no flow and all cells empty trip together.
	if got.Score != 80 {
		t.Errorf("Score = %f (reasons %v), want 80", got.Score, got.Reasons)
	}
	if !got.Chaotic {
		t.Error("blank canvas not flagged chaotic")
	}
	if len(got.Reasons) != 3 {
		t.Errorf("Reasons = %v, want 3 entries", got.Reasons)
	}
	if math.Abs(got.EmptyRatio-1.0) > 1e-9 {
		t.Errorf("EmptyRatio = %f, want 1.0", got.EmptyRatio)
	}
}

func TestLayoutChaos_LeftHeavy(t *testing.T) {
	img := newCanvas(t, 300, 300)
	fillRect(img, image.Rect(0, 0, 100, 300), black)

	got := LayoutChaos(img, DefaultOptions())
	if got.ProperFlow {
		t.Error("left-only content should fail the flow check")
	}
	if got.QuadrantVariance <= DefaultOptions().QuadrantVarianceMax {
		t.Errorf("QuadrantVariance = %f, want imbalance above %f",
			got.QuadrantVariance, DefaultOptions().QuadrantVarianceMax)
	}
	if got.Score != 70 {
		t.Errorf("Score = %f (reasons %v), want 70", got.Score, got.Reasons)
	}
	if !got.Chaotic {
		t.Error("left-heavy layout not flagged chaotic")
	}
}

// --- Empty regions ---

// hatch draws 1px lines of a barely-off-white gray every 13 rows. The cells
// read as near-uniform and very light but still carry a moderate edge
// response, which is exactly the placeholder-box signature.
func hatch(t *testing.T, img *image.NRGBA, r image.Rectangle) {
	t.Helper()
	faint := color.NRGBA{240, 240, 240, 255}
	for y := r.Min.Y; y < r.Max.Y; y += 13 {
		fillRect(img, image.Rect(r.Min.X, y, r.Max.X, y+1), faint)
	}
}

func TestDetectEmptyRegions(t *testing.T) {
	img := newCanvas(t, 700, 500)
	hatch(t, img, image.Rect(300, 100, 560, 360))

	got := DetectEmptyRegions(img, DefaultOptions())
	want := []image.Rectangle{image.Rect(300, 90, 560, 370)}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("DetectEmptyRegions mismatch (-want +got):\n%s", diff)
	}
}

func TestDetectEmptyRegions_CleanCanvas(t *testing.T) {
	img := newCanvas(t, 700, 500)
	if got := DetectEmptyRegions(img, DefaultOptions()); len(got) != 0 {
		t.Errorf("DetectEmptyRegions = %v, want none on a clean canvas", got)
	}
}

func TestDetectEmptyRegions_SmallBoxDiscarded(t *testing.T) {
	img := newCanvas(t, 700, 500)
	hatch(t, img, image.Rect(300, 100, 420, 220)) // merges to ~140px, under the span floor

	if got := DetectEmptyRegions(img, DefaultOptions()); len(got) != 0 {
		t.Errorf("DetectEmptyRegions = %v, want small region discarded", got)
	}
}

// --- Text regions ---

func TestTextRegions(t *testing.T) {
	img := newCanvas(t, 200, 200)
	fillRect(img, image.Rect(0, 10, 90, 11), black)
	fillRect(img, image.Rect(0, 40, 90, 41), black)

	got := TextRegions(img, DefaultOptions())
	if got != 6 {
		t.Errorf("TextRegions = %d, want 6", got)
	}
}

func TestTextRegions_Blank(t *testing.T) {
	// The unfiltered border ring reads as edge pixels, which is enough to
	// trip the one cell touching both image borders. Nothing else fires.
	img := newCanvas(t, 200, 200)
	if got := TextRegions(img, DefaultOptions()); got != 1 {
		t.Errorf("TextRegions = %d, want 1 (top-left border cell)", got)
	}
}
