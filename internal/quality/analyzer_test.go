package quality

import (
	"image"
	"image/color"
	"testing"

	"github.com/pixelgrid/pixelgrid/internal/domain"
)

func TestAnalyzeFlatColor(t *testing.T) {
	img := buildFlatImage(200, 200, color.RGBA{R: 120, G: 120, B: 120, A: 255})

	metrics := Analyze(img, 200, 200)

	if metrics.SharpnessScore != 0 {
		t.Fatalf("expected sharpness 0 for flat image, got %f", metrics.SharpnessScore)
	}
	if metrics.BlurClass != domain.BlurVery {
		t.Fatalf("expected very-blurry for flat image, got %s", metrics.BlurClass)
	}
}

func TestAnalyzeCheckerboard(t *testing.T) {
	checker := buildCheckerboard(200, 200, 3)
	flat := buildFlatImage(200, 200, color.RGBA{R: 120, G: 120, B: 120, A: 255})

	checkerMetrics := Analyze(checker, 200, 200)
	flatMetrics := Analyze(flat, 200, 200)

	if checkerMetrics.BlurClass != domain.BlurSharp {
		t.Fatalf("expected sharp for checkerboard, got %s (score %f)", checkerMetrics.BlurClass, checkerMetrics.SharpnessScore)
	}
	if checkerMetrics.Confidence <= flatMetrics.Confidence {
		t.Fatalf("expected checkerboard confidence %f > flat confidence %f", checkerMetrics.Confidence, flatMetrics.Confidence)
	}
}

func TestAnalyzeConfidenceBounds(t *testing.T) {
	cases := []struct {
		name string
		img  image.Image
		w, h int
	}{
		{"1x1", buildFlatImage(1, 1, color.RGBA{A: 255}), 1, 1},
		{"all black", buildFlatImage(300, 300, color.RGBA{A: 255}), 300, 300},
		{"large high contrast", buildCheckerboard(2000, 1500, 3), 2000, 1500},
		{"small flat", buildFlatImage(50, 50, color.RGBA{R: 255, G: 255, B: 255, A: 255}), 50, 50},
	}

	for _, tc := range cases {
		metrics := Analyze(tc.img, tc.w, tc.h)
		if metrics.Confidence < 0 || metrics.Confidence > 1 {
			t.Fatalf("%s: confidence %f outside [0,1]", tc.name, metrics.Confidence)
		}
		if metrics.SharpnessScore < 0 {
			t.Fatalf("%s: negative sharpness %f", tc.name, metrics.SharpnessScore)
		}
	}
}

func TestAnalyzeMegapixelAdjustment(t *testing.T) {
	// same analysis buffer, different claimed source sizes
	img := buildCheckerboard(400, 300, 3)

	large := Analyze(img, 2048, 1536) // > 2M true pixels
	small := Analyze(img, 400, 300)   // > 100k, no bonus

	if large.Confidence <= small.Confidence {
		t.Fatalf("expected higher confidence for larger true source, got %f <= %f", large.Confidence, small.Confidence)
	}
}

func TestAnalyzeDownsamplesLargeSources(t *testing.T) {
	// 1600x1200 exceeds the 800x600 cap; the verdict must survive sampling.
	img := buildCheckerboard(1600, 1200, 4)

	metrics := Analyze(img, 1600, 1200)

	if metrics.BlurClass != domain.BlurSharp {
		t.Fatalf("expected sharp after downsampling, got %s (score %f)", metrics.BlurClass, metrics.SharpnessScore)
	}
}

func buildFlatImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func buildCheckerboard(w, h, cell int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if ((x/cell)+(y/cell))%2 == 0 {
				img.SetRGBA(x, y, color.RGBA{A: 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{R: 255, G: 255, B: 255, A: 255})
			}
		}
	}
	return img
}
