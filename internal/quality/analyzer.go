// Package quality computes an objective sharpness assessment of a decoded
// source image: the variance of its Laplacian edge response, a blur verdict
// derived from it, and a confidence score weighing resolution and contrast.
package quality

import (
	"image"

	"github.com/pixelgrid/pixelgrid/internal/domain"
)

// Analysis buffers are capped at this size; larger sources are downsampled
// first, purely to bound compute cost.
const (
	maxSampleWidth  = 800
	maxSampleHeight = 600
)

// Blur classification thresholds on the sharpness score, descending; the
// first match wins.
const (
	sharpThreshold    = 1000
	moderateThreshold = 500
	blurryThreshold   = 100
)

// Analyze computes the quality metrics for src. trueWidth and trueHeight are
// the real source dimensions; they drive the megapixel confidence adjustment
// even when the buffer is downsampled for analysis. src is only read.
func Analyze(src image.Image, trueWidth, trueHeight int) domain.QualityMetrics {
	luma, w, h := sampleGrayscale(src)
	score := laplacianVariance(luma, w, h)

	return domain.QualityMetrics{
		SharpnessScore: score,
		BlurClass:      classify(score),
		Confidence:     confidence(trueWidth*trueHeight, luma),
	}
}

func classify(score float64) domain.BlurClass {
	switch {
	case score > sharpThreshold:
		return domain.BlurSharp
	case score > moderateThreshold:
		return domain.BlurModerate
	case score > blurryThreshold:
		return domain.BlurBlurry
	default:
		return domain.BlurVery
	}
}

// sampleGrayscale converts src to a flat luma field (0.299R+0.587G+0.114B,
// 0..255). Sources larger than the sample cap are reduced with a
// nearest-pixel map.
func sampleGrayscale(src image.Image) ([]float64, int, int) {
	bounds := src.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, 0, 0
	}

	scale := 1.0
	if sx := float64(maxSampleWidth) / float64(srcW); sx < scale {
		scale = sx
	}
	if sy := float64(maxSampleHeight) / float64(srcH); sy < scale {
		scale = sy
	}

	w, h := srcW, srcH
	if scale < 1 {
		w = int(float64(srcW) * scale)
		h = int(float64(srcH) * scale)
		if w < 1 {
			w = 1
		}
		if h < 1 {
			h = 1
		}
	}

	luma := make([]float64, w*h)
	for y := 0; y < h; y++ {
		srcY := bounds.Min.Y + y*srcH/h
		for x := 0; x < w; x++ {
			srcX := bounds.Min.X + x*srcW/w
			r, g, b, _ := src.At(srcX, srcY).RGBA()
			luma[y*w+x] = 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
		}
	}
	return luma, w, h
}

// laplacianVariance convolves the interior (excluding the 1-pixel border)
// with the kernel [[0,-1,0],[-1,4,-1],[0,-1,0]] and returns the population
// variance of the responses. Higher variance means more high-frequency edge
// energy.
func laplacianVariance(luma []float64, w, h int) float64 {
	if w < 3 || h < 3 {
		return 0
	}

	responses := make([]float64, 0, (w-2)*(h-2))
	for y := 1; y < h-1; y++ {
		for x := 1; x < w-1; x++ {
			r := 4*luma[y*w+x] -
				luma[(y-1)*w+x] -
				luma[(y+1)*w+x] -
				luma[y*w+x-1] -
				luma[y*w+x+1]
			responses = append(responses, r)
		}
	}

	var sum float64
	for _, r := range responses {
		sum += r
	}
	mean := sum / float64(len(responses))

	var sq float64
	for _, r := range responses {
		d := r - mean
		sq += d * d
	}
	return sq / float64(len(responses))
}

// confidence starts at 0.5, is adjusted by the true source pixel count and
// by the contrast of a stride sample over the analysis buffer, and is
// clamped to [0,1].
func confidence(truePixels int, luma []float64) float64 {
	c := 0.5

	switch {
	case truePixels > 2_000_000:
		c += 0.3
	case truePixels > 500_000:
		c += 0.2
	case truePixels < 100_000:
		c -= 0.2
	}

	contrast := strideContrast(luma)
	switch {
	case contrast > 50:
		c += 0.2
	case contrast < 20:
		c -= 0.1
	}

	if c < 0 {
		c = 0
	}
	if c > 1 {
		c = 1
	}
	return c
}

// strideContrast is the max-min luminance over every 10th pixel of the
// sampled buffer.
func strideContrast(luma []float64) float64 {
	if len(luma) == 0 {
		return 0
	}

	minV, maxV := luma[0], luma[0]
	for i := 0; i < len(luma); i += 10 {
		v := luma[i]
		if v < minV {
			minV = v
		}
		if v > maxV {
			maxV = v
		}
	}
	return maxV - minV
}
