package pipeline

import (
	"fmt"
	"image"
	"math"

	xdraw "golang.org/x/image/draw"
)

// Resample scales src down to targetWidth, preserving aspect ratio. The
// output width is min(targetWidth, source width) so a source is never
// upscaled; the height follows as round(width * h0 / w0). Both dimensions
// are clamped to at least one pixel.
func Resample(src image.Image, targetWidth int) (*image.RGBA, error) {
	if targetWidth <= 0 {
		return nil, fmt.Errorf("%w: target width must be > 0, got %d", ErrResample, targetWidth)
	}

	bounds := src.Bounds()
	srcW := bounds.Dx()
	srcH := bounds.Dy()
	if srcW == 0 || srcH == 0 {
		return nil, fmt.Errorf("%w: source has zero dimension %dx%d", ErrResample, srcW, srcH)
	}

	width := targetWidth
	if width > srcW {
		width = srcW
	}
	if width < 1 {
		width = 1
	}

	// round half up
	height := int(math.Floor(float64(width)*float64(srcH)/float64(srcW) + 0.5))
	if height < 1 {
		height = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	if width == srcW && height == srcH {
		xdraw.Copy(dst, image.Point{}, src, bounds, xdraw.Src, nil)
		return dst, nil
	}

	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, bounds, xdraw.Src, nil)
	return dst, nil
}
