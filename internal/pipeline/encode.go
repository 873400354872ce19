package pipeline

import (
	"fmt"
	"image"

	"github.com/pixelgrid/pixelgrid/internal/domain"
)

// Encoder turns a pixel buffer into an encoded byte blob for one of the
// closed set of output formats. The backend is selected at build time; see
// encode_std.go and encode_govips.go.
type Encoder interface {
	Encode(img image.Image, format domain.Format, opts domain.Options) ([]byte, error)
}

// NewEncoder returns the backend compiled into this binary.
func NewEncoder() Encoder {
	return newEncoder()
}

// lossyQuality maps the [10,100] option value onto the backend scale
// [0.1,1.0].
func lossyQuality(quality int) float64 {
	q := float64(quality) / 100
	if q < 0.1 {
		q = 0.1
	}
	if q > 1 {
		q = 1
	}
	return q
}

// useLossless reports whether the pair must take the lossless path. PNG is
// always lossless; everything else follows the batch option. On the lossless
// path the numeric quality value is ignored.
func useLossless(format domain.Format, opts domain.Options) bool {
	return format.Extension == domain.FormatPNG.Extension || opts.Lossless
}

func checkEncodable(img image.Image, format domain.Format, opts domain.Options) error {
	bounds := img.Bounds()
	if bounds.Dx() == 0 || bounds.Dy() == 0 {
		return fmt.Errorf("%w: buffer has zero dimension %dx%d", ErrEncode, bounds.Dx(), bounds.Dy())
	}
	if useLossless(format, opts) && !format.SupportsLossless {
		return fmt.Errorf("%w: %s cannot encode losslessly", ErrEncode, format.Name)
	}
	return nil
}
