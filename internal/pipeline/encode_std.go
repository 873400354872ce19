//go:build !govips || !cgo

package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/chai2010/webp"
	"github.com/pixelgrid/pixelgrid/internal/domain"
)

type stdEncoder struct{}

func newEncoder() Encoder {
	return stdEncoder{}
}

func (stdEncoder) Encode(img image.Image, format domain.Format, opts domain.Options) ([]byte, error) {
	if err := checkEncodable(img, format, opts); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch format.Extension {
	case domain.FormatJPEG.Extension:
		quality := int(lossyQuality(opts.Quality) * 100)
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("%w: jpeg: %v", ErrEncode, err)
		}
	case domain.FormatPNG.Extension:
		encoder := png.Encoder{CompressionLevel: png.BestCompression}
		if err := encoder.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("%w: png: %v", ErrEncode, err)
		}
	case domain.FormatWEBP.Extension:
		webpOpts := &webp.Options{Lossless: useLossless(format, opts)}
		if !webpOpts.Lossless {
			webpOpts.Quality = float32(lossyQuality(opts.Quality) * 100)
		}
		if err := webp.Encode(&buf, img, webpOpts); err != nil {
			return nil, fmt.Errorf("%w: webp: %v", ErrEncode, err)
		}
	case domain.FormatAVIF.Extension:
		return nil, fmt.Errorf("%w: avif export requires the govips build tag", ErrEncode)
	default:
		return nil, fmt.Errorf("%w: unsupported output format %q", ErrEncode, format.Extension)
	}

	return buf.Bytes(), nil
}
