//go:build govips && cgo

package pipeline

import (
	"bytes"
	"fmt"
	"image"
	"image/png"

	"github.com/davidbyttow/govips/v2/vips"
	"github.com/pixelgrid/pixelgrid/internal/domain"
)

type govipsEncoder struct{}

func newEncoder() Encoder {
	return govipsEncoder{}
}

func (govipsEncoder) Encode(img image.Image, format domain.Format, opts domain.Options) ([]byte, error) {
	if err := checkEncodable(img, format, opts); err != nil {
		return nil, err
	}

	// vips loads from an encoded buffer; PNG is the lossless interchange.
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("%w: stage buffer: %v", ErrEncode, err)
	}

	ref, err := vips.NewImageFromBuffer(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: load stage buffer: %v", ErrEncode, err)
	}
	defer ref.Close()

	quality := int(lossyQuality(opts.Quality) * 100)
	lossless := useLossless(format, opts)

	switch format.Extension {
	case domain.FormatJPEG.Extension:
		params := vips.NewJpegExportParams()
		params.Quality = quality
		data, _, err := ref.ExportJpeg(params)
		if err != nil {
			return nil, fmt.Errorf("%w: jpeg: %v", ErrEncode, err)
		}
		return data, nil
	case domain.FormatPNG.Extension:
		params := vips.NewPngExportParams()
		data, _, err := ref.ExportPng(params)
		if err != nil {
			return nil, fmt.Errorf("%w: png: %v", ErrEncode, err)
		}
		return data, nil
	case domain.FormatWEBP.Extension:
		params := vips.NewWebpExportParams()
		params.Lossless = lossless
		if !lossless {
			params.Quality = quality
		}
		data, _, err := ref.ExportWebp(params)
		if err != nil {
			return nil, fmt.Errorf("%w: webp: %v", ErrEncode, err)
		}
		return data, nil
	case domain.FormatAVIF.Extension:
		params := vips.NewAvifExportParams()
		params.Lossless = lossless
		if !lossless {
			params.Quality = quality
		}
		data, _, err := ref.ExportAvif(params)
		if err != nil {
			return nil, fmt.Errorf("%w: avif: %v", ErrEncode, err)
		}
		return data, nil
	default:
		return nil, fmt.Errorf("%w: unsupported output format %q", ErrEncode, format.Extension)
	}
}
