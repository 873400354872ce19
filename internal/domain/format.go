package domain

import (
	"fmt"
	"strings"
)

// Format is one member of the closed set of supported output formats.
// The file extension is the identity key: two formats are the same format
// exactly when their extensions match.
type Format struct {
	Name             string `json:"name"`
	Extension        string `json:"extension"`
	MediaType        string `json:"media_type"`
	SupportsLossless bool   `json:"-"`
	SupportsQuality  bool   `json:"-"`
}

var (
	FormatAVIF = Format{
		Name:             "AVIF",
		Extension:        "avif",
		MediaType:        "image/avif",
		SupportsLossless: true,
		SupportsQuality:  true,
	}
	FormatWEBP = Format{
		Name:             "WebP",
		Extension:        "webp",
		MediaType:        "image/webp",
		SupportsLossless: true,
		SupportsQuality:  true,
	}
	FormatJPEG = Format{
		Name:             "JPEG",
		Extension:        "jpg",
		MediaType:        "image/jpeg",
		SupportsLossless: false,
		SupportsQuality:  true,
	}
	FormatPNG = Format{
		Name:             "PNG",
		Extension:        "png",
		MediaType:        "image/png",
		SupportsLossless: true,
		SupportsQuality:  false,
	}
)

// AllFormats returns the closed format set in its canonical order.
func AllFormats() []Format {
	return []Format{FormatAVIF, FormatWEBP, FormatJPEG, FormatPNG}
}

// ParseFormat resolves a file extension to a member of the closed set.
// "jpeg" is accepted as an alias for "jpg".
func ParseFormat(extension string) (Format, error) {
	ext := strings.ToLower(strings.TrimSpace(extension))
	ext = strings.TrimPrefix(ext, ".")
	if ext == "jpeg" {
		ext = "jpg"
	}
	for _, f := range AllFormats() {
		if f.Extension == ext {
			return f, nil
		}
	}
	return Format{}, fmt.Errorf("unsupported image format: %q", extension)
}
