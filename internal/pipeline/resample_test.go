package pipeline

import (
	"errors"
	"image"
	"testing"
)

func TestResampleDimensions(t *testing.T) {
	cases := []struct {
		name        string
		srcW, srcH  int
		targetWidth int
		wantW       int
		wantH       int
	}{
		{"downscale 2:1", 200, 100, 50, 50, 25},
		{"no upscale", 1000, 1000, 1920, 1000, 1000},
		{"identity", 120, 80, 120, 120, 80},
		{"round half up", 4, 2, 3, 3, 2},
		{"round down", 3, 5, 2, 2, 3},
		{"height clamped to 1", 100, 1, 10, 10, 1},
		{"portrait", 100, 400, 30, 30, 120},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			src := image.NewRGBA(image.Rect(0, 0, tc.srcW, tc.srcH))
			dst, err := Resample(src, tc.targetWidth)
			if err != nil {
				t.Fatalf("Resample: %v", err)
			}
			bounds := dst.Bounds()
			if bounds.Dx() != tc.wantW || bounds.Dy() != tc.wantH {
				t.Fatalf("expected %dx%d, got %dx%d", tc.wantW, tc.wantH, bounds.Dx(), bounds.Dy())
			}
		})
	}
}

func TestResampleErrors(t *testing.T) {
	if _, err := Resample(image.NewRGBA(image.Rect(0, 0, 0, 10)), 5); !errors.Is(err, ErrResample) {
		t.Fatalf("expected ErrResample for zero source width, got %v", err)
	}
	if _, err := Resample(image.NewRGBA(image.Rect(0, 0, 10, 0)), 5); !errors.Is(err, ErrResample) {
		t.Fatalf("expected ErrResample for zero source height, got %v", err)
	}
	if _, err := Resample(image.NewRGBA(image.Rect(0, 0, 10, 10)), 0); !errors.Is(err, ErrResample) {
		t.Fatalf("expected ErrResample for non-positive target width, got %v", err)
	}
}

func TestResampleDoesNotMutateSource(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 16, 16))
	for i := range src.Pix {
		src.Pix[i] = byte(i)
	}
	before := make([]byte, len(src.Pix))
	copy(before, src.Pix)

	if _, err := Resample(src, 8); err != nil {
		t.Fatalf("Resample: %v", err)
	}

	for i := range src.Pix {
		if src.Pix[i] != before[i] {
			t.Fatal("source pixels were mutated")
		}
	}
}
