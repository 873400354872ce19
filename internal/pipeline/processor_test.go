package pipeline

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/pixelgrid/pixelgrid/internal/domain"
)

func TestLocalProcessorFileInDerivativesOut(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "input.png")
	outputDir := filepath.Join(tmp, "out")

	srcBytes := buildTestPNG(t, 240, 120)
	if err := os.WriteFile(inputPath, srcBytes, 0o644); err != nil {
		t.Fatalf("write input image: %v", err)
	}

	processor, err := NewLocalProcessor(outputDir, 1, nil)
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	result, err := processor.Process(context.Background(), Request{
		JobID:      "job-local-1",
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  inputPath,
		Options: domain.Options{
			Quality:     80,
			Formats:     []domain.Format{domain.FormatJPEG, domain.FormatPNG},
			Breakpoints: []domain.Breakpoint{{Name: "Thumb", WidthPx: 80}},
		},
	})
	if err != nil {
		t.Fatalf("process request: %v", err)
	}

	if len(result.Outputs) != 2 {
		t.Fatalf("expected 2 outputs, got %d", len(result.Outputs))
	}
	if result.SourceBytes != len(srcBytes) {
		t.Fatalf("expected source bytes %d, got %d", len(srcBytes), result.SourceBytes)
	}
	if result.Metrics.BlurClass == "" {
		t.Fatal("expected quality metrics to be populated")
	}

	for _, out := range result.Outputs {
		if out.Width != 80 || out.Height != 40 {
			t.Fatalf("output %s: expected 80x40, got %dx%d", out.Name, out.Width, out.Height)
		}
		data, err := os.ReadFile(out.Path)
		if err != nil {
			t.Fatalf("read output %s: %v", out.Path, err)
		}
		if len(data) != out.Bytes {
			t.Fatalf("output %s: manifest bytes %d != file size %d", out.Name, out.Bytes, len(data))
		}
		// grouped by format on disk
		if filepath.Base(filepath.Dir(out.Path)) != out.Format {
			t.Fatalf("output %s: expected format directory %q, got path %s", out.Name, out.Format, out.Path)
		}
	}
}

func TestLocalProcessorUnsupportedSourceType(t *testing.T) {
	processor, err := NewLocalProcessor(t.TempDir(), 1, nil)
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{
		JobID:      "job-unsupported",
		SourceType: domain.SourceTypeS3Presigned,
		ObjectKey:  "uploads/job/source",
		Options: domain.Options{
			Quality:     80,
			Formats:     []domain.Format{domain.FormatPNG},
			Breakpoints: []domain.Breakpoint{{Name: "Thumb", WidthPx: 80}},
		},
	})
	if !errors.Is(err, ErrUnsupportedSourceType) {
		t.Fatalf("expected unsupported source_type error, got %v", err)
	}
}

func TestLocalProcessorCorruptSource(t *testing.T) {
	tmp := t.TempDir()
	inputPath := filepath.Join(tmp, "garbage.bin")
	if err := os.WriteFile(inputPath, []byte("not an image"), 0o644); err != nil {
		t.Fatalf("write input: %v", err)
	}

	processor, err := NewLocalProcessor(filepath.Join(tmp, "out"), 1, nil)
	if err != nil {
		t.Fatalf("new local processor: %v", err)
	}

	_, err = processor.Process(context.Background(), Request{
		JobID:      "job-corrupt",
		SourceType: domain.SourceTypeLocalFile,
		ObjectKey:  inputPath,
		Options: domain.Options{
			Quality:     80,
			Formats:     []domain.Format{domain.FormatPNG},
			Breakpoints: []domain.Breakpoint{{Name: "Thumb", WidthPx: 80}},
		},
	})
	if !errors.Is(err, ErrDecode) {
		t.Fatalf("expected ErrDecode for corrupt source, got %v", err)
	}
}

func buildTestPNG(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	if err := png.Encode(&buf, buildGradient(w, h)); err != nil {
		t.Fatalf("encode source png: %v", err)
	}
	return buf.Bytes()
}
