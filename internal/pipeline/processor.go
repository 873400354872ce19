package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/webp"
	"golang.org/x/sync/errgroup"

	"github.com/pixelgrid/pixelgrid/internal/domain"
	"github.com/pixelgrid/pixelgrid/internal/quality"
)

var ErrUnsupportedSourceType = errors.New("unsupported source_type")

// Request identifies one derivative job: where the source bytes live and how
// the matrix should be rendered.
type Request struct {
	JobID      string
	SourceType string
	ObjectKey  string
	SourceName string
	Options    domain.Options
}

// Result is the finished batch: the emitted derivative manifest plus the
// quality assessment of the source.
type Result struct {
	Outputs     []domain.DerivativeRecord
	Metrics     domain.QualityMetrics
	SourceBytes int
}

type Fetcher interface {
	Fetch(ctx context.Context, req Request) ([]byte, error)
}

type Emitter interface {
	Emit(ctx context.Context, req Request, d domain.Derivative) (domain.DerivativeRecord, error)
}

// Processor wires fetch, decode, generation, quality analysis and emission
// into one pipeline run per submitted source image.
type Processor struct {
	fetcher   Fetcher
	emitter   Emitter
	generator *Generator
}

func NewProcessor(fetcher Fetcher, emitter Emitter, workers int, progress ProgressFunc) (*Processor, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if emitter == nil {
		return nil, errors.New("emitter is required")
	}
	return &Processor{
		fetcher:   fetcher,
		emitter:   emitter,
		generator: NewGenerator(nil, progress, workers),
	}, nil
}

func NewLocalProcessor(outputDir string, workers int, progress ProgressFunc) (*Processor, error) {
	return NewProcessor(LocalFileFetcher{}, LocalDirEmitter{OutputDir: outputDir}, workers, progress)
}

// Process runs one batch. Derivative generation and quality analysis share
// the decoded buffer read-only and run concurrently; the first error on
// either side aborts the run with no partial output.
func (p *Processor) Process(ctx context.Context, req Request) (Result, error) {
	if strings.TrimSpace(req.JobID) == "" {
		return Result{}, errors.New("job_id is required")
	}
	if err := req.Options.Validate(); err != nil {
		return Result{}, err
	}

	raw, err := p.fetcher.Fetch(ctx, req)
	if err != nil {
		return Result{}, fmt.Errorf("fetch stage: %w", err)
	}

	src, err := DecodeSource(raw)
	if err != nil {
		return Result{}, err
	}
	bounds := src.Bounds()

	var (
		derivatives []domain.Derivative
		metrics     domain.QualityMetrics
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var genErr error
		derivatives, genErr = p.generator.Generate(gctx, src, req.Options)
		return genErr
	})
	eg.Go(func() error {
		metrics = quality.Analyze(src, bounds.Dx(), bounds.Dy())
		return nil
	})
	if err := eg.Wait(); err != nil {
		return Result{}, err
	}

	result := Result{
		Outputs:     make([]domain.DerivativeRecord, 0, len(derivatives)),
		Metrics:     metrics,
		SourceBytes: len(raw),
	}
	for _, d := range derivatives {
		record, err := p.emitter.Emit(ctx, req, d)
		if err != nil {
			return Result{}, fmt.Errorf("emit stage derivative=%s: %w", d.Name, err)
		}
		result.Outputs = append(result.Outputs, record)
	}
	return result, nil
}

// DecodeSource turns the opaque source byte stream into a pixel buffer.
// Registered containers: JPEG, PNG, GIF, WebP.
func DecodeSource(raw []byte) (image.Image, error) {
	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return src, nil
}
