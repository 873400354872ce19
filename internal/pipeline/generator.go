package pipeline

import (
	"context"
	"fmt"
	"image"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/pixelgrid/pixelgrid/internal/domain"
)

// ProgressFunc receives one event per emitted derivative. Current increases
// strictly by one and the final event satisfies Current == Total.
type ProgressFunc func(domain.Progress)

// Generator renders the full derivative matrix for one decoded source image:
// every breakpoint crossed with every format, plus @2x variants when
// requested. Ordering is deterministic regardless of worker count.
type Generator struct {
	encoder  Encoder
	progress ProgressFunc
	workers  int
}

// NewGenerator builds a generator around the given encoder. A nil encoder
// selects the build-time backend; workers < 2 means fully sequential
// rendering.
func NewGenerator(encoder Encoder, progress ProgressFunc, workers int) *Generator {
	if encoder == nil {
		encoder = NewEncoder()
	}
	if workers < 1 {
		workers = 1
	}
	return &Generator{
		encoder:  encoder,
		progress: progress,
		workers:  workers,
	}
}

// step is one derivative to render.
type step struct {
	breakpoint  domain.Breakpoint
	format      domain.Format
	retina      bool
	targetWidth int
	name        string
	label       string
}

// buildSteps expands options into the ordered step list: per breakpoint
// (widest first), the standard derivative for every format, then the @2x
// variants in the same format order. The skip rule is applied here, before
// anything is counted, so len(steps) is the progress total and the final
// event always lands exactly on it.
func buildSteps(opts domain.Options) []step {
	steps := make([]step, 0, len(opts.Breakpoints)*len(opts.Formats)*2)
	for _, bp := range opts.Breakpoints {
		for _, f := range opts.Formats {
			if opts.Lossless && !f.SupportsLossless {
				continue
			}
			steps = append(steps, step{
				breakpoint:  bp,
				format:      f,
				targetWidth: bp.WidthPx,
				name:        fmt.Sprintf("image-%d.%s", bp.WidthPx, f.Extension),
				label:       fmt.Sprintf("%s %s", bp.Name, f.Name),
			})
		}

		if !opts.IncludeRetina {
			continue
		}
		for _, f := range opts.Formats {
			if opts.Lossless && !f.SupportsLossless {
				continue
			}
			steps = append(steps, step{
				breakpoint:  bp,
				format:      f,
				retina:      true,
				targetWidth: bp.WidthPx * 2,
				name:        fmt.Sprintf("image-%d@2x.%s", bp.WidthPx, f.Extension),
				label:       fmt.Sprintf("%s %s @2x", bp.Name, f.Name),
			})
		}
	}
	return steps
}

// Generate renders the batch. The first resample or encode error aborts the
// whole run and discards partial output; a canceled context returns ctx.Err()
// with no partial list.
func (g *Generator) Generate(ctx context.Context, src image.Image, opts domain.Options) ([]domain.Derivative, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	opts = opts.Normalized()

	steps := buildSteps(opts)
	if g.workers > 1 {
		return g.generateConcurrent(ctx, src, opts, steps)
	}

	total := len(steps)
	out := make([]domain.Derivative, 0, total)
	for i, st := range steps {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		d, err := g.renderStep(src, opts, st)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
		g.emit(domain.Progress{Current: i + 1, Total: total, Label: st.label})
	}
	return out, nil
}

// generateConcurrent renders steps on a bounded pool, collects results by
// step index, and re-emits progress in step order so Current stays strictly
// increasing no matter the completion order.
func (g *Generator) generateConcurrent(ctx context.Context, src image.Image, opts domain.Options, steps []step) ([]domain.Derivative, error) {
	total := len(steps)
	results := make([]domain.Derivative, total)

	var (
		mu      sync.Mutex
		done    = make([]bool, total)
		emitted int
	)

	eg, gctx := errgroup.WithContext(ctx)
	eg.SetLimit(g.workers)
	for i, st := range steps {
		eg.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			d, err := g.renderStep(src, opts, st)
			if err != nil {
				return err
			}

			mu.Lock()
			results[i] = d
			done[i] = true
			for emitted < total && done[emitted] {
				emitted++
				g.emit(domain.Progress{Current: emitted, Total: total, Label: steps[emitted-1].label})
			}
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

func (g *Generator) renderStep(src image.Image, opts domain.Options, st step) (domain.Derivative, error) {
	resized, err := Resample(src, st.targetWidth)
	if err != nil {
		return domain.Derivative{}, g.wrapStepError(st, err)
	}

	data, err := g.encoder.Encode(resized, st.format, opts)
	if err != nil {
		return domain.Derivative{}, g.wrapStepError(st, err)
	}

	bounds := resized.Bounds()
	return domain.Derivative{
		Name:     st.name,
		Data:     data,
		ByteSize: len(data),
		Width:    bounds.Dx(),
		Height:   bounds.Dy(),
		Format:   st.format,
	}, nil
}

func (g *Generator) wrapStepError(st step, err error) error {
	suffix := ""
	if st.retina {
		suffix = " @2x"
	}
	return fmt.Errorf("derivative %s (breakpoint=%s format=%s%s): %w", st.name, st.breakpoint.Name, st.format.Name, suffix, err)
}

func (g *Generator) emit(p domain.Progress) {
	if g.progress == nil {
		return
	}
	g.progress(p)
}
