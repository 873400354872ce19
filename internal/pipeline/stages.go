package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pixelgrid/pixelgrid/internal/domain"
	"github.com/pixelgrid/pixelgrid/internal/storage"
)

// LocalFileFetcher reads the source image straight from disk. Used for
// source_type=local_file jobs.
type LocalFileFetcher struct{}

func (LocalFileFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if !strings.EqualFold(req.SourceType, domain.SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	data, err := os.ReadFile(req.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("read input file %s: %w", req.ObjectKey, err)
	}
	return data, nil
}

// LocalDirEmitter writes derivatives under OutputDir/{job}/{ext}/{name},
// grouped by format the same way the object-store layout is.
type LocalDirEmitter struct {
	OutputDir string
}

func (e LocalDirEmitter) Emit(_ context.Context, req Request, d domain.Derivative) (domain.DerivativeRecord, error) {
	if strings.TrimSpace(e.OutputDir) == "" {
		return domain.DerivativeRecord{}, errors.New("output directory is required")
	}

	formatDir := filepath.Join(e.OutputDir, sanitizePathToken(req.JobID), d.Format.Extension)
	if err := os.MkdirAll(formatDir, 0o755); err != nil {
		return domain.DerivativeRecord{}, fmt.Errorf("create output dir: %w", err)
	}

	fullPath := filepath.Join(formatDir, d.Name)
	if err := os.WriteFile(fullPath, d.Data, 0o644); err != nil {
		return domain.DerivativeRecord{}, fmt.Errorf("write output file: %w", err)
	}

	return domain.DerivativeRecord{
		Name:   d.Name,
		Format: d.Format.Extension,
		Path:   fullPath,
		Bytes:  d.ByteSize,
		Width:  d.Width,
		Height: d.Height,
	}, nil
}

// ObjectStoreFetcher pulls the source image from the object store.
type ObjectStoreFetcher struct {
	Storage *storage.Client
}

func (f ObjectStoreFetcher) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if f.Storage == nil {
		return nil, errors.New("storage client is required")
	}
	if strings.EqualFold(req.SourceType, domain.SourceTypeLocalFile) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSourceType, req.SourceType)
	}
	return f.Storage.ReadObject(ctx, req.ObjectKey)
}

// ObjectStoreEmitter uploads derivatives under
// {prefix}/{job}/{ext}/{name} with the format's media type.
type ObjectStoreEmitter struct {
	Storage      *storage.Client
	OutputPrefix string
}

func (e ObjectStoreEmitter) Emit(ctx context.Context, req Request, d domain.Derivative) (domain.DerivativeRecord, error) {
	if e.Storage == nil {
		return domain.DerivativeRecord{}, errors.New("storage client is required")
	}

	objectKey := path.Join(
		defaultOutputPrefix(e.OutputPrefix),
		sanitizePathToken(req.JobID),
		d.Format.Extension,
		d.Name,
	)

	if err := e.Storage.WriteObject(ctx, objectKey, d.Data, d.Format.MediaType); err != nil {
		return domain.DerivativeRecord{}, err
	}

	return domain.DerivativeRecord{
		Name:   d.Name,
		Format: d.Format.Extension,
		Path:   objectKey,
		Bytes:  d.ByteSize,
		Width:  d.Width,
		Height: d.Height,
	}, nil
}

func defaultOutputPrefix(prefix string) string {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		return "derivatives"
	}
	return prefix
}

func sanitizePathToken(in string) string {
	in = strings.TrimSpace(in)
	if in == "" {
		return "unknown"
	}

	var b strings.Builder
	b.Grow(len(in))
	for _, r := range in {
		switch {
		case r >= 'a' && r <= 'z':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
