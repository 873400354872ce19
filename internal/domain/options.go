package domain

import (
	"errors"
	"fmt"
	"sort"
)

// Quality bounds for lossy encoding. Values are validated against this range
// before any derivative work starts.
const (
	MinQuality = 10
	MaxQuality = 100
)

// ErrConfig marks processing options that cannot produce any derivative.
var ErrConfig = errors.New("invalid processing options")

// Breakpoint is a named target pixel width representing a device class.
type Breakpoint struct {
	Name        string `json:"name"`
	WidthPx     int    `json:"width_px"`
	Description string `json:"description,omitempty"`
}

// Options configures one derivative-generation batch.
type Options struct {
	Lossless      bool         `json:"lossless"`
	Quality       int          `json:"quality"`
	Formats       []Format     `json:"formats"`
	Breakpoints   []Breakpoint `json:"breakpoints"`
	IncludeRetina bool         `json:"include_retina"`
}

// Validate rejects options that could not produce a well-formed batch.
func (o Options) Validate() error {
	if len(o.Formats) == 0 {
		return fmt.Errorf("%w: at least one output format is required", ErrConfig)
	}
	if len(o.Breakpoints) == 0 {
		return fmt.Errorf("%w: at least one breakpoint is required", ErrConfig)
	}
	if o.Quality < MinQuality || o.Quality > MaxQuality {
		return fmt.Errorf("%w: quality %d is outside [%d,%d]", ErrConfig, o.Quality, MinQuality, MaxQuality)
	}
	for i, f := range o.Formats {
		if _, err := ParseFormat(f.Extension); err != nil {
			return fmt.Errorf("%w: formats[%d]: %v", ErrConfig, i, err)
		}
	}
	for i, bp := range o.Breakpoints {
		if bp.WidthPx <= 0 {
			return fmt.Errorf("%w: breakpoints[%d] width must be > 0, got %d", ErrConfig, i, bp.WidthPx)
		}
	}
	return nil
}

// Normalized returns a copy with formats resolved to their canonical set
// members and deduplicated by extension (first occurrence wins, order
// preserved), and breakpoints sorted widest-first. Canonicalizing here matters
// because deserialized options carry only the format extension, not the
// capability flags.
func (o Options) Normalized() Options {
	out := o

	seen := make(map[string]bool, len(o.Formats))
	out.Formats = make([]Format, 0, len(o.Formats))
	for _, f := range o.Formats {
		canonical, err := ParseFormat(f.Extension)
		if err != nil {
			canonical = f
		}
		if seen[canonical.Extension] {
			continue
		}
		seen[canonical.Extension] = true
		out.Formats = append(out.Formats, canonical)
	}

	out.Breakpoints = make([]Breakpoint, len(o.Breakpoints))
	copy(out.Breakpoints, o.Breakpoints)
	sort.SliceStable(out.Breakpoints, func(i, j int) bool {
		return out.Breakpoints[i].WidthPx > out.Breakpoints[j].WidthPx
	})

	return out
}
