package domain

// Derivative is one resized-and-encoded output image produced from a source.
// Instances live only for the duration of the batch that produced them; the
// encoded bytes are handed off to an emitter and not retained.
type Derivative struct {
	Name     string
	Data     []byte
	ByteSize int
	Width    int
	Height   int
	Format   Format
}

// DerivativeRecord is the persisted manifest entry for an emitted derivative.
// Unlike Derivative it carries no pixel data, only where the bytes went.
type DerivativeRecord struct {
	Name   string `json:"name"`
	Format string `json:"format"`
	Path   string `json:"path"`
	Bytes  int    `json:"bytes"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Progress reports batch completion. Current increases strictly by one per
// emitted derivative and the final event satisfies Current == Total.
type Progress struct {
	Current int    `json:"current"`
	Total   int    `json:"total"`
	Label   string `json:"label"`
}
