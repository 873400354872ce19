package domain

// BlurClass buckets a sharpness score into a human-readable verdict.
type BlurClass string

const (
	BlurSharp    BlurClass = "sharp"
	BlurModerate BlurClass = "moderate"
	BlurBlurry   BlurClass = "blurry"
	BlurVery     BlurClass = "very-blurry"
)

// QualityMetrics is the objective assessment of a source image. Sharpness is
// the variance of the Laplacian edge response; confidence expresses how much
// the verdict should be trusted given resolution and contrast.
type QualityMetrics struct {
	SharpnessScore float64   `json:"sharpness_score"`
	BlurClass      BlurClass `json:"blur_class"`
	Confidence     float64   `json:"confidence"`
}
