package quality

import (
	"fmt"
	"strings"

	"github.com/yungbote/medicore-backend/internal/imaging/dicom"
)

const (
	VerdictGood = "GOOD"
	VerdictFair = "FAIR"
	VerdictPoor = "POOR"
)

type Metrics struct {
	BrightnessScore float64  `json:"brightness_score"`
	ContrastScore   float64  `json:"contrast_score"`
	SharpnessScore  float64  `json:"sharpness_score"`
	NoiseScore      float64  `json:"noise_score"`
	OverallQuality  string   `json:"overall_quality"`
	IsAcceptable    bool     `json:"is_acceptable"`
	Issues          []string `json:"issues"`
}

// Assessor scores a pixel buffer. Implementations must not fail on any input.
type Assessor interface {
	Name() string
	Assess(px *dicom.PixelBuffer) Metrics
}

func New(name string) (Assessor, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "fixed":
		return Fixed{}, nil
	case "statistical":
		return Statistical{}, nil
	default:
		return nil, fmt.Errorf("unknown quality assessor %q", name)
	}
}

// Fixed reports a constant GOOD verdict regardless of input.
type Fixed struct{}

func (Fixed) Name() string { return "fixed" }

func (Fixed) Assess(_ *dicom.PixelBuffer) Metrics {
	return Metrics{
		BrightnessScore: 75.0,
		ContrastScore:   80.0,
		SharpnessScore:  85.0,
		NoiseScore:      90.0,
		OverallQuality:  VerdictGood,
		IsAcceptable:    true,
		Issues:          []string{},
	}
}

// Map renders metrics as the JSON object stored on a study.
func (m Metrics) Map() map[string]any {
	issues := m.Issues
	if issues == nil {
		issues = []string{}
	}
	return map[string]any{
		"brightness_score": m.BrightnessScore,
		"contrast_score":   m.ContrastScore,
		"sharpness_score":  m.SharpnessScore,
		"noise_score":      m.NoiseScore,
		"overall_quality":  m.OverallQuality,
		"is_acceptable":    m.IsAcceptable,
		"issues":           issues,
	}
}
