package quality

import (
	"math"

	"github.com/yungbote/medicore-backend/internal/imaging/dicom"
)

const (
	issueEmpty        = "empty_image"
	issueUniform      = "uniform_image"
	issueUnderexposed = "underexposed"
	issueOverexposed  = "overexposed"
	issueLowContrast  = "low_contrast"
	issueBlurry       = "blurry"
	issueNoisy        = "noisy"
	issueTooSmall     = "image_too_small"

	// Reference values on the [0,1] normalized scale that map to a score of 100.
	contrastRef  = 0.25
	sharpnessRef = 0.02
	noiseRef     = 0.25

	issueThreshold = 40.0
)

// Statistical scores a buffer from first-order statistics of the normalized
// image: mean brightness, standard deviation, Laplacian variance and mean
// neighbour difference.
type Statistical struct{}

func (Statistical) Name() string { return "statistical" }

func (Statistical) Assess(px *dicom.PixelBuffer) Metrics {
	if px.Empty() {
		return worstCase(issueEmpty)
	}
	lo, hi := px.MinMax()
	if hi == lo || math.IsNaN(lo) || math.IsInf(hi, 0) || math.IsInf(lo, 0) {
		return worstCase(issueUniform)
	}

	norm := make([]float64, len(px.Data))
	span := hi - lo
	for i, v := range px.Data {
		norm[i] = (v - lo) / span
	}

	mean, std := meanStd(norm)
	issues := []string{}

	brightness := clampScore(100 * (1 - math.Abs(mean-0.5)*2))
	if brightness < issueThreshold {
		if mean < 0.5 {
			issues = append(issues, issueUnderexposed)
		} else {
			issues = append(issues, issueOverexposed)
		}
	}

	contrast := clampScore(100 * std / contrastRef)
	if contrast < issueThreshold {
		issues = append(issues, issueLowContrast)
	}

	var sharpness float64
	rows, cols := px.Rows, px.Cols
	if rows*cols != len(norm) {
		rows, cols = 1, len(norm)
	}
	if rows >= 3 && cols >= 3 {
		sharpness = clampScore(100 * laplacianVariance(norm, rows, cols) / sharpnessRef)
		if sharpness < issueThreshold {
			issues = append(issues, issueBlurry)
		}
	} else {
		issues = append(issues, issueTooSmall)
	}

	noise := clampScore(100 * (1 - neighbourDiff(norm, rows, cols)/noiseRef))
	if noise < issueThreshold {
		issues = append(issues, issueNoisy)
	}

	avg := (brightness + contrast + sharpness + noise) / 4
	verdict := VerdictPoor
	switch {
	case avg >= 75:
		verdict = VerdictGood
	case avg >= 50:
		verdict = VerdictFair
	}

	return Metrics{
		BrightnessScore: round2(brightness),
		ContrastScore:   round2(contrast),
		SharpnessScore:  round2(sharpness),
		NoiseScore:      round2(noise),
		OverallQuality:  verdict,
		IsAcceptable:    verdict != VerdictPoor,
		Issues:          issues,
	}
}

func worstCase(issue string) Metrics {
	return Metrics{
		OverallQuality: VerdictPoor,
		IsAcceptable:   false,
		Issues:         []string{issue},
	}
}

func meanStd(v []float64) (float64, float64) {
	var sum float64
	for _, x := range v {
		sum += x
	}
	mean := sum / float64(len(v))
	var sq float64
	for _, x := range v {
		d := x - mean
		sq += d * d
	}
	return mean, math.Sqrt(sq / float64(len(v)))
}

func laplacianVariance(v []float64, rows, cols int) float64 {
	lap := make([]float64, 0, (rows-2)*(cols-2))
	for y := 1; y < rows-1; y++ {
		for x := 1; x < cols-1; x++ {
			i := y*cols + x
			l := v[i-cols] + v[i+cols] + v[i-1] + v[i+1] - 4*v[i]
			lap = append(lap, l)
		}
	}
	_, std := meanStd(lap)
	return std * std
}

func neighbourDiff(v []float64, rows, cols int) float64 {
	var sum float64
	var n int
	for y := 0; y < rows; y++ {
		for x := 1; x < cols; x++ {
			i := y*cols + x
			sum += math.Abs(v[i] - v[i-1])
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}

func clampScore(s float64) float64 {
	if math.IsNaN(s) || s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
