package quality

import (
	"encoding/json"
	"testing"

	"github.com/yungbote/medicore-backend/internal/imaging/dicom"
)

func TestFixedAssessor(t *testing.T) {
	m := Fixed{}.Assess(nil)
	if m.BrightnessScore != 75 || m.ContrastScore != 80 || m.SharpnessScore != 85 || m.NoiseScore != 90 {
		t.Fatalf("scores: %+v", m)
	}
	if m.OverallQuality != VerdictGood || !m.IsAcceptable || m.Issues == nil || len(m.Issues) != 0 {
		t.Fatalf("verdict: %+v", m)
	}

	raw, err := json.Marshal(m)
	if err != nil {
		t.Fatal(err)
	}
	var back map[string]any
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	for _, k := range []string{"brightness_score", "contrast_score", "sharpness_score", "noise_score", "overall_quality", "is_acceptable", "issues"} {
		if _, ok := back[k]; !ok {
			t.Fatalf("missing key %s in %s", k, raw)
		}
	}
}

func TestStatisticalDegenerateBuffers(t *testing.T) {
	cases := map[string]*dicom.PixelBuffer{
		"nil":       nil,
		"empty":     {},
		"zeros":     {Rows: 4, Cols: 4, Data: make([]float64, 16)},
		"saturated": {Rows: 2, Cols: 2, Data: []float64{65535, 65535, 65535, 65535}},
	}
	for name, px := range cases {
		m := Statistical{}.Assess(px)
		if m.OverallQuality != VerdictPoor || m.IsAcceptable {
			t.Fatalf("%s: expected POOR, got %+v", name, m)
		}
		if m.BrightnessScore != 0 || m.ContrastScore != 0 || m.SharpnessScore != 0 || m.NoiseScore != 0 {
			t.Fatalf("%s: expected zero scores, got %+v", name, m)
		}
		if len(m.Issues) != 1 {
			t.Fatalf("%s: issues %v", name, m.Issues)
		}
	}
}

func TestStatisticalScoresStayInRange(t *testing.T) {
	// 8x8 checkerboard: high contrast, sharp, maximally noisy neighbours.
	data := make([]float64, 64)
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			if (x+y)%2 == 0 {
				data[y*8+x] = 1000
			}
		}
	}
	m := Statistical{}.Assess(&dicom.PixelBuffer{Rows: 8, Cols: 8, Data: data})
	for _, s := range []float64{m.BrightnessScore, m.ContrastScore, m.SharpnessScore, m.NoiseScore} {
		if s < 0 || s > 100 {
			t.Fatalf("score out of range: %+v", m)
		}
	}
	if m.BrightnessScore != 100 || m.ContrastScore != 100 || m.SharpnessScore != 100 {
		t.Fatalf("checkerboard scores: %+v", m)
	}
	if m.NoiseScore != 0 {
		t.Fatalf("checkerboard should read as noisy: %+v", m)
	}
}

func TestStatisticalSmoothGradient(t *testing.T) {
	data := make([]float64, 100)
	for y := 0; y < 10; y++ {
		for x := 0; x < 10; x++ {
			data[y*10+x] = float64(x)
		}
	}
	m := Statistical{}.Assess(&dicom.PixelBuffer{Rows: 10, Cols: 10, Data: data})
	if m.SharpnessScore != 0 {
		t.Fatalf("linear ramp has zero laplacian, got %+v", m)
	}
	found := false
	for _, is := range m.Issues {
		if is == issueBlurry {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected blurry issue: %v", m.Issues)
	}
}

func TestNew(t *testing.T) {
	if a, err := New(""); err != nil || a.Name() != "fixed" {
		t.Fatalf("default: %v %v", a, err)
	}
	if a, err := New("Statistical"); err != nil || a.Name() != "statistical" {
		t.Fatalf("statistical: %v %v", a, err)
	}
	if _, err := New("ml"); err == nil {
		t.Fatalf("expected error for unknown assessor")
	}
}
