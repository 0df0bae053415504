package preview

import (
	"bytes"
	"image"
	"image/png"
	"testing"

	"github.com/yungbote/medicore-backend/internal/imaging/dicom"
)

func TestApplyWindowLevelClips(t *testing.T) {
	px := &dicom.PixelBuffer{Rows: 1, Cols: 4, Data: []float64{-500, 0, 40, 900}}
	got := ApplyWindowLevel(px, 40, 400)
	want := []float64{-160, 0, 40, 240}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Fatalf("index %d: got %v want %v", i, got.Data[i], want[i])
		}
	}
}

func TestNormalizeToUint8(t *testing.T) {
	got := NormalizeToUint8(&dicom.PixelBuffer{Rows: 1, Cols: 3, Data: []float64{10, 20, 30}})
	if got[0] != 0 || got[2] != 255 || got[1] != 127 {
		t.Fatalf("normalized: %v", got)
	}
	flat := NormalizeToUint8(&dicom.PixelBuffer{Rows: 1, Cols: 2, Data: []float64{5, 5}})
	if flat[0] != 0 || flat[1] != 0 {
		t.Fatalf("constant buffer should be zeros: %v", flat)
	}
}

func TestRenderProducesBoundedPNG(t *testing.T) {
	rows, cols := 40, 80
	data := make([]float64, rows*cols)
	for i := range data {
		data[i] = float64(i % cols)
	}
	r := NewRenderer(Options{MaxDimension: 32, Banner: true})
	out, err := r.Render(&dicom.PixelBuffer{Rows: rows, Cols: cols, Data: data}, &Window{Center: 40, Width: 80}, "CT 20240115")
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("decode png: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 32, 16) {
		t.Fatalf("bounds: %v", img.Bounds())
	}
}

func TestRenderRejectsBadShape(t *testing.T) {
	r := NewRenderer(Options{})
	if _, err := r.Render(&dicom.PixelBuffer{}, nil, ""); err == nil {
		t.Fatalf("expected error for empty buffer")
	}
	if _, err := r.Render(&dicom.PixelBuffer{Rows: 2, Cols: 2, Data: []float64{1}}, nil, ""); err == nil {
		t.Fatalf("expected error for shape mismatch")
	}
}
