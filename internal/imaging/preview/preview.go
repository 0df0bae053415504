package preview

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"
	"os"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"

	"github.com/yungbote/medicore-backend/internal/imaging/dicom"
)

const (
	defaultMaxDimension = 512
	bannerHeight        = 18
)

type Options struct {
	// MaxDimension bounds the longer edge of the output; images are only ever shrunk.
	MaxDimension int
	// Banner draws the label along the bottom edge.
	Banner   bool
	FontFace font.Face
}

type Window struct {
	Center float64
	Width  float64
}

type Renderer struct {
	opts Options
}

func NewRenderer(opts Options) *Renderer {
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = defaultMaxDimension
	}
	return &Renderer{opts: opts}
}

// Render windows, normalizes and encodes px as a grayscale PNG.
func (r *Renderer) Render(px *dicom.PixelBuffer, win *Window, label string) ([]byte, error) {
	if px.Empty() {
		return nil, fmt.Errorf("preview: empty pixel buffer")
	}
	if px.Rows <= 0 || px.Cols <= 0 || px.Rows*px.Cols != len(px.Data) {
		return nil, fmt.Errorf("preview: pixel shape %dx%d does not match %d samples", px.Rows, px.Cols, len(px.Data))
	}

	if win != nil {
		px = ApplyWindowLevel(px, win.Center, win.Width)
	}
	gray := image.NewGray(image.Rect(0, 0, px.Cols, px.Rows))
	copy(gray.Pix, NormalizeToUint8(px))

	w, h := fitWithin(px.Cols, px.Rows, r.opts.MaxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), gray, gray.Bounds(), draw.Src, nil)

	dc := gg.NewContextForRGBA(dst)
	if r.opts.Banner && label != "" && h > bannerHeight*2 {
		dc.SetColor(color.NRGBA{0, 0, 0, 160})
		dc.DrawRectangle(0, float64(h-bannerHeight), float64(w), bannerHeight)
		dc.Fill()
		if r.opts.FontFace != nil {
			dc.SetFontFace(r.opts.FontFace)
		}
		dc.SetColor(color.White)
		dc.DrawStringAnchored(label, 4, float64(h)-bannerHeight/2, 0, 0.5)
	}

	var buf bytes.Buffer
	if err := dc.EncodePNG(&buf); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}

// ApplyWindowLevel clips values to [center-width/2, center+width/2].
func ApplyWindowLevel(px *dicom.PixelBuffer, center, width float64) *dicom.PixelBuffer {
	if px.Empty() || width <= 0 {
		return px
	}
	half := math.Floor(width / 2)
	lo, hi := center-half, center+half
	out := make([]float64, len(px.Data))
	for i, v := range px.Data {
		out[i] = math.Min(math.Max(v, lo), hi)
	}
	return &dicom.PixelBuffer{Rows: px.Rows, Cols: px.Cols, Data: out}
}

// NormalizeToUint8 stretches values to 0..255. A constant buffer maps to all zeros.
func NormalizeToUint8(px *dicom.PixelBuffer) []uint8 {
	out := make([]uint8, len(px.Data))
	lo, hi := px.MinMax()
	if hi == lo {
		return out
	}
	span := hi - lo
	for i, v := range px.Data {
		out[i] = uint8((v - lo) / span * 255)
	}
	return out
}

func fitWithin(w, h, max int) (int, int) {
	if w <= max && h <= max {
		return w, h
	}
	if w >= h {
		return max, int(math.Max(1, math.Round(float64(h)*float64(max)/float64(w))))
	}
	return int(math.Max(1, math.Round(float64(w)*float64(max)/float64(h)))), max
}

// LoadFontFace reads a TrueType font for the banner.
func LoadFontFace(path string, size float64) (font.Face, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read font file: %w", err)
	}
	parsed, err := truetype.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to parse TTF: %w", err)
	}
	return truetype.NewFace(parsed, &truetype.Options{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingNone,
	}), nil
}
