package dicom

import "math"

type PixelBuffer struct {
	Rows int
	Cols int
	Data []float64
}

func (p *PixelBuffer) Empty() bool {
	return p == nil || len(p.Data) == 0
}

func (p *PixelBuffer) MinMax() (min, max float64) {
	if p.Empty() {
		return 0, 0
	}
	min, max = math.Inf(1), math.Inf(-1)
	for _, v := range p.Data {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func (p *PixelBuffer) clone(data []float64) *PixelBuffer {
	return &PixelBuffer{Rows: p.Rows, Cols: p.Cols, Data: data}
}

// Rescale maps stored values to output units: v*slope + intercept.
func Rescale(p *PixelBuffer, slope, intercept float64) *PixelBuffer {
	if p.Empty() {
		return p
	}
	out := make([]float64, len(p.Data))
	for i, v := range p.Data {
		out[i] = v*slope + intercept
	}
	return p.clone(out)
}

// InvertMonochrome1 flips MONOCHROME1 data so higher values render brighter.
func InvertMonochrome1(p *PixelBuffer) *PixelBuffer {
	if p.Empty() {
		return p
	}
	_, max := p.MinMax()
	out := make([]float64, len(p.Data))
	for i, v := range p.Data {
		out[i] = max - v
	}
	return p.clone(out)
}
