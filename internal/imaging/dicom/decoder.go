package dicom

import (
	"fmt"
	"image"
	"image/color"
	"strconv"

	godicom "github.com/suyashkumar/dicom"
	"github.com/suyashkumar/dicom/pkg/tag"
)

// Decoder turns a file on disk into a Dataset.
type Decoder interface {
	DecodeFile(path string) (*Dataset, error)
}

type fileDecoder struct{}

func NewDecoder() Decoder {
	return fileDecoder{}
}

var trackedTags = map[string]tag.Tag{
	FieldPatientID:                 tag.PatientID,
	FieldStudyInstanceUID:          tag.StudyInstanceUID,
	FieldSeriesInstanceUID:         tag.SeriesInstanceUID,
	FieldSOPInstanceUID:            tag.SOPInstanceUID,
	FieldStudyDate:                 tag.StudyDate,
	FieldStudyTime:                 tag.StudyTime,
	FieldModality:                  tag.Modality,
	FieldInstitutionName:           tag.InstitutionName,
	FieldManufacturer:              tag.Manufacturer,
	FieldStudyDescription:          tag.StudyDescription,
	FieldPhotometricInterpretation: tag.PhotometricInterpretation,
	FieldRescaleSlope:              tag.RescaleSlope,
	FieldRescaleIntercept:          tag.RescaleIntercept,
	FieldWindowCenter:              tag.WindowCenter,
	FieldWindowWidth:               tag.WindowWidth,
}

// DecodeFile parses a Part 10 file. Parser failures, including panics on
// malformed input, surface as ErrInvalidFormat.
func (fileDecoder) DecodeFile(path string) (ds *Dataset, err error) {
	defer func() {
		if r := recover(); r != nil {
			ds = nil
			err = fmt.Errorf("%w: parser panic: %v", ErrInvalidFormat, r)
		}
	}()

	parsed, perr := godicom.ParseFile(path, nil)
	if perr != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFormat, perr)
	}

	values := make(map[string][]string, len(trackedTags))
	for name, t := range trackedTags {
		elem, ferr := parsed.FindElementByTag(t)
		if ferr != nil || elem == nil || elem.Value == nil {
			continue
		}
		if vals := stringValues(elem.Value.GetValue()); len(vals) > 0 {
			values[name] = vals
		}
	}

	var pixels PixelReader
	if elem, ferr := parsed.FindElementByTag(tag.PixelData); ferr == nil && elem != nil && elem.Value != nil {
		raw := elem.Value.GetValue()
		pixels = func() (*PixelBuffer, error) {
			return firstFrame(raw)
		}
	}
	return NewDataset(values, pixels), nil
}

func stringValues(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []int:
		out := make([]string, 0, len(t))
		for _, n := range t {
			out = append(out, strconv.Itoa(n))
		}
		return out
	case []float64:
		out := make([]string, 0, len(t))
		for _, f := range t {
			out = append(out, strconv.FormatFloat(f, 'f', -1, 64))
		}
		return out
	default:
		return nil
	}
}

func firstFrame(raw any) (buf *PixelBuffer, err error) {
	defer func() {
		if r := recover(); r != nil {
			buf = nil
			err = fmt.Errorf("pixel decode panic: %v", r)
		}
	}()

	var info godicom.PixelDataInfo
	switch t := raw.(type) {
	case godicom.PixelDataInfo:
		info = t
	case *godicom.PixelDataInfo:
		if t == nil {
			return &PixelBuffer{}, nil
		}
		info = *t
	default:
		return nil, fmt.Errorf("unexpected pixel data value %T", raw)
	}
	if info.IntentionallySkipped || len(info.Frames) == 0 {
		return &PixelBuffer{}, nil
	}

	for _, fr := range info.Frames {
		if fr.Encapsulated {
			img, ierr := fr.GetImage()
			if ierr != nil {
				return nil, ierr
			}
			return fromImage(img), nil
		}
		nd := fr.NativeData
		if nd.Rows <= 0 || nd.Cols <= 0 || len(nd.Data) == 0 {
			return &PixelBuffer{}, nil
		}
		out := make([]float64, 0, len(nd.Data))
		for _, px := range nd.Data {
			if len(px) == 0 {
				out = append(out, 0)
				continue
			}
			out = append(out, float64(px[0]))
		}
		return &PixelBuffer{Rows: nd.Rows, Cols: nd.Cols, Data: out}, nil
	}
	return &PixelBuffer{}, nil
}

func fromImage(img image.Image) *PixelBuffer {
	b := img.Bounds()
	out := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			g := color.Gray16Model.Convert(img.At(x, y)).(color.Gray16)
			out = append(out, float64(g.Y))
		}
	}
	return &PixelBuffer{Rows: b.Dy(), Cols: b.Dx(), Data: out}
}
