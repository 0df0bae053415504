package dicom

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidFormat marks input that is not a readable DICOM Part 10 file.
var ErrInvalidFormat = errors.New("invalid DICOM format")

// Field names are DICOM attribute keywords.
const (
	FieldPatientID                 = "PatientID"
	FieldStudyInstanceUID          = "StudyInstanceUID"
	FieldSeriesInstanceUID         = "SeriesInstanceUID"
	FieldSOPInstanceUID            = "SOPInstanceUID"
	FieldStudyDate                 = "StudyDate"
	FieldStudyTime                 = "StudyTime"
	FieldModality                  = "Modality"
	FieldInstitutionName           = "InstitutionName"
	FieldManufacturer              = "Manufacturer"
	FieldStudyDescription          = "StudyDescription"
	FieldPhotometricInterpretation = "PhotometricInterpretation"
	FieldRescaleSlope              = "RescaleSlope"
	FieldRescaleIntercept          = "RescaleIntercept"
	FieldWindowCenter              = "WindowCenter"
	FieldWindowWidth               = "WindowWidth"
)

const (
	unknownValue = "Unknown"
	notAvailable = "N/A"

	photometricMonochrome1 = "MONOCHROME1"
)

type Metadata struct {
	PatientID         string
	StudyInstanceUID  string
	SeriesInstanceUID string
	SOPInstanceUID    string
	StudyDate         string
	StudyTime         string
	Modality          string
	InstitutionName   string
	Manufacturer      string
	StudyDescription  string
}

// PixelReader yields the raw (untransformed) first frame of a dataset.
type PixelReader func() (*PixelBuffer, error)

// Dataset is a decoded DICOM object: text attributes keyed by keyword plus
// lazy access to the pixel data.
type Dataset struct {
	values map[string][]string
	pixels PixelReader
}

// NewDataset builds a Dataset from already-extracted values. Decoders and
// tests use it; pixels may be nil for datasets without pixel data.
func NewDataset(values map[string][]string, pixels PixelReader) *Dataset {
	if values == nil {
		values = map[string][]string{}
	}
	return &Dataset{values: values, pixels: pixels}
}

// Value returns the first value of a keyword and whether it is present and non-empty.
func (d *Dataset) Value(field string) (string, bool) {
	if d == nil {
		return "", false
	}
	vals, ok := d.values[field]
	if !ok || len(vals) == 0 {
		return "", false
	}
	v := strings.TrimSpace(strings.TrimRight(vals[0], "\x00"))
	return v, v != ""
}

func (d *Dataset) Has(field string) bool {
	_, ok := d.Value(field)
	return ok
}

func (d *Dataset) valueOr(field, def string) string {
	if v, ok := d.Value(field); ok {
		return v
	}
	return def
}

func (d *Dataset) Metadata() Metadata {
	return Metadata{
		PatientID:         d.valueOr(FieldPatientID, unknownValue),
		StudyInstanceUID:  d.valueOr(FieldStudyInstanceUID, unknownValue),
		SeriesInstanceUID: d.valueOr(FieldSeriesInstanceUID, unknownValue),
		SOPInstanceUID:    d.valueOr(FieldSOPInstanceUID, unknownValue),
		StudyDate:         d.valueOr(FieldStudyDate, ""),
		StudyTime:         d.valueOr(FieldStudyTime, ""),
		Modality:          d.valueOr(FieldModality, unknownValue),
		InstitutionName:   d.valueOr(FieldInstitutionName, notAvailable),
		Manufacturer:      d.valueOr(FieldManufacturer, notAvailable),
		StudyDescription:  d.valueOr(FieldStudyDescription, notAvailable),
	}
}

func (d *Dataset) float(field string) (float64, bool) {
	v, ok := d.Value(field)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// WindowLevel returns the first window center/width pair when both are present.
func (d *Dataset) WindowLevel() (center, width float64, ok bool) {
	c, okC := d.float(FieldWindowCenter)
	w, okW := d.float(FieldWindowWidth)
	if !okC || !okW || w <= 0 {
		return 0, 0, false
	}
	return c, w, true
}

// RawPixels returns the first frame without any modality transforms.
// A dataset without pixel data yields an empty buffer, not an error.
func (d *Dataset) RawPixels() (*PixelBuffer, error) {
	if d == nil || d.pixels == nil {
		return &PixelBuffer{}, nil
	}
	buf, err := d.pixels()
	if err != nil {
		return nil, err
	}
	if buf == nil {
		return &PixelBuffer{}, nil
	}
	return buf, nil
}

// Pixels returns the first frame with the rescale and MONOCHROME1 inversion
// applied when the driving attributes are present.
func (d *Dataset) Pixels() (*PixelBuffer, error) {
	buf, err := d.RawPixels()
	if err != nil || buf.Empty() {
		return buf, err
	}
	slope, okS := d.float(FieldRescaleSlope)
	intercept, okI := d.float(FieldRescaleIntercept)
	if okS && okI {
		buf = Rescale(buf, slope, intercept)
	}
	if pi, ok := d.Value(FieldPhotometricInterpretation); ok && strings.EqualFold(pi, photometricMonochrome1) {
		buf = InvertMonochrome1(buf)
	}
	return buf, nil
}

// ParseDate parses a DA value (YYYYMMDD). Missing or malformed input yields nil.
func ParseDate(raw string) *time.Time {
	raw = strings.TrimSpace(raw)
	if len(raw) != 8 {
		return nil
	}
	for _, r := range raw {
		if r < '0' || r > '9' {
			return nil
		}
	}
	t, err := time.Parse("20060102", raw)
	if err != nil {
		return nil
	}
	return &t
}
