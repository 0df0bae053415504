package dicom

import (
	"errors"
	"testing"
)

func TestMetadataDefaults(t *testing.T) {
	md := NewDataset(map[string][]string{
		FieldModality:  {"MR"},
		FieldPatientID: {"  "},
	}, nil).Metadata()

	if md.Modality != "MR" {
		t.Fatalf("modality: got %q", md.Modality)
	}
	if md.PatientID != "Unknown" || md.SOPInstanceUID != "Unknown" {
		t.Fatalf("identifier defaults: %+v", md)
	}
	if md.InstitutionName != "N/A" || md.Manufacturer != "N/A" || md.StudyDescription != "N/A" {
		t.Fatalf("descriptive defaults: %+v", md)
	}
	if md.StudyDate != "" || md.StudyTime != "" {
		t.Fatalf("date/time should default empty: %+v", md)
	}
}

func TestPixelsAppliesRescaleAndInversion(t *testing.T) {
	raw := &PixelBuffer{Rows: 1, Cols: 3, Data: []float64{0, 10, 20}}
	ds := NewDataset(map[string][]string{
		FieldRescaleSlope:              {"2"},
		FieldRescaleIntercept:          {"-5"},
		FieldPhotometricInterpretation: {"MONOCHROME1"},
	}, func() (*PixelBuffer, error) { return raw, nil })

	got, err := ds.Pixels()
	if err != nil {
		t.Fatalf("Pixels: %v", err)
	}
	// rescaled: -5, 15, 35; inverted against max 35
	want := []float64{40, 20, 0}
	for i := range want {
		if got.Data[i] != want[i] {
			t.Fatalf("pixel %d: got %v want %v", i, got.Data[i], want[i])
		}
	}
	if raw.Data[1] != 10 {
		t.Fatalf("raw buffer mutated")
	}
}

func TestPixelsRescaleNeedsBothAttributes(t *testing.T) {
	ds := NewDataset(map[string][]string{FieldRescaleSlope: {"3"}}, func() (*PixelBuffer, error) {
		return &PixelBuffer{Rows: 1, Cols: 1, Data: []float64{7}}, nil
	})
	got, err := ds.Pixels()
	if err != nil {
		t.Fatalf("Pixels: %v", err)
	}
	if got.Data[0] != 7 {
		t.Fatalf("expected untouched value, got %v", got.Data[0])
	}
}

func TestPixelsWithoutPixelData(t *testing.T) {
	got, err := NewDataset(nil, nil).Pixels()
	if err != nil {
		t.Fatalf("Pixels: %v", err)
	}
	if !got.Empty() {
		t.Fatalf("expected empty buffer")
	}

	boom := errors.New("boom")
	_, err = NewDataset(nil, func() (*PixelBuffer, error) { return nil, boom }).Pixels()
	if !errors.Is(err, boom) {
		t.Fatalf("expected reader error, got %v", err)
	}
}

func TestParseDate(t *testing.T) {
	if d := ParseDate("20240115"); d == nil || d.Year() != 2024 || d.Month() != 1 || d.Day() != 15 {
		t.Fatalf("ParseDate valid: %v", d)
	}
	for _, in := range []string{"", "2024011", "2024-01-15", "20241340", "abcdefgh"} {
		if d := ParseDate(in); d != nil {
			t.Fatalf("ParseDate(%q) should be nil, got %v", in, d)
		}
	}
}

func TestWindowLevel(t *testing.T) {
	ds := NewDataset(map[string][]string{
		FieldWindowCenter: {"40", "400"},
		FieldWindowWidth:  {"400", "2000"},
	}, nil)
	c, w, ok := ds.WindowLevel()
	if !ok || c != 40 || w != 400 {
		t.Fatalf("WindowLevel: %v %v %v", c, w, ok)
	}
	if _, _, ok := NewDataset(nil, nil).WindowLevel(); ok {
		t.Fatalf("expected no window without attributes")
	}
}
