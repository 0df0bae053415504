package validate

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/yungbote/medicore-backend/internal/imaging/dicom"
)

func datasetWith(values map[string]string, px *dicom.PixelBuffer, pxErr error) *dicom.Dataset {
	vals := map[string][]string{}
	for k, v := range values {
		vals[k] = []string{v}
	}
	return dicom.NewDataset(vals, func() (*dicom.PixelBuffer, error) { return px, pxErr })
}

func completeValues() map[string]string {
	return map[string]string{
		dicom.FieldPatientID:         "PAT-1",
		dicom.FieldStudyInstanceUID:  "1.2.3",
		dicom.FieldSeriesInstanceUID: "1.2.3.1",
		dicom.FieldSOPInstanceUID:    "1.2.3.1.1",
		dicom.FieldModality:          "CT",
	}
}

var onePixel = &dicom.PixelBuffer{Rows: 1, Cols: 1, Data: []float64{1}}

func TestValidateAcceptsCompleteDataset(t *testing.T) {
	res := New(DefaultPolicy()).Validate(datasetWith(completeValues(), onePixel, nil))
	if !res.Valid || len(res.Violations) != 0 {
		t.Fatalf("expected valid, got %+v", res)
	}
}

func TestValidateMissingTagsInDeclaredOrder(t *testing.T) {
	vals := completeValues()
	delete(vals, dicom.FieldSOPInstanceUID)
	vals[dicom.FieldPatientID] = "   "

	res := New(DefaultPolicy()).Validate(datasetWith(vals, onePixel, nil))
	want := []string{
		"Missing required DICOM tag: PatientID",
		"Missing required DICOM tag: SOPInstanceUID",
	}
	if res.Valid || !reflect.DeepEqual(res.Violations, want) {
		t.Fatalf("got %+v, want %v", res, want)
	}
}

func TestValidateModalityAllowList(t *testing.T) {
	v := New(DefaultPolicy())
	for _, m := range []string{"CT", "MR", "CR", "DX", "US", "MG"} {
		vals := completeValues()
		vals[dicom.FieldModality] = m
		if res := v.Validate(datasetWith(vals, onePixel, nil)); !res.Valid {
			t.Fatalf("modality %s rejected: %v", m, res.Violations)
		}
	}

	vals := completeValues()
	vals[dicom.FieldModality] = "XA"
	res := v.Validate(datasetWith(vals, onePixel, nil))
	if !reflect.DeepEqual(res.Violations, []string{"Unsupported modality: 'XA'"}) {
		t.Fatalf("unexpected violations: %v", res.Violations)
	}
}

func TestValidateMissingModalityReportsBoth(t *testing.T) {
	vals := completeValues()
	delete(vals, dicom.FieldModality)
	res := New(DefaultPolicy()).Validate(datasetWith(vals, onePixel, nil))
	want := []string{
		"Missing required DICOM tag: Modality",
		"Unsupported modality: ''",
	}
	if !reflect.DeepEqual(res.Violations, want) {
		t.Fatalf("got %v want %v", res.Violations, want)
	}
}

func TestValidateUIDGrammar(t *testing.T) {
	v := New(DefaultPolicy())
	long := "1." + strings.Repeat("2", 63)

	cases := []struct {
		field, uid string
		ok         bool
	}{
		{dicom.FieldStudyInstanceUID, "1.2.826.0.1.3680043.8.498.1", true},
		{dicom.FieldStudyInstanceUID, "../../tenant-b/reports", false},
		{dicom.FieldSeriesInstanceUID, "1.2..3", false},
		{dicom.FieldSOPInstanceUID, "1.2.3a", false},
		{dicom.FieldSOPInstanceUID, long, false},
	}
	for _, tc := range cases {
		vals := completeValues()
		vals[tc.field] = tc.uid
		res := v.Validate(datasetWith(vals, onePixel, nil))
		if res.Valid != tc.ok {
			t.Fatalf("%s=%q valid=%v violations=%v", tc.field, tc.uid, res.Valid, res.Violations)
		}
		if !tc.ok && !reflect.DeepEqual(res.Violations, []string{"Invalid " + tc.field + ": '" + tc.uid + "'"}) {
			t.Fatalf("violations: %v", res.Violations)
		}
	}
}

func TestValidatePixelProblems(t *testing.T) {
	v := New(DefaultPolicy())

	res := v.Validate(datasetWith(completeValues(), &dicom.PixelBuffer{}, nil))
	if !reflect.DeepEqual(res.Violations, []string{"DICOM file contains no pixel data."}) {
		t.Fatalf("empty pixels: %v", res.Violations)
	}

	res = v.Validate(datasetWith(completeValues(), nil, errors.New("truncated frame")))
	if !reflect.DeepEqual(res.Violations, []string{"Could not read pixel data: truncated frame"}) {
		t.Fatalf("pixel error: %v", res.Violations)
	}
}

func TestValidateIsDeterministic(t *testing.T) {
	vals := completeValues()
	delete(vals, dicom.FieldPatientID)
	vals[dicom.FieldModality] = "PT"
	ds := datasetWith(vals, nil, nil)
	v := New(DefaultPolicy())
	first := v.Validate(ds)
	for i := 0; i < 5; i++ {
		if got := v.Validate(ds); !reflect.DeepEqual(got, first) {
			t.Fatalf("run %d differs: %v vs %v", i, got, first)
		}
	}
}

func TestPolicyOverrides(t *testing.T) {
	p := DefaultPolicy().WithModalities([]string{" xa ", "CT", ""})
	if !reflect.DeepEqual(p.SupportedModalities, []string{"XA", "CT"}) {
		t.Fatalf("modalities: %v", p.SupportedModalities)
	}
	if got := DefaultPolicy().WithModalities(nil); len(got.SupportedModalities) != 6 {
		t.Fatalf("empty override should keep defaults: %v", got.SupportedModalities)
	}

	path := filepath.Join(t.TempDir(), "policy.yaml")
	raw := "required_tags: [PatientID]\nsupported_modalities: [mr]\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatal(err)
	}
	loaded, err := LoadPolicyFile(path)
	if err != nil {
		t.Fatalf("LoadPolicyFile: %v", err)
	}
	if !reflect.DeepEqual(loaded.RequiredTags, []string{"PatientID"}) || !reflect.DeepEqual(loaded.SupportedModalities, []string{"MR"}) {
		t.Fatalf("loaded policy: %+v", loaded)
	}

	if _, err := LoadPolicyFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
