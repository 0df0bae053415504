package dicom_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/medicore-backend/internal/imaging/dicom"
	"github.com/yungbote/medicore-backend/internal/imaging/dicom/dicomtest"
)

func TestDecodeFileReadsMetadataAndPixels(t *testing.T) {
	dir := t.TempDir()
	path := dicomtest.WriteFile(t, dir, "ct.dcm", dicomtest.CT("1.2.3.4.5"))

	ds, err := dicom.NewDecoder().DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	md := ds.Metadata()
	if md.SOPInstanceUID != "1.2.3.4.5" {
		t.Fatalf("sop uid: %q", md.SOPInstanceUID)
	}
	if md.Modality != "CT" || md.PatientID != "PAT-0001" || md.StudyDate != "20240115" {
		t.Fatalf("metadata: %+v", md)
	}

	px, err := ds.Pixels()
	if err != nil {
		t.Fatalf("Pixels: %v", err)
	}
	if px.Rows != 4 || px.Cols != 4 || len(px.Data) != 16 {
		t.Fatalf("pixel shape: %dx%d (%d)", px.Rows, px.Cols, len(px.Data))
	}
	// rescale intercept -1024
	if px.Data[0] != -1024 || px.Data[15] != 1500-1024 {
		t.Fatalf("rescaled values: %v %v", px.Data[0], px.Data[15])
	}
}

func TestDecodeFileWithoutPixelData(t *testing.T) {
	inst := dicomtest.CT("1.2.3.4.6")
	inst.Pixels = nil
	path := dicomtest.WriteFile(t, t.TempDir(), "nopx.dcm", inst)

	ds, err := dicom.NewDecoder().DecodeFile(path)
	if err != nil {
		t.Fatalf("DecodeFile: %v", err)
	}
	px, err := ds.Pixels()
	if err != nil {
		t.Fatalf("Pixels: %v", err)
	}
	if !px.Empty() {
		t.Fatalf("expected empty pixel buffer")
	}
}

func TestDecodeFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "junk.dcm")
	if err := os.WriteFile(path, []byte("definitely not a dicom file"), 0o600); err != nil {
		t.Fatal(err)
	}
	_, err := dicom.NewDecoder().DecodeFile(path)
	if !errors.Is(err, dicom.ErrInvalidFormat) {
		t.Fatalf("expected ErrInvalidFormat, got %v", err)
	}
}
