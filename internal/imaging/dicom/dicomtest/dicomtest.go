// Package dicomtest writes small Explicit VR Little Endian Part 10 files for tests.
package dicomtest

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

const (
	explicitVRLittleEndian = "1.2.840.10008.1.2.1"
	ctImageStorage         = "1.2.840.10008.5.1.4.1.1.2"
)

// Instance describes one image. Empty string attributes are left out of the file.
type Instance struct {
	PatientID                 string
	StudyInstanceUID          string
	SeriesInstanceUID         string
	SOPInstanceUID            string
	StudyDate                 string
	StudyTime                 string
	Modality                  string
	Manufacturer              string
	InstitutionName           string
	StudyDescription          string
	PhotometricInterpretation string
	WindowCenter              string
	WindowWidth               string
	RescaleIntercept          string
	RescaleSlope              string

	Rows   int
	Cols   int
	Pixels []uint16 // nil omits the pixel data element
}

// CT returns a complete, valid 4x4 CT instance.
func CT(sopUID string) Instance {
	px := make([]uint16, 16)
	for i := range px {
		px[i] = uint16(100 * i)
	}
	return Instance{
		PatientID:                 "PAT-0001",
		StudyInstanceUID:          "1.2.826.0.1.3680043.8.498.1",
		SeriesInstanceUID:         "1.2.826.0.1.3680043.8.498.1.1",
		SOPInstanceUID:            sopUID,
		StudyDate:                 "20240115",
		StudyTime:                 "101500",
		Modality:                  "CT",
		Manufacturer:              "ACME",
		InstitutionName:           "General Hospital",
		StudyDescription:          "CHEST",
		PhotometricInterpretation: "MONOCHROME2",
		WindowCenter:              "40",
		WindowWidth:               "400",
		RescaleIntercept:          "-1024",
		RescaleSlope:              "1",
		Rows:                      4,
		Cols:                      4,
		Pixels:                    px,
	}
}

// WriteFile encodes inst into dir/name and returns the path.
func WriteFile(tb testing.TB, dir, name string, inst Instance) string {
	tb.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, Encode(inst), 0o600); err != nil {
		tb.Fatalf("write dicom fixture: %v", err)
	}
	return path
}

func Encode(inst Instance) []byte {
	var meta bytes.Buffer
	writeShort(&meta, 0x0002, 0x0002, "UI", pad(ctImageStorage, 0))
	writeShort(&meta, 0x0002, 0x0003, "UI", pad(inst.SOPInstanceUID, 0))
	writeShort(&meta, 0x0002, 0x0010, "UI", pad(explicitVRLittleEndian, 0))

	var out bytes.Buffer
	out.Write(make([]byte, 128))
	out.WriteString("DICM")
	groupLen := make([]byte, 4)
	binary.LittleEndian.PutUint32(groupLen, uint32(meta.Len()))
	writeShort(&out, 0x0002, 0x0000, "UL", groupLen)
	out.Write(meta.Bytes())

	str := func(group, elem uint16, vr, v string) {
		if v == "" {
			return
		}
		padByte := byte(' ')
		if vr == "UI" {
			padByte = 0
		}
		writeShort(&out, group, elem, vr, pad(v, padByte))
	}
	us := func(group, elem uint16, v int) {
		b := make([]byte, 2)
		binary.LittleEndian.PutUint16(b, uint16(v))
		writeShort(&out, group, elem, "US", b)
	}

	str(0x0008, 0x0016, "UI", ctImageStorage)
	str(0x0008, 0x0018, "UI", inst.SOPInstanceUID)
	str(0x0008, 0x0020, "DA", inst.StudyDate)
	str(0x0008, 0x0030, "TM", inst.StudyTime)
	str(0x0008, 0x0060, "CS", inst.Modality)
	str(0x0008, 0x0070, "LO", inst.Manufacturer)
	str(0x0008, 0x0080, "LO", inst.InstitutionName)
	str(0x0008, 0x1030, "LO", inst.StudyDescription)
	str(0x0010, 0x0020, "LO", inst.PatientID)
	str(0x0020, 0x000D, "UI", inst.StudyInstanceUID)
	str(0x0020, 0x000E, "UI", inst.SeriesInstanceUID)
	us(0x0028, 0x0002, 1)
	str(0x0028, 0x0004, "CS", inst.PhotometricInterpretation)
	us(0x0028, 0x0010, inst.Rows)
	us(0x0028, 0x0011, inst.Cols)
	us(0x0028, 0x0100, 16)
	us(0x0028, 0x0101, 16)
	us(0x0028, 0x0102, 15)
	us(0x0028, 0x0103, 0)
	str(0x0028, 0x1050, "DS", inst.WindowCenter)
	str(0x0028, 0x1051, "DS", inst.WindowWidth)
	str(0x0028, 0x1052, "DS", inst.RescaleIntercept)
	str(0x0028, 0x1053, "DS", inst.RescaleSlope)

	if inst.Pixels != nil {
		data := make([]byte, 2*len(inst.Pixels))
		for i, p := range inst.Pixels {
			binary.LittleEndian.PutUint16(data[2*i:], p)
		}
		writeLong(&out, 0x7FE0, 0x0010, "OW", data)
	}
	return out.Bytes()
}

func pad(v string, b byte) []byte {
	out := []byte(v)
	if len(out)%2 == 1 {
		out = append(out, b)
	}
	return out
}

func writeTag(w *bytes.Buffer, group, elem uint16, vr string) {
	var b [4]byte
	binary.LittleEndian.PutUint16(b[0:], group)
	binary.LittleEndian.PutUint16(b[2:], elem)
	w.Write(b[:])
	w.WriteString(vr)
}

func writeShort(w *bytes.Buffer, group, elem uint16, vr string, value []byte) {
	writeTag(w, group, elem, vr)
	var l [2]byte
	binary.LittleEndian.PutUint16(l[:], uint16(len(value)))
	w.Write(l[:])
	w.Write(value)
}

func writeLong(w *bytes.Buffer, group, elem uint16, vr string, value []byte) {
	writeTag(w, group, elem, vr)
	var l [6]byte
	binary.LittleEndian.PutUint32(l[2:], uint32(len(value)))
	w.Write(l[:])
	w.Write(value)
}
