package validate

import (
	"fmt"
	"regexp"

	"github.com/yungbote/medicore-backend/internal/imaging/dicom"
)

// Source is the part of a decoded dataset the validator inspects.
type Source interface {
	Has(field string) bool
	Value(field string) (string, bool)
	RawPixels() (*dicom.PixelBuffer, error)
}

type Result struct {
	Valid      bool     `json:"valid"`
	Violations []string `json:"violations"`
}

type Validator struct {
	policy     Policy
	modalities map[string]bool
}

func New(p Policy) *Validator {
	mods := make(map[string]bool, len(p.SupportedModalities))
	for _, m := range p.SupportedModalities {
		mods[m] = true
	}
	return &Validator{policy: p, modalities: mods}
}

func (v *Validator) Policy() Policy { return v.policy }

const maxUIDLength = 64

var uidPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)*$`)

var uidFields = []string{dicom.FieldStudyInstanceUID, dicom.FieldSeriesInstanceUID, dicom.FieldSOPInstanceUID}

// Validate collects every violation; it does not stop at the first one.
func (v *Validator) Validate(ds Source) Result {
	violations := []string{}

	for _, t := range v.policy.RequiredTags {
		if !ds.Has(t) {
			violations = append(violations, fmt.Sprintf("Missing required DICOM tag: %s", t))
		}
	}

	// Absent UIDs were reported above.
	for _, f := range uidFields {
		if uid, ok := ds.Value(f); ok && (len(uid) > maxUIDLength || !uidPattern.MatchString(uid)) {
			violations = append(violations, fmt.Sprintf("Invalid %s: '%s'", f, uid))
		}
	}

	// An absent modality is also outside the allow-list and reported as ''.
	if modality, _ := ds.Value(dicom.FieldModality); !v.modalities[modality] {
		violations = append(violations, fmt.Sprintf("Unsupported modality: '%s'", modality))
	}

	px, err := ds.RawPixels()
	switch {
	case err != nil:
		violations = append(violations, fmt.Sprintf("Could not read pixel data: %v", err))
	case px.Empty():
		violations = append(violations, "DICOM file contains no pixel data.")
	}

	return Result{Valid: len(violations) == 0, Violations: violations}
}
