package study_process

import (
	"os"

	"github.com/yungbote/medicore-backend/internal/data/repos"
	"github.com/yungbote/medicore-backend/internal/imaging/dicom"
	"github.com/yungbote/medicore-backend/internal/imaging/preview"
	"github.com/yungbote/medicore-backend/internal/imaging/quality"
	"github.com/yungbote/medicore-backend/internal/imaging/validate"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"github.com/yungbote/medicore-backend/internal/platform/objectstore"
)

const JobType = "study_process"

type Pipeline struct {
	log       *logger.Logger
	studies   repos.StudyRepo
	store     objectstore.Gateway
	decoder   dicom.Decoder
	validator *validate.Validator
	assessor  quality.Assessor
	previews  *preview.Renderer
	tempDir   string
}

// Deps groups the collaborators of the pipeline. Previews may be nil to skip
// rendering.
type Deps struct {
	Studies   repos.StudyRepo
	Store     objectstore.Gateway
	Decoder   dicom.Decoder
	Validator *validate.Validator
	Assessor  quality.Assessor
	Previews  *preview.Renderer
	TempDir   string
}

func New(baseLog *logger.Logger, deps Deps) *Pipeline {
	p := &Pipeline{
		log:       baseLog.With("job", JobType),
		studies:   deps.Studies,
		store:     deps.Store,
		decoder:   deps.Decoder,
		validator: deps.Validator,
		assessor:  deps.Assessor,
		previews:  deps.Previews,
		tempDir:   deps.TempDir,
	}
	if p.decoder == nil {
		p.decoder = dicom.NewDecoder()
	}
	if p.validator == nil {
		p.validator = validate.New(validate.DefaultPolicy())
	}
	if p.assessor == nil {
		p.assessor = quality.Fixed{}
	}
	if p.tempDir == "" {
		p.tempDir = os.TempDir()
	}
	return p
}

func (p *Pipeline) Type() string { return JobType }
