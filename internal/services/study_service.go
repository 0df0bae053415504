package services

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/medicore-backend/internal/data/repos"
	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/platform/apierr"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"github.com/yungbote/medicore-backend/internal/platform/objectstore"
)

type DownloadURL struct {
	URL       string `json:"url"`
	ExpiresIn int    `json:"expires_in"`
}

type StudyService interface {
	Get(dbc dbctx.Context, id uuid.UUID) (*types.Study, error)
	DownloadURL(dbc dbctx.Context, id uuid.UUID) (*DownloadURL, error)
	Reprocess(dbc dbctx.Context, id uuid.UUID, requestedBy uuid.UUID) (*UploadResult, error)
}

type studyService struct {
	db         *gorm.DB
	log        *logger.Logger
	studies    repos.StudyRepo
	jobRuns    repos.JobRunRepo
	jobs       JobService
	store      objectstore.Gateway
	presignTTL time.Duration
}

func NewStudyService(
	db *gorm.DB,
	baseLog *logger.Logger,
	studies repos.StudyRepo,
	jobRuns repos.JobRunRepo,
	jobs JobService,
	store objectstore.Gateway,
	presignTTL time.Duration,
) StudyService {
	if presignTTL <= 0 {
		presignTTL = time.Hour
	}
	return &studyService{
		db:         db,
		log:        baseLog.With("service", "StudyService"),
		studies:    studies,
		jobRuns:    jobRuns,
		jobs:       jobs,
		store:      store,
		presignTTL: presignTTL,
	}
}

func (s *studyService) Get(dbc dbctx.Context, id uuid.UUID) (*types.Study, error) {
	if id == uuid.Nil {
		return nil, apierr.InvalidInput("Invalid study id")
	}
	study, err := s.studies.GetByID(dbc, id)
	if err != nil {
		return nil, fmt.Errorf("load study: %w", err)
	}
	if study == nil {
		return nil, apierr.NotFound("Study not found")
	}
	return study, nil
}

func (s *studyService) DownloadURL(dbc dbctx.Context, id uuid.UUID) (*DownloadURL, error) {
	study, err := s.Get(dbc, id)
	if err != nil {
		return nil, err
	}
	url, ok := s.store.Presign(dbc.Context(), study.S3Key, s.presignTTL)
	if !ok {
		return nil, apierr.IOFailure(fmt.Errorf("Could not generate download URL"))
	}
	return &DownloadURL{URL: url, ExpiresIn: int(s.presignTTL / time.Second)}, nil
}

// Reprocess queues a fresh study_process job. At most one job per study may be
// queued or running at a time.
func (s *studyService) Reprocess(dbc dbctx.Context, id uuid.UUID, requestedBy uuid.UUID) (*UploadResult, error) {
	study, err := s.Get(dbc, id)
	if err != nil {
		return nil, err
	}

	var job *types.JobRun
	txErr := s.db.WithContext(dbc.Context()).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: dbc.Context(), Tx: tx}
		busy, err := s.jobRuns.HasRunnableForEntity(inner, EntityTypeStudy, study.ID, JobTypeStudyProcess)
		if err != nil {
			return err
		}
		if busy {
			return apierr.Conflict("Study %s is already being processed", study.ID)
		}
		studyID := study.ID
		j, err := s.jobs.Enqueue(inner, ownerFor(requestedBy), JobTypeStudyProcess, EntityTypeStudy, &studyID, map[string]any{
			"study_id": study.ID.String(),
			"reason":   "reprocess",
		})
		if err != nil {
			return err
		}
		job = j
		return nil
	})
	if txErr != nil {
		return nil, txErr
	}
	if err := s.jobs.Dispatch(dbctx.Context{Ctx: dbc.Context()}, job.ID); err != nil {
		return nil, err
	}
	s.log.Info("Study reprocess queued", "study_id", study.ID, "task_id", job.ID)
	return &UploadResult{StudyID: study.ID, TaskID: job.ID, Status: StatusProcessingStarted}, nil
}
