package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/medicore-backend/internal/data/repos"
	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/imaging/dicom"
	"github.com/yungbote/medicore-backend/internal/imaging/validate"
	"github.com/yungbote/medicore-backend/internal/platform/apierr"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"github.com/yungbote/medicore-backend/internal/platform/objectstore"
)

const (
	JobTypeStudyProcess = "study_process"
	EntityTypeStudy     = "study"

	StatusProcessingStarted = "processing_started"
)

var tracer = otel.Tracer("medicore/services")

type UploadInput struct {
	Filename   string
	Reader     io.Reader
	PatientID  string
	UploaderID uuid.UUID
	ClientIP   string
	UserAgent  string
}

type UploadResult struct {
	StudyID uuid.UUID `json:"study_id"`
	TaskID  uuid.UUID `json:"task_id"`
	Status  string    `json:"status"`
}

type UploadService interface {
	ProcessUpload(dbc dbctx.Context, in UploadInput) (*UploadResult, error)
}

type uploadService struct {
	db        *gorm.DB
	log       *logger.Logger
	studies   repos.StudyRepo
	patients  repos.PatientRepo
	audit     repos.AuditLogRepo
	jobs      JobService
	store     objectstore.Gateway
	decoder   dicom.Decoder
	validator *validate.Validator
	tempDir   string
}

func NewUploadService(
	db *gorm.DB,
	baseLog *logger.Logger,
	studies repos.StudyRepo,
	patients repos.PatientRepo,
	audit repos.AuditLogRepo,
	jobs JobService,
	store objectstore.Gateway,
	decoder dicom.Decoder,
	validator *validate.Validator,
	tempDir string,
) UploadService {
	if decoder == nil {
		decoder = dicom.NewDecoder()
	}
	if validator == nil {
		validator = validate.New(validate.DefaultPolicy())
	}
	if strings.TrimSpace(tempDir) == "" {
		tempDir = filepath.Join(os.TempDir(), "medicore", "uploads")
	}
	return &uploadService{
		db:        db,
		log:       baseLog.With("service", "UploadService"),
		studies:   studies,
		patients:  patients,
		audit:     audit,
		jobs:      jobs,
		store:     store,
		decoder:   decoder,
		validator: validator,
		tempDir:   tempDir,
	}
}

// AllowedExtension reports whether filename carries a DICOM extension.
func AllowedExtension(filename string) bool {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".dcm", ".dicom":
		return true
	}
	return false
}

func (s *uploadService) ProcessUpload(dbc dbctx.Context, in UploadInput) (*UploadResult, error) {
	ctx, span := tracer.Start(dbc.Context(), "upload.process")
	defer span.End()

	if !AllowedExtension(in.Filename) {
		return nil, apierr.InvalidInput("Invalid file type. Only DICOM files are accepted.")
	}
	if in.Reader == nil {
		return nil, apierr.InvalidInput("Missing file")
	}
	patientID, err := uuid.Parse(strings.TrimSpace(in.PatientID))
	if err != nil || patientID == uuid.Nil {
		return nil, apierr.InvalidInput("Invalid patient_id")
	}
	ok, err := s.patients.Exists(dbctx.Context{Ctx: ctx}, patientID)
	if err != nil {
		return nil, fmt.Errorf("check patient: %w", err)
	}
	if !ok {
		return nil, apierr.InvalidInput("Patient %s not found", patientID)
	}

	staged, err := s.stage(in.Filename, in.Reader)
	if staged != "" {
		defer func() {
			if rmErr := os.Remove(staged); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
				s.log.Warn("Failed to remove staged upload", "path", staged, "error", rmErr)
			}
		}()
	}
	if err != nil {
		return nil, err
	}

	ds, err := s.decoder.DecodeFile(staged)
	if err != nil {
		return nil, apierr.InvalidInput("Invalid DICOM file: %v", err)
	}
	if res := s.validator.Validate(ds); !res.Valid {
		return nil, apierr.InvalidInput("Invalid DICOM file: %s", strings.Join(res.Violations, ", "))
	}
	md := ds.Metadata()
	span.SetAttributes(
		attribute.String("dicom.modality", md.Modality),
		attribute.String("dicom.study_instance_uid", md.StudyInstanceUID),
	)

	exists, err := s.studies.ExistsBySOPInstanceUID(dbctx.Context{Ctx: ctx}, md.SOPInstanceUID)
	if err != nil {
		return nil, fmt.Errorf("check duplicate: %w", err)
	}
	if exists {
		return nil, apierr.Conflict("Study with SOP instance UID %s already exists", md.SOPInstanceUID)
	}

	key, err := objectstore.StudyObjectKey(md.StudyInstanceUID, filepath.Base(staged))
	if err != nil {
		return nil, apierr.InvalidInput("Invalid DICOM file: StudyInstanceUID %q", md.StudyInstanceUID)
	}
	if !s.store.Upload(ctx, staged, key) {
		return nil, apierr.IOFailure(errors.New("Failed to upload file to object storage."))
	}

	study := &types.Study{
		ID:                uuid.New(),
		PatientID:         patientID,
		StudyInstanceUID:  md.StudyInstanceUID,
		SeriesInstanceUID: md.SeriesInstanceUID,
		SOPInstanceUID:    md.SOPInstanceUID,
		Modality:          md.Modality,
		StudyDate:         dicom.ParseDate(md.StudyDate),
		StudyTime:         md.StudyTime,
		StudyDescription:  md.StudyDescription,
		InstitutionName:   md.InstitutionName,
		Manufacturer:      md.Manufacturer,
		S3Bucket:          s.store.Bucket(),
		S3Key:             key,
		ProcessingStatus:  types.StudyStatusPending,
	}
	if in.UploaderID != uuid.Nil {
		uploader := in.UploaderID
		study.UploadedBy = &uploader
	}

	var job *types.JobRun
	txErr := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := dbctx.Context{Ctx: ctx, Tx: tx}
		if _, err := s.studies.Create(inner, study); err != nil {
			return err
		}
		if err := s.audit.Create(inner, s.auditEntry(in, study)); err != nil {
			return fmt.Errorf("write audit log: %w", err)
		}
		studyID := study.ID
		j, err := s.jobs.Enqueue(inner, ownerFor(in.UploaderID), JobTypeStudyProcess, EntityTypeStudy, &studyID, map[string]any{
			"study_id": study.ID.String(),
		})
		if err != nil {
			return err
		}
		job = j
		return nil
	})
	if txErr != nil {
		if delErr := s.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
			s.log.Error("Failed to remove object after rollback", "key", key, "error", delErr)
		}
		if errors.Is(txErr, repos.ErrDuplicateInstance) {
			return nil, apierr.Conflict("Study with SOP instance UID %s already exists", md.SOPInstanceUID)
		}
		return nil, fmt.Errorf("record study: %w", txErr)
	}

	// The job row is durable. A failed workflow start leaves it failed at the
	// dispatch stage, where the worker's dispatch sweep restarts it.
	if err := s.jobs.Dispatch(dbctx.Context{Ctx: ctx}, job.ID); err != nil {
		s.log.Error("Job dispatch failed", "job_id", job.ID, "study_id", study.ID, "error", err)
	}

	s.log.Info("Study accepted",
		"study_id", study.ID,
		"task_id", job.ID,
		"modality", study.Modality,
		"uploaded_by_user_id", in.UploaderID,
	)
	return &UploadResult{StudyID: study.ID, TaskID: job.ID, Status: StatusProcessingStarted}, nil
}

// stage copies r to a collision-free file under the temp dir. The returned
// path is non-empty whenever a file was created, even on error.
func (s *uploadService) stage(filename string, r io.Reader) (string, error) {
	if err := os.MkdirAll(s.tempDir, 0o755); err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	ext := strings.TrimPrefix(filepath.Ext(filename), ".")
	name := fmt.Sprintf("%s_%s.%s", time.Now().UTC().Format("20060102150405"), uuid.New(), ext)
	path := filepath.Join(s.tempDir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return "", fmt.Errorf("create staged file: %w", err)
	}
	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		return path, apierr.InvalidInput("Could not read uploaded file: %v", err)
	}
	if err := f.Close(); err != nil {
		return path, fmt.Errorf("close staged file: %w", err)
	}
	return path, nil
}

func (s *uploadService) auditEntry(in UploadInput, study *types.Study) *types.AuditLog {
	details, _ := json.Marshal(map[string]any{
		"filename":         filepath.Base(in.Filename),
		"sop_instance_uid": study.SOPInstanceUID,
		"modality":         study.Modality,
		"s3_key":           study.S3Key,
	})
	entry := &types.AuditLog{
		Action:     types.AuditActionStudyUpload,
		Resource:   types.AuditResourceStudy,
		ResourceID: study.ID.String(),
		Details:    datatypes.JSON(details),
		IPAddress:  in.ClientIP,
		UserAgent:  in.UserAgent,
	}
	if in.UploaderID != uuid.Nil {
		uid := in.UploaderID
		entry.UserID = &uid
	}
	return entry
}

// ownerFor falls back to a fixed system owner for uploads without a caller.
func ownerFor(userID uuid.UUID) uuid.UUID {
	if userID != uuid.Nil {
		return userID
	}
	return systemOwnerID
}

var systemOwnerID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
