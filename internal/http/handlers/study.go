package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/docker/go-units"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/medicore-backend/internal/http/response"
	"github.com/yungbote/medicore-backend/internal/observability"
	"github.com/yungbote/medicore-backend/internal/platform/apierr"
	"github.com/yungbote/medicore-backend/internal/platform/ctxutil"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"github.com/yungbote/medicore-backend/internal/services"
)

type StudyHandlerDeps struct {
	Log           *logger.Logger
	Uploads       services.UploadService
	Studies       services.StudyService
	Jobs          services.JobService
	Metrics       *observability.Metrics
	MaxUploadSize int64
}

type StudyHandler struct {
	log           *logger.Logger
	uploads       services.UploadService
	studies       services.StudyService
	jobs          services.JobService
	metrics       *observability.Metrics
	maxUploadSize int64
}

func NewStudyHandler(deps StudyHandlerDeps) *StudyHandler {
	return &StudyHandler{
		log:           deps.Log.With("handler", "StudyHandler"),
		uploads:       deps.Uploads,
		studies:       deps.Studies,
		jobs:          deps.Jobs,
		metrics:       deps.Metrics,
		maxUploadSize: deps.MaxUploadSize,
	}
}

// POST /api/v1/studies/upload
func (h *StudyHandler) Upload(c *gin.Context) {
	if h.maxUploadSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadSize)
	}
	fh, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.metrics.UploadOutcome("too_large")
			response.RespondError(c, http.StatusRequestEntityTooLarge, "file_too_large",
				fmt.Errorf("File exceeds the %s upload limit.", units.HumanSize(float64(h.maxUploadSize))))
			return
		}
		h.metrics.UploadOutcome(apierr.CodeInvalidInput)
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, errors.New("Missing multipart field 'file'."))
		return
	}
	// Reject before reading the body into the staging area.
	if !services.AllowedExtension(fh.Filename) {
		h.metrics.UploadOutcome(apierr.CodeInvalidInput)
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, errors.New("Invalid file type. Only DICOM files are accepted."))
		return
	}
	f, err := fh.Open()
	if err != nil {
		h.metrics.UploadOutcome(apierr.CodeInternal)
		response.RespondAPIError(c, fmt.Errorf("open multipart file: %w", err))
		return
	}
	defer f.Close()

	in := services.UploadInput{
		Filename:  fh.Filename,
		Reader:    f,
		PatientID: strings.TrimSpace(c.PostForm("patient_id")),
	}
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
		in.UploaderID = rd.UserID
		in.ClientIP = rd.ClientIP
		in.UserAgent = rd.UserAgent
	}

	res, err := h.uploads.ProcessUpload(dbctx.Context{Ctx: c.Request.Context()}, in)
	if err != nil {
		h.metrics.UploadOutcome(outcomeCode(err))
		response.RespondAPIError(c, err)
		return
	}
	h.metrics.UploadOutcome("accepted")
	response.RespondAccepted(c, res)
}

// GET /api/v1/studies/:id/status
func (h *StudyHandler) Status(c *gin.Context) {
	taskID, ok := parseID(c, "task")
	if !ok {
		return
	}
	st, err := h.jobs.Status(dbctx.Context{Ctx: c.Request.Context()}, taskID)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, st)
}

// GET /api/v1/studies/:id
func (h *StudyHandler) Get(c *gin.Context) {
	id, ok := parseID(c, "study")
	if !ok {
		return
	}
	study, err := h.studies.Get(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, study)
}

// GET /api/v1/studies/:id/url
func (h *StudyHandler) DownloadURL(c *gin.Context) {
	id, ok := parseID(c, "study")
	if !ok {
		return
	}
	u, err := h.studies.DownloadURL(dbctx.Context{Ctx: c.Request.Context()}, id)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondOK(c, u)
}

// POST /api/v1/studies/:id/reprocess
func (h *StudyHandler) Reprocess(c *gin.Context) {
	id, ok := parseID(c, "study")
	if !ok {
		return
	}
	var requestedBy uuid.UUID
	if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
		requestedBy = rd.UserID
	}
	res, err := h.studies.Reprocess(dbctx.Context{Ctx: c.Request.Context()}, id, requestedBy)
	if err != nil {
		response.RespondAPIError(c, err)
		return
	}
	response.RespondAccepted(c, res)
}

func parseID(c *gin.Context, what string) (uuid.UUID, bool) {
	id, err := uuid.Parse(strings.TrimSpace(c.Param("id")))
	if err != nil || id == uuid.Nil {
		response.RespondError(c, http.StatusBadRequest, apierr.CodeInvalidInput, fmt.Errorf("Invalid %s id", what))
		return uuid.Nil, false
	}
	return id, true
}

func outcomeCode(err error) string {
	if ae, ok := apierr.As(err); ok {
		return ae.Code
	}
	return apierr.CodeInternal
}
