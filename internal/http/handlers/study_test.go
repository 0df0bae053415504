package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	types "github.com/yungbote/medicore-backend/internal/domain"
	"github.com/yungbote/medicore-backend/internal/platform/apierr"
	"github.com/yungbote/medicore-backend/internal/platform/ctxutil"
	"github.com/yungbote/medicore-backend/internal/platform/dbctx"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"github.com/yungbote/medicore-backend/internal/services"
)

type fakeUploads struct {
	got  services.UploadInput
	body []byte
	res  *services.UploadResult
	err  error
}

func (f *fakeUploads) ProcessUpload(_ dbctx.Context, in services.UploadInput) (*services.UploadResult, error) {
	f.got = in
	f.body, _ = io.ReadAll(in.Reader)
	return f.res, f.err
}

type fakeStudies struct {
	study *types.Study
	url   *services.DownloadURL
	err   error
}

func (f *fakeStudies) Get(dbctx.Context, uuid.UUID) (*types.Study, error) { return f.study, f.err }
func (f *fakeStudies) DownloadURL(dbctx.Context, uuid.UUID) (*services.DownloadURL, error) {
	return f.url, f.err
}
func (f *fakeStudies) Reprocess(_ dbctx.Context, id uuid.UUID, _ uuid.UUID) (*services.UploadResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &services.UploadResult{StudyID: id, TaskID: uuid.New(), Status: services.StatusProcessingStarted}, nil
}

type fakeJobs struct {
	services.JobService
	status *services.TaskStatus
	err    error
}

func (f *fakeJobs) Status(dbctx.Context, uuid.UUID) (*services.TaskStatus, error) { return f.status, f.err }

func newRouter(h *StudyHandler, userID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Request = c.Request.WithContext(ctxutil.WithRequestData(c.Request.Context(), &ctxutil.RequestData{
			UserID: userID, Role: "technician", ClientIP: "10.1.2.3", UserAgent: "pacs-bridge/1.0",
		}))
		c.Next()
	})
	r.POST("/studies/upload", h.Upload)
	r.GET("/studies/:id/status", h.Status)
	r.GET("/studies/:id", h.Get)
	r.GET("/studies/:id/url", h.DownloadURL)
	r.POST("/studies/:id/reprocess", h.Reprocess)
	return r
}

func multipartBody(t *testing.T, filename string, content []byte, patientID string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if filename != "" {
		fw, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = fw.Write(content)
	}
	_ = w.WriteField("patient_id", patientID)
	if err := w.Close(); err != nil {
		t.Fatalf("close multipart: %v", err)
	}
	return &buf, w.FormDataContentType()
}

func postUpload(t *testing.T, r *gin.Engine, filename string, content []byte, patientID string) *httptest.ResponseRecorder {
	t.Helper()
	body, ctype := multipartBody(t, filename, content, patientID)
	req := httptest.NewRequest(http.MethodPost, "/studies/upload", body)
	req.Header.Set("Content-Type", ctype)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func errDetail(t *testing.T, rec *httptest.ResponseRecorder) (string, string) {
	t.Helper()
	var env struct {
		Detail string `json:"detail"`
		Error  struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return env.Detail, env.Error.Code
}

func TestUploadAccepted(t *testing.T) {
	userID := uuid.New()
	studyID, taskID := uuid.New(), uuid.New()
	up := &fakeUploads{res: &services.UploadResult{StudyID: studyID, TaskID: taskID, Status: services.StatusProcessingStarted}}
	h := NewStudyHandler(StudyHandlerDeps{Log: logger.Nop(), Uploads: up, MaxUploadSize: 1 << 20})

	patientID := uuid.NewString()
	rec := postUpload(t, newRouter(h, userID), "CT_001.DCM", []byte("DICM-bytes"), patientID)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
	var got map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got["study_id"] != studyID.String() || got["task_id"] != taskID.String() || got["status"] != "processing_started" {
		t.Fatalf("body = %v", got)
	}
	if up.got.Filename != "CT_001.DCM" || up.got.PatientID != patientID || string(up.body) != "DICM-bytes" {
		t.Fatalf("input = %+v body %q", up.got, up.body)
	}
	if up.got.UploaderID != userID || up.got.ClientIP != "10.1.2.3" || up.got.UserAgent != "pacs-bridge/1.0" {
		t.Fatalf("caller identity not forwarded: %+v", up.got)
	}
}

func TestUploadRejections(t *testing.T) {
	up := &fakeUploads{}
	h := NewStudyHandler(StudyHandlerDeps{Log: logger.Nop(), Uploads: up, MaxUploadSize: 1 << 20})
	r := newRouter(h, uuid.New())

	rec := postUpload(t, r, "report.pdf", []byte("%PDF"), uuid.NewString())
	if d, _ := errDetail(t, rec); rec.Code != http.StatusBadRequest || d != "Invalid file type. Only DICOM files are accepted." {
		t.Fatalf("bad extension: %d %s", rec.Code, rec.Body.String())
	}
	if up.got.Filename != "" {
		t.Fatalf("service must not be called for a bad extension")
	}

	rec = postUpload(t, r, "", nil, uuid.NewString())
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing file: %d", rec.Code)
	}

	up.err = apierr.InvalidInput("Invalid DICOM file: Missing required DICOM tag: Modality")
	rec = postUpload(t, r, "a.dcm", []byte("x"), uuid.NewString())
	if d, code := errDetail(t, rec); rec.Code != http.StatusBadRequest || code != "invalid_input" || d != "Invalid DICOM file: Missing required DICOM tag: Modality" {
		t.Fatalf("invalid dicom: %d %s", rec.Code, rec.Body.String())
	}

	up.err = apierr.IOFailure(errors.New("Failed to upload file to object storage."))
	rec = postUpload(t, r, "a.dcm", []byte("x"), uuid.NewString())
	if _, code := errDetail(t, rec); rec.Code != http.StatusBadGateway || code != "io_failure" {
		t.Fatalf("io failure: %d %s", rec.Code, rec.Body.String())
	}

	up.err = errors.New("db is on fire")
	rec = postUpload(t, r, "a.dcm", []byte("x"), uuid.NewString())
	if d, _ := errDetail(t, rec); rec.Code != http.StatusInternalServerError || d != "internal error" {
		t.Fatalf("internal: %d %s", rec.Code, rec.Body.String())
	}
}

func TestUploadTooLarge(t *testing.T) {
	up := &fakeUploads{}
	h := NewStudyHandler(StudyHandlerDeps{Log: logger.Nop(), Uploads: up, MaxUploadSize: 1024})
	rec := postUpload(t, newRouter(h, uuid.New()), "big.dcm", bytes.Repeat([]byte{0x42}, 8192), uuid.NewString())
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d body %s", rec.Code, rec.Body.String())
	}
}

func TestStatusEndpoint(t *testing.T) {
	jobs := &fakeJobs{status: &services.TaskStatus{TaskID: "t", Status: services.TaskSuccess, Result: map[string]any{"status": "complete"}}}
	h := NewStudyHandler(StudyHandlerDeps{Log: logger.Nop(), Jobs: jobs})
	r := newRouter(h, uuid.New())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/studies/"+uuid.NewString()+"/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got services.TaskStatus
	_ = json.Unmarshal(rec.Body.Bytes(), &got)
	if got.Status != "success" {
		t.Fatalf("body = %s", rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/studies/not-a-uuid/status", nil))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad id status = %d", rec.Code)
	}

	jobs.err = apierr.NotFound("Task not found")
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/studies/"+uuid.NewString()+"/status", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown task status = %d", rec.Code)
	}
}

func TestStudyReadEndpoints(t *testing.T) {
	id := uuid.New()
	studies := &fakeStudies{
		study: &types.Study{ID: id, Modality: "CT", ProcessingStatus: types.StudyStatusCompleted},
		url:   &services.DownloadURL{URL: "https://bucket.s3/x?sig", ExpiresIn: 3600},
	}
	h := NewStudyHandler(StudyHandlerDeps{Log: logger.Nop(), Studies: studies})
	r := newRouter(h, uuid.New())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/studies/"+id.String(), nil))
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"processing_status":"completed"`)) {
		t.Fatalf("get: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/studies/"+id.String()+"/url", nil))
	if rec.Code != http.StatusOK || !bytes.Contains(rec.Body.Bytes(), []byte(`"expires_in":3600`)) {
		t.Fatalf("url: %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/studies/"+id.String()+"/reprocess", nil))
	if rec.Code != http.StatusAccepted {
		t.Fatalf("reprocess: %d %s", rec.Code, rec.Body.String())
	}

	studies.err = apierr.Conflict("Study %s already has a processing job in flight", id)
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/studies/"+id.String()+"/reprocess", nil))
	if rec.Code != http.StatusConflict {
		t.Fatalf("reprocess conflict: %d", rec.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/healthcheck", NewHealthHandler().HealthCheck)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthcheck", nil))
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthcheck: %d %q", rec.Code, rec.Body.String())
	}
}
