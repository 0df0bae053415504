package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/medicore-backend/internal/platform/apierr"
)

func TestRespondAPIError(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{"invalid input", apierr.InvalidInput("Invalid DICOM file: %s", "Missing required DICOM tag: Modality"), 400, "invalid_input", "Invalid DICOM file: Missing required DICOM tag: Modality"},
		{"wrapped conflict", fmt.Errorf("upload: %w", apierr.Conflict("duplicate")), 409, "conflict", "duplicate"},
		{"io failure", apierr.IOFailure(errors.New("Failed to upload file to object storage.")), 502, "io_failure", "Failed to upload file to object storage."},
		{"processing failure hidden", apierr.ProcessingFailure(errors.New("decoder exploded")), 500, "internal_error", "internal error"},
		{"plain error hidden", errors.New("pq: connection refused"), 500, "internal_error", "internal error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(rec)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
			RespondAPIError(c, tc.err)

			if rec.Code != tc.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tc.wantStatus)
			}
			var env ErrorEnvelope
			if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Error.Code != tc.wantCode || env.Error.Message != tc.wantMsg || env.Detail != tc.wantMsg {
				t.Fatalf("envelope = %+v", env)
			}
		})
	}
}
