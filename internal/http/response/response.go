package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/medicore-backend/internal/platform/apierr"
)

type APIError struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

// ErrorEnvelope carries the message twice: `detail` for clients of the
// original upload API and `error` for everything else.
type ErrorEnvelope struct {
	Detail string   `json:"detail"`
	Error  APIError `json:"error"`
}

func RespondError(c *gin.Context, status int, code string, err error) {
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	c.AbortWithStatusJSON(status, ErrorEnvelope{
		Detail: msg,
		Error: APIError{
			Message: msg,
			Code:    code,
		},
	})
}

// RespondAPIError maps the apierr taxonomy onto the envelope. Client errors
// and io_failure are surfaced as-is; anything else is a 500 whose text never
// reaches the client.
func RespondAPIError(c *gin.Context, err error) {
	if ae, ok := apierr.As(err); ok && ae.Status > 0 {
		if ae.Status < http.StatusInternalServerError || ae.Code == apierr.CodeIOFailure {
			RespondError(c, ae.Status, ae.Code, ae)
			return
		}
	}
	_ = c.Error(err)
	RespondError(c, http.StatusInternalServerError, apierr.CodeInternal, errInternal)
}

var errInternal = errors.New("internal error")

func RespondOK(c *gin.Context, payload any) {
	c.JSON(http.StatusOK, payload)
}

func RespondAccepted(c *gin.Context, payload any) {
	c.JSON(http.StatusAccepted, payload)
}
