package server

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/kapu/taro-go/pkg/errors"
)

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// writeError maps err onto its taxonomy status. Errors outside the taxonomy
// are answered with a generic message.
func (s *Server) writeError(c *gin.Context, err error) {
	status, code := errors.StatusOf(err)

	message := err.Error()
	var coded errors.Coded
	if !stderrors.As(err, &coded) {
		message = "internal server error"
	}

	fields := []zap.Field{
		zap.String("request_id", c.GetString(requestIDKey)),
		zap.String("code", code),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("Request error", fields...)
	} else {
		s.logger.Debug("Request rejected", fields...)
	}

	c.AbortWithStatusJSON(status, ErrorResponse{Error: message, Code: code})
}

func invalidBody(err error) error {
	v := errors.NewValidationError("invalid request body", "body", nil)
	v.Cause = err
	return v
}
