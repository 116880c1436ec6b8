package middlewares

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/moyoez/multiparter/multiparter"
	"github.com/moyoez/multiparter/source"
	"github.com/moyoez/multiparter/tool"
)

// ErrorHandler renders the last error attached to the context as
// multiparter.Describe JSON. Handlers that already wrote a response are left alone.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		status := StatusFor(err)
		body := multiparter.Describe(err)
		if status >= http.StatusInternalServerError {
			tool.DefaultLogger.Errorf("[Upload] %s %s failed: %s: %s", c.Request.Method, c.Request.URL.Path, body.Name, body.Message)
		} else {
			tool.DefaultLogger.Warnf("[Upload] %s %s rejected: %s: %s", c.Request.Method, c.Request.URL.Path, body.Name, body.Message)
		}
		c.JSON(status, body)
	}
}

// StatusFor maps an upload error to an HTTP status.
func StatusFor(err error) int {
	var rb *multiparter.RollbackError
	switch {
	case errors.As(err, &rb):
		return http.StatusInternalServerError
	case errors.Is(err, multiparter.ErrContentType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, multiparter.ErrFieldNameSize),
		errors.Is(err, multiparter.ErrFieldLimit),
		errors.Is(err, multiparter.ErrFileLimit),
		errors.Is(err, multiparter.ErrPartLimit):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, source.ErrUnexpectedEnd), errors.Is(err, source.ErrMalformedHeader):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
