package errors

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"codeberg.org/tinyurl/server/internal/logger"
)

// Error handling guidelines:
//
// REST handlers use the helpers below; InternalError and Respond log for you,
// so do not log the same error again in the handler.
// Services and repositories return wrapped errors (fmt.Errorf("...: %w", err))
// and leave logging to the caller.
// Background loops (consumers, schedulers, task workers) log and continue.

// standard error codes
const (
	CodeUnauthorized       = "unauthorized"
	CodeForbidden          = "forbidden"
	CodeNotFound           = "not_found"
	CodeValidationError    = "validation_error"
	CodeServerError        = "server_error"
	CodeBadRequest         = "bad_request"
	CodeConflict           = "conflict"
	CodeGone               = "gone"
	CodeTooManyRequests    = "too_many_requests"
	CodeSystemBusy         = "system_busy"
	CodeServiceUnavailable = "service_unavailable"
)

// returns a 401 unauthorized error
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "authentication required"
	}

	c.JSON(http.StatusUnauthorized, ErrorResponse{
		Error:   CodeUnauthorized,
		Message: message,
	})
}

// returns a 403 forbidden error
func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "permission denied"
	}

	c.JSON(http.StatusForbidden, ErrorResponse{
		Error:   CodeForbidden,
		Message: message,
	})
}

// returns a 404 not found error
func NotFound(c *gin.Context, resource string) {
	message := "resource not found"

	if resource != "" {
		message = resource + " not found"
	}

	c.JSON(http.StatusNotFound, ErrorResponse{
		Error:   CodeNotFound,
		Message: message,
	})
}

// returns a 400 bad request error
func BadRequest(c *gin.Context, message string, err error) {
	if message == "" {
		message = "invalid request"
	}

	response := ErrorResponse{
		Error:   CodeBadRequest,
		Message: message,
	}

	if err != nil {
		response.Details = classifyError(err).sanitized
	}

	c.JSON(http.StatusBadRequest, response)
}

// returns a 400 bad request error for binding/validation failures
func ValidationError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, ErrorResponse{
		Error:   CodeValidationError,
		Message: "request validation failed",
		Details: classifyError(err).sanitized,
	})
}

// returns a 409 conflict error
func Conflict(c *gin.Context, message string) {
	if message == "" {
		message = "resource conflict"
	}

	c.JSON(http.StatusConflict, ErrorResponse{
		Error:   CodeConflict,
		Message: message,
	})
}

// returns a 410 for resources that existed but expired
func Gone(c *gin.Context, message string) {
	if message == "" {
		message = "resource no longer available"
	}

	c.JSON(http.StatusGone, ErrorResponse{
		Error:   CodeGone,
		Message: message,
	})
}

// returns a 429 too many requests error
func TooManyRequests(c *gin.Context, message string) {
	if message == "" {
		message = "too many requests"
	}

	c.JSON(http.StatusTooManyRequests, ErrorResponse{
		Error:   CodeTooManyRequests,
		Message: message,
	})
}

// returns a 503 for lock contention, callers may retry later
func SystemBusy(c *gin.Context) {
	c.Header("Retry-After", "1")
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error:   CodeSystemBusy,
		Message: "system busy, please retry",
	})
}

// returns a 503 when a dependency could not answer in time
func ServiceUnavailable(c *gin.Context, message string, err error) {
	if message == "" {
		message = "service temporarily unavailable"
	}

	logger.ErrorErr(err, message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
	)

	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error:   CodeServiceUnavailable,
		Message: message,
		Details: classifyError(err).sanitized,
	})
}

// returns a 500 internal server error
func InternalError(c *gin.Context, message string, err error) {
	if message == "" {
		message = "an error occurred"
	}

	logger.ErrorErr(err, message,
		"path", c.Request.URL.Path,
		"method", c.Request.Method,
		"user_id", c.GetInt64("user_id"),
	)

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Error:   CodeServerError,
		Message: message,
		Details: classifyError(err).sanitized,
	})
}

// writes the response matching err's category.
// message is used for the 5xx cases.
func Respond(c *gin.Context, message string, err error) {
	info := classifyError(err)

	switch info.category {
	case CategoryBusy:
		SystemBusy(c)
	case CategoryUnavailable:
		ServiceUnavailable(c, message, err)
	case CategoryNotFound:
		NotFound(c, "")
	case CategoryForbidden:
		Forbidden(c, "")
	default:
		InternalError(c, message, err)
	}
}
