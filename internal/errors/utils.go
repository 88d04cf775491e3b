package errors

import (
	"context"
	"errors"
	"os"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"codeberg.org/tinyurl/server/internal/correlation"
	"codeberg.org/tinyurl/server/internal/lock"
	"codeberg.org/tinyurl/server/internal/ownership"
)

// error categories for classification
const (
	CategoryDatabase    = "database"
	CategoryNetwork     = "network"
	CategoryValidation  = "validation"
	CategoryNotFound    = "not_found"
	CategoryForbidden   = "forbidden"
	CategoryTimeout     = "timeout"
	CategoryBusy        = "busy"
	CategoryUnavailable = "unavailable"
	CategoryUnknown     = "unknown"
)

// analyzes an error and returns its category and sanitized message
func classifyError(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{CategoryUnknown, ""}
	}

	isProduction := os.Getenv("ENVIRONMENT") == "production"

	// domain outcomes first, they wrap lower level errors
	switch {
	case errors.Is(err, lock.ErrBusy):
		return ErrorInfo{CategoryBusy, "system busy"}
	case errors.Is(err, ownership.ErrVerificationUnavailable), errors.Is(err, correlation.ErrTimeout):
		return ErrorInfo{CategoryUnavailable, ternary(isProduction, "dependency timed out", err.Error())}
	case errors.Is(err, ownership.ErrURLNotFound):
		return ErrorInfo{CategoryNotFound, ternary(isProduction, "resource not found", err.Error())}
	case errors.Is(err, ownership.ErrNotOwner):
		return ErrorInfo{CategoryForbidden, "permission denied"}
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return ErrorInfo{CategoryDatabase, ternary(isProduction, "database operation failed", err.Error())}
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return ErrorInfo{CategoryNotFound, ternary(isProduction, "resource not found", err.Error())}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorInfo{CategoryTimeout, ternary(isProduction, "request timed out", err.Error())}
	}

	if errors.Is(err, context.Canceled) {
		return ErrorInfo{CategoryTimeout, ternary(isProduction, "request canceled", err.Error())}
	}

	// fallback to string matching for unknown error types
	errMsg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline"):
		return ErrorInfo{CategoryTimeout, ternary(isProduction, "request timed out", err.Error())}
	case strings.Contains(errMsg, "connection") || strings.Contains(errMsg, "dial") || strings.Contains(errMsg, "broker"):
		return ErrorInfo{CategoryNetwork, ternary(isProduction, "connection error occurred", err.Error())}
	case strings.Contains(errMsg, "validation") || strings.Contains(errMsg, "binding") || strings.Contains(errMsg, "invalid"):
		return ErrorInfo{CategoryValidation, ternary(isProduction, "validation failed", err.Error())}
	}

	return ErrorInfo{CategoryUnknown, ternary(isProduction, "an error occurred", err.Error())}
}

func ternary(condition bool, trueVal, falseVal string) string {
	if condition {
		return trueVal
	}

	return falseVal
}
