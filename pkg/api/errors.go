package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/marmos91/assetfiles/pkg/auth"
	"github.com/marmos91/assetfiles/pkg/fileops"
)

// ErrorCode is the machine readable error identifier returned in error
// bodies.
type ErrorCode string

const (
	ErrorCodeInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrorCodeUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrorCodeNotFound       ErrorCode = "NOT_FOUND"
	ErrorCodeConflict       ErrorCode = "CONFLICT"
	ErrorCodeRateLimit      ErrorCode = "RATE_LIMIT"
	ErrorCodeInternalError  ErrorCode = "INTERNAL_ERROR"
)

// ErrorResponse is the JSON body of every error response.
type ErrorResponse struct {
	Error string    `json:"error"`
	Code  ErrorCode `json:"code"`
}

func statusForCode(code ErrorCode) int {
	switch code {
	case ErrorCodeInvalidRequest:
		return http.StatusBadRequest
	case ErrorCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrorCodeNotFound:
		return http.StatusNotFound
	case ErrorCodeConflict:
		return http.StatusConflict
	case ErrorCodeRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// codeFor classifies an error returned by the auth gate or the file layer.
func codeFor(err error) ErrorCode {
	switch {
	case errors.Is(err, auth.ErrMissingCredential):
		return ErrorCodeInvalidRequest
	case errors.Is(err, auth.ErrInvalidCredential):
		return ErrorCodeUnauthorized
	case errors.Is(err, fileops.ErrNotFound):
		return ErrorCodeNotFound
	case errors.Is(err, fileops.ErrOutsideRoot), errors.Is(err, fileops.ErrUnnamedUpload):
		return ErrorCodeInvalidRequest
	case errors.Is(err, fileops.ErrExists):
		return ErrorCodeConflict
	default:
		return ErrorCodeInternalError
	}
}

func abortWithCode(c *gin.Context, code ErrorCode, message string) {
	c.AbortWithStatusJSON(statusForCode(code), ErrorResponse{Error: message, Code: code})
}

// abortWithError writes the error response matching err. Internal errors are
// logged and their detail is not exposed.
func abortWithError(c *gin.Context, err error) {
	code := codeFor(err)
	message := err.Error()
	if code == ErrorCodeInternalError {
		requestLogger(c).Error("Request failed: %v", err)
		message = "internal server error"
	}
	abortWithCode(c, code, message)
}
