package core

import (
	"context"
	"errors"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ErrorBadInput          = "BOTPOLL_BAD_INPUT"
	ErrorAlreadyRunning    = "BOTPOLL_ALREADY_RUNNING"
	ErrorStatusProbeFailed = "BOTPOLL_STATUS_PROBE_FAILED"
	ErrorWebhookActive     = "BOTPOLL_WEBHOOK_ACTIVE"
	ErrorBackOffExhausted  = "BOTPOLL_BACKOFF_EXHAUSTED"
	ErrorConsumerFailed    = "BOTPOLL_CONSUMER_FAILED"
	ErrorRemoteRejected    = "BOTPOLL_REMOTE_REJECTED"
	ErrorRemoteConflict    = "BOTPOLL_REMOTE_CONFLICT"
	ErrorRateLimited       = "BOTPOLL_RATE_LIMITED"
	ErrorTransport         = "BOTPOLL_TRANSPORT_FAILED"
	ErrorCursorNotFound    = "BOTPOLL_CURSOR_NOT_FOUND"
	ErrorBotNotFound       = "BOTPOLL_BOT_NOT_FOUND"
	ErrorCanceled          = "BOTPOLL_CANCELED"
	ErrorInternal          = "BOTPOLL_INTERNAL_ERROR"
)

var (
	ErrUpdateRequired   = errors.New("core: update is required")
	ErrInvalidUpdateID  = errors.New("core: update id is invalid")
	ErrAmbiguousUpdate  = errors.New("core: update carries more than one payload variant")
	ErrAlreadyRunning   = errors.New("core: engine is already running")
	ErrStatusProbe      = errors.New("core: status probe failed")
	ErrWebhookActive    = errors.New("core: webhook is active, long polling is unavailable")
	ErrBackOffExhausted = errors.New("core: back-off exhausted")
	ErrConsumerFailed   = errors.New("core: consumer failed to process update")
	ErrCursorNotFound   = errors.New("core: cursor not found")
)

// ServiceErrorConvertible is implemented by typed errors that carry their own
// envelope, such as remote API rejections.
type ServiceErrorConvertible interface {
	ToServiceError() *goerrors.Error
}

// MapError converts any error into a go-errors envelope with a stable text
// code. Returns nil for a nil error.
func MapError(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureErrorEnvelope(richErr)
	}

	var convertible ServiceErrorConvertible
	if errors.As(err, &convertible) {
		if mapped := convertible.ToServiceError(); mapped != nil {
			return ensureErrorEnvelope(mapped)
		}
	}

	switch {
	case errors.Is(err, ErrAlreadyRunning):
		return newServiceError(err, goerrors.CategoryConflict, ErrorAlreadyRunning)
	case errors.Is(err, ErrWebhookActive):
		return newServiceError(err, goerrors.CategoryConflict, ErrorWebhookActive)
	case errors.Is(err, ErrStatusProbe):
		return newServiceError(err, goerrors.CategoryExternal, ErrorStatusProbeFailed)
	case errors.Is(err, ErrBackOffExhausted):
		return newServiceError(err, goerrors.CategoryExternal, ErrorBackOffExhausted)
	case errors.Is(err, ErrConsumerFailed):
		return newServiceError(err, goerrors.CategoryOperation, ErrorConsumerFailed)
	case errors.Is(err, ErrCursorNotFound):
		return newServiceError(err, goerrors.CategoryNotFound, ErrorCursorNotFound)
	case errors.Is(err, ErrUpdateRequired), errors.Is(err, ErrInvalidUpdateID), errors.Is(err, ErrAmbiguousUpdate):
		return newServiceError(err, goerrors.CategoryBadInput, ErrorBadInput)
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return newServiceError(err, goerrors.CategoryOperation, ErrorCanceled)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "too many requests"), strings.Contains(msg, "rate limit"):
		return newServiceError(err, goerrors.CategoryRateLimit, ErrorRateLimited)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"):
		return newServiceError(err, goerrors.CategoryBadInput, ErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureErrorEnvelope(mapped)
}

func newServiceError(err error, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureErrorEnvelope(
		goerrors.Wrap(err, category, err.Error()).
			WithTextCode(textCode),
	)
}

func ensureErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = httpStatusForCategory(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ErrorBadInput
	case goerrors.CategoryNotFound:
		return ErrorCursorNotFound
	case goerrors.CategoryConflict:
		return ErrorRemoteConflict
	case goerrors.CategoryRateLimit:
		return ErrorRateLimited
	case goerrors.CategoryExternal:
		return ErrorTransport
	default:
		return ErrorInternal
	}
}

func httpStatusForCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
