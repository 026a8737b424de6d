package call

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/goliatone/go-botpoll/core"
	goerrors "github.com/goliatone/go-errors"
)

var ErrMissingBody = errors.New("call: successful response carried no body")

// APIError is a terminal rejection by the remote API.
type APIError struct {
	Method      string
	StatusCode  int
	Description string
}

func (e *APIError) Error() string {
	if e == nil {
		return "call: api error"
	}
	return fmt.Sprintf("call: %s failed with status %d: %s", methodOrNA(e.Method), e.StatusCode, descriptionOrNA(e.Description))
}

// Conflict reports a 409, which the platform uses when another consumer holds
// the update stream or a webhook is set.
func (e *APIError) Conflict() bool {
	return e != nil && e.StatusCode == http.StatusConflict
}

func (e *APIError) ToServiceError() *goerrors.Error {
	if e == nil {
		return nil
	}
	category := goerrors.CategoryExternal
	textCode := core.ErrorRemoteRejected
	switch {
	case e.StatusCode == http.StatusConflict:
		category = goerrors.CategoryConflict
		textCode = core.ErrorRemoteConflict
	case e.StatusCode == http.StatusTooManyRequests:
		category = goerrors.CategoryRateLimit
		textCode = core.ErrorRateLimited
	case e.StatusCode == http.StatusUnauthorized:
		category = goerrors.CategoryAuth
	case e.StatusCode == http.StatusForbidden:
		category = goerrors.CategoryAuthz
	case e.StatusCode == http.StatusNotFound:
		category = goerrors.CategoryNotFound
	case e.StatusCode >= 400 && e.StatusCode < 500:
		category = goerrors.CategoryBadInput
	}
	code := e.StatusCode
	if code <= 0 {
		code = http.StatusBadGateway
	}
	return goerrors.New(e.Error(), category).
		WithCode(code).
		WithTextCode(textCode).
		WithMetadata(map[string]any{
			"method":      strings.TrimSpace(e.Method),
			"status_code": e.StatusCode,
			"description": strings.TrimSpace(e.Description),
		})
}

// TransportError reports an invocation that produced no response.
type TransportError struct {
	Method  string
	Timeout bool
	Cause   error
}

func (e *TransportError) Error() string {
	if e == nil {
		return "call: transport error"
	}
	reason := "NA"
	if e.Cause != nil {
		reason = e.Cause.Error()
	}
	return fmt.Sprintf("call: %s transport failure: %s", methodOrNA(e.Method), reason)
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func (e *TransportError) ToServiceError() *goerrors.Error {
	if e == nil {
		return nil
	}
	var envelope *goerrors.Error
	if e.Cause != nil {
		envelope = goerrors.Wrap(e.Cause, goerrors.CategoryExternal, e.Error())
	} else {
		envelope = goerrors.New(e.Error(), goerrors.CategoryExternal)
	}
	return envelope.
		WithCode(http.StatusBadGateway).
		WithTextCode(core.ErrorTransport).
		WithMetadata(map[string]any{
			"method":  strings.TrimSpace(e.Method),
			"timeout": e.Timeout,
		})
}

// DecodeError reports a successful response whose body could not be decoded.
type DecodeError struct {
	Method string
	Cause  error
}

func (e *DecodeError) Error() string {
	if e == nil {
		return "call: decode error"
	}
	return fmt.Sprintf("call: decode %s response: %v", methodOrNA(e.Method), e.Cause)
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

func methodOrNA(method string) string {
	if method = strings.TrimSpace(method); method != "" {
		return method
	}
	return "NA"
}

func descriptionOrNA(description string) string {
	if description = strings.TrimSpace(description); description != "" {
		return description
	}
	return "NA"
}

var (
	_ core.ServiceErrorConvertible = (*APIError)(nil)
	_ core.ServiceErrorConvertible = (*TransportError)(nil)
)
