// Package transport performs the raw HTTP exchange with the bot API. It never
// interprets status codes: non-2xx responses are returned as responses, and
// only failures to obtain a response are errors.
package transport

import (
	"context"
	"net/http"
	"time"
)

type Request struct {
	Method  string
	URL     string
	Headers map[string]string
	Query   map[string]string
	Body    []byte
	// Timeout bounds this exchange on top of the caller's context.
	Timeout              time.Duration
	MaxResponseBodyBytes int64
}

type Response struct {
	StatusCode int
	Headers    map[string]string
	Body       []byte
	Duration   time.Duration
}

type Adapter interface {
	Do(ctx context.Context, req Request) (Response, error)
}

type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type AdapterFunc func(ctx context.Context, req Request) (Response, error)

func (fn AdapterFunc) Do(ctx context.Context, req Request) (Response, error) {
	return fn(ctx, req)
}
