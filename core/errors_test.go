package core

import (
	"context"
	stderrors "errors"
	"fmt"
	"testing"

	goerrors "github.com/goliatone/go-errors"
)

type convertibleErr struct{}

func (convertibleErr) Error() string { return "remote said no" }

func (convertibleErr) ToServiceError() *goerrors.Error {
	return goerrors.New("remote said no", goerrors.CategoryConflict).
		WithTextCode(ErrorRemoteConflict)
}

func TestMapError_AssignsStableCodesToSentinels(t *testing.T) {
	cases := []struct {
		err      error
		textCode string
		category goerrors.Category
	}{
		{fmt.Errorf("poller: %w", ErrAlreadyRunning), ErrorAlreadyRunning, goerrors.CategoryConflict},
		{ErrWebhookActive, ErrorWebhookActive, goerrors.CategoryConflict},
		{fmt.Errorf("%w: dial", ErrStatusProbe), ErrorStatusProbeFailed, goerrors.CategoryExternal},
		{ErrBackOffExhausted, ErrorBackOffExhausted, goerrors.CategoryExternal},
		{fmt.Errorf("%w: update 3", ErrConsumerFailed), ErrorConsumerFailed, goerrors.CategoryOperation},
		{ErrCursorNotFound, ErrorCursorNotFound, goerrors.CategoryNotFound},
		{ErrAmbiguousUpdate, ErrorBadInput, goerrors.CategoryBadInput},
		{context.Canceled, ErrorCanceled, goerrors.CategoryOperation},
	}
	for _, tc := range cases {
		mapped := MapError(tc.err)
		if mapped == nil {
			t.Fatalf("expected mapped error for %v", tc.err)
		}
		if mapped.TextCode != tc.textCode {
			t.Fatalf("expected text code %q for %v, got %q", tc.textCode, tc.err, mapped.TextCode)
		}
		if mapped.Category != tc.category {
			t.Fatalf("expected category %q for %v, got %q", tc.category, tc.err, mapped.Category)
		}
		if mapped.Code == 0 {
			t.Fatalf("expected http status on mapped error for %v", tc.err)
		}
	}
}

func TestMapError_UsesConvertibleEnvelope(t *testing.T) {
	mapped := MapError(fmt.Errorf("call: %w", convertibleErr{}))
	if mapped.TextCode != ErrorRemoteConflict {
		t.Fatalf("expected remote conflict code, got %q", mapped.TextCode)
	}
	if mapped.Code != 409 {
		t.Fatalf("expected 409, got %d", mapped.Code)
	}
}

func TestMapError_KeepsExistingEnvelope(t *testing.T) {
	original := goerrors.New("bad", goerrors.CategoryRateLimit)
	mapped := MapError(original)
	if mapped.TextCode != ErrorRateLimited {
		t.Fatalf("expected default rate-limit code, got %q", mapped.TextCode)
	}
}

func TestMapError_FallsBackToInternal(t *testing.T) {
	if MapError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
	mapped := MapError(stderrors.New("something odd"))
	if mapped == nil || mapped.TextCode == "" {
		t.Fatalf("expected text code on fallback mapping")
	}
}
