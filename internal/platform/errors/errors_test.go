package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want int
	}{
		{"validation", ValidationError("bad"), http.StatusBadRequest},
		{"not found", NotFoundError("missing"), http.StatusNotFound},
		{"rate limited", RateLimitedError("slow down"), http.StatusTooManyRequests},
		{"unavailable", UnavailableError("db down", errors.New("dial")), http.StatusServiceUnavailable},
		{"internal", InternalError("boom", nil), http.StatusInternalServerError},
		{"unknown type", &Error{Type: "weird"}, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.HTTPStatus())
		})
	}
}

func TestError_MessageIncludesCause(t *testing.T) {
	err := UnavailableError("store unreachable", errors.New("connection refused"))
	assert.Equal(t, "unavailable: store unreachable: connection refused", err.Error())

	err = ValidationError("bad input")
	assert.Equal(t, "validation: bad input", err.Error())
}

func TestError_UnwrapReachesCause(t *testing.T) {
	sentinel := errors.New("sentinel")
	err := InternalError("wrapped", fmt.Errorf("layer: %w", sentinel))

	assert.ErrorIs(t, err, sentinel)
}

func TestWithContext(t *testing.T) {
	err := RateLimitedError("too many connections").
		WithContext("reason", "per_ip_limit").
		WithContext("ip", "10.0.0.1")

	resp := err.ToResponse()
	assert.Equal(t, "too many connections", resp.Error)
	assert.Equal(t, TypeRateLimited, resp.Type)
	assert.Equal(t, "per_ip_limit", resp.Context["reason"])
	assert.Equal(t, "10.0.0.1", resp.Context["ip"])
}

func TestWithContext_NilMap(t *testing.T) {
	err := &Error{Type: TypeValidation, Message: "x"}
	err.WithContext("k", 1)
	assert.Equal(t, 1, err.Context["k"])
}

func TestAsStructuredError(t *testing.T) {
	t.Run("nil", func(t *testing.T) {
		assert.Nil(t, AsStructuredError(nil))
	})

	t.Run("structured passes through", func(t *testing.T) {
		orig := NotFoundError("missing")
		assert.Same(t, orig, AsStructuredError(orig))
	})

	t.Run("wrapped structured is found", func(t *testing.T) {
		orig := ValidationError("bad")
		got := AsStructuredError(fmt.Errorf("handler: %w", orig))
		assert.Same(t, orig, got)
	})

	t.Run("plain error becomes internal", func(t *testing.T) {
		cause := errors.New("disk full")
		got := AsStructuredError(cause)
		require.NotNil(t, got)
		assert.Equal(t, TypeInternal, got.Type)
		assert.Equal(t, "internal server error", got.Message)
		assert.Equal(t, cause, got.Cause)
	})
}
