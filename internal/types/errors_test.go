package types

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorCodeHTTPStatus(t *testing.T) {
	cases := []struct {
		code ErrorCode
		want int
	}{
		{ErrCodeValidationInvalidHandle, http.StatusBadRequest},
		{ErrCodeValidationBadPayload, http.StatusBadRequest},
		{ErrCodeAuthTokenMissing, http.StatusUnauthorized},
		{ErrCodeAuthInvalidCreds, http.StatusUnauthorized},
		{ErrCodeLimitAccounts, http.StatusForbidden},
		{ErrCodeQueueFull, http.StatusTooManyRequests},
		{ErrCodeNotFoundAccount, http.StatusNotFound},
		{ErrCodeNotFoundUser, http.StatusNotFound},
		{ErrCodeConflictTracked, http.StatusConflict},
		{ErrCodeConflictUsername, http.StatusConflict},
		{ErrCodeUpstreamNoData, http.StatusUnprocessableEntity},
		{ErrCodeUpstreamUnavailable, http.StatusBadGateway},
		{ErrCodeUpstreamRateLimited, http.StatusBadGateway},
		{ErrCodeInternalDB, http.StatusInternalServerError},
		{ErrCodeInternalUnexpected, http.StatusInternalServerError},
		{ErrorCode("something_new"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(string(tc.code), func(t *testing.T) {
			assert.Equal(t, tc.want, tc.code.HTTPStatus())
		})
	}
}

func TestErrorCodeRetryable(t *testing.T) {
	assert.True(t, ErrCodeUpstreamUnavailable.Retryable())
	assert.True(t, ErrCodeUpstreamRateLimited.Retryable())

	// A definitive empty answer from the provider must not be retried.
	assert.False(t, ErrCodeUpstreamNoData.Retryable())
	assert.False(t, ErrCodeInternalDB.Retryable())
	assert.False(t, ErrCodeQueueFull.Retryable())
}

func TestAppErrorWrapsCause(t *testing.T) {
	cause := errors.New("connection refused")
	appErr := NewAppError(ErrCodeUpstreamUnavailable, "provider unreachable", cause)

	assert.Equal(t, "upstream_unavailable: provider unreachable", appErr.Error())
	assert.Equal(t, http.StatusBadGateway, appErr.HTTPStatus())
	assert.True(t, errors.Is(appErr, cause))

	var target *AppError
	require.True(t, errors.As(appErr, &target))
	assert.Equal(t, ErrCodeUpstreamUnavailable, target.Code)
}
