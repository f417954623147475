package errors

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("original error")

	// When: wrapping with IndexError
	ie := New(ErrCodeFileNotFound, "file not found: test.txt", originalErr)

	// Then: unwrapping returns original error
	require.NotNil(t, ie)
	assert.Equal(t, originalErr, errors.Unwrap(ie))
	assert.True(t, errors.Is(ie, originalErr))
}

func TestIndexError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{"config error", ErrCodeConfigInvalid, "bad value", "[ERR_102_CONFIG_INVALID] bad value"},
		{"data error", ErrCodeFileNotFound, "file.go not found", "[ERR_201_FILE_NOT_FOUND] file.go not found"},
		{"provider error", ErrCodeRateLimited, "slow down", "[ERR_303_RATE_LIMITED] slow down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, New(tt.code, tt.message, nil).Error())
		})
	}
}

func TestNew_DerivesCategoryAndRetryable(t *testing.T) {
	tests := []struct {
		code      string
		category  Category
		retryable bool
		severity  Severity
	}{
		{ErrCodeConfigInvalid, CategoryConfig, false, SeverityError},
		{ErrCodePathOutsideWorkspace, CategoryData, false, SeverityError},
		{ErrCodeRateLimited, CategoryProvider, true, SeverityWarning},
		{ErrCodeProviderUnavailable, CategoryProvider, true, SeverityWarning},
		{ErrCodeInvalidCredentials, CategoryProvider, false, SeverityFatal},
		{ErrCodeUnexpectedResponseShape, CategoryProvider, false, SeverityError},
		{ErrCodeQueryEmpty, CategoryValidation, false, SeverityError},
		{ErrCodeCancelled, CategoryInternal, false, SeverityError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			err := New(tt.code, "msg", nil)
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.severity, err.Severity)
		})
	}
}

func TestHasCode_MatchesThroughWrapping(t *testing.T) {
	// Given: an IndexError wrapped by fmt.Errorf
	inner := New(ErrCodeInvalidCredentials, "bad key", nil)
	wrapped := fmt.Errorf("embed batch 2: %w", inner)

	// Then: the code is visible through the chain
	assert.True(t, HasCode(wrapped, ErrCodeInvalidCredentials))
	assert.False(t, HasCode(wrapped, ErrCodeRateLimited))
	assert.Equal(t, ErrCodeInvalidCredentials, GetCode(wrapped))
	assert.True(t, IsFatal(wrapped))
}

func TestPathOutsideWorkspace_CarriesDetails(t *testing.T) {
	err := PathOutsideWorkspace("/etc/passwd", "/work/repo")

	assert.Equal(t, ErrCodePathOutsideWorkspace, err.Code)
	assert.Equal(t, "/etc/passwd", err.Details["path"])
	assert.Equal(t, "/work/repo", err.Details["workspace"])
}

func TestFormatJSON_StructuredPayload(t *testing.T) {
	// Given: a data error with details
	err := FileNotFound("main.go", errors.New("stat failed"))

	// When: formatting as JSON
	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	// Then: code, message, and details round out the payload
	var payload map[string]any
	require.NoError(t, json.Unmarshal(data, &payload))
	assert.Equal(t, ErrCodeFileNotFound, payload["code"])
	assert.Equal(t, "DATA", payload["category"])
	assert.Equal(t, "stat failed", payload["cause"])
	assert.Equal(t, map[string]any{"path": "main.go"}, payload["details"])
}

func TestFormatForCLI_PlainErrorWrapped(t *testing.T) {
	out := FormatForCLI(errors.New("boom"))
	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, ErrCodeInternal)
}

func TestLogAttrs_SortedDetails(t *testing.T) {
	err := New(ErrCodeProviderError, "status 500", nil).WithDetail("status", "500").WithDetail("body", "oops")

	attrs := LogAttrs(err)

	require.Len(t, attrs, 5)
	assert.Equal(t, "detail_body", attrs[3].Key)
	assert.Equal(t, "detail_status", attrs[4].Key)
}

func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     4 * time.Millisecond,
		Multiplier:   2,
	}
}

func TestRetry_RetriesOnlyRetryableErrors(t *testing.T) {
	// Given: an operation that is rate limited twice then succeeds
	var calls atomic.Int32
	fn := func() (int, error) {
		if calls.Add(1) < 3 {
			return 0, New(ErrCodeRateLimited, "429", nil)
		}
		return 42, nil
	}

	// When: retrying with a budget of 5 attempts
	got, err := RetryWithResult(context.Background(), fastRetry(5), fn, nil)

	// Then: the third attempt wins
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestRetry_PermanentErrorFailsFast(t *testing.T) {
	// Given: an operation returning invalid credentials
	var calls atomic.Int32
	fn := func() error {
		calls.Add(1)
		return New(ErrCodeInvalidCredentials, "401", nil)
	}

	// When: retrying
	err := Retry(context.Background(), fastRetry(5), fn, nil)

	// Then: exactly one attempt, original error surfaced
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeInvalidCredentials))
	assert.Equal(t, int32(1), calls.Load())
}

func TestRetry_StopsAtAttemptCeiling(t *testing.T) {
	// Given: an operation that is always rate limited
	var calls atomic.Int32
	var notified atomic.Int32
	fn := func() error {
		calls.Add(1)
		return New(ErrCodeRateLimited, "429", nil)
	}

	// When: retrying with 5 attempts
	err := Retry(context.Background(), fastRetry(5), fn, func(error, time.Duration) {
		notified.Add(1)
	})

	// Then: 5 attempts, 4 waits, rate-limit error surfaced
	require.Error(t, err)
	assert.True(t, HasCode(err, ErrCodeRateLimited))
	assert.Equal(t, int32(5), calls.Load())
	assert.Equal(t, int32(4), notified.Load())
}

func TestRetry_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := fastRetry(5)
	cfg.InitialDelay = time.Hour
	cfg.MaxDelay = time.Hour

	err := Retry(ctx, cfg, func() error {
		return New(ErrCodeRateLimited, "429", nil)
	}, nil)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestRetryConfig_BackOffSequence(t *testing.T) {
	// Given: the default provider policy
	b := DefaultRetryConfig().BackOff(context.Background())

	// Then: delays double from 1s and the ceiling is 4 retries
	assert.Equal(t, 1*time.Second, b.NextBackOff())
	assert.Equal(t, 2*time.Second, b.NextBackOff())
	assert.Equal(t, 4*time.Second, b.NextBackOff())
	assert.Equal(t, 8*time.Second, b.NextBackOff())
	assert.Equal(t, time.Duration(-1), b.NextBackOff())
}
