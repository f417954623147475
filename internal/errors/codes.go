// Package errors provides structured error handling for amanidx.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: Data errors (files, paths, on-disk index)
//   - 3XX: Provider and network errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryData indicates file, path, and persisted index errors.
	CategoryData Category = "DATA"
	// CategoryProvider indicates embedding provider and network errors.
	CategoryProvider Category = "PROVIDER"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound  = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid   = "ERR_102_CONFIG_INVALID"
	ErrCodeFeatureDisabled = "ERR_103_FEATURE_DISABLED"

	// Data errors (200-299)
	ErrCodeFileNotFound         = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFilePermission       = "ERR_202_FILE_PERMISSION"
	ErrCodePathOutsideWorkspace = "ERR_203_PATH_OUTSIDE_WORKSPACE"
	ErrCodeFileTooLarge         = "ERR_204_FILE_TOO_LARGE"
	ErrCodeCorruptIndex         = "ERR_205_CORRUPT_INDEX"
	ErrCodeSchemaTooNew         = "ERR_206_SCHEMA_TOO_NEW"
	ErrCodeReadOnly             = "ERR_207_READ_ONLY"

	// Provider errors (300-399)
	ErrCodeNetworkTimeout          = "ERR_301_NETWORK_TIMEOUT"
	ErrCodeProviderUnavailable     = "ERR_302_PROVIDER_UNAVAILABLE"
	ErrCodeRateLimited             = "ERR_303_RATE_LIMITED"
	ErrCodeInvalidCredentials      = "ERR_304_INVALID_CREDENTIALS"
	ErrCodeProviderError           = "ERR_305_PROVIDER_ERROR"
	ErrCodeUnexpectedResponseShape = "ERR_306_UNEXPECTED_RESPONSE_SHAPE"

	// Validation errors (400-499)
	ErrCodeInvalidInput        = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch   = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeQueryEmpty          = "ERR_403_QUERY_EMPTY"
	ErrCodeWorkspaceNotIndexed = "ERR_404_WORKSPACE_NOT_INDEXED"

	// Internal errors (500-599)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeSearchFailed    = "ERR_503_SEARCH_FAILED"
	ErrCodeChunkingFailed  = "ERR_504_CHUNKING_FAILED"
	ErrCodeIndexFailed     = "ERR_505_INDEX_FAILED"
	ErrCodeCancelled       = "ERR_506_CANCELLED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// "1" from "ERR_101_CONFIG_NOT_FOUND"
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryData
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeInvalidCredentials:
		return SeverityFatal
	}

	if isRetryableCode(code) || code == ErrCodeReadOnly {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode reports whether an error code is transient.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeNetworkTimeout, ErrCodeProviderUnavailable, ErrCodeRateLimited:
		return true
	default:
		return false
	}
}
