package types

import (
	"errors"
	"fmt"
)

var (
	ErrConfigNotFound       = errors.New("config not found")
	ErrConfigParseFailed    = errors.New("config parse failed")
	ErrConfigIsNil          = errors.New("config is nil")
	ErrConfigValidateFailed = errors.New("config validate failed")
)

var (
	ErrTimeout       = errors.New("operation timed out")
	ErrRenderFailed  = errors.New("render failed")
	ErrRendererIsNil = errors.New("renderer is nil")
)

var (
	ErrStoreNotFound        = errors.New("cache entry not found")
	ErrStoreKeyEmpty        = errors.New("cache key empty")
	ErrStoreTypeUnknown     = errors.New("cache store type unknown")
	ErrStoreConnectFailed   = errors.New("cache store connection failed")
	ErrStoreOperationFailed = errors.New("cache store operation failed")
)

var (
	ErrInvalidateUnauthorized = errors.New("invalidation token mismatch")
	ErrInvalidatePayload      = errors.New("invalidation payload invalid")
	ErrNoSecretConfigured     = errors.New("no invalidation secret configured")
)

var (
	ErrMetricsTypeUnknown = errors.New("metrics type unknown")
	ErrLoggerTypeUnknown  = errors.New("logger type unknown")
)

var (
	ErrAlreadyRunning            = errors.New("component already running")
	ErrNotRunning                = errors.New("component is not running")
	ErrEngineAlreadyRunning      = errors.New("engine already running")
	ErrEngineNotRunning          = errors.New("engine not running")
	ErrScheduleExpressionInvalid = errors.New("schedule expression invalid")
	ErrCompressionTypeUnknown    = errors.New("compression algorithm unknown")
)

func Errorf(baseErr error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", baseErr, fmt.Sprintf(format, args...))
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

func NewError(message string) error {
	return errors.New(message)
}

func NewErrorf(format string, args ...interface{}) error {
	return fmt.Errorf(format, args...)
}

func IsError(err, target error) bool {
	return errors.Is(err, target)
}
