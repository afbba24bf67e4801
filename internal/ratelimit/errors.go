package ratelimit

import "github.com/soldalen/heatpumpctl/internal/errors"

const (
	ErrInvalidConfig = errors.ErrorCode("ratelimit_invalid_config")
	ErrPersist       = errors.ErrPersistence
	ErrLoadWindow    = errors.ErrorCode("ratelimit_load_window_failed")
)
