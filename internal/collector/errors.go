package collector

import "github.com/soldalen/heatpumpctl/internal/errors"

const (
	ErrInvalidConfig = errors.ErrorCode("collector_invalid_config")
)
