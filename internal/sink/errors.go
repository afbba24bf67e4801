package sink

import "github.com/soldalen/heatpumpctl/internal/errors"

const (
	ErrInvalidConfig = errors.ErrorCode("sink_invalid_config")
	ErrWrite         = errors.ErrPersistence
)
