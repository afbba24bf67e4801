package shadow

import "github.com/soldalen/heatpumpctl/internal/errors"

const (
	ErrCanonicalize = errors.ErrorCode("shadow_canonicalize_failed")
	ErrPersist      = errors.ErrPersistence
	ErrLoadState    = errors.ErrorCode("shadow_load_state_failed")
)
