package source

import "github.com/soldalen/heatpumpctl/internal/errors"

const (
	// Failure taxonomy for both sensor sources
	ErrTransport   = errors.ErrSourceTransport
	ErrAuth        = errors.ErrSourceAuth
	ErrPartialData = errors.ErrSourcePartialData
	ErrRateLimited = errors.ErrUpstreamRateLimit
)

// IsRateLimited reports whether err is an upstream "too many requests"
// signal, which the governor turns into a cooldown rather than a failure.
func IsRateLimited(err error) bool {
	return errors.HasCode(err, ErrRateLimited)
}
