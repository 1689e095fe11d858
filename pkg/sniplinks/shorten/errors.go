package shorten

import (
	"errors"
	"fmt"

	"github.com/sniplinks/sniplinks/pkg/sniplinks/codegen"
)

var (
	// ErrInvalidURL is returned when the destination is not an absolute URL.
	ErrInvalidURL = errors.New("invalid URL")
	// ErrInvalidFormat is returned for a malformed or reserved custom code.
	ErrInvalidFormat = codegen.ErrInvalidFormat
	// ErrCustomCodeRequiresPremium is returned when an anonymous or free
	// caller asks for a custom code.
	ErrCustomCodeRequiresPremium = errors.New("custom short codes require a premium subscription")
	// ErrCodeTaken is returned when the requested custom code already exists.
	ErrCodeTaken = errors.New("short code already taken")
	// ErrGenerationExhausted is returned when every generated code collided.
	ErrGenerationExhausted = errors.New("could not generate a unique short code")
	// ErrStoreTimeout is returned when the store did not answer in time.
	// Callers may retry.
	ErrStoreTimeout = errors.New("store timed out")
)

// QuotaExceededError is returned when a free account has used its monthly
// allowance.
type QuotaExceededError struct {
	Current int64
	Limit   int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("You've reached your monthly limit of %d links. Upgrade to Premium for unlimited links!", e.Limit)
}

// IsQuotaExceeded reports whether err is a *QuotaExceededError and returns it.
func IsQuotaExceeded(err error) (*QuotaExceededError, bool) {
	var qe *QuotaExceededError
	if errors.As(err, &qe) {
		return qe, true
	}
	return nil, false
}
