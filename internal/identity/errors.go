package identity

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"tessera.dev/internal/obs"
)

var (
	// ErrUnauthorized covers every token failure: missing, malformed,
	// expired, bad signature, wrong audience. Callers recover by
	// re-authenticating; the specific reason is only logged.
	ErrUnauthorized = errors.New("identity: unauthorized")

	// ErrForbidden marks an authenticated caller without a required
	// capability.
	ErrForbidden = errors.New("identity: forbidden")

	// ErrNotFound marks a referenced entity that is absent or soft-deleted.
	ErrNotFound = errors.New("identity: not found")

	// ErrConflict marks a duplicate unique key on create.
	ErrConflict = errors.New("identity: conflict")

	// ErrInvalidInput marks a caller-supplied value that failed validation.
	ErrInvalidInput = errors.New("identity: invalid input")
)

// InternalError masks an unexpected failure behind a correlation id. The
// underlying cause is logged with full detail and never exposed through
// Error().
type InternalError struct {
	CorrelationID string
}

func (e *InternalError) Error() string {
	return fmt.Sprintf("identity: internal error (correlation_id=%s)", e.CorrelationID)
}

// Internal logs err with a fresh correlation id and returns the masked
// error. Already-classified errors pass through untouched.
func Internal(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrUnauthorized, ErrForbidden, ErrNotFound, ErrConflict, ErrInvalidInput} {
		if errors.Is(err, known) {
			return err
		}
	}
	var internal *InternalError
	if errors.As(err, &internal) {
		return err
	}
	id := uuid.NewString()
	obs.Emit(map[string]any{
		"level":          "error",
		"msg":            "internal error",
		"op":             op,
		"error":          err.Error(),
		"correlation_id": id,
	})
	return &InternalError{CorrelationID: id}
}
