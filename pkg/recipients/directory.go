package recipients

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// Directory is the external user directory. Both operations are paginated:
// the caller fetches pages until a short page comes back.
//
// Implementations must distinguish transient transport failures from terminal
// ones by wrapping the former in RetryableError; auth and not-found errors are
// returned as-is and fail resolution immediately.
type Directory interface {
	Users(ctx context.Context, orgID string, adminsOnly bool, offset, limit int) ([]User, error)
	GroupUsers(ctx context.Context, orgID string, adminsOnly bool, groupID uuid.UUID, offset, limit int) ([]User, error)
}

// RetryableError marks a directory failure (I/O timeout, connection error) as
// eligible for backoff and retry.
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
