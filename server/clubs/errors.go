package clubs

import (
	"errors"
	"fmt"

	"github.com/topi314/clubhouse/server/store"
)

// Error classes. Every error returned by this package matches one of them with errors.Is.
var (
	ErrNotFound         = errors.New("not found")
	ErrAlreadyExists    = errors.New("already exists")
	ErrNotAuthorized    = errors.New("not authorized")
	ErrCapacityExceeded = errors.New("capacity exceeded")
	ErrStateClosed      = errors.New("closed")
	ErrStoreUnavailable = errors.New("store unavailable")
	ErrInvalidInput     = errors.New("invalid input")
)

var (
	ErrClubNotFound  = fmt.Errorf("club %w", ErrNotFound)
	ErrUserNotFound  = fmt.Errorf("user %w", ErrNotFound)
	ErrEventNotFound = fmt.Errorf("event %w", ErrNotFound)
	ErrPostNotFound  = fmt.Errorf("post %w", ErrNotFound)
	ErrNotMember     = fmt.Errorf("membership %w", ErrNotFound)

	ErrAlreadyMember     = fmt.Errorf("membership %w", ErrAlreadyExists)
	ErrAlreadyRegistered = fmt.Errorf("registration %w", ErrAlreadyExists)

	ErrMembershipRequired = fmt.Errorf("%w: club membership required", ErrNotAuthorized)
	ErrAdminMustTransfer  = fmt.Errorf("%w: the club admin must transfer the club first", ErrNotAuthorized)

	ErrEventFull          = fmt.Errorf("event %w", ErrCapacityExceeded)
	ErrRegistrationClosed = fmt.Errorf("registration %w", ErrStateClosed)
)

var classes = []error{
	ErrNotFound,
	ErrAlreadyExists,
	ErrNotAuthorized,
	ErrCapacityExceeded,
	ErrStateClosed,
	ErrStoreUnavailable,
	ErrInvalidInput,
}

func invalidInput(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// storeError translates errors coming from the store. store.ErrNotFound becomes notFound,
// errors which already carry a class pass through, everything else is StoreUnavailable.
func storeError(err error, notFound error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, store.ErrNotFound) && notFound != nil {
		return notFound
	}
	for _, class := range classes {
		if errors.Is(err, class) {
			return err
		}
	}
	return fmt.Errorf("%w: %s: %w", ErrStoreUnavailable, msg, err)
}
