package errdefs

import "errors"

// causer mirrors the long-standing pkg/errors convention: an error that
// knows the error it wraps even though it does not implement Unwrap.
type causer interface {
	Cause() error
}

// getImplementer walks err looking for something that implements iface-like
// markers, following Unwrap, Cause, and errors.Join's multi-error shape.
// This mirrors the teacher's errdefs.getImplementer exactly (see
// errdefs/is_test.go's wrapped/multi-wrapped/join/cause cases).
func getImplementer(err error) error {
	switch e := err.(type) {
	case nil:
		return nil
	case ErrNotFound, ErrInvalidParameter, ErrConflict, ErrAlreadyExists,
		ErrAborted, ErrUnavailable, ErrForbidden, ErrSystem,
		ErrNotImplemented, ErrCancelled, ErrUnknown, ErrDataLoss, ErrDeadline:
		return err
	case causer:
		return getImplementer(e.Cause())
	default:
		if u, ok := err.(interface{ Unwrap() error }); ok {
			if found := getImplementer(u.Unwrap()); found != nil {
				return found
			}
		}
		if joined, ok := err.(interface{ Unwrap() []error }); ok {
			for _, sub := range joined.Unwrap() {
				if found := getImplementer(sub); found != nil {
					return found
				}
			}
		}
		return nil
	}
}

// As is a thin errors.As wrapper kept here so callers importing errdefs do
// not also need to import the standard errors package for the common case.
func As(err error, target any) bool {
	return errors.As(err, target)
}
