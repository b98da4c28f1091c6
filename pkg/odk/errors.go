package odk

import (
	"errors"
	"fmt"
)

// AuthError wraps any failure to establish or verify a session with ODK
// Central. The caller decides whether to retry; the client never does.
type AuthError struct {
	reason error
}

func (e AuthError) Error() string {
	return fmt.Sprintf("odk auth: %v", e.reason)
}

func (e AuthError) Unwrap() error {
	return e.reason
}

func IsAuthError(err error) bool {
	var ae AuthError
	return errors.As(err, &ae)
}

// FetchError wraps transport and parse failures while retrieving
// submissions or attachment listings.
type FetchError struct {
	reason error
}

func (e FetchError) Error() string {
	return fmt.Sprintf("odk fetch: %v", e.reason)
}

func (e FetchError) Unwrap() error {
	return e.reason
}

func IsFetchError(err error) bool {
	var fe FetchError
	return errors.As(err, &fe)
}
