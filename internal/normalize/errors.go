package normalize

import "fmt"

// Error reports a single listing whose raw record violated a domain
// constraint. It is fatal to the listing, never to the batch: the crawl
// controller logs it and drops the item.
type Error struct {
	ListingID string
	Field     string
	Err       error
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("normalize listing %q: field %s: %v", e.ListingID, e.Field, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *Error) Unwrap() error { return e.Err }

func fieldErr(listingID, field, format string, args ...any) *Error {
	return &Error{
		ListingID: listingID,
		Field:     field,
		Err:       fmt.Errorf(format, args...),
	}
}
