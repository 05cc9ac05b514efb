// Package errors provides error wrapping helpers so failures carry the
// operation that produced them.
package errors

import "fmt"

// Wrap annotates an error with the failing operation.
// A nil err passes through untouched.
func Wrap(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}
