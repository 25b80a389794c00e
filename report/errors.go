package report

import (
	"errors"
	"fmt"
)

// ErrMalformed matches every MalformedError.
var ErrMalformed = errors.New("malformed payload")

// MalformedError reports a payload missing a field the record cannot be
// built without. Callers skip the record and keep going.
type MalformedError struct {
	Source string
	ID     string
	Field  string
	Err    error
}

func (e *MalformedError) Error() string {
	msg := fmt.Sprintf("malformed %s %q: field %s", e.Source, e.ID, e.Field)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *MalformedError) Is(target error) bool {
	return target == ErrMalformed
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

func malformed(source, id, field string, err error) error {
	return &MalformedError{Source: source, ID: id, Field: field, Err: err}
}
