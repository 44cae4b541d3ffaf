package hbl

import (
	stderrors "errors"

	"github.com/pkg/errors"
)

//Sentinel error kinds surfaced by the engine. Callers match them with errors.Is.
var (
	//ErrInvalidInput reports malformed caller input: empty columns, bad bin
	//counts, mismatched vector lengths.
	ErrInvalidInput = errors.New("invalid input")

	//ErrNumericInstability reports a non-positive hessian denominator where a
	//division is required. It is recovered locally by clamping and is exported
	//mostly for tests.
	ErrNumericInstability = errors.New("numeric instability")

	//ErrResourceExhausted reports that an accelerated histogram path ran out of
	//device resources. The grower recovers by falling back to the CPU path.
	ErrResourceExhausted = errors.New("resource exhausted")
)

func invalidInputf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidInput, format, args...)
}

func isResourceExhausted(err error) bool {
	return stderrors.Is(err, ErrResourceExhausted)
}
