package detkit

import (
	"github.com/pkg/errors"
)

var (
	// ErrInvalidGeometry is returned for a degenerate or inconsistent box or
	// polygon, such as a zero sized anchor passed to the box decoder.  Batch
	// operations recover from it locally by skipping the offending row
	ErrInvalidGeometry = errors.New("invalid geometry")

	// ErrConfiguration is returned when parameters are out of range, such as
	// a threshold outside of [0,1] or an empty scale list.  It is raised
	// before any work is done
	ErrConfiguration = errors.New("configuration error")

	// ErrShapeMismatch is returned when input array dimensions do not agree
	// with each other, such as a deltas count that differs from the anchor
	// count
	ErrShapeMismatch = errors.New("shape mismatch")
)

// Configf wraps ErrConfiguration with a formatted message
func Configf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrConfiguration, format, args...)
}

// Shapef wraps ErrShapeMismatch with a formatted message
func Shapef(format string, args ...interface{}) error {
	return errors.Wrapf(ErrShapeMismatch, format, args...)
}

// Geometryf wraps ErrInvalidGeometry with a formatted message
func Geometryf(format string, args ...interface{}) error {
	return errors.Wrapf(ErrInvalidGeometry, format, args...)
}

// CheckUnit returns a configuration error if the named value is not within
// the closed range [0,1]
func CheckUnit(name string, v float32) error {
	if v < 0 || v > 1 || v != v {
		return Configf("%s must be within [0,1], got %v", name, v)
	}
	return nil
}
