package trace

import (
	"errors"
	"fmt"
)

var (
	ErrUnresolvedReference = errors.New("unresolved string reference")
	ErrNoActivityForDevice = errors.New("no kernel activity for device")
)

// UnresolvedReferenceError reports a string id that the string table does not know.
// It usually means the source file is corrupt or was written by an unsupported version.
type UnresolvedReferenceError struct {
	ID    StringID
	Field string
}

func (e *UnresolvedReferenceError) Error() string {
	return fmt.Sprintf("%s: string id %d (%s)", ErrUnresolvedReference, e.ID, e.Field)
}

func (e *UnresolvedReferenceError) Unwrap() error { return ErrUnresolvedReference }

// NoActivityError is returned when no kernel in the queried window ran on Device.
type NoActivityError struct {
	Device DeviceID
}

func (e *NoActivityError) Error() string {
	return fmt.Sprintf("%s %d", ErrNoActivityForDevice, e.Device)
}

func (e *NoActivityError) Unwrap() error { return ErrNoActivityForDevice }
