package command

import (
	"errors"
	"fmt"
)

// Kind is the stable machine-readable class of a command failure.
type Kind string

// Error kinds.
const (
	KindDeviceNotFound           Kind = "DeviceNotFound"
	KindPluginNotFound           Kind = "PluginNotFound"
	KindRackNotFound             Kind = "RackNotFound"
	KindBoardNotFound            Kind = "BoardNotFound"
	KindTransactionNotFound      Kind = "TransactionNotFound"
	KindInvalidArguments         Kind = "InvalidArguments"
	KindFailedReadCommand        Kind = "FailedReadCommand"
	KindFailedWriteCommand       Kind = "FailedWriteCommand"
	KindFailedTransactionCommand Kind = "FailedTransactionCommand"
	KindFailedScanCommand        Kind = "FailedScanCommand"
	KindFailedInfoCommand        Kind = "FailedInfoCommand"
	KindFailedPluginCommand      Kind = "FailedPluginCommand"
	KindAlreadyRegistered        Kind = "AlreadyRegistered"
	KindPluginStateError         Kind = "PluginStateError"
)

// Error is returned by every Router operation.
//
// Compare kinds with errors.Is against the Err* values below, or extract the
// error with errors.As:
//
//	if errors.Is(err, command.ErrDeviceNotFound) { ... }
type Error struct {
	Kind        Kind
	Description string
	Err         error
}

// Error implements error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Description, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Description)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Kind-only values for errors.Is.
var (
	ErrDeviceNotFound           = &Error{Kind: KindDeviceNotFound}
	ErrPluginNotFound           = &Error{Kind: KindPluginNotFound}
	ErrRackNotFound             = &Error{Kind: KindRackNotFound}
	ErrBoardNotFound            = &Error{Kind: KindBoardNotFound}
	ErrTransactionNotFound      = &Error{Kind: KindTransactionNotFound}
	ErrInvalidArguments         = &Error{Kind: KindInvalidArguments}
	ErrFailedReadCommand        = &Error{Kind: KindFailedReadCommand}
	ErrFailedWriteCommand       = &Error{Kind: KindFailedWriteCommand}
	ErrFailedTransactionCommand = &Error{Kind: KindFailedTransactionCommand}
	ErrFailedScanCommand        = &Error{Kind: KindFailedScanCommand}
	ErrFailedInfoCommand        = &Error{Kind: KindFailedInfoCommand}
	ErrFailedPluginCommand      = &Error{Kind: KindFailedPluginCommand}
	ErrAlreadyRegistered        = &Error{Kind: KindAlreadyRegistered}
	ErrPluginStateError         = &Error{Kind: KindPluginStateError}
)

func newError(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Description: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of a command error, or "" for other errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}
