package inflight

import (
	"errors"
	"fmt"

	pkgerrors "github.com/pkg/errors"
)

// Sentinels carry no stack; deviceError adds one where the failure happens.

// Recoverable presentation conditions. These are absorbed at the surface
// boundary and cause a frame to be skipped or the swapchain to be rebuilt.
var (
	ErrOutOfDate        = errors.New("swapchain out of date")
	ErrSuboptimal       = errors.New("swapchain suboptimal")
	ErrSurfaceMinimized = errors.New("surface has zero extent")
)

// Fatal device conditions. The engine stops on the first one.
var (
	ErrTimeout           = errors.New("device wait timed out")
	ErrDeviceLost        = errors.New("device lost")
	ErrOutOfDeviceMemory = errors.New("out of device memory")
)

// Programmer errors.
var (
	ErrFrameActive   = errors.New("frame already active")
	ErrNoActiveFrame = errors.New("frame is not the active frame")
	ErrTicketState   = errors.New("ticket used out of order")
	ErrEdgeOrder     = errors.New("consumer ordered before producer")
	ErrArenaFull     = errors.New("uniform arena exhausted")
	ErrClosed        = errors.New("renderer closed")
)

// DeviceError is a fatal failure while talking to the device. It records
// which frame and slot were active.
type DeviceError struct {
	Op    string
	Frame uint64
	Slot  int
	Err   error
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("%s (frame %d, slot %d): %v", e.Op, e.Frame, e.Slot, e.Err)
}

func (e *DeviceError) Unwrap() error {
	return e.Err
}

func deviceError(op string, frame uint64, slot int, err error) error {
	var de *DeviceError
	if errors.As(err, &de) {
		return err
	}
	return pkgerrors.WithStack(&DeviceError{Op: op, Frame: frame, Slot: slot, Err: err})
}

// IsFatal reports whether err means the device can no longer be used.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var de *DeviceError
	return errors.As(err, &de) ||
		errors.Is(err, ErrDeviceLost) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrOutOfDeviceMemory)
}

// IsRecoverable reports whether err is a presentation condition that only
// costs a frame.
func IsRecoverable(err error) bool {
	if err == nil || IsFatal(err) {
		return false
	}
	return errors.Is(err, ErrOutOfDate) ||
		errors.Is(err, ErrSuboptimal) ||
		errors.Is(err, ErrSurfaceMinimized)
}
