package vkg

import (
	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

// resultError maps the results the engine reacts to onto its own error
// values. Anything else is reported as the raw Vulkan error.
func resultError(res vk.Result) error {
	switch res {
	case vk.Success:
		return nil
	case vk.Suboptimal:
		return inflight.ErrSuboptimal
	case vk.ErrorOutOfDate:
		return inflight.ErrOutOfDate
	case vk.Timeout:
		return inflight.ErrTimeout
	case vk.ErrorDeviceLost:
		return inflight.ErrDeviceLost
	case vk.ErrorOutOfDeviceMemory:
		return inflight.ErrOutOfDeviceMemory
	}
	return vk.Error(res)
}

// check wraps a failed call with the name of the operation.
func check(op string, res vk.Result) error {
	if err := resultError(res); err != nil {
		return errors.Wrap(err, op)
	}
	return nil
}
