package vkg

import (
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

// Fence is a device to host signal.
type Fence struct {
	Device  *Device
	VKFence vk.Fence
}

var _ inflight.Fence = (*Fence)(nil)

// NewFence creates a fence, already signalled when signaled is set.
func (d *Device) NewFence(signaled bool) (inflight.Fence, error) {
	return d.CreateFence(signaled)
}

func (d *Device) CreateFence(signaled bool) (*Fence, error) {
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var fence vk.Fence
	if err := check("create fence", vk.CreateFence(d.VKDevice, &info, nil, &fence)); err != nil {
		return nil, err
	}
	return &Fence{Device: d, VKFence: fence}, nil
}

// timeoutNanos converts a wait timeout. WaitForever maps to UINT64_MAX.
func timeoutNanos(timeout time.Duration) uint64 {
	if timeout == inflight.WaitForever || timeout < 0 {
		return vk.MaxUint64
	}
	return uint64(timeout.Nanoseconds())
}

// Wait blocks until the fence is signalled or timeout elapses.
func (f *Fence) Wait(timeout time.Duration) error {
	return check("wait for fence", vk.WaitForFences(f.Device.VKDevice, 1, []vk.Fence{f.VKFence}, vk.True, timeoutNanos(timeout)))
}

func (f *Fence) Reset() error {
	return check("reset fence", vk.ResetFences(f.Device.VKDevice, 1, []vk.Fence{f.VKFence}))
}

// Signaled polls the fence.
func (f *Fence) Signaled() (bool, error) {
	switch res := vk.GetFenceStatus(f.Device.VKDevice, f.VKFence); res {
	case vk.Success:
		return true, nil
	case vk.NotReady:
		return false, nil
	default:
		return false, check("fence status", res)
	}
}

func (f *Fence) Destroy() {
	vk.DestroyFence(f.Device.VKDevice, f.VKFence, nil)
}
