package vkg

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

type QueueFamilySlice []*QueueFamily

func (ql QueueFamilySlice) Filter(f func(q *QueueFamily) bool) QueueFamilySlice {
	ret := make(QueueFamilySlice, 0)
	for _, q := range ql {
		if f(q) {
			ret = append(ret, q)
		}
	}
	return ret
}

func (ql QueueFamilySlice) FilterCompute() QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.IsCompute()
	})
}

func (ql QueueFamilySlice) FilterGraphicsAndPresent(surface vk.Surface) QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.IsGraphics() && q.SupportsPresent(surface)
	})
}

func (ql QueueFamilySlice) FilterGraphics() QueueFamilySlice {
	return ql.Filter(func(q *QueueFamily) bool {
		return q.IsGraphics()
	})
}

// Families is the queue family assignment of a device. Compute equals
// Graphics when the device has no separate compute family.
type Families struct {
	Graphics *QueueFamily
	Compute  *QueueFamily
}

// Slice returns the distinct families to create queues on.
func (f Families) Slice() QueueFamilySlice {
	if f.Compute == nil || f.Compute.Index == f.Graphics.Index {
		return QueueFamilySlice{f.Graphics}
	}
	return QueueFamilySlice{f.Graphics, f.Compute}
}

// PickFamilies selects a graphics family that can present to surface (any
// graphics family when surface is null) and a compute family. A compute
// family without graphics is preferred so that compute work runs on its own
// queue.
func (ql QueueFamilySlice) PickFamilies(surface vk.Surface) (Families, error) {
	var fams Families
	graphics := ql.FilterGraphics()
	if surface != vk.NullSurface {
		graphics = ql.FilterGraphicsAndPresent(surface)
	}
	if len(graphics) == 0 {
		return fams, fmt.Errorf("no graphics queue family can present")
	}
	fams.Graphics = graphics[0]

	dedicated := ql.FilterCompute().Filter(func(q *QueueFamily) bool {
		return !q.IsGraphics()
	})
	switch {
	case len(dedicated) > 0:
		fams.Compute = dedicated[0]
	case fams.Graphics.IsCompute():
		fams.Compute = fams.Graphics
	default:
		if c := ql.FilterCompute(); len(c) > 0 {
			fams.Compute = c[0]
		}
	}
	if fams.Compute == nil {
		return fams, fmt.Errorf("no compute queue family")
	}
	return fams, nil
}

type QueueFamily struct {
	Index                   int
	PhysicalDevice          *PhysicalDevice
	VKQueueFamilyProperties vk.QueueFamilyProperties

	present bool
}

func (q *QueueFamily) has(bit vk.QueueFlagBits) bool {
	return q.VKQueueFamilyProperties.QueueFlags&vk.QueueFlags(bit) != 0
}

func (q *QueueFamily) IsCompute() bool {
	return q.has(vk.QueueComputeBit)
}

func (q *QueueFamily) IsGraphics() bool {
	return q.has(vk.QueueGraphicsBit)
}

func (q *QueueFamily) IsTransfer() bool {
	return q.has(vk.QueueTransferBit)
}

// SupportsPresent asks the device whether this family can present to surface
// and remembers the answer for Caps.
func (q *QueueFamily) SupportsPresent(surface vk.Surface) bool {
	var supportsPresent vk.Bool32
	vk.GetPhysicalDeviceSurfaceSupport(q.PhysicalDevice.VKPhysicalDevice, uint32(q.Index), surface, &supportsPresent)
	q.present = supportsPresent == vk.True
	return q.present
}

// Caps converts the family flags. The low bits of QueueCaps equal the Vulkan
// queue flag bits.
func (q *QueueFamily) Caps() inflight.QueueCaps {
	caps := inflight.QueueCaps(q.VKQueueFamilyProperties.QueueFlags) & (inflight.CapGraphics | inflight.CapCompute | inflight.CapTransfer)
	if q.present {
		caps |= inflight.CapPresent
	}
	return caps
}

func (q *QueueFamily) String() string {
	return fmt.Sprintf("{ Index: %d Caps: %s Count: %d }", q.Index, q.Caps(), q.VKQueueFamilyProperties.QueueCount)
}
