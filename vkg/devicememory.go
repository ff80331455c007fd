package vkg

import (
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

// DeviceMemory maps to Vulkan DeviceMemory and can either be memory on the host or on the device
type DeviceMemory struct {
	Device         *Device
	VKDeviceMemory vk.DeviceMemory
	Size           uint64
	Flags          vk.MemoryPropertyFlags
}

func (d *DeviceMemory) HostCoherent() bool {
	return d.Flags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostCoherentBit) != 0
}

// Map maps the whole allocation.
func (d *DeviceMemory) Map() ([]byte, error) {
	var ptr unsafe.Pointer
	if err := check("map memory", vk.MapMemory(d.Device.VKDevice, d.VKDeviceMemory, 0, vk.DeviceSize(d.Size), 0, &ptr)); err != nil {
		return nil, err
	}
	return ToBytes(ptr, int(d.Size)), nil
}

func (d *DeviceMemory) Unmap() {
	vk.UnmapMemory(d.Device.VKDevice, d.VKDeviceMemory)
}

func (d *DeviceMemory) Destroy() {
	vk.FreeMemory(d.Device.VKDevice, d.VKDeviceMemory, nil)
}

// HostBuffer is a buffer in host visible memory that stays mapped until it is
// destroyed. Writes to non-coherent memory become visible after Flush.
type HostBuffer struct {
	*Buffer

	data []byte
	atom uint64
}

var _ inflight.HostBuffer = (*HostBuffer)(nil)

func mapHostBuffer(b *Buffer) (*HostBuffer, error) {
	data, err := b.Memory.Map()
	if err != nil {
		return nil, err
	}
	atom := uint64(b.Device.PhysicalDevice.Limits().NonCoherentAtomSize)
	if atom == 0 {
		atom = 1
	}
	return &HostBuffer{Buffer: b, data: data[:b.Size], atom: atom}, nil
}

func (h *HostBuffer) Bytes() []byte {
	return h.data
}

// Flush makes host writes in [offset, offset+size) visible to the device.
// The range is widened to the device's non-coherent atom size.
func (h *HostBuffer) Flush(offset, size uint64) error {
	if h.Memory.HostCoherent() || size == 0 {
		return nil
	}
	start := offset / h.atom * h.atom
	end := (offset + size + h.atom - 1) / h.atom * h.atom
	rng := vk.MappedMemoryRange{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: h.Memory.VKDeviceMemory,
		Offset: vk.DeviceSize(start),
		Size:   vk.DeviceSize(end - start),
	}
	if end >= h.Memory.Size {
		rng.Size = vk.DeviceSize(vk.WholeSize)
	}
	return check("flush memory", vk.FlushMappedMemoryRanges(h.Device.VKDevice, 1, []vk.MappedMemoryRange{rng}))
}

func (h *HostBuffer) Destroy() {
	if h.data != nil {
		h.Memory.Unmap()
		h.data = nil
	}
	h.Buffer.Destroy()
}
