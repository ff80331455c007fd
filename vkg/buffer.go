package vkg

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

// Buffer is a vk.Buffer bound to its own memory. It is an inflight.Resource
// so graph passes and tickets can name it.
type Buffer struct {
	Device   *Device
	VKBuffer vk.Buffer
	Memory   *DeviceMemory
	Size     uint64

	name string
}

// NewBuffer creates an exclusive buffer and binds it to fresh memory with
// the given properties.
func (d *Device) NewBuffer(name string, size uint64, usage vk.BufferUsageFlags, props vk.MemoryPropertyFlags) (*Buffer, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var buffer vk.Buffer
	if err := check("create buffer "+name, vk.CreateBuffer(d.VKDevice, &info, nil, &buffer)); err != nil {
		return nil, err
	}
	b := &Buffer{Device: d, VKBuffer: buffer, Size: size, name: name}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.VKDevice, buffer, &req)
	req.Deref()
	mem, err := d.Allocate(uint64(req.Size), req.MemoryTypeBits, props)
	if err != nil {
		vk.DestroyBuffer(d.VKDevice, buffer, nil)
		return nil, err
	}
	b.Memory = mem
	if err := check("bind buffer "+name, vk.BindBufferMemory(d.VKDevice, buffer, mem.VKDeviceMemory, 0)); err != nil {
		b.Destroy()
		return nil, err
	}
	return b, nil
}

func (b *Buffer) Name() string {
	return b.name
}

func (b *Buffer) Kind() inflight.ResourceKind {
	return inflight.KindBuffer
}

func (b *Buffer) vkBuffer() vk.Buffer {
	return b.VKBuffer
}

// DSInfo describes size bytes of the buffer at offset for a descriptor write.
func (b *Buffer) DSInfo(offset, size uint64) vk.DescriptorBufferInfo {
	return vk.DescriptorBufferInfo{
		Buffer: b.VKBuffer,
		Offset: vk.DeviceSize(offset),
		Range:  vk.DeviceSize(size),
	}
}

func (b *Buffer) Destroy() {
	vk.DestroyBuffer(b.Device.VKDevice, b.VKBuffer, nil)
	if b.Memory != nil {
		b.Memory.Destroy()
		b.Memory = nil
	}
}
