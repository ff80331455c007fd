package vkg

import (
	"fmt"
	"sync"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

// Device is a logical device. It implements inflight.Device: fences,
// semaphores, command buffers from one pool per queue family, and
// persistently mapped host buffers.
type Device struct {
	PhysicalDevice *PhysicalDevice
	VKDevice       vk.Device

	mu     sync.Mutex
	queues map[int]*Queue
	pools  map[int]*CommandPool
}

var _ inflight.Device = (*Device)(nil)

func newDevice(p *PhysicalDevice, d vk.Device) *Device {
	return &Device{
		PhysicalDevice: p,
		VKDevice:       d,
		queues:         map[int]*Queue{},
		pools:          map[int]*CommandPool{},
	}
}

// Destroy releases the command pools and the device. Every other object must
// have been destroyed first.
func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, p := range d.pools {
		p.Destroy()
	}
	d.pools = nil
	vk.DestroyDevice(d.VKDevice, nil)
}

func (d *Device) String() string {
	return fmt.Sprintf("{ PhysicalDevice: %s }", d.PhysicalDevice)
}

// WaitIdle blocks until every queue of the device is idle.
func (d *Device) WaitIdle() error {
	return check("device wait idle", vk.DeviceWaitIdle(d.VKDevice))
}

// GetQueue returns queue 0 of the family. Repeated calls return the same
// queue so that submissions to it share one lock.
func (d *Device) GetQueue(qf *QueueFamily) *Queue {
	d.mu.Lock()
	defer d.mu.Unlock()
	if q, ok := d.queues[qf.Index]; ok {
		return q
	}
	var vkq vk.Queue
	vk.GetDeviceQueue(d.VKDevice, uint32(qf.Index), 0, &vkq)
	q := &Queue{Device: d, QueueFamily: qf, VKQueue: vkq}
	d.queues[qf.Index] = q
	return q
}

func (d *Device) pool(family *QueueFamily) (*CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if p, ok := d.pools[family.Index]; ok {
		return p, nil
	}
	p, err := d.CreateCommandPool(family)
	if err != nil {
		return nil, err
	}
	d.pools[family.Index] = p
	return p, nil
}

// NewCommandBuffer allocates a primary command buffer from the pool of the
// queue's family.
func (d *Device) NewCommandBuffer(q inflight.Queue) (inflight.CommandBuffer, error) {
	vq, ok := q.(*Queue)
	if !ok {
		return nil, fmt.Errorf("queue %v does not belong to a vulkan device", q)
	}
	p, err := d.pool(vq.QueueFamily)
	if err != nil {
		return nil, err
	}
	return p.AllocateBuffer()
}

// Allocate allocates memory of a type allowed by memoryTypeBits with the
// requested properties.
func (d *Device) Allocate(size uint64, memoryTypeBits uint32, properties vk.MemoryPropertyFlags) (*DeviceMemory, error) {
	typeIndex, flags, err := d.PhysicalDevice.FindMemoryType(memoryTypeBits, properties)
	if err != nil {
		return nil, err
	}
	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: typeIndex,
	}
	var mem vk.DeviceMemory
	if err := check("allocate memory", vk.AllocateMemory(d.VKDevice, &allocateInfo, nil, &mem)); err != nil {
		return nil, err
	}
	return &DeviceMemory{Device: d, VKDeviceMemory: mem, Size: size, Flags: flags}, nil
}

// NewHostBuffer creates a buffer in host visible memory, mapped for its whole
// life. It may back uniforms, storage, vertices and 16-bit indices.
func (d *Device) NewHostBuffer(size uint64) (inflight.HostBuffer, error) {
	b, err := d.NewBuffer("host", size,
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit|vk.BufferUsageStorageBufferBit|
			vk.BufferUsageVertexBufferBit|vk.BufferUsageIndexBufferBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit))
	if err != nil {
		return nil, errors.Wrap(err, "host buffer")
	}
	hb, err := mapHostBuffer(b)
	if err != nil {
		b.Destroy()
		return nil, err
	}
	return hb, nil
}
