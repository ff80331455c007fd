package vkg

import (
	vk "github.com/vulkan-go/vulkan"
)

// CommandPool allocates resettable primary command buffers for one family.
type CommandPool struct {
	Device        *Device
	QueueFamily   *QueueFamily
	VKCommandPool vk.CommandPool
}

func (d *Device) CreateCommandPool(q *QueueFamily) (*CommandPool, error) {
	info := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit),
		QueueFamilyIndex: uint32(q.Index),
	}
	var commandPool vk.CommandPool
	if err := check("create command pool", vk.CreateCommandPool(d.VKDevice, &info, nil, &commandPool)); err != nil {
		return nil, err
	}
	return &CommandPool{Device: d, QueueFamily: q, VKCommandPool: commandPool}, nil
}

func (c *CommandPool) Destroy() {
	vk.DestroyCommandPool(c.Device.VKDevice, c.VKCommandPool, nil)
}

func (c *CommandPool) AllocateBuffers(count int) ([]*CommandBuffer, error) {
	info := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        c.VKCommandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: uint32(count),
	}
	cmdBuffers := make([]vk.CommandBuffer, count)
	c.Device.mu.Lock()
	defer c.Device.mu.Unlock()
	if err := check("allocate command buffers", vk.AllocateCommandBuffers(c.Device.VKDevice, &info, cmdBuffers)); err != nil {
		return nil, err
	}
	ret := make([]*CommandBuffer, count)
	for i := range ret {
		ret[i] = &CommandBuffer{Pool: c, VKCommandBuffer: cmdBuffers[i]}
	}
	return ret, nil
}

func (c *CommandPool) AllocateBuffer() (*CommandBuffer, error) {
	ret, err := c.AllocateBuffers(1)
	if err != nil {
		return nil, err
	}
	return ret[0], nil
}

// FreeBuffer returns b to the pool. The pool is shared by every slot on the
// family, so the device lock guards it.
func (c *CommandPool) FreeBuffer(b *CommandBuffer) {
	c.Device.mu.Lock()
	defer c.Device.mu.Unlock()
	vk.FreeCommandBuffers(c.Device.VKDevice, c.VKCommandPool, 1, []vk.CommandBuffer{b.VKCommandBuffer})
}
