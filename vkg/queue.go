package vkg

import (
	"fmt"
	"sync"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

// Queue is a device queue. Vulkan requires host synchronization of a queue,
// so submit and present share a lock.
type Queue struct {
	Device      *Device
	QueueFamily *QueueFamily
	VKQueue     vk.Queue

	mu sync.Mutex
}

var _ inflight.Queue = (*Queue)(nil)

func (q *Queue) Family() int {
	return q.QueueFamily.Index
}

func (q *Queue) Caps() inflight.QueueCaps {
	return q.QueueFamily.Caps()
}

func (q *Queue) WaitIdle() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return check("queue wait idle", vk.QueueWaitIdle(q.VKQueue))
}

// Submit sends all batches in one vkQueueSubmit. fence may be nil.
func (q *Queue) Submit(batches []inflight.Batch, fence inflight.Fence) error {
	infos := make([]vk.SubmitInfo, len(batches))
	for i, b := range batches {
		info, err := submitInfo(b)
		if err != nil {
			return err
		}
		infos[i] = info
	}

	vkFence := vk.NullFence
	if fence != nil {
		f, ok := fence.(*Fence)
		if !ok {
			return fmt.Errorf("fence %T is not a vulkan fence", fence)
		}
		vkFence = f.VKFence
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return check("queue submit", vk.QueueSubmit(q.VKQueue, uint32(len(infos)), infos, vkFence))
}

func submitInfo(b inflight.Batch) (vk.SubmitInfo, error) {
	info := vk.SubmitInfo{SType: vk.StructureTypeSubmitInfo}

	if len(b.Waits) > 0 {
		sems := make([]vk.Semaphore, len(b.Waits))
		stages := make([]vk.PipelineStageFlags, len(b.Waits))
		for i, w := range b.Waits {
			s, err := vkSemaphore(w.Semaphore)
			if err != nil {
				return info, err
			}
			sems[i] = s
			stages[i] = vk.PipelineStageFlags(w.Stage)
		}
		info.WaitSemaphoreCount = uint32(len(sems))
		info.PWaitSemaphores = sems
		info.PWaitDstStageMask = stages
	}

	if len(b.Commands) > 0 {
		cbs := make([]vk.CommandBuffer, len(b.Commands))
		for i, c := range b.Commands {
			cb, ok := c.(*CommandBuffer)
			if !ok {
				return info, fmt.Errorf("command buffer %T is not a vulkan command buffer", c)
			}
			cbs[i] = cb.VKCommandBuffer
		}
		info.CommandBufferCount = uint32(len(cbs))
		info.PCommandBuffers = cbs
	}

	if len(b.Signals) > 0 {
		sems := make([]vk.Semaphore, len(b.Signals))
		for i, s := range b.Signals {
			vs, err := vkSemaphore(s)
			if err != nil {
				return info, err
			}
			sems[i] = vs
		}
		info.SignalSemaphoreCount = uint32(len(sems))
		info.PSignalSemaphores = sems
	}
	return info, nil
}

func (q *Queue) String() string {
	return fmt.Sprintf("{Device: %s QueueFamily: %s}", q.Device, q.QueueFamily)
}
