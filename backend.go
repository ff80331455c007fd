package inflight

import (
	"time"
)

// QueueFamilyIgnored marks a barrier that does not transfer queue family ownership.
const QueueFamilyIgnored = -1

// Device creates the synchronization objects and command buffers used by the engine.
type Device interface {
	NewFence(signaled bool) (Fence, error)
	NewSemaphore() (Semaphore, error)
	NewCommandBuffer(q Queue) (CommandBuffer, error)
	NewHostBuffer(size uint64) (HostBuffer, error)
	WaitIdle() error
}

// Fence is a device to host completion signal. Wait returns ErrTimeout when the
// timeout elapses and ErrDeviceLost when the device is gone.
type Fence interface {
	Wait(timeout time.Duration) error
	Reset() error
	Signaled() (bool, error)
	Destroy()
}

// Semaphore is a binary device to device signal.
type Semaphore interface {
	Destroy()
}

// SemaphoreWait blocks the given stages of a batch until Semaphore is signalled.
type SemaphoreWait struct {
	Semaphore Semaphore
	Stage     Stage
}

// Batch is one submit info: waits, then command buffers, then signals.
type Batch struct {
	Waits    []SemaphoreWait
	Commands []CommandBuffer
	Signals  []Semaphore
}

// Queue accepts batches of command buffers. Submit must not block on GPU progress.
type Queue interface {
	Family() int
	Caps() QueueCaps
	Submit(batches []Batch, fence Fence) error
	WaitIdle() error
}

// CommandBuffer records commands for a single queue family.
type CommandBuffer interface {
	Begin() error
	End() error
	Reset() error
	Label(name string)
	PipelineBarrier(b Barrier)
	BeginRenderPass(g *SubpassGroup) error
	NextSubpass()
	EndRenderPass()
	Destroy()
}

// ResourceKind separates images from buffers when barriers are built.
type ResourceKind int

const (
	KindMemory ResourceKind = iota
	KindImage
	KindBuffer
)

func (k ResourceKind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindBuffer:
		return "buffer"
	}
	return "memory"
}

// Resource is anything that passes read or write: images, buffers, attachments.
type Resource interface {
	Name() string
	Kind() ResourceKind
}

// MemoryBarrier is a global memory dependency.
type MemoryBarrier struct {
	SrcAccess Access
	DstAccess Access
}

// ImageBarrier is a memory dependency on one image, with an optional layout
// transition and queue family ownership transfer.
type ImageBarrier struct {
	Resource  Resource
	SrcAccess Access
	DstAccess Access
	OldLayout Layout
	NewLayout Layout
	SrcFamily int
	DstFamily int
}

// BufferBarrier is a memory dependency on one buffer.
type BufferBarrier struct {
	Resource  Resource
	SrcAccess Access
	DstAccess Access
	SrcFamily int
	DstFamily int
}

// Barrier is a pipeline barrier: an execution dependency from SrcStage to
// DstStage plus the listed memory dependencies.
type Barrier struct {
	SrcStage Stage
	DstStage Stage
	ByRegion bool
	Memory   []MemoryBarrier
	Images   []ImageBarrier
	Buffers  []BufferBarrier
}

// Empty reports whether the barrier carries no dependency at all.
func (b Barrier) Empty() bool {
	return b.SrcStage == 0 && b.DstStage == 0 && len(b.Memory) == 0 && len(b.Images) == 0 && len(b.Buffers) == 0
}

// HostBuffer is persistently mapped memory shared by host and device.
type HostBuffer interface {
	Bytes() []byte
	Flush(offset, size uint64) error
	Destroy()
}

// Extent is a surface or image size in pixels.
type Extent struct {
	Width  uint32
	Height uint32
}

// Zero reports whether either dimension is zero, as for a minimized window.
func (e Extent) Zero() bool {
	return e.Width == 0 || e.Height == 0
}

// Swapchain is a set of presentable images. Acquire returns ErrSuboptimal with
// a valid index when the image is usable but the swapchain no longer matches
// the surface, and ErrOutOfDate when no image could be acquired.
type Swapchain interface {
	ImageCount() int
	Extent() Extent
	Image(i int) Resource
	Acquire(timeout time.Duration, signal Semaphore) (uint32, error)
	Present(q Queue, index uint32, wait Semaphore) error
	Destroy()
}

// Surface produces swapchains for a window.
type Surface interface {
	Extent() Extent
	NewSwapchain(old Swapchain) (Swapchain, error)
}
