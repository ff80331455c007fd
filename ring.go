package inflight

import (
	"fmt"
	"time"
)

// RingOptions configures a FrameRing.
type RingOptions struct {
	// FenceTimeout bounds each gate wait.
	FenceTimeout time.Duration
	// UniformBytes is the uniform arena size of each slot.
	UniformBytes uint64
	// UniformAlignment aligns every arena allocation and slot share.
	UniformAlignment uint64
}

// RingOptionsFrom derives ring options from a Config.
func RingOptionsFrom(cfg Config) RingOptions {
	return RingOptions{
		FenceTimeout:     time.Duration(cfg.FenceTimeout),
		UniformBytes:     uint64(cfg.UniformArena),
		UniformAlignment: uint64(cfg.UniformAlignment),
	}
}

// FrameRing is a fixed ring of N slots. Frame k uses slot k mod N, and
// BeginFrame does not return until the GPU finished frame k-N.
type FrameRing[T any] struct {
	dev      Device
	queue    Queue
	slots    []*Slot[T]
	uniforms HostBuffer
	counter  uint64
	open     *Frame[T]
	opts     RingOptions
}

// Frame is one pass through BeginFrame and EndFrame.
type Frame[T any] struct {
	// Index is the monotonically increasing frame counter value.
	Index uint64
	// Slot is the slot this frame owns until EndFrame.
	Slot *Slot[T]
	// GateWait is how long BeginFrame blocked on the slot's gate.
	GateWait time.Duration

	ring      *FrameRing[T]
	swapchain Swapchain
	image     uint32
	acquired  bool
	tickets   []*Ticket
	submitted bool
}

// NewFrameRing builds n slots on queue. newData may be nil.
func NewFrameRing[T any](dev Device, queue Queue, n int, opts RingOptions, newData func(*Slot[T]) (T, error)) (*FrameRing[T], error) {
	if n < 1 {
		return nil, fmt.Errorf("ring needs at least one slot, got %d", n)
	}
	if opts.UniformAlignment == 0 {
		opts.UniformAlignment = 1
	}
	r := &FrameRing[T]{dev: dev, queue: queue, opts: opts}

	share := alignUp(opts.UniformBytes, opts.UniformAlignment)
	if share > 0 {
		buf, err := dev.NewHostBuffer(share * uint64(n))
		if err != nil {
			return nil, fmt.Errorf("uniform buffer: %w", err)
		}
		r.uniforms = buf
	}

	for i := 0; i < n; i++ {
		s, err := newSlot[T](dev, queue, i, opts.FenceTimeout)
		if err != nil {
			r.destroySlots(nil)
			return nil, err
		}
		s.Uniforms = newArena(r.uniforms, share*uint64(i), share, opts.UniformAlignment)
		r.slots = append(r.slots, s)
		if newData != nil {
			if s.Data, err = newData(s); err != nil {
				r.destroySlots(nil)
				return nil, fmt.Errorf("slot %d data: %w", i, err)
			}
		}
	}
	Logger().Debug("frame ring created", "slots", n, "uniform_share", share)
	return r, nil
}

// Len is N.
func (r *FrameRing[T]) Len() int {
	return len(r.slots)
}

// Counter is the index the next BeginFrame will use.
func (r *FrameRing[T]) Counter() uint64 {
	return r.counter
}

// Slot returns slot i.
func (r *FrameRing[T]) Slot(i int) *Slot[T] {
	return r.slots[i]
}

// Queue is the queue that carries each frame's fence.
func (r *FrameRing[T]) Queue() Queue {
	return r.queue
}

// Device is the device the ring was created on.
func (r *FrameRing[T]) Device() Device {
	return r.dev
}

// BeginFrame selects the next slot and blocks until its previous GPU use is
// complete. The slot's command buffers, arena and semaphore pool are reset.
func (r *FrameRing[T]) BeginFrame() (*Frame[T], error) {
	if r.open != nil {
		return nil, fmt.Errorf("begin frame %d: %w", r.counter, ErrFrameActive)
	}
	idx := int(r.counter % uint64(len(r.slots)))
	s := r.slots[idx]

	waited, err := s.gate.WaitAndReset()
	s.armed = false
	if err != nil {
		return nil, deviceError("wait for slot gate", r.counter, idx, err)
	}
	if err := s.reset(); err != nil {
		return nil, deviceError("reset slot", r.counter, idx, err)
	}
	s.frame = r.counter

	f := &Frame[T]{Index: r.counter, Slot: s, GateWait: waited, ring: r}
	r.open = f
	Logger().Debug("begin frame", "frame", f.Index, "slot", idx, "gate_wait", waited)
	return f, nil
}

// EndFrame closes f. If nothing was submitted a no-op submission still
// carries the slot fence. It never waits on the GPU.
func (r *FrameRing[T]) EndFrame(f *Frame[T]) error {
	if f == nil || f != r.open {
		return ErrNoActiveFrame
	}
	if !f.submitted {
		if err := f.Submit(); err != nil {
			return err
		}
	}
	r.open = nil
	r.counter++
	Logger().Debug("end frame", "frame", f.Index, "slot", f.Slot.Index)
	return nil
}

// Abandon ends f without recording further work. Anything already submitted
// stays in flight; otherwise a no-op submission signals the gate.
func (r *FrameRing[T]) Abandon(f *Frame[T]) error {
	if f == nil || f != r.open {
		return ErrNoActiveFrame
	}
	Logger().Debug("abandon frame", "frame", f.Index, "slot", f.Slot.Index, "submitted", f.submitted)
	return r.EndFrame(f)
}

// InFlight counts submitted slots whose gate has not opened yet.
func (r *FrameRing[T]) InFlight() int {
	n := 0
	for _, s := range r.slots {
		if s.armed && !s.gate.Signaled() {
			n++
		}
	}
	return n
}

// WaitIdle waits for every slot's gate without resetting it. A gate that no
// submission will signal, left behind by a frame that failed before its
// fence was submitted, is skipped.
func (r *FrameRing[T]) WaitIdle() error {
	for _, s := range r.slots {
		if !s.armed {
			continue
		}
		if err := s.gate.Wait(); err != nil {
			return deviceError("wait idle", s.frame, s.Index, err)
		}
	}
	return nil
}

// Destroy waits for the GPU and releases every slot. release is called for
// each slot's Data and may be nil.
func (r *FrameRing[T]) Destroy(release func(T)) error {
	err := r.WaitIdle()
	r.destroySlots(release)
	return err
}

func (r *FrameRing[T]) destroySlots(release func(T)) {
	for _, s := range r.slots {
		if release != nil {
			release(s.Data)
		}
		s.destroy()
	}
	r.slots = nil
	if r.uniforms != nil {
		r.uniforms.Destroy()
		r.uniforms = nil
	}
}

// Queue is the ring's queue.
func (f *Frame[T]) Queue() Queue {
	return f.ring.queue
}

// SetImage records the swapchain image acquired for this frame. The sequencer
// then waits on the slot's ImageAvailable semaphore and signals RenderFinished.
func (f *Frame[T]) SetImage(sc Swapchain, index uint32) {
	f.swapchain = sc
	f.image = index
	f.acquired = true
}

// Image returns the acquired swapchain image, if any.
func (f *Frame[T]) Image() (Swapchain, uint32, bool) {
	return f.swapchain, f.image, f.acquired
}

// Submitted reports whether the frame's work has been handed to the queues.
func (f *Frame[T]) Submitted() bool {
	return f.submitted
}
