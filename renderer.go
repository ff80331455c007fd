package inflight

import (
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Backend bundles what the Renderer drives.
type Backend struct {
	Device Device
	// Graphics carries each frame's fence.
	Graphics Queue
	// Present defaults to Graphics.
	Present Queue
	// Surface is optional; without it frames render offscreen.
	Surface Surface
}

// Stats summarises a Renderer's life so far.
type Stats struct {
	Frames       uint64
	Abandoned    uint64
	Recreations  uint64
	MaxInFlight  int
	GateWait     time.Duration
	MaxGateWait  time.Duration
	LastGateWait time.Duration
}

// Recorder records one frame and returns its submissions.
type Recorder[T any] func(f *Frame[T]) ([]Work, error)

// Renderer runs the frame loop: wait for the slot, acquire, record, submit,
// present. The first fatal error is reported once through OnFatal and then
// returned by every later call.
type Renderer[T any] struct {
	// OnFatal is called once with the first fatal error.
	OnFatal func(error)

	cfg     Config
	be      Backend
	ring    *FrameRing[T]
	surface *SurfaceCycle

	fatalOnce sync.Once
	lost      error
	stats     Stats
}

// NewRenderer builds the ring and, when a surface is given, the surface cycle.
func NewRenderer[T any](cfg Config, be Backend, newData func(*Slot[T]) (T, error)) (*Renderer[T], error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if be.Device == nil || be.Graphics == nil {
		return nil, errors.New("backend needs a device and a graphics queue")
	}
	if be.Present == nil {
		be.Present = be.Graphics
	}
	r := &Renderer[T]{cfg: cfg, be: be}
	r.OnFatal = func(err error) {
		Logger().Error("fatal device error", "err", err)
	}

	ring, err := NewFrameRing(be.Device, be.Graphics, cfg.FramesInFlight, RingOptionsFrom(cfg), newData)
	if err != nil {
		return nil, err
	}
	r.ring = ring

	if be.Surface != nil {
		r.surface, err = NewSurfaceCycle(be.Device, be.Surface, SurfaceOptions{
			AcquireTimeout: time.Duration(cfg.AcquireTimeout),
			MaxRetries:     cfg.MaxAcquireRetries,
		})
		if err != nil {
			ring.Destroy(nil)
			return nil, err
		}
	}
	return r, nil
}

// Ring exposes the frame ring.
func (r *Renderer[T]) Ring() *FrameRing[T] {
	return r.ring
}

// Surface exposes the surface cycle, or nil when rendering offscreen.
func (r *Renderer[T]) Surface() *SurfaceCycle {
	return r.surface
}

// Config returns the configuration the renderer was built with.
func (r *Renderer[T]) Config() Config {
	return r.cfg
}

// Stats returns a snapshot of the counters.
func (r *Renderer[T]) Stats() Stats {
	s := r.stats
	if r.surface != nil {
		s.Recreations = r.surface.Generation() - 1
	}
	return s
}

// Err returns the fatal error that stopped the renderer, if any.
func (r *Renderer[T]) Err() error {
	return r.lost
}

// Resize schedules a swapchain recreation. Safe from any goroutine.
func (r *Renderer[T]) Resize() {
	if r.surface != nil {
		r.surface.Resize()
	}
}

// Register adds a size dependent resource to the surface cycle.
func (r *Renderer[T]) Register(d SizeDependent) error {
	if r.surface == nil {
		return errors.New("renderer has no surface")
	}
	return r.surface.Register(d)
}

// DrawFrame runs one frame. Recoverable presentation conditions skip the
// frame and return nil. An error from rec abandons the frame and is
// returned.
func (r *Renderer[T]) DrawFrame(rec Recorder[T]) error {
	if r.lost != nil {
		return r.lost
	}

	f, err := r.ring.BeginFrame()
	if err != nil {
		return r.check(err)
	}
	r.noteGate(f.GateWait)

	if r.surface != nil {
		idx, err := r.surface.Acquire(f.Slot.ImageAvailable())
		if err != nil {
			if IsRecoverable(err) {
				Logger().Debug("frame skipped", "frame", f.Index, "reason", err)
				return r.abandon(f, nil)
			}
			return r.fail(deviceError("acquire", f.Index, f.Slot.Index, err))
		}
		f.SetImage(r.surface.Swapchain(), idx)
	}

	works, err := rec(f)
	if err != nil {
		if IsFatal(err) {
			return r.fail(deviceError("record", f.Index, f.Slot.Index, err))
		}
		return r.abandon(f, err)
	}

	if err := f.Submit(works...); err != nil {
		if IsFatal(err) {
			return r.fail(err)
		}
		return r.abandon(f, err)
	}

	if err := r.present(f); err != nil {
		return r.fail(err)
	}
	if err := r.ring.EndFrame(f); err != nil {
		return r.check(err)
	}
	r.stats.Frames++
	if n := r.ring.InFlight(); n > r.stats.MaxInFlight {
		r.stats.MaxInFlight = n
	}
	return nil
}

func (r *Renderer[T]) present(f *Frame[T]) error {
	_, idx, ok := f.Image()
	if !ok || r.surface == nil {
		return nil
	}
	if err := r.surface.Present(r.be.Present, idx, f.Slot.RenderFinished()); err != nil {
		return deviceError("present", f.Index, f.Slot.Index, err)
	}
	return nil
}

// abandon still signals the slot gate, and presents an acquired image so
// the swapchain semaphores stay balanced.
func (r *Renderer[T]) abandon(f *Frame[T], cause error) error {
	if !f.Submitted() {
		if err := f.Submit(); err != nil {
			return r.fail(err)
		}
	}
	if err := r.present(f); err != nil {
		return r.fail(err)
	}
	if err := r.ring.Abandon(f); err != nil {
		return r.check(err)
	}
	r.stats.Abandoned++
	return cause
}

func (r *Renderer[T]) noteGate(d time.Duration) {
	r.stats.GateWait += d
	r.stats.LastGateWait = d
	if d > r.stats.MaxGateWait {
		r.stats.MaxGateWait = d
	}
}

func (r *Renderer[T]) check(err error) error {
	if IsFatal(err) {
		return r.fail(err)
	}
	return err
}

// fail marks the renderer lost. An open frame is dropped; its gate is not
// armed, so Close does not wait on it.
func (r *Renderer[T]) fail(err error) error {
	r.ring.open = nil
	r.fatalOnce.Do(func() {
		r.lost = err
		if r.OnFatal != nil {
			r.OnFatal(err)
		}
	})
	return r.lost
}

// Close waits for the GPU and releases the ring and the surface.
func (r *Renderer[T]) Close(release func(T)) error {
	var err error
	if r.lost == nil {
		err = r.be.Device.WaitIdle()
	}
	if rerr := r.ring.Destroy(release); err == nil && r.lost == nil {
		err = rerr
	}
	if r.surface != nil {
		r.surface.Destroy()
	}
	if r.lost == nil {
		r.lost = ErrClosed
	}
	return err
}
