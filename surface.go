package inflight

import (
	"fmt"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// SurfaceState is the resize state machine position.
type SurfaceState int

const (
	SurfaceRunning SurfaceState = iota
	SurfaceResizePending
	SurfaceRecreating
	SurfaceLost
)

func (s SurfaceState) String() string {
	switch s {
	case SurfaceRunning:
		return "running"
	case SurfaceResizePending:
		return "resize-pending"
	case SurfaceRecreating:
		return "recreating"
	case SurfaceLost:
		return "lost"
	}
	return fmt.Sprintf("SurfaceState(%d)", int(s))
}

// SizeDependent is anything that must be rebuilt with the swapchain:
// framebuffers, per-resolution images, render passes.
type SizeDependent interface {
	Create(sc Swapchain) error
	Destroy()
}

// SurfaceOptions configures a SurfaceCycle.
type SurfaceOptions struct {
	AcquireTimeout time.Duration
	MaxRetries     int
}

// SurfaceCycle owns the swapchain and everything sized by it. Resize may be
// called from any goroutine; Acquire, Present and recreation run on the
// render goroutine only.
type SurfaceCycle struct {
	dev     Device
	surface Surface
	opts    SurfaceOptions

	mu         sync.Mutex
	state      SurfaceState
	pending    bool
	swapchain  Swapchain
	deps       []SizeDependent
	generation uint64
}

// NewSurfaceCycle creates the first swapchain.
func NewSurfaceCycle(dev Device, surface Surface, opts SurfaceOptions) (*SurfaceCycle, error) {
	if opts.AcquireTimeout <= 0 {
		opts.AcquireTimeout = WaitForever
	}
	sc, err := surface.NewSwapchain(nil)
	if err != nil {
		return nil, errors.Wrap(err, "create swapchain")
	}
	return &SurfaceCycle{dev: dev, surface: surface, opts: opts, swapchain: sc, generation: 1}, nil
}

// Register adds a size dependent resource and creates it for the current
// swapchain. Dependents are destroyed in reverse registration order.
func (s *SurfaceCycle) Register(d SizeDependent) error {
	if err := d.Create(s.swapchain); err != nil {
		return err
	}
	s.mu.Lock()
	s.deps = append(s.deps, d)
	s.mu.Unlock()
	return nil
}

// Resize records that the surface changed size. Repeated calls before the
// next recreation have no further effect.
func (s *SurfaceCycle) Resize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == SurfaceLost {
		return
	}
	if !s.pending {
		Logger().Debug("surface resize pending", "generation", s.generation)
	}
	s.pending = true
	if s.state == SurfaceRunning {
		s.state = SurfaceResizePending
	}
}

// State returns the current state.
func (s *SurfaceCycle) State() SurfaceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Swapchain returns the live swapchain.
func (s *SurfaceCycle) Swapchain() Swapchain {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.swapchain
}

// Generation increases by one on every recreation.
func (s *SurfaceCycle) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Acquire returns the next image index and arranges for signal to be
// signalled when it is ready. A pending resize is carried out first. An out
// of date swapchain is recreated and the acquire retried; a suboptimal one
// is used and recreated on the next frame. A minimized surface yields
// ErrSurfaceMinimized and no image.
func (s *SurfaceCycle) Acquire(signal Semaphore) (uint32, error) {
	for attempt := 0; ; attempt++ {
		s.mu.Lock()
		state, pending := s.state, s.pending
		s.mu.Unlock()
		if state == SurfaceLost {
			return 0, ErrDeviceLost
		}
		if pending {
			if err := s.recreate(); err != nil {
				return 0, err
			}
		}

		idx, err := s.Swapchain().Acquire(s.opts.AcquireTimeout, signal)
		switch {
		case err == nil:
			return idx, nil
		case errors.Is(err, ErrSuboptimal):
			s.Resize()
			return idx, nil
		case errors.Is(err, ErrOutOfDate):
			s.Resize()
			if attempt >= s.opts.MaxRetries {
				return 0, err
			}
		default:
			s.lose()
			return 0, errors.Wrap(err, "acquire image")
		}
	}
}

// Present queues index for display after wait is signalled. Out of date and
// suboptimal results schedule a recreation instead of failing.
func (s *SurfaceCycle) Present(q Queue, index uint32, wait Semaphore) error {
	err := s.Swapchain().Present(q, index, wait)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrOutOfDate), errors.Is(err, ErrSuboptimal):
		s.Resize()
		return nil
	default:
		s.lose()
		return errors.Wrap(err, "present image")
	}
}

// recreate waits for the device to go idle, tears down the dependents,
// replaces the swapchain and rebuilds the dependents.
func (s *SurfaceCycle) recreate() error {
	if s.surface.Extent().Zero() {
		return ErrSurfaceMinimized
	}

	s.mu.Lock()
	s.state = SurfaceRecreating
	s.pending = false
	old := s.swapchain
	deps := append([]SizeDependent(nil), s.deps...)
	s.mu.Unlock()

	if err := s.dev.WaitIdle(); err != nil {
		s.lose()
		return errors.Wrap(err, "wait idle before recreate")
	}
	for i := len(deps) - 1; i >= 0; i-- {
		deps[i].Destroy()
	}

	sc, err := s.surface.NewSwapchain(old)
	if err != nil {
		s.lose()
		return errors.Wrap(err, "recreate swapchain")
	}
	old.Destroy()

	s.mu.Lock()
	s.swapchain = sc
	s.generation++
	gen := s.generation
	s.mu.Unlock()

	for _, d := range deps {
		if err := d.Create(sc); err != nil {
			s.lose()
			return errors.Wrap(err, "recreate size dependent resource")
		}
	}

	s.mu.Lock()
	if s.pending {
		s.state = SurfaceResizePending
	} else {
		s.state = SurfaceRunning
	}
	s.mu.Unlock()

	ext := sc.Extent()
	Logger().Info("swapchain recreated", "generation", gen, "width", ext.Width, "height", ext.Height, "images", sc.ImageCount())
	return nil
}

func (s *SurfaceCycle) lose() {
	s.mu.Lock()
	s.state = SurfaceLost
	s.mu.Unlock()
}

// Destroy releases the dependents and the swapchain. The caller must have
// waited for the device.
func (s *SurfaceCycle) Destroy() {
	s.mu.Lock()
	deps := s.deps
	sc := s.swapchain
	s.deps = nil
	s.swapchain = nil
	s.mu.Unlock()
	for i := len(deps) - 1; i >= 0; i-- {
		deps[i].Destroy()
	}
	if sc != nil {
		sc.Destroy()
	}
}
