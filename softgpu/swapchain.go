package softgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/celer/inflight"
)

// Surface is a simulated window surface. Its extent may change at any time;
// swapchains built for another extent go out of date.
type Surface struct {
	dev    *Device
	images int

	mu         sync.Mutex
	extent     inflight.Extent
	suboptimal bool
	created    int
}

// NewSurface creates a surface whose swapchains hold images images.
func (d *Device) NewSurface(width, height uint32, images int) *Surface {
	if images < 2 {
		images = 2
	}
	return &Surface{dev: d, images: images, extent: inflight.Extent{Width: width, Height: height}}
}

// SetExtent simulates a window resize. Zero means minimized.
func (s *Surface) SetExtent(width, height uint32) {
	s.mu.Lock()
	s.extent = inflight.Extent{Width: width, Height: height}
	s.mu.Unlock()
}

// SetSuboptimal makes acquisitions report suboptimal until the next swapchain.
func (s *Surface) SetSuboptimal(v bool) {
	s.mu.Lock()
	s.suboptimal = v
	s.mu.Unlock()
}

func (s *Surface) Extent() inflight.Extent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.extent
}

// Created counts swapchains built so far.
func (s *Surface) Created() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.created
}

func (s *Surface) NewSwapchain(old inflight.Swapchain) (inflight.Swapchain, error) {
	if s.dev.isLost() {
		return nil, inflight.ErrDeviceLost
	}
	if old != nil {
		o, ok := old.(*Swapchain)
		if !ok {
			return nil, fmt.Errorf("foreign swapchain %T", old)
		}
		o.mu.Lock()
		destroyed := o.destroyed
		o.mu.Unlock()
		if destroyed {
			s.dev.misused("swapchain recreated from a destroyed swapchain")
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.extent.Zero() {
		return nil, inflight.ErrSurfaceMinimized
	}
	s.suboptimal = false
	s.created++
	sc := &Swapchain{surface: s, extent: s.extent, generation: s.created}
	for i := 0; i < s.images; i++ {
		sc.images = append(sc.images, &Resource{
			dev:          s.dev,
			name:         fmt.Sprintf("swapchain%d[%d]", s.created, i),
			kind:         inflight.KindImage,
			owner:        noFamily,
			pendingOwner: noFamily,
		})
	}
	s.dev.track("swapchain", 1)
	return sc, nil
}

// Swapchain hands out images round robin.
type Swapchain struct {
	surface    *Surface
	extent     inflight.Extent
	generation int
	images     []*Resource

	mu        sync.Mutex
	next      int
	pending   int
	presented int
	destroyed bool
}

func (sc *Swapchain) ImageCount() int {
	return len(sc.images)
}

func (sc *Swapchain) Extent() inflight.Extent {
	return sc.extent
}

func (sc *Swapchain) Image(i int) inflight.Resource {
	return sc.images[i]
}

// Presented counts images that reached the screen.
func (sc *Swapchain) Presented() int {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.presented
}

func (sc *Swapchain) stale() (outOfDate, suboptimal bool) {
	sc.surface.mu.Lock()
	defer sc.surface.mu.Unlock()
	return sc.surface.extent != sc.extent, sc.surface.suboptimal
}

func (sc *Swapchain) Acquire(timeout time.Duration, signal inflight.Semaphore) (uint32, error) {
	dev := sc.surface.dev
	if dev.isLost() {
		return 0, inflight.ErrDeviceLost
	}
	sem, ok := signal.(*Semaphore)
	if !ok {
		return 0, fmt.Errorf("foreign semaphore %T", signal)
	}
	sc.mu.Lock()
	if sc.destroyed {
		sc.mu.Unlock()
		dev.misused("acquire from a destroyed swapchain")
		return 0, inflight.ErrOutOfDate
	}
	outOfDate, suboptimal := sc.stale()
	if outOfDate {
		sc.mu.Unlock()
		return 0, inflight.ErrOutOfDate
	}
	idx := uint32(sc.next)
	sc.next = (sc.next + 1) % len(sc.images)
	sc.mu.Unlock()

	sem.signal()
	if suboptimal {
		return idx, inflight.ErrSuboptimal
	}
	return idx, nil
}

// Present queues the image on q behind wait. The wait is consumed even when
// the swapchain is out of date.
func (sc *Swapchain) Present(q inflight.Queue, index uint32, wait inflight.Semaphore) error {
	sq, ok := q.(*Queue)
	if !ok {
		return fmt.Errorf("foreign queue %T", q)
	}
	sem, ok := wait.(*Semaphore)
	if !ok {
		return fmt.Errorf("foreign semaphore %T", wait)
	}
	if sq.dev.isLost() {
		return inflight.ErrDeviceLost
	}
	if int(index) >= len(sc.images) {
		return fmt.Errorf("present of image %d from a swapchain of %d", index, len(sc.images))
	}
	outOfDate, _ := sc.stale()

	sc.mu.Lock()
	sc.pending++
	sc.mu.Unlock()
	err := sq.enqueue(&item{
		batches: []batch{{waits: []*Semaphore{sem}}},
		present: func() {
			sc.mu.Lock()
			sc.pending--
			if !outOfDate {
				sc.presented++
			}
			sc.mu.Unlock()
		},
	})
	if err != nil {
		return err
	}
	if outOfDate {
		return inflight.ErrOutOfDate
	}
	return nil
}

func (sc *Swapchain) Destroy() {
	dev := sc.surface.dev
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if sc.destroyed {
		dev.misused("swapchain destroyed twice")
		return
	}
	if sc.pending > 0 {
		dev.misused("swapchain destroyed with %d presents pending", sc.pending)
	}
	sc.destroyed = true
	dev.track("swapchain", -1)
}
