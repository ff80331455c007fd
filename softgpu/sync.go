package softgpu

import (
	"sync"
	"time"

	"github.com/celer/inflight"
)

// Fence is signalled by the queue once a submission completes.
type Fence struct {
	dev       *Device
	mu        sync.Mutex
	signaled  bool
	pending   bool
	destroyed bool
	ch        chan struct{}
}

func (f *Fence) Wait(timeout time.Duration) error {
	if f.dev.isLost() {
		return inflight.ErrDeviceLost
	}
	f.mu.Lock()
	if f.signaled {
		f.mu.Unlock()
		return nil
	}
	ch := f.ch
	f.mu.Unlock()

	var expired <-chan time.Time
	if timeout != inflight.WaitForever {
		t := time.NewTimer(timeout)
		defer t.Stop()
		expired = t.C
	}
	select {
	case <-ch:
		return nil
	case <-f.dev.lostCh:
		return inflight.ErrDeviceLost
	case <-expired:
		return inflight.ErrTimeout
	}
}

func (f *Fence) Reset() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending {
		f.dev.misused("fence reset while its submission is pending")
		return nil
	}
	if f.signaled {
		f.signaled = false
		f.ch = make(chan struct{})
	}
	return nil
}

func (f *Fence) Signaled() (bool, error) {
	if f.dev.isLost() {
		return false, inflight.ErrDeviceLost
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.signaled, nil
}

func (f *Fence) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.destroyed {
		f.dev.misused("fence destroyed twice")
		return
	}
	if f.pending {
		f.dev.misused("fence destroyed while its submission is pending")
	}
	f.destroyed = true
	f.dev.track("fence", -1)
}

// arm is called at submit time.
func (f *Fence) arm() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.signaled || f.pending {
		f.dev.misused("fence submitted while signalled or pending")
		return false
	}
	f.pending = true
	f.dev.fenceSubmitted()
	return true
}

func (f *Fence) signal() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pending {
		f.pending = false
		f.dev.fenceSignalled()
	}
	if !f.signaled {
		f.signaled = true
		close(f.ch)
	}
}

// Semaphore is a binary semaphore: at most one pending signal.
type Semaphore struct {
	dev       *Device
	id        int
	ch        chan struct{}
	mu        sync.Mutex
	destroyed bool
}

func (s *Semaphore) Destroy() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.destroyed {
		s.dev.misused("semaphore %d destroyed twice", s.id)
		return
	}
	s.destroyed = true
	s.dev.track("semaphore", -1)
}

// Pending reports whether a signal is waiting to be consumed.
func (s *Semaphore) Pending() bool {
	return len(s.ch) > 0
}

func (s *Semaphore) signal() {
	select {
	case s.ch <- struct{}{}:
	default:
		s.dev.misused("semaphore %d signalled while already signalled", s.id)
	}
}

func (s *Semaphore) wait() error {
	select {
	case <-s.ch:
		return nil
	case <-s.dev.lostCh:
		return inflight.ErrDeviceLost
	}
}
