package inflight

import (
	"math"
	"time"
)

// DefaultFenceTimeout is how long a gate waits before the device is assumed hung.
const DefaultFenceTimeout = 100 * time.Second

// WaitForever disables the gate timeout. Backends map it to UINT64_MAX.
const WaitForever time.Duration = math.MaxInt64

// Gate is a Completion Gate: a fence created signalled so that the first wait
// on a fresh slot returns at once.
type Gate struct {
	fence   Fence
	timeout time.Duration
}

// NewGate creates a signalled gate.
func NewGate(dev Device, timeout time.Duration) (*Gate, error) {
	f, err := dev.NewFence(true)
	if err != nil {
		return nil, err
	}
	if timeout <= 0 {
		timeout = DefaultFenceTimeout
	}
	return &Gate{fence: f, timeout: timeout}, nil
}

// Fence returns the fence to attach to the frame's last submission.
func (g *Gate) Fence() Fence {
	return g.fence
}

// Wait blocks until the gate is signalled. It does not reset it.
func (g *Gate) Wait() error {
	return g.fence.Wait(g.timeout)
}

// WaitAndReset blocks until the gate is signalled and then unsignals it,
// returning how long the host was blocked.
func (g *Gate) WaitAndReset() (time.Duration, error) {
	start := time.Now()
	if err := g.fence.Wait(g.timeout); err != nil {
		return time.Since(start), err
	}
	waited := time.Since(start)
	return waited, g.fence.Reset()
}

// Signaled polls the gate without blocking.
func (g *Gate) Signaled() bool {
	ok, err := g.fence.Signaled()
	return err == nil && ok
}

func (g *Gate) Destroy() {
	g.fence.Destroy()
}
