// Package softgpu is a software device for the inflight engine. Queues are
// goroutines that execute submissions in order; fences, binary semaphores,
// host buffers and swapchains behave like their Vulkan counterparts. Work
// recorded between two synchronization points runs concurrently, one
// goroutine per pass, and conflicting accesses inside such a span are
// recorded as hazards.
package softgpu

import (
	"fmt"
	"sort"
	"sync"

	"github.com/celer/inflight"
)

// Device is a simulated GPU.
type Device struct {
	mu          sync.Mutex
	live        map[string]int
	misuse      []error
	hazards     []Hazard
	hazardSeen  map[string]bool
	inFlight    int
	maxInFlight int
	queues      []*Queue
	lost        bool
	lostCh      chan struct{}
	closed      bool
	nextID      int
	draws       int
	indices     uint64
}

// New creates a device with no queues.
func New() *Device {
	return &Device{
		live:       map[string]int{},
		hazardSeen: map[string]bool{},
		lostCh:     make(chan struct{}),
	}
}

// NewQueue adds a queue of the given family. Two queues may share a family.
func (d *Device) NewQueue(family int, caps inflight.QueueCaps) *Queue {
	q := newQueue(d, family, caps)
	d.mu.Lock()
	d.queues = append(d.queues, q)
	d.mu.Unlock()
	return q
}

func (d *Device) NewFence(signaled bool) (inflight.Fence, error) {
	if d.isLost() {
		return nil, inflight.ErrDeviceLost
	}
	f := &Fence{dev: d, ch: make(chan struct{})}
	if signaled {
		f.signaled = true
		close(f.ch)
	}
	d.track("fence", 1)
	return f, nil
}

func (d *Device) NewSemaphore() (inflight.Semaphore, error) {
	if d.isLost() {
		return nil, inflight.ErrDeviceLost
	}
	s := &Semaphore{dev: d, id: d.id(), ch: make(chan struct{}, 1)}
	d.track("semaphore", 1)
	return s, nil
}

func (d *Device) NewCommandBuffer(q inflight.Queue) (inflight.CommandBuffer, error) {
	sq, ok := q.(*Queue)
	if !ok || sq.dev != d {
		return nil, fmt.Errorf("queue %v does not belong to this device", q)
	}
	d.track("commandbuffer", 1)
	return &CommandBuffer{dev: d, queue: sq}, nil
}

func (d *Device) NewHostBuffer(size uint64) (inflight.HostBuffer, error) {
	if d.isLost() {
		return nil, inflight.ErrDeviceLost
	}
	d.track("hostbuffer", 1)
	return &HostBuffer{dev: d, data: make([]byte, size)}, nil
}

// WaitIdle waits until every queue has drained.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	qs := append([]*Queue(nil), d.queues...)
	d.mu.Unlock()
	for _, q := range qs {
		if err := q.WaitIdle(); err != nil {
			return err
		}
	}
	return nil
}

// Lose simulates VK_ERROR_DEVICE_LOST. Pending work is dropped and every
// later wait fails.
func (d *Device) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.lost {
		d.lost = true
		close(d.lostCh)
	}
}

// Close stops the queue goroutines. The device must be idle.
func (d *Device) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	qs := d.queues
	d.mu.Unlock()
	for _, q := range qs {
		q.stop()
	}
}

func (d *Device) isLost() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.lost
}

func (d *Device) id() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.nextID++
	return d.nextID
}

func (d *Device) track(kind string, delta int) {
	d.mu.Lock()
	d.live[kind] += delta
	d.mu.Unlock()
}

func (d *Device) misused(format string, args ...any) {
	err := fmt.Errorf(format, args...)
	d.mu.Lock()
	d.misuse = append(d.misuse, err)
	d.mu.Unlock()
}

func (d *Device) fenceSubmitted() {
	d.mu.Lock()
	d.inFlight++
	if d.inFlight > d.maxInFlight {
		d.maxInFlight = d.inFlight
	}
	d.mu.Unlock()
}

func (d *Device) fenceSignalled() {
	d.mu.Lock()
	d.inFlight--
	d.mu.Unlock()
}

func (d *Device) drew(indices uint32) {
	d.mu.Lock()
	d.draws++
	d.indices += uint64(indices)
	d.mu.Unlock()
}

// Draws returns the number of indexed draws executed and their total index
// count.
func (d *Device) Draws() (int, uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.draws, d.indices
}

// Live returns the number of live objects per kind.
func (d *Device) Live() map[string]int {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make(map[string]int, len(d.live))
	for k, v := range d.live {
		out[k] = v
	}
	return out
}

// Leaks lists kinds with live objects, sorted.
func (d *Device) Leaks() []string {
	var out []string
	for k, v := range d.Live() {
		if v != 0 {
			out = append(out, fmt.Sprintf("%s=%d", k, v))
		}
	}
	sort.Strings(out)
	return out
}

// Misuse returns API misuse detected so far: double destruction, destroying
// objects the GPU still uses, signalling a signalled semaphore.
func (d *Device) Misuse() []error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]error(nil), d.misuse...)
}

// MaxInFlight is the largest number of fenced submissions observed pending
// at once.
func (d *Device) MaxInFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.maxInFlight
}

// InFlight is the number of fenced submissions pending now.
func (d *Device) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.inFlight
}
