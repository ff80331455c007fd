package softgpu

import (
	"fmt"
	"sync"

	"github.com/celer/inflight"
)

const noFamily = -1

// Resource is a simulated image or buffer holding a single value. Exclusive
// resources belong to one queue family at a time.
type Resource struct {
	dev       *Device
	name      string
	kind      inflight.ResourceKind
	exclusive bool
	tracked   string

	mu           sync.Mutex
	value        int64
	owner        int
	pendingOwner int
	inUse        int
	destroyed    bool
}

// NewImage creates an exclusive image.
func (d *Device) NewImage(name string) *Resource {
	return d.newResource(name, inflight.KindImage, true, "image")
}

// NewBuffer creates an exclusive buffer.
func (d *Device) NewBuffer(name string) *Resource {
	return d.newResource(name, inflight.KindBuffer, true, "buffer")
}

// NewConcurrentImage creates an image shared by all queue families.
func (d *Device) NewConcurrentImage(name string) *Resource {
	return d.newResource(name, inflight.KindImage, false, "image")
}

func (d *Device) newResource(name string, kind inflight.ResourceKind, exclusive bool, tracked string) *Resource {
	if tracked != "" {
		d.track(tracked, 1)
	}
	return &Resource{dev: d, name: name, kind: kind, exclusive: exclusive, tracked: tracked, owner: noFamily, pendingOwner: noFamily}
}

func (r *Resource) Name() string {
	return r.name
}

func (r *Resource) Kind() inflight.ResourceKind {
	return r.kind
}

func (r *Resource) String() string {
	return fmt.Sprintf("%s(%s)", r.kind, r.name)
}

// Value reads the current contents from the host.
func (r *Resource) Value() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

// SetValue writes the contents from the host.
func (r *Resource) SetValue(v int64) {
	r.mu.Lock()
	r.value = v
	r.mu.Unlock()
}

// Owner is the queue family that owns the resource, or -1.
func (r *Resource) Owner() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.owner
}

// Destroy releases the resource. Destroying a resource referenced by
// pending work is recorded as misuse.
func (r *Resource) Destroy() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.destroyed {
		r.dev.misused("%s destroyed twice", r)
		return
	}
	if r.inUse > 0 {
		r.dev.misused("%s destroyed while in use by %d pending commands", r, r.inUse)
	}
	r.destroyed = true
	if r.tracked != "" {
		r.dev.track(r.tracked, -1)
	}
}

func (r *Resource) retain() {
	r.mu.Lock()
	if r.destroyed {
		r.dev.misused("%s submitted after destruction", r)
	}
	r.inUse++
	r.mu.Unlock()
}

func (r *Resource) release() {
	r.mu.Lock()
	r.inUse--
	r.mu.Unlock()
}

func (r *Resource) load() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.value
}

func (r *Resource) store(v int64) {
	r.mu.Lock()
	r.value = v
	r.mu.Unlock()
}

// touch checks queue family ownership for an access from family. A write
// that discards the contents moves ownership without a transfer.
func (r *Resource) touch(family int, pass string, read bool) {
	if !r.exclusive {
		return
	}
	r.mu.Lock()
	owner := r.owner
	if owner == noFamily || !read {
		r.owner = family
	}
	r.mu.Unlock()
	if read && owner != noFamily && owner != family {
		r.dev.hazard(Hazard{
			Kind:     HazardOwnership,
			Resource: r.name,
			First:    fmt.Sprintf("family %d", owner),
			Second:   pass,
			Family:   family,
		})
	}
}

func (r *Resource) releaseTo(family int) {
	r.mu.Lock()
	r.pendingOwner = family
	r.mu.Unlock()
}

func (r *Resource) acquireBy(family int) {
	r.mu.Lock()
	r.owner = family
	r.pendingOwner = noFamily
	r.mu.Unlock()
}

// HostBuffer is host memory the device can read while executing commands.
type HostBuffer struct {
	dev       *Device
	mu        sync.Mutex
	data      []byte
	flushes   int
	destroyed bool
}

func (h *HostBuffer) Bytes() []byte {
	return h.data
}

func (h *HostBuffer) Flush(offset, size uint64) error {
	if offset+size > uint64(len(h.data)) {
		return fmt.Errorf("flush [%d,%d) outside buffer of %d bytes", offset, offset+size, len(h.data))
	}
	h.mu.Lock()
	h.flushes++
	h.mu.Unlock()
	return nil
}

// Flushes counts Flush calls.
func (h *HostBuffer) Flushes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushes
}

func (h *HostBuffer) Destroy() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.destroyed {
		h.dev.misused("host buffer destroyed twice")
		return
	}
	h.destroyed = true
	h.dev.track("hostbuffer", -1)
}
