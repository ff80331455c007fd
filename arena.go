package inflight

import (
	"fmt"
	"sort"
)

// Allocation is a range inside an arena's host buffer. Offset is relative to
// the start of the buffer, not the arena.
type Allocation struct {
	Offset uint64
	Size   uint64
}

func (a *Allocation) String() string {
	return fmt.Sprintf("[%d %d]", a.Offset, a.Size)
}

// Arena hands out aligned ranges of one slot's share of a host buffer. Every
// range is released when the slot is reused, so nothing written by the CPU
// for frame k can be seen by frame k+N.
type Arena struct {
	buf    HostBuffer
	base   uint64
	size   uint64
	align  uint64
	allocs []*Allocation
}

func newArena(buf HostBuffer, base, size, align uint64) *Arena {
	if align == 0 {
		align = 1
	}
	return &Arena{buf: buf, base: base, size: size, align: align}
}

func alignUp(a uint64, align uint64) uint64 {
	m := a % align
	if m == 0 {
		return a
	}
	return a - m + align
}

// Allocate returns the first aligned gap that fits size bytes.
func (a *Arena) Allocate(size uint64) (*Allocation, error) {
	if size == 0 {
		return nil, fmt.Errorf("zero sized allocation")
	}
	end := a.base + a.size
	at := a.base
	for i, c := range a.allocs {
		if at+size <= c.Offset {
			na := &Allocation{Offset: at, Size: size}
			a.allocs = append(a.allocs[:i], append([]*Allocation{na}, a.allocs[i:]...)...)
			return na, nil
		}
		at = alignUp(c.Offset+c.Size, a.align)
	}
	if at+size > end {
		return nil, fmt.Errorf("%w: %d bytes requested, %d of %d used", ErrArenaFull, size, a.Used(), a.size)
	}
	na := &Allocation{Offset: at, Size: size}
	a.allocs = append(a.allocs, na)
	return na, nil
}

// Write allocates len(data) bytes and copies data into them.
func (a *Arena) Write(data []byte) (*Allocation, error) {
	al, err := a.Allocate(uint64(len(data)))
	if err != nil {
		return nil, err
	}
	copy(a.Bytes(al), data)
	return al, nil
}

// Free releases one allocation before the slot is reused.
func (a *Arena) Free(fa *Allocation) {
	i := sort.Search(len(a.allocs), func(i int) bool { return a.allocs[i].Offset >= fa.Offset })
	if i < len(a.allocs) && a.allocs[i] == fa {
		a.allocs = append(a.allocs[:i], a.allocs[i+1:]...)
	}
}

// Reset releases every allocation.
func (a *Arena) Reset() {
	a.allocs = a.allocs[:0]
}

// Bytes returns the mapped memory behind al.
func (a *Arena) Bytes(al *Allocation) []byte {
	return a.buf.Bytes()[al.Offset : al.Offset+al.Size]
}

// Flush makes host writes to the whole arena visible to the device.
func (a *Arena) Flush() error {
	if a.buf == nil {
		return nil
	}
	return a.buf.Flush(a.base, a.size)
}

// Buffer is the host buffer the arena lives in.
func (a *Arena) Buffer() HostBuffer {
	return a.buf
}

// Base is the arena's first byte inside Buffer.
func (a *Arena) Base() uint64 {
	return a.base
}

// Cap is the arena size in bytes.
func (a *Arena) Cap() uint64 {
	return a.size
}

// Used is the sum of live allocation sizes.
func (a *Arena) Used() uint64 {
	var n uint64
	for _, al := range a.allocs {
		n += al.Size
	}
	return n
}

func (a *Arena) String() string {
	return fmt.Sprintf("%v", a.allocs)
}
