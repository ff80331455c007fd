package softgpu

import (
	"fmt"
	"sync"
	"time"

	"github.com/celer/inflight"
)

type opKind int

const (
	opRun opKind = iota
	opBarrier
	opJoin
)

type resources []*Resource

func (rs resources) has(r *Resource) bool {
	for _, x := range rs {
		if x == r {
			return true
		}
	}
	return false
}

// op is one recorded command.
type op struct {
	kind    opKind
	pass    string
	reads   resources
	writes  resources
	barrier inflight.Barrier
	fn      func() error
}

func (o *op) touches(r *Resource) bool {
	return o.reads.has(r) || o.writes.has(r)
}

// run executes the op on a queue of the given family.
func (o *op) run(family int) error {
	for _, r := range o.reads {
		r.touch(family, o.pass, true)
	}
	for _, r := range o.writes {
		if !o.reads.has(r) {
			r.touch(family, o.pass, false)
		}
	}
	if o.fn == nil {
		return nil
	}
	return o.fn()
}

type cbState int

const (
	cbInitial cbState = iota
	cbRecording
	cbExecutable
)

// CommandBuffer records simulated work. Commands recorded under the same
// label run in order; commands under different labels may run concurrently
// unless a barrier, subpass dependency or semaphore separates them.
type CommandBuffer struct {
	dev   *Device
	queue *Queue

	mu        sync.Mutex
	state     cbState
	pending   int
	destroyed bool
	label     string
	ops       []*op
	group     *inflight.SubpassGroup
	subpass   int
}

func (cb *CommandBuffer) Begin() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.pending > 0 {
		cb.dev.misused("command buffer recorded while pending")
		return fmt.Errorf("command buffer is pending")
	}
	if cb.state == cbRecording {
		return fmt.Errorf("command buffer is already recording")
	}
	cb.state = cbRecording
	cb.ops = nil
	cb.label = "commands"
	cb.group = nil
	return nil
}

func (cb *CommandBuffer) End() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != cbRecording {
		return fmt.Errorf("command buffer is not recording")
	}
	if cb.group != nil {
		return fmt.Errorf("render pass %s still open", cb.group.Name)
	}
	cb.state = cbExecutable
	return nil
}

func (cb *CommandBuffer) Reset() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.pending > 0 {
		cb.dev.misused("command buffer reset while pending")
		return nil
	}
	cb.state = cbInitial
	cb.ops = nil
	cb.group = nil
	return nil
}

func (cb *CommandBuffer) Label(name string) {
	cb.mu.Lock()
	cb.label = name
	cb.mu.Unlock()
}

func (cb *CommandBuffer) PipelineBarrier(b inflight.Barrier) {
	cb.record(&op{kind: opBarrier, barrier: b})
}

func (cb *CommandBuffer) BeginRenderPass(g *inflight.SubpassGroup) error {
	cb.mu.Lock()
	if cb.group != nil {
		cb.mu.Unlock()
		return fmt.Errorf("render pass %s already open", cb.group.Name)
	}
	cb.group = g
	cb.subpass = 0
	cb.mu.Unlock()
	if externalDependency(g, true) {
		cb.record(&op{kind: opJoin})
	}
	return nil
}

func (cb *CommandBuffer) NextSubpass() {
	cb.mu.Lock()
	g := cb.group
	cb.subpass++
	next := cb.subpass
	cb.mu.Unlock()
	if g != nil && g.Joined(next) {
		cb.record(&op{kind: opJoin})
	}
}

func (cb *CommandBuffer) EndRenderPass() {
	cb.mu.Lock()
	g := cb.group
	cb.group = nil
	cb.mu.Unlock()
	if g != nil && externalDependency(g, false) {
		cb.record(&op{kind: opJoin})
	}
}

func externalDependency(g *inflight.SubpassGroup, in bool) bool {
	for _, d := range g.Dependencies {
		if in && d.Src == inflight.SubpassExternal {
			return true
		}
		if !in && d.Dst == inflight.SubpassExternal {
			return true
		}
	}
	return false
}

func (cb *CommandBuffer) Destroy() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.destroyed {
		cb.dev.misused("command buffer destroyed twice")
		return
	}
	if cb.pending > 0 {
		cb.dev.misused("command buffer destroyed while pending")
	}
	cb.destroyed = true
	cb.dev.track("commandbuffer", -1)
}

func (cb *CommandBuffer) record(o *op) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.state != cbRecording {
		cb.dev.misused("command recorded outside Begin/End")
		return
	}
	o.pass = cb.label
	cb.ops = append(cb.ops, o)
}

// Write stores value into res after delay.
func (cb *CommandBuffer) Write(res *Resource, value int64, delay time.Duration) {
	cb.record(&op{writes: resources{res}, fn: func() error {
		sleep(delay)
		res.store(value)
		return nil
	}})
}

// Transform reads srcs, waits delay, then stores fn of their values in dst.
func (cb *CommandBuffer) Transform(dst *Resource, srcs []*Resource, fn func(in []int64) int64, delay time.Duration) {
	cb.record(&op{reads: srcs, writes: resources{dst}, fn: func() error {
		in := make([]int64, len(srcs))
		for i, s := range srcs {
			in[i] = s.load()
		}
		sleep(delay)
		dst.store(fn(in))
		return nil
	}})
}

// Read passes the value of res to fn when the command executes.
func (cb *CommandBuffer) Read(res *Resource, fn func(v int64)) {
	cb.record(&op{reads: resources{res}, fn: func() error {
		fn(res.load())
		return nil
	}})
}

// ReadHost waits delay and then passes a copy of host memory to fn.
func (cb *CommandBuffer) ReadHost(buf inflight.HostBuffer, offset, size uint64, delay time.Duration, fn func(b []byte)) {
	cb.record(&op{fn: func() error {
		sleep(delay)
		data := buf.Bytes()
		if offset+size > uint64(len(data)) {
			return fmt.Errorf("host read [%d,%d) outside buffer of %d bytes", offset, offset+size, len(data))
		}
		out := make([]byte, size)
		copy(out, data[offset:offset+size])
		fn(out)
		return nil
	}})
}

// Sleep keeps the current pass busy for d.
func (cb *CommandBuffer) Sleep(d time.Duration) {
	cb.record(&op{fn: func() error {
		sleep(d)
		return nil
	}})
}

// Func runs fn as a command that reads and writes the given resources.
func (cb *CommandBuffer) Func(reads, writes []*Resource, fn func() error) {
	cb.record(&op{reads: reads, writes: writes, fn: fn})
}

// SetScissor is accepted and ignored.
func (cb *CommandBuffer) SetScissor(x, y int32, width, height uint32) {}

// DrawIndexed reads indexCount indices of 16 bits from buf at indexOffset
// when it executes and counts the draw.
func (cb *CommandBuffer) DrawIndexed(buf inflight.HostBuffer, vertexOffset, indexOffset uint64, indexCount, firstIndex uint32) {
	cb.record(&op{fn: func() error {
		end := indexOffset + uint64(firstIndex+indexCount)*2
		if end > uint64(len(buf.Bytes())) || vertexOffset > uint64(len(buf.Bytes())) {
			return fmt.Errorf("draw reads [%d,%d) outside buffer of %d bytes", indexOffset, end, len(buf.Bytes()))
		}
		cb.dev.drew(indexCount)
		return nil
	}})
}

func sleep(d time.Duration) {
	if d > 0 {
		time.Sleep(d)
	}
}

// submitted snapshots the recorded ops and marks the buffer pending.
func (cb *CommandBuffer) submitted() ([]*op, error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	if cb.destroyed {
		cb.dev.misused("destroyed command buffer submitted")
		return nil, fmt.Errorf("command buffer destroyed")
	}
	if cb.state != cbExecutable {
		return nil, fmt.Errorf("command buffer is not executable")
	}
	if cb.pending > 0 {
		cb.dev.misused("command buffer submitted while pending")
	}
	cb.pending++
	return append([]*op(nil), cb.ops...), nil
}

func (cb *CommandBuffer) completed() {
	cb.mu.Lock()
	cb.pending--
	cb.mu.Unlock()
}
