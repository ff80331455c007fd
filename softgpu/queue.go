package softgpu

import (
	"fmt"
	"sync"

	"github.com/celer/inflight"
	"golang.org/x/sync/errgroup"
)

const queueDepth = 256

type batch struct {
	waits   []*Semaphore
	ops     []*op
	signals []*Semaphore
}

// item is one unit of queue work: a submission, a present or an idle marker.
type item struct {
	batches []batch
	fence   *Fence
	cbs     []*CommandBuffer
	res     []*Resource
	present func()
	marker  chan struct{}
}

// Queue executes submissions in order on its own goroutine.
type Queue struct {
	dev    *Device
	family int
	caps   inflight.QueueCaps

	mu      sync.Mutex
	closed  bool
	work    chan *item
	done    chan struct{}
	segment []*op
}

func newQueue(d *Device, family int, caps inflight.QueueCaps) *Queue {
	q := &Queue{
		dev:    d,
		family: family,
		caps:   caps,
		work:   make(chan *item, queueDepth),
		done:   make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *Queue) Family() int {
	return q.family
}

func (q *Queue) Caps() inflight.QueueCaps {
	return q.caps
}

func (q *Queue) String() string {
	return fmt.Sprintf("queue(family %d, %s)", q.family, q.caps)
}

func (q *Queue) Submit(batches []inflight.Batch, fence inflight.Fence) error {
	if q.dev.isLost() {
		return inflight.ErrDeviceLost
	}
	it := &item{}
	for _, b := range batches {
		var sb batch
		for _, w := range b.Waits {
			s, ok := w.Semaphore.(*Semaphore)
			if !ok {
				q.unwind(it)
				return fmt.Errorf("foreign semaphore %T", w.Semaphore)
			}
			sb.waits = append(sb.waits, s)
		}
		for _, c := range b.Commands {
			cb, ok := c.(*CommandBuffer)
			if !ok {
				q.unwind(it)
				return fmt.Errorf("foreign command buffer %T", c)
			}
			if cb.queue.family != q.family {
				q.unwind(it)
				return fmt.Errorf("command buffer for family %d submitted to family %d", cb.queue.family, q.family)
			}
			ops, err := cb.submitted()
			if err != nil {
				q.unwind(it)
				return err
			}
			it.cbs = append(it.cbs, cb)
			sb.ops = append(sb.ops, ops...)
		}
		for _, s := range b.Signals {
			ss, ok := s.(*Semaphore)
			if !ok {
				q.unwind(it)
				return fmt.Errorf("foreign semaphore %T", s)
			}
			sb.signals = append(sb.signals, ss)
		}
		it.batches = append(it.batches, sb)
	}
	if fence != nil {
		f, ok := fence.(*Fence)
		if !ok {
			q.unwind(it)
			return fmt.Errorf("foreign fence %T", fence)
		}
		if !f.arm() {
			q.unwind(it)
			return fmt.Errorf("fence submitted while signalled or pending")
		}
		it.fence = f
	}
	for _, b := range it.batches {
		for _, o := range b.ops {
			for _, r := range append(append(resources{}, o.reads...), o.writes...) {
				r.retain()
				it.res = append(it.res, r)
			}
		}
	}
	return q.enqueue(it)
}

func (q *Queue) unwind(it *item) {
	for _, cb := range it.cbs {
		cb.completed()
	}
}

func (q *Queue) enqueue(it *item) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.finish(it)
		return inflight.ErrClosed
	}
	q.work <- it
	return nil
}

// WaitIdle blocks until everything submitted before the call has executed.
func (q *Queue) WaitIdle() error {
	if q.dev.isLost() {
		return inflight.ErrDeviceLost
	}
	marker := make(chan struct{})
	if err := q.enqueue(&item{marker: marker}); err != nil {
		return err
	}
	select {
	case <-marker:
		return nil
	case <-q.dev.lostCh:
		return inflight.ErrDeviceLost
	}
}

func (q *Queue) stop() {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.work)
	}
	q.mu.Unlock()
	<-q.done
}

func (q *Queue) run() {
	defer close(q.done)
	for it := range q.work {
		if q.dev.isLost() {
			q.finish(it)
			continue
		}
		q.execute(it)
	}
}

// execute runs one item. Command buffers and resources are released before
// the fence signals, so a host waiting on the fence may reuse them at once.
func (q *Queue) execute(it *item) {
	if it.marker != nil {
		q.flush()
		close(it.marker)
		return
	}
	for _, b := range it.batches {
		if len(b.waits) > 0 {
			q.flush()
		}
		for _, s := range b.waits {
			if err := s.wait(); err != nil {
				q.finish(it)
				return
			}
		}
		for _, o := range b.ops {
			switch o.kind {
			case opRun:
				q.segment = append(q.segment, o)
			case opJoin:
				q.flush()
			case opBarrier:
				q.flush()
				q.transfer(o.barrier)
			}
		}
		if len(b.signals) > 0 {
			q.flush()
		}
		for _, s := range b.signals {
			s.signal()
		}
	}
	q.flush()
	q.finish(it)
	if it.present != nil {
		it.present()
	}
	if it.fence != nil {
		it.fence.signal()
	}
}

func (q *Queue) finish(it *item) {
	for _, cb := range it.cbs {
		cb.completed()
	}
	for _, r := range it.res {
		r.release()
	}
	it.cbs, it.res = nil, nil
}

// flush runs the current segment: one goroutine per pass, ops of a pass in
// recording order.
func (q *Queue) flush() {
	seg := q.segment
	q.segment = nil
	if len(seg) == 0 {
		return
	}
	q.dev.checkSegment(q.family, seg)

	var order []string
	byPass := map[string][]*op{}
	for _, o := range seg {
		if _, ok := byPass[o.pass]; !ok {
			order = append(order, o.pass)
		}
		byPass[o.pass] = append(byPass[o.pass], o)
	}
	var g errgroup.Group
	for _, name := range order {
		ops := byPass[name]
		g.Go(func() error {
			for _, o := range ops {
				if err := o.run(q.family); err != nil {
					return fmt.Errorf("pass %s: %w", o.pass, err)
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		q.dev.misused("%v", err)
	}
}

// transfer applies the queue family ownership half a barrier carries.
func (q *Queue) transfer(b inflight.Barrier) {
	apply := func(res inflight.Resource, src, dst int) {
		r, ok := res.(*Resource)
		if !ok || src == dst || src == inflight.QueueFamilyIgnored || dst == inflight.QueueFamilyIgnored {
			return
		}
		switch q.family {
		case src:
			r.releaseTo(dst)
		case dst:
			r.acquireBy(dst)
		}
	}
	for _, ib := range b.Images {
		apply(ib.Resource, ib.SrcFamily, ib.DstFamily)
	}
	for _, bb := range b.Buffers {
		apply(bb.Resource, bb.SrcFamily, bb.DstFamily)
	}
}
