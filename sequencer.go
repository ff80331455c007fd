package inflight

import (
	"fmt"
)

// Work is one queue submission within a frame. Works are submitted in slice
// order; a ticket's producer must come before its consumer.
type Work struct {
	Name     string
	Queue    Queue
	Commands []CommandBuffer
	// Signals are tickets this work produces.
	Signals []*Ticket
	// Waits are tickets this work consumes.
	Waits []*Ticket
	// Swapchain marks work that renders to or reads the acquired image.
	Swapchain bool
}

// submitCall is one Queue.Submit invocation.
type submitCall struct {
	queue   Queue
	batches []Batch
	fence   Fence
}

type planInput struct {
	works          []Work
	frame          uint64
	queue          Queue
	fence          Fence
	acquired       bool
	imageAvailable Semaphore
	renderFinished Semaphore
	semaphore      func() (Semaphore, error)
}

// Submit hands the frame's work to the queues. It wires ticket semaphores,
// swapchain semaphores and the slot fence so that the fence only signals
// once every submission of the frame has completed.
func (f *Frame[T]) Submit(works ...Work) error {
	if f.ring.open != f {
		return ErrNoActiveFrame
	}
	if f.submitted {
		return fmt.Errorf("frame %d already submitted: %w", f.Index, ErrFrameActive)
	}
	calls, err := planSubmissions(planInput{
		works:          works,
		frame:          f.Index,
		queue:          f.ring.queue,
		fence:          f.Slot.gate.Fence(),
		acquired:       f.acquired,
		imageAvailable: f.Slot.imageAvailable,
		renderFinished: f.Slot.renderFinished,
		semaphore:      f.Slot.semaphore,
	})
	if err != nil {
		if IsFatal(err) {
			return deviceError("plan submissions", f.Index, f.Slot.Index, err)
		}
		return err
	}
	for _, c := range calls {
		if err := c.queue.Submit(c.batches, c.fence); err != nil {
			return deviceError("queue submit", f.Index, f.Slot.Index, err)
		}
		if c.fence != nil {
			f.Slot.armed = true
		}
		Logger().Debug("submit", "frame", f.Index, "family", c.queue.Family(),
			"batches", len(c.batches), "fence", c.fence != nil)
	}
	f.submitted = true
	for _, w := range works {
		for _, t := range w.Waits {
			t.state = TicketReadable
		}
	}
	return nil
}

// planSubmissions turns a frame's works into queue submissions.
func planSubmissions(in planInput) ([]submitCall, error) {
	producer := map[*Ticket]int{}
	consumer := map[*Ticket]int{}
	for i, w := range in.works {
		if w.Queue == nil {
			return nil, fmt.Errorf("work %q has no queue", w.Name)
		}
		for _, t := range w.Signals {
			if t.frame != in.frame {
				return nil, fmt.Errorf("ticket %s belongs to frame %d, not %d: %w", t.Name, t.frame, in.frame, ErrTicketState)
			}
			if t.Producer != w.Queue {
				return nil, fmt.Errorf("ticket %s produced on the wrong queue by %q: %w", t.Name, w.Name, ErrTicketState)
			}
			if _, dup := producer[t]; dup {
				return nil, fmt.Errorf("ticket %s signalled twice: %w", t.Name, ErrTicketState)
			}
			producer[t] = i
		}
		for _, t := range w.Waits {
			if t.frame != in.frame {
				return nil, fmt.Errorf("ticket %s belongs to frame %d, not %d: %w", t.Name, t.frame, in.frame, ErrTicketState)
			}
			if t.Consumer != w.Queue {
				return nil, fmt.Errorf("ticket %s consumed on the wrong queue by %q: %w", t.Name, w.Name, ErrTicketState)
			}
			if _, dup := consumer[t]; dup {
				return nil, fmt.Errorf("ticket %s waited twice: %w", t.Name, ErrTicketState)
			}
			consumer[t] = i
		}
	}
	for t, c := range consumer {
		p, ok := producer[t]
		if !ok {
			return nil, fmt.Errorf("ticket %s has no producer: %w", t.Name, ErrTicketState)
		}
		if p >= c {
			return nil, fmt.Errorf("ticket %s: %q before %q: %w", t.Name, in.works[c].Name, in.works[p].Name, ErrEdgeOrder)
		}
	}
	for t := range producer {
		if _, ok := consumer[t]; !ok {
			return nil, fmt.Errorf("ticket %s has no consumer: %w", t.Name, ErrTicketState)
		}
	}

	type entry struct {
		queue Queue
		batch Batch
	}
	entries := make([]entry, 0, len(in.works)+1)
	firstSwap, lastSwap := -1, -1
	for i, w := range in.works {
		if w.Swapchain {
			if firstSwap < 0 {
				firstSwap = i
			}
			lastSwap = i
		}
	}
	for i, w := range in.works {
		b := Batch{Commands: w.Commands}
		if in.acquired && i == firstSwap {
			b.Waits = append(b.Waits, SemaphoreWait{Semaphore: in.imageAvailable, Stage: StageColorAttachmentOutput})
		}
		for _, t := range w.Waits {
			if t.sem != nil {
				b.Waits = append(b.Waits, SemaphoreWait{Semaphore: t.sem, Stage: t.Stage})
			}
		}
		for _, t := range w.Signals {
			if t.sem != nil {
				b.Signals = append(b.Signals, t.sem)
			}
		}
		if in.acquired && i == lastSwap {
			b.Signals = append(b.Signals, in.renderFinished)
		}
		entries = append(entries, entry{queue: w.Queue, batch: b})
	}

	// The fence rides on the last submission. Any queue whose tail cannot
	// reach that submission through queue order or semaphores is joined by
	// a trailing batch on the fence queue.
	fenceQueue := in.queue
	if n := len(entries); n > 0 {
		fenceQueue = entries[n-1].queue
	}
	var joins []SemaphoreWait
	if n := len(in.works); n > 0 {
		covered := make([]bool, n)
		for i := range in.works {
			covered[i] = in.works[i].Queue == fenceQueue
		}
		for changed := true; changed; {
			changed = false
			for i := n - 1; i >= 0; i-- {
				if covered[i] {
					continue
				}
				w := in.works[i]
				for _, t := range w.Signals {
					if t.sem != nil && covered[consumer[t]] {
						covered[i] = true
					}
				}
				for j := i + 1; j < n && !covered[i]; j++ {
					if in.works[j].Queue == w.Queue && covered[j] {
						covered[i] = true
					}
				}
				if covered[i] {
					changed = true
				}
			}
		}
		tails := map[Queue]int{}
		var order []Queue
		for i, w := range in.works {
			if _, seen := tails[w.Queue]; !seen {
				order = append(order, w.Queue)
			}
			tails[w.Queue] = i
		}
		for _, q := range order {
			i := tails[q]
			if covered[i] {
				continue
			}
			sem, err := in.semaphore()
			if err != nil {
				return nil, err
			}
			entries[i].batch.Signals = append(entries[i].batch.Signals, sem)
			joins = append(joins, SemaphoreWait{Semaphore: sem, Stage: StageAllCommands})
		}
	}

	switch {
	case len(in.works) == 0:
		b := Batch{}
		if in.acquired {
			b.Waits = []SemaphoreWait{{Semaphore: in.imageAvailable, Stage: StageColorAttachmentOutput}}
			b.Signals = []Semaphore{in.renderFinished}
		}
		entries = append(entries, entry{queue: fenceQueue, batch: b})
	case in.acquired && firstSwap < 0:
		entries = append(entries, entry{queue: fenceQueue, batch: Batch{
			Waits:   append([]SemaphoreWait{{Semaphore: in.imageAvailable, Stage: StageColorAttachmentOutput}}, joins...),
			Signals: []Semaphore{in.renderFinished},
		}})
	case len(joins) > 0:
		entries = append(entries, entry{queue: fenceQueue, batch: Batch{Waits: joins}})
	}

	var calls []submitCall
	for _, e := range entries {
		if n := len(calls); n > 0 && calls[n-1].queue == e.queue {
			calls[n-1].batches = append(calls[n-1].batches, e.batch)
			continue
		}
		calls = append(calls, submitCall{queue: e.queue, batches: []Batch{e.batch}})
	}
	calls[len(calls)-1].fence = in.fence
	return calls, nil
}
