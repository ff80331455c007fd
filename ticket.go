package inflight

import (
	"fmt"
)

// TicketState tracks a hand-off from producer to consumer.
type TicketState int

const (
	TicketUnwritten TicketState = iota
	TicketWritten
	TicketBarrierPending
	TicketReadable
)

func (s TicketState) String() string {
	switch s {
	case TicketUnwritten:
		return "unwritten"
	case TicketWritten:
		return "written-by-producer"
	case TicketBarrierPending:
		return "barrier-pending"
	case TicketReadable:
		return "readable-by-consumer"
	}
	return fmt.Sprintf("TicketState(%d)", int(s))
}

// Handoff describes one resource moving from the producer to the consumer.
type Handoff struct {
	Resource  Resource
	SrcStage  Stage
	SrcAccess Access
	DstStage  Stage
	DstAccess Access
	OldLayout Layout
	NewLayout Layout
}

// Ticket is a one-shot, per-frame token ordering a producer submission before
// a consumer submission. Across queues it carries a binary semaphore; on the
// same queue it needs none.
type Ticket struct {
	Name     string
	Producer Queue
	Consumer Queue
	// Stage is where the consumer waits.
	Stage Stage

	frame    uint64
	sem      Semaphore
	handoffs []Handoff
	state    TicketState
}

// TicketOption adjusts a new ticket.
type TicketOption func(*ticketOptions)

type ticketOptions struct {
	semaphore bool
}

// WithSemaphore forces a semaphore even when producer and consumer share a
// queue, splitting the work into separately ordered submissions.
func WithSemaphore() TicketOption {
	return func(o *ticketOptions) { o.semaphore = true }
}

// NewTicket creates a hand-off valid for this frame only.
func (f *Frame[T]) NewTicket(name string, producer, consumer Queue, stage Stage, opts ...TicketOption) (*Ticket, error) {
	var o ticketOptions
	for _, opt := range opts {
		opt(&o)
	}
	if producer == nil || consumer == nil {
		return nil, fmt.Errorf("ticket %s: producer and consumer queues are required", name)
	}
	if stage == 0 {
		stage = StageAllCommands
	}
	t := &Ticket{Name: name, Producer: producer, Consumer: consumer, Stage: stage, frame: f.Index}
	if producer != consumer || o.semaphore {
		sem, err := f.Slot.semaphore()
		if err != nil {
			return nil, deviceError("create ticket semaphore", f.Index, f.Slot.Index, err)
		}
		t.sem = sem
	}
	f.tickets = append(f.tickets, t)
	return t, nil
}

// Handoff declares a resource that changes hands through t.
func (t *Ticket) Handoff(h Handoff) *Ticket {
	t.handoffs = append(t.handoffs, h)
	return t
}

// State returns the ticket's position in the hand-off.
func (t *Ticket) State() TicketState {
	return t.state
}

// Semaphore is nil for same-queue tickets.
func (t *Ticket) Semaphore() Semaphore {
	return t.sem
}

// CrossQueue reports whether producer and consumer are different queues.
func (t *Ticket) CrossQueue() bool {
	return t.Producer != t.Consumer
}

// CrossFamily reports whether ownership must be transferred.
func (t *Ticket) CrossFamily() bool {
	return t.Producer.Family() != t.Consumer.Family()
}

// Release is recorded at the end of the producer's commands. Across queue
// families it records the release half of the ownership transfer.
func (t *Ticket) Release(cb CommandBuffer) error {
	if t.state != TicketUnwritten {
		return fmt.Errorf("release %s in state %s: %w", t.Name, t.state, ErrTicketState)
	}
	if t.CrossFamily() && len(t.handoffs) > 0 {
		b := Barrier{DstStage: StageBottomOfPipe}
		for _, h := range t.handoffs {
			b.SrcStage |= h.SrcStage
			t.appendTransfer(&b, h, h.SrcAccess, 0)
		}
		cb.PipelineBarrier(b)
	}
	t.state = TicketWritten
	return nil
}

// Acquire is recorded at the start of the consumer's commands. Across queue
// families it records the acquire half of the ownership transfer. On the same
// queue it records the memory dependency the missing semaphore would give.
func (t *Ticket) Acquire(cb CommandBuffer) error {
	if t.state != TicketWritten {
		return fmt.Errorf("acquire %s in state %s: %w", t.Name, t.state, ErrTicketState)
	}
	switch {
	case t.CrossFamily():
		if len(t.handoffs) > 0 {
			b := Barrier{SrcStage: StageTopOfPipe}
			for _, h := range t.handoffs {
				b.DstStage |= h.DstStage
				t.appendTransfer(&b, h, 0, h.DstAccess)
			}
			cb.PipelineBarrier(b)
		}
		t.state = TicketBarrierPending
		return nil
	case !t.CrossQueue() && t.sem == nil:
		b := Barrier{}
		if len(t.handoffs) == 0 {
			b.SrcStage = StageAllCommands
			b.DstStage = t.Stage
			b.Memory = []MemoryBarrier{{SrcAccess: AccessMemoryWrite, DstAccess: AccessMemoryRead | AccessMemoryWrite}}
		}
		for _, h := range t.handoffs {
			b.SrcStage |= h.SrcStage
			b.DstStage |= h.DstStage
			t.appendLocal(&b, h, h.SrcAccess)
		}
		cb.PipelineBarrier(b)
	default:
		// The semaphore orders memory; only layout changes need a barrier.
		// Its source scope is the wait stage, so there is no access to
		// make available.
		b := Barrier{}
		for _, h := range t.handoffs {
			if h.OldLayout != h.NewLayout && h.Resource.Kind() == KindImage {
				b.SrcStage |= t.Stage
				b.DstStage |= h.DstStage
				t.appendLocal(&b, h, 0)
			}
		}
		if !b.Empty() {
			cb.PipelineBarrier(b)
		}
	}
	t.state = TicketReadable
	return nil
}

func (t *Ticket) appendTransfer(b *Barrier, h Handoff, src, dst Access) {
	switch h.Resource.Kind() {
	case KindImage:
		b.Images = append(b.Images, ImageBarrier{
			Resource: h.Resource, SrcAccess: src, DstAccess: dst,
			OldLayout: h.OldLayout, NewLayout: h.NewLayout,
			SrcFamily: t.Producer.Family(), DstFamily: t.Consumer.Family(),
		})
	default:
		b.Buffers = append(b.Buffers, BufferBarrier{
			Resource: h.Resource, SrcAccess: src, DstAccess: dst,
			SrcFamily: t.Producer.Family(), DstFamily: t.Consumer.Family(),
		})
	}
}

func (t *Ticket) appendLocal(b *Barrier, h Handoff, src Access) {
	switch h.Resource.Kind() {
	case KindImage:
		b.Images = append(b.Images, ImageBarrier{
			Resource: h.Resource, SrcAccess: src, DstAccess: h.DstAccess,
			OldLayout: h.OldLayout, NewLayout: h.NewLayout,
			SrcFamily: QueueFamilyIgnored, DstFamily: QueueFamilyIgnored,
		})
	case KindBuffer:
		b.Buffers = append(b.Buffers, BufferBarrier{
			Resource: h.Resource, SrcAccess: src, DstAccess: h.DstAccess,
			SrcFamily: QueueFamilyIgnored, DstFamily: QueueFamilyIgnored,
		})
	default:
		b.Memory = append(b.Memory, MemoryBarrier{SrcAccess: src, DstAccess: h.DstAccess})
	}
}
