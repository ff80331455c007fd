package inflight

import (
	"fmt"
	"time"
)

// Slot owns everything one in-flight frame touches: command buffers, a
// Completion Gate, swapchain semaphores, hand-off semaphores, a uniform arena
// and user data. A slot is only written by the CPU after its gate opened.
type Slot[T any] struct {
	// Index is the slot position in the ring.
	Index int
	// Commands is the primary command buffer on the ring's queue.
	Commands CommandBuffer
	// Uniforms is this slot's share of the ring uniform buffer.
	Uniforms *Arena
	// Data is per-slot user state created by the ring's factory.
	Data T

	dev            Device
	queue          Queue
	gate           *Gate
	imageAvailable Semaphore
	renderFinished Semaphore
	extra          map[Queue]CommandBuffer
	pool           []Semaphore
	poolNext       int
	frame          uint64
	// armed is set while a submission that signals the gate is outstanding
	// or has completed. A gate reset by BeginFrame is not armed until the
	// frame's fence submission succeeds.
	armed bool
}

func newSlot[T any](dev Device, queue Queue, index int, fenceTimeout time.Duration) (*Slot[T], error) {
	s := &Slot[T]{Index: index, dev: dev, queue: queue, extra: map[Queue]CommandBuffer{}, armed: true}
	var err error
	if s.gate, err = NewGate(dev, fenceTimeout); err != nil {
		return nil, fmt.Errorf("slot %d gate: %w", index, err)
	}
	if s.Commands, err = dev.NewCommandBuffer(queue); err != nil {
		s.destroy()
		return nil, fmt.Errorf("slot %d command buffer: %w", index, err)
	}
	if s.imageAvailable, err = dev.NewSemaphore(); err != nil {
		s.destroy()
		return nil, fmt.Errorf("slot %d semaphore: %w", index, err)
	}
	if s.renderFinished, err = dev.NewSemaphore(); err != nil {
		s.destroy()
		return nil, fmt.Errorf("slot %d semaphore: %w", index, err)
	}
	return s, nil
}

// CommandsFor returns the slot's command buffer for q, creating it on first
// use. The ring's own queue maps to Commands.
func (s *Slot[T]) CommandsFor(q Queue) (CommandBuffer, error) {
	if q == s.queue {
		return s.Commands, nil
	}
	if cb, ok := s.extra[q]; ok {
		return cb, nil
	}
	cb, err := s.dev.NewCommandBuffer(q)
	if err != nil {
		return nil, err
	}
	s.extra[q] = cb
	return cb, nil
}

// Gate is the slot's Completion Gate.
func (s *Slot[T]) Gate() *Gate {
	return s.gate
}

// ImageAvailable is signalled by swapchain acquisition for this slot's frame.
func (s *Slot[T]) ImageAvailable() Semaphore {
	return s.imageAvailable
}

// RenderFinished is signalled by the last swapchain-touching submission.
func (s *Slot[T]) RenderFinished() Semaphore {
	return s.renderFinished
}

// Frame is the index of the last frame that used the slot.
func (s *Slot[T]) Frame() uint64 {
	return s.frame
}

// semaphore hands out a pooled semaphore. The pool is recycled when the slot
// is reused, at which point every semaphore from the previous use has been
// waited on by the GPU.
func (s *Slot[T]) semaphore() (Semaphore, error) {
	if s.poolNext < len(s.pool) {
		sem := s.pool[s.poolNext]
		s.poolNext++
		return sem, nil
	}
	sem, err := s.dev.NewSemaphore()
	if err != nil {
		return nil, err
	}
	s.pool = append(s.pool, sem)
	s.poolNext++
	return sem, nil
}

func (s *Slot[T]) reset() error {
	s.poolNext = 0
	s.Uniforms.Reset()
	if err := s.Commands.Reset(); err != nil {
		return err
	}
	for _, cb := range s.extra {
		if err := cb.Reset(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Slot[T]) destroy() {
	for _, sem := range s.pool {
		sem.Destroy()
	}
	s.pool = nil
	for q, cb := range s.extra {
		cb.Destroy()
		delete(s.extra, q)
	}
	if s.renderFinished != nil {
		s.renderFinished.Destroy()
	}
	if s.imageAvailable != nil {
		s.imageAvailable.Destroy()
	}
	if s.Commands != nil {
		s.Commands.Destroy()
	}
	if s.gate != nil {
		s.gate.Destroy()
	}
}
