/*
Package inflight keeps several frames of GPU work in flight without the CPU
ever overwriting something the GPU is still reading, and without the GPU ever
reading something another pass or queue has not finished writing.

A renderer that waits for the device to go idle after every frame is simple
and slow: the CPU records frame k+1 while the GPU sits idle, and the GPU then
renders while the CPU sits idle. Pipelining fixes that by giving each in-flight
frame its own copy of everything the CPU writes per frame, and by making the
CPU wait only when it is about to reuse a copy the GPU has not released yet.

Frame ring

A FrameRing holds N slots. Frame k uses slot k mod N. Each slot owns its
command buffers, a uniform Arena, the swapchain semaphores for its frame, a
small pool of hand-off semaphores, and a Gate (a fence created signalled).
BeginFrame waits on the slot's gate and resets it, so the first N frames never
block and frame k blocks only until frame k-N has completed. The last
submission of a frame carries the gate's fence; EndFrame never waits.

	ring, _ := inflight.NewFrameRing(dev, graphics, 2, opts, nil)
	f, _ := ring.BeginFrame()
	// record into f.Slot.Commands, write uniforms into f.Slot.Uniforms
	f.Submit(inflight.Work{Queue: graphics, Commands: ...})
	ring.EndFrame(f)

Cross-queue hand-off

A Ticket orders a producer submission before a consumer submission within
one frame. Across queues it carries a binary semaphore and, across queue
families, records the release and acquire halves of the ownership transfer.
On the same queue it carries no semaphore and records a pipeline barrier
instead. Frame.Submit checks that every ticket has one producer that is
submitted before its one consumer, puts the swapchain semaphores on the first
and last swapchain work, and makes sure the slot fence cannot signal before
every queue's work in the frame is done.

Dependency graph

A Graph lists the passes of a frame with the resources each one reads and
writes, and the dependency edges between them. Validate reports every
read-after-write, write-after-write and write-after-read pair not ordered by
an edge. Compile turns consecutive passes sharing a group into a
SubpassGroup with subpass dependencies (by region where the consumer only
reads its own pixel) and every other edge into a merged pipeline barrier
before the consuming pass.

Surface cycle

SurfaceCycle owns the swapchain and every SizeDependent resource. Resize only
marks the cycle; the next Acquire waits for the device to go idle, destroys the
dependents in reverse order, builds the new swapchain from the old one and
recreates the dependents. Out of date and suboptimal results are absorbed.
A minimized window skips frames until it has a size again.

Renderer

Renderer ties these together in DrawFrame. Presentation conditions skip a
frame. Device loss, fence timeouts and out of memory are fatal: they are
reported once and returned by every later call.

Backends

The engine talks to the device through the Device, Queue, Fence, Semaphore,
CommandBuffer and Swapchain interfaces. Package vkg implements them on Vulkan;
package softgpu implements them in software, with hazard detection, for tests
and simulation.
*/
package inflight
