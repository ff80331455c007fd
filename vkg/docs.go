/*
Package vkg is the Vulkan backend of the inflight frame engine. It wraps the handful of Vulkan
objects the engine drives and implements the inflight.Device, Queue, Fence, Semaphore,
CommandBuffer, HostBuffer, Swapchain and Surface interfaces on top of them.

Native vulkan structures are exposed in all the objects prefixed with 'VK' in the name, so
applications aren't limited by what this package provides.

Native Vulkan terms
	Instance 	the vulkan runtime instance
	PhysicalDevice	the physical hardware device
	Device		a logical device, the target of most of the vulkan apis
	Queue 		a queue which command buffers are submitted to
	Fence		signalled by the device when a submission completes, waited on by the host
	Semaphore	signalled by one submission and waited on by another, possibly on another queue
	DeviceMemory	an allocation of memory on the host or device for use by buffers and images
	RenderPass	a set of subpasses sharing attachments, with dependencies between them
	Swapchain	a grouping of images which are used to display graphical data

Mapping from the engine

A frame slot's fence and semaphores are a Fence and two Semaphores. Tickets become semaphore
waits in the next batch submitted to the consuming queue. Barriers computed by the dependency
graph are recorded with vkCmdPipelineBarrier, image barriers carrying queue family ownership
transfers when the graph asks for one. A subpass group compiles to a RenderPass through
Device.NewRenderPass; its dependencies keep the BY_REGION flag the graph chose. Set a
RenderTarget as the group's Target before the group is recorded.

Frame setup

	app := vkg.NewGraphicsApp("demo", vkg.Version{Major: 1})
	app.SetWindow(window)
	app.Init()
	renderer, _ := inflight.NewRenderer(cfg, app.Backend(), newSlotData)

Acquire and present map VK_ERROR_OUT_OF_DATE_KHR and VK_SUBOPTIMAL_KHR onto the engine's
errors so that the surface cycle can recreate the swapchain.
*/
package vkg
