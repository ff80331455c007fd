package vkg

import (
	"fmt"
	"time"

	"github.com/pkg/errors"
	"github.com/vulkan-go/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

// Swapchain is a Vulkan swapchain and its images.
type Swapchain struct {
	Device      *Device
	VKSwapchain vk.Swapchain
	Format      vk.Format

	extent inflight.Extent
	images []*Image
}

var _ inflight.Swapchain = (*Swapchain)(nil)

func (s *Swapchain) ImageCount() int {
	return len(s.images)
}

func (s *Swapchain) Extent() inflight.Extent {
	return s.extent
}

func (s *Swapchain) Image(i int) inflight.Resource {
	return s.images[i]
}

// Images returns the swapchain images. They are owned by the swapchain.
func (s *Swapchain) Images() []*Image {
	return s.images
}

// Acquire asks for the next image. A suboptimal swapchain still returns a
// usable index together with ErrSuboptimal.
func (s *Swapchain) Acquire(timeout time.Duration, signal inflight.Semaphore) (uint32, error) {
	sema, err := vkSemaphore(signal)
	if err != nil {
		return 0, err
	}
	var index uint32
	res := vk.AcquireNextImage(s.Device.VKDevice, s.VKSwapchain, timeoutNanos(timeout), sema, vk.NullFence, &index)
	if res == vk.Suboptimal {
		return index, inflight.ErrSuboptimal
	}
	if err := resultError(res); err != nil {
		return 0, errors.Wrap(err, "acquire next image")
	}
	return index, nil
}

// Present queues index on q once wait is signalled.
func (s *Swapchain) Present(q inflight.Queue, index uint32, wait inflight.Semaphore) error {
	vq, ok := q.(*Queue)
	if !ok {
		return fmt.Errorf("queue %T is not a vulkan queue", q)
	}
	info := vk.PresentInfo{
		SType:          vk.StructureTypePresentInfo,
		SwapchainCount: 1,
		PSwapchains:    []vk.Swapchain{s.VKSwapchain},
		PImageIndices:  []uint32{index},
	}
	if wait != nil {
		sema, err := vkSemaphore(wait)
		if err != nil {
			return err
		}
		info.WaitSemaphoreCount = 1
		info.PWaitSemaphores = []vk.Semaphore{sema}
	}

	vq.mu.Lock()
	res := vk.QueuePresent(vq.VKQueue, &info)
	vq.mu.Unlock()
	return resultError(res)
}

func (s *Swapchain) Destroy() {
	vk.DestroySwapchain(s.Device.VKDevice, s.VKSwapchain, nil)
}

func (s *Swapchain) loadImages() error {
	var count uint32
	if err := check("swapchain images", vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &count, nil)); err != nil {
		return err
	}
	handles := make([]vk.Image, count)
	if err := check("swapchain images", vk.GetSwapchainImages(s.Device.VKDevice, s.VKSwapchain, &count, handles)); err != nil {
		return err
	}
	s.images = make([]*Image, count)
	for i, h := range handles {
		s.images[i] = &Image{
			Device:  s.Device,
			VKImage: h,
			Format:  s.Format,
			Extent:  s.extent,
			Aspect:  vk.ImageAspectFlags(vk.ImageAspectColorBit),
			name:    fmt.Sprintf("swapchain[%d]", i),
		}
	}
	return nil
}

// SwapchainOptions shapes swapchains created by a WindowSurface.
type SwapchainOptions struct {
	// MinImages of zero asks for one more than the surface minimum.
	MinImages int
	// Usage is added to colour attachment usage.
	Usage vk.ImageUsageFlags
}

// WindowSurface is a glfw window surface presented on one queue and
// rendered on another, possibly the same.
type WindowSurface struct {
	Window    *glfw.Window
	VKSurface vk.Surface
	Device    *Device
	Graphics  *Queue
	Present   *Queue
	Options   SwapchainOptions
}

var _ inflight.Surface = (*WindowSurface)(nil)

// Extent is the framebuffer size of the window. It is zero while the window
// is minimized.
func (w *WindowSurface) Extent() inflight.Extent {
	width, height := w.Window.GetFramebufferSize()
	if width < 0 || height < 0 {
		return inflight.Extent{}
	}
	return inflight.Extent{Width: uint32(width), Height: uint32(height)}
}

// OnResize calls f from the glfw event loop whenever the framebuffer
// changes size.
func (w *WindowSurface) OnResize(f func()) {
	w.Window.SetFramebufferSizeCallback(func(*glfw.Window, int, int) {
		f()
	})
}

// NewSwapchain creates a swapchain for the current window size. old, when
// given, is handed to the driver for reuse and must be destroyed by the
// caller afterwards.
func (w *WindowSurface) NewSwapchain(old inflight.Swapchain) (inflight.Swapchain, error) {
	pd := w.Device.PhysicalDevice

	modes, err := pd.SurfacePresentModes(w.VKSurface)
	if err != nil {
		return nil, err
	}
	presentMode := vk.PresentModeFifo
	if modes.Has(vk.PresentModeMailbox) {
		presentMode = vk.PresentModeMailbox
	}

	formats, err := pd.SurfaceFormats(w.VKSurface)
	if err != nil {
		return nil, err
	}
	if len(formats) == 0 {
		return nil, fmt.Errorf("surface reports no formats")
	}
	format := formats[0]
	format.Deref()
	if f := formats.Filter(func(f vk.SurfaceFormat) bool { return f.Format == vk.FormatB8g8r8a8Unorm }); len(f) > 0 {
		format = f[0]
	}

	caps, err := pd.SurfaceCapabilities(w.VKSurface)
	if err != nil {
		return nil, err
	}
	extent := caps.CurrentExtent
	if extent.Width == vk.MaxUint32 {
		e := w.Extent()
		extent = vk.Extent2D{
			Width:  clamp(e.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
			Height: clamp(e.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
		}
	}

	minImages := uint32(w.Options.MinImages)
	if minImages == 0 {
		minImages = caps.MinImageCount + 1
	}
	if caps.MaxImageCount > 0 && minImages > caps.MaxImageCount {
		minImages = caps.MaxImageCount
	}

	info := vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          w.VKSurface,
		MinImageCount:    minImages,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit) | w.Options.Usage,
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      presentMode,
		Clipped:          vk.True,
		OldSwapchain:     vk.NullSwapchain,
	}
	if w.Graphics.Family() != w.Present.Family() {
		info.ImageSharingMode = vk.SharingModeConcurrent
		info.QueueFamilyIndexCount = 2
		info.PQueueFamilyIndices = []uint32{uint32(w.Graphics.Family()), uint32(w.Present.Family())}
	}
	if old != nil {
		prev, ok := old.(*Swapchain)
		if !ok {
			return nil, fmt.Errorf("swapchain %T is not a vulkan swapchain", old)
		}
		info.OldSwapchain = prev.VKSwapchain
	}

	var handle vk.Swapchain
	if err := check("create swapchain", vk.CreateSwapchain(w.Device.VKDevice, &info, nil, &handle)); err != nil {
		return nil, err
	}
	sc := &Swapchain{
		Device:      w.Device,
		VKSwapchain: handle,
		Format:      format.Format,
		extent:      inflight.Extent{Width: extent.Width, Height: extent.Height},
	}
	if err := sc.loadImages(); err != nil {
		sc.Destroy()
		return nil, err
	}
	return sc, nil
}

func clamp(v, lo, hi uint32) uint32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
