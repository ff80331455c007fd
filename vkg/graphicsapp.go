package vkg

import (
	"fmt"

	"github.com/vulkan-go/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

// InitializeForComputeOnly loads Vulkan from the system loader for programs
// without a window.
func InitializeForComputeOnly() error {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return err
	}
	return vk.Init()
}

// InitializeForWindow loads Vulkan through glfw. glfw must be initialized.
func InitializeForWindow() error {
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	return vk.Init()
}

// GraphicsApp brings up everything the frame engine needs: an instance, an
// optional window surface, a device and its graphics, present and compute
// queues.
type GraphicsApp struct {
	App      *App
	Instance *Instance

	Window    *glfw.Window
	VKSurface vk.Surface
	Surface   *WindowSurface

	PhysicalDevice *PhysicalDevice
	Device         *Device
	Families       Families

	GraphicsQueue *Queue
	PresentQueue  *Queue
	ComputeQueue  *Queue

	// DeviceIndex picks the physical device.
	DeviceIndex int
	// Swapchain is passed to the window surface.
	Swapchain SwapchainOptions
}

// NewGraphicsApp creates a new graphics app with the given name and version
func NewGraphicsApp(name string, version Version) *GraphicsApp {
	return &GraphicsApp{App: &App{Name: name, EngineName: "inflight", Version: version}}
}

// EnableDebugging enables validation. It must be called before Init.
func (p *GraphicsApp) EnableDebugging() error {
	if p.Instance != nil {
		return fmt.Errorf("debugging must be enabled prior to initialization")
	}
	p.App.EnableDebugging()
	return nil
}

// SetWindow sets the GLFW window for the graphics app
func (p *GraphicsApp) SetWindow(window *glfw.Window) error {
	if p.Instance != nil {
		return fmt.Errorf("window must be set prior to initialization")
	}
	supported, err := SupportedExtensions()
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(supported))
	for _, s := range supported {
		have[s] = true
	}
	for _, ext := range window.GetRequiredInstanceExtensions() {
		if !have[ext] {
			return fmt.Errorf("extension '%s' required to enable glfw is not supported by vulkan", ext)
		}
		p.App.EnableExtension(ext)
	}
	p.Window = window
	return nil
}

// Init creates the instance, surface, device and queues.
func (p *GraphicsApp) Init() error {
	var err error
	p.Instance, err = p.App.CreateInstance()
	if err != nil {
		return err
	}

	p.VKSurface = vk.NullSurface
	if p.Window != nil {
		surface, err := p.Window.CreateWindowSurface(p.Instance.VKInstance, nil)
		if err != nil {
			return fmt.Errorf("create window surface: %w", err)
		}
		p.VKSurface = vk.SurfaceFromPointer(surface)
	}

	devices, err := p.Instance.PhysicalDevices()
	if err != nil {
		return fmt.Errorf("error getting devices: %w", err)
	}
	if p.DeviceIndex < 0 || p.DeviceIndex >= len(devices) {
		return fmt.Errorf("device %d requested, %d available", p.DeviceIndex, len(devices))
	}
	p.PhysicalDevice = devices[p.DeviceIndex]

	families, err := p.PhysicalDevice.QueueFamilies()
	if err != nil {
		return fmt.Errorf("unable to load device queue families: %w", err)
	}
	p.Families, err = families.PickFamilies(p.VKSurface)
	if err != nil {
		return fmt.Errorf("device %s: %w", p.PhysicalDevice, err)
	}

	var opts CreateDeviceOptions
	if p.Window != nil {
		opts.EnabledExtensions = []string{"VK_KHR_swapchain"}
	}
	p.Device, err = p.PhysicalDevice.CreateLogicalDevice(p.Families.Slice(), &opts)
	if err != nil {
		return fmt.Errorf("unable to create device: %w", err)
	}

	p.GraphicsQueue = p.Device.GetQueue(p.Families.Graphics)
	p.PresentQueue = p.GraphicsQueue
	p.ComputeQueue = p.Device.GetQueue(p.Families.Compute)

	if p.Window != nil {
		p.Surface = &WindowSurface{
			Window:    p.Window,
			VKSurface: p.VKSurface,
			Device:    p.Device,
			Graphics:  p.GraphicsQueue,
			Present:   p.PresentQueue,
			Options:   p.Swapchain,
		}
	}

	inflight.Logger().Info("vulkan initialized",
		"device", p.PhysicalDevice.DeviceName,
		"graphics", p.Families.Graphics.Index,
		"compute", p.Families.Compute.Index,
		"window", p.Window != nil)
	return nil
}

// Backend is what the Renderer drives. Without a window it renders
// offscreen.
func (p *GraphicsApp) Backend() inflight.Backend {
	be := inflight.Backend{
		Device:   p.Device,
		Graphics: p.GraphicsQueue,
		Present:  p.PresentQueue,
	}
	if p.Surface != nil {
		be.Surface = p.Surface
	}
	return be
}

// Destroy tears down the device, the surface and the instance. Everything
// created from the device must have been released.
func (p *GraphicsApp) Destroy() {
	if p.Device != nil {
		p.Device.WaitIdle()
		p.Device.Destroy()
	}
	if p.Instance != nil {
		if p.VKSurface != vk.NullSurface {
			vk.DestroySurface(p.Instance.VKInstance, p.VKSurface, nil)
		}
		p.Instance.Destroy()
	}
}
