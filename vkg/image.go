package vkg

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

// Image is a 2D image with one mip level and one layer. Images created by
// NewImage own their memory; swapchain images do not.
type Image struct {
	Device  *Device
	VKImage vk.Image
	Format  vk.Format
	Extent  inflight.Extent
	Aspect  vk.ImageAspectFlags
	Memory  *DeviceMemory

	name string
}

// NewImage creates an optimally tiled, device local, exclusive image.
func (d *Device) NewImage(name string, extent inflight.Extent, format vk.Format, usage vk.ImageUsageFlags, aspect vk.ImageAspectFlags) (*Image, error) {
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  extent.Width,
			Height: extent.Height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var image vk.Image
	if err := check("create image "+name, vk.CreateImage(d.VKDevice, &info, nil, &image)); err != nil {
		return nil, err
	}
	img := &Image{Device: d, VKImage: image, Format: format, Extent: extent, Aspect: aspect, name: name}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.VKDevice, image, &req)
	req.Deref()
	mem, err := d.Allocate(uint64(req.Size), req.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		vk.DestroyImage(d.VKDevice, image, nil)
		return nil, err
	}
	img.Memory = mem
	if err := check("bind image "+name, vk.BindImageMemory(d.VKDevice, image, mem.VKDeviceMemory, 0)); err != nil {
		img.Destroy()
		return nil, err
	}
	return img, nil
}

func (i *Image) Name() string {
	return i.name
}

func (i *Image) Kind() inflight.ResourceKind {
	return inflight.KindImage
}

func (i *Image) vkImage() (vk.Image, vk.ImageAspectFlags) {
	return i.VKImage, i.Aspect
}

// Destroy releases an owned image. It does nothing for swapchain images.
func (i *Image) Destroy() {
	if i.Memory == nil {
		return
	}
	vk.DestroyImage(i.Device.VKDevice, i.VKImage, nil)
	i.Memory.Destroy()
	i.Memory = nil
}
