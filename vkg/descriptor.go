package vkg

import (
	vk "github.com/vulkan-go/vulkan"
)

// DescriptorSetLayout describes the layout of a descriptorset
type DescriptorSetLayout struct {
	Device                *Device
	VKDescriptorSetLayout vk.DescriptorSetLayout
	Bindings              []vk.DescriptorSetLayoutBinding
}

// StorageBinding is a storage buffer binding visible to the given stages.
func StorageBinding(binding int, stages vk.ShaderStageFlagBits) vk.DescriptorSetLayoutBinding {
	return vk.DescriptorSetLayoutBinding{
		Binding:         uint32(binding),
		DescriptorType:  vk.DescriptorTypeStorageBuffer,
		DescriptorCount: 1,
		StageFlags:      vk.ShaderStageFlags(stages),
	}
}

// NewDescriptorSetLayout creates a layout from its bindings.
func (d *Device) NewDescriptorSetLayout(bindings ...vk.DescriptorSetLayoutBinding) (*DescriptorSetLayout, error) {
	info := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(bindings)),
		PBindings:    bindings,
	}
	var layout vk.DescriptorSetLayout
	if err := check("create descriptor set layout", vk.CreateDescriptorSetLayout(d.VKDevice, &info, nil, &layout)); err != nil {
		return nil, err
	}
	return &DescriptorSetLayout{Device: d, VKDescriptorSetLayout: layout, Bindings: bindings}, nil
}

func (l *DescriptorSetLayout) Destroy() {
	vk.DestroyDescriptorSetLayout(l.Device.VKDevice, l.VKDescriptorSetLayout, nil)
}

// DescriptorPool hands out descriptor sets that may be freed one by one.
type DescriptorPool struct {
	Device           *Device
	VKDescriptorPool vk.DescriptorPool
}

// NewDescriptorPool creates a pool for maxSets sets holding at most the
// given number of descriptors of each type.
func (d *Device) NewDescriptorPool(maxSets int, sizes map[vk.DescriptorType]int) (*DescriptorPool, error) {
	poolSizes := make([]vk.DescriptorPoolSize, 0, len(sizes))
	for t, n := range sizes {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{Type: t, DescriptorCount: uint32(n)})
	}
	info := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       uint32(maxSets),
		Flags:         vk.DescriptorPoolCreateFlags(vk.DescriptorPoolCreateFreeDescriptorSetBit),
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if err := check("create descriptor pool", vk.CreateDescriptorPool(d.VKDevice, &info, nil, &pool)); err != nil {
		return nil, err
	}
	return &DescriptorPool{Device: d, VKDescriptorPool: pool}, nil
}

// Allocate allocates one set with the given layout.
func (p *DescriptorPool) Allocate(layout *DescriptorSetLayout) (*DescriptorSet, error) {
	info := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     p.VKDescriptorPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{layout.VKDescriptorSetLayout},
	}
	var set vk.DescriptorSet
	if err := check("allocate descriptor set", vk.AllocateDescriptorSets(p.Device.VKDevice, &info, &set)); err != nil {
		return nil, err
	}
	return &DescriptorSet{Device: p.Device, Pool: p, VKDescriptorSet: set}, nil
}

func (p *DescriptorPool) Free(ds *DescriptorSet) error {
	set := ds.VKDescriptorSet
	return check("free descriptor set", vk.FreeDescriptorSets(p.Device.VKDevice, p.VKDescriptorPool, 1, &set))
}

func (p *DescriptorPool) Destroy() {
	vk.DestroyDescriptorPool(p.Device.VKDevice, p.VKDescriptorPool, nil)
}

// DescriptorSet is a binding of resources to a descriptor, per a specific DescriptorSetLayout
type DescriptorSet struct {
	Device          *Device
	Pool            *DescriptorPool
	VKDescriptorSet vk.DescriptorSet

	writes []vk.WriteDescriptorSet
}

// AddBuffer queues a write of the whole buffer to binding.
func (s *DescriptorSet) AddBuffer(binding int, dtype vk.DescriptorType, b *Buffer) *DescriptorSet {
	s.writes = append(s.writes, vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstBinding:      uint32(binding),
		DescriptorCount: 1,
		DescriptorType:  dtype,
		PBufferInfo:     []vk.DescriptorBufferInfo{b.DSInfo(0, b.Size)},
	})
	return s
}

// AddStorageImage queues a write of a storage image in the general layout.
func (s *DescriptorSet) AddStorageImage(binding int, view *ImageView) *DescriptorSet {
	s.writes = append(s.writes, vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstBinding:      uint32(binding),
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeStorageImage,
		PImageInfo: []vk.DescriptorImageInfo{{
			ImageView:   view.VKImageView,
			ImageLayout: vk.ImageLayoutGeneral,
		}},
	})
	return s
}

// Write applies the queued writes.
func (s *DescriptorSet) Write() {
	for i := range s.writes {
		s.writes[i].DstSet = s.VKDescriptorSet
	}
	vk.UpdateDescriptorSets(s.Device.VKDevice, uint32(len(s.writes)), s.writes, 0, nil)
	s.writes = nil
}
