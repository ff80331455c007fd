package vkg

import (
	vk "github.com/vulkan-go/vulkan"
)

type PipelineLayout struct {
	Device           *Device
	VKPipelineLayout vk.PipelineLayout
}

// NewPipelineLayout creates a layout over the given set layouts.
func (d *Device) NewPipelineLayout(pushConstants []vk.PushConstantRange, setLayouts ...*DescriptorSetLayout) (*PipelineLayout, error) {
	l := make([]vk.DescriptorSetLayout, len(setLayouts))
	for i, dsl := range setLayouts {
		l[i] = dsl.VKDescriptorSetLayout
	}
	info := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         uint32(len(l)),
		PSetLayouts:            l,
		PushConstantRangeCount: uint32(len(pushConstants)),
		PPushConstantRanges:    pushConstants,
	}
	var layout vk.PipelineLayout
	if err := check("create pipeline layout", vk.CreatePipelineLayout(d.VKDevice, &info, nil, &layout)); err != nil {
		return nil, err
	}
	return &PipelineLayout{Device: d, VKPipelineLayout: layout}, nil
}

func (p *PipelineLayout) Destroy() {
	vk.DestroyPipelineLayout(p.Device.VKDevice, p.VKPipelineLayout, nil)
}

type PipelineCache struct {
	Device          *Device
	VKPipelineCache vk.PipelineCache
}

func (d *Device) CreatePipelineCache() (*PipelineCache, error) {
	info := vk.PipelineCacheCreateInfo{SType: vk.StructureTypePipelineCacheCreateInfo}
	var cache vk.PipelineCache
	if err := check("create pipeline cache", vk.CreatePipelineCache(d.VKDevice, &info, nil, &cache)); err != nil {
		return nil, err
	}
	return &PipelineCache{Device: d, VKPipelineCache: cache}, nil
}

func (c *PipelineCache) Destroy() {
	vk.DestroyPipelineCache(c.Device.VKDevice, c.VKPipelineCache, nil)
}

type ComputePipeline struct {
	Device     *Device
	Layout     *PipelineLayout
	VKPipeline vk.Pipeline

	stage vk.PipelineShaderStageCreateInfo
}

// NewComputePipeline describes a pipeline running entryPoint of module. It is
// created by CreateComputePipelines.
func NewComputePipeline(layout *PipelineLayout, module *ShaderModule, entryPoint string) *ComputePipeline {
	return &ComputePipeline{
		Device: layout.Device,
		Layout: layout,
		stage:  module.StageInfo(vk.ShaderStageComputeBit, entryPoint),
	}
}

func (c *ComputePipeline) Destroy() {
	vk.DestroyPipeline(c.Device.VKDevice, c.VKPipeline, nil)
}

// CreateComputePipelines creates all pipelines in one call. pc may be nil.
func (d *Device) CreateComputePipelines(pc *PipelineCache, cp ...*ComputePipeline) error {
	ci := make([]vk.ComputePipelineCreateInfo, len(cp))
	for i, p := range cp {
		ci[i] = vk.ComputePipelineCreateInfo{
			SType:  vk.StructureTypeComputePipelineCreateInfo,
			Stage:  p.stage,
			Layout: p.Layout.VKPipelineLayout,
		}
	}
	cache := vk.NullPipelineCache
	if pc != nil {
		cache = pc.VKPipelineCache
	}
	pipelines := make([]vk.Pipeline, len(cp))
	if err := check("create compute pipelines", vk.CreateComputePipelines(d.VKDevice, cache, uint32(len(ci)), ci, nil, pipelines)); err != nil {
		return err
	}
	for i := range pipelines {
		cp[i].VKPipeline = pipelines[i]
	}
	return nil
}
