package vkg

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

// imageHandle is implemented by resources backed by a vk.Image.
type imageHandle interface {
	vkImage() (vk.Image, vk.ImageAspectFlags)
}

// bufferHandle is implemented by resources backed by a vk.Buffer.
type bufferHandle interface {
	vkBuffer() vk.Buffer
}

func familyIndex(f int) uint32 {
	if f < 0 {
		return vk.QueueFamilyIgnored
	}
	return uint32(f)
}

func dependencyFlags(byRegion bool) vk.DependencyFlags {
	if byRegion {
		return vk.DependencyFlags(vk.DependencyByRegionBit)
	}
	return 0
}

// stageMask converts an engine stage set. Vulkan forbids an empty mask, so an
// empty source becomes TOP_OF_PIPE and an empty destination BOTTOM_OF_PIPE.
func stageMask(s inflight.Stage, empty inflight.Stage) vk.PipelineStageFlags {
	if s == 0 {
		s = empty
	}
	return vk.PipelineStageFlags(s)
}

// pipelineBarrier is the Vulkan form of an inflight.Barrier.
type pipelineBarrier struct {
	src, dst vk.PipelineStageFlags
	flags    vk.DependencyFlags
	memory   []vk.MemoryBarrier
	buffers  []vk.BufferMemoryBarrier
	images   []vk.ImageMemoryBarrier
}

func convertBarrier(b inflight.Barrier) (pipelineBarrier, error) {
	pb := pipelineBarrier{
		src:   stageMask(b.SrcStage, inflight.StageTopOfPipe),
		dst:   stageMask(b.DstStage, inflight.StageBottomOfPipe),
		flags: dependencyFlags(b.ByRegion),
	}
	for _, m := range b.Memory {
		pb.memory = append(pb.memory, vk.MemoryBarrier{
			SType:         vk.StructureTypeMemoryBarrier,
			SrcAccessMask: vk.AccessFlags(m.SrcAccess),
			DstAccessMask: vk.AccessFlags(m.DstAccess),
		})
	}
	for _, ib := range b.Images {
		h, ok := ib.Resource.(imageHandle)
		if !ok {
			return pb, fmt.Errorf("image barrier on %s: %T is not a vulkan image", ib.Resource.Name(), ib.Resource)
		}
		img, aspect := h.vkImage()
		pb.images = append(pb.images, vk.ImageMemoryBarrier{
			SType:               vk.StructureTypeImageMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(ib.SrcAccess),
			DstAccessMask:       vk.AccessFlags(ib.DstAccess),
			OldLayout:           vk.ImageLayout(ib.OldLayout),
			NewLayout:           vk.ImageLayout(ib.NewLayout),
			SrcQueueFamilyIndex: familyIndex(ib.SrcFamily),
			DstQueueFamilyIndex: familyIndex(ib.DstFamily),
			Image:               img,
			SubresourceRange: vk.ImageSubresourceRange{
				AspectMask: aspect,
				LevelCount: 1,
				LayerCount: 1,
			},
		})
	}
	for _, bb := range b.Buffers {
		h, ok := bb.Resource.(bufferHandle)
		if !ok {
			return pb, fmt.Errorf("buffer barrier on %s: %T is not a vulkan buffer", bb.Resource.Name(), bb.Resource)
		}
		pb.buffers = append(pb.buffers, vk.BufferMemoryBarrier{
			SType:               vk.StructureTypeBufferMemoryBarrier,
			SrcAccessMask:       vk.AccessFlags(bb.SrcAccess),
			DstAccessMask:       vk.AccessFlags(bb.DstAccess),
			SrcQueueFamilyIndex: familyIndex(bb.SrcFamily),
			DstQueueFamilyIndex: familyIndex(bb.DstFamily),
			Buffer:              h.vkBuffer(),
			Size:                vk.DeviceSize(vk.WholeSize),
		})
	}
	return pb, nil
}

func (pb pipelineBarrier) record(cb vk.CommandBuffer) {
	vk.CmdPipelineBarrier(cb, pb.src, pb.dst, pb.flags,
		uint32(len(pb.memory)), pb.memory,
		uint32(len(pb.buffers)), pb.buffers,
		uint32(len(pb.images)), pb.images)
}

// subpassDependency converts a compiled subpass dependency.
func subpassDependency(d inflight.SubpassDependency) vk.SubpassDependency {
	src, dst := vk.SubpassExternal, vk.SubpassExternal
	if d.Src != inflight.SubpassExternal {
		src = uint32(d.Src)
	}
	if d.Dst != inflight.SubpassExternal {
		dst = uint32(d.Dst)
	}
	return vk.SubpassDependency{
		SrcSubpass:      src,
		DstSubpass:      dst,
		SrcStageMask:    stageMask(d.SrcStage, inflight.StageTopOfPipe),
		DstStageMask:    stageMask(d.DstStage, inflight.StageBottomOfPipe),
		SrcAccessMask:   vk.AccessFlags(d.SrcAccess),
		DstAccessMask:   vk.AccessFlags(d.DstAccess),
		DependencyFlags: dependencyFlags(d.ByRegion),
	}
}
