package vkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

type testImage struct {
	name   string
	aspect vk.ImageAspectFlags
}

func (t *testImage) Name() string               { return t.name }
func (t *testImage) Kind() inflight.ResourceKind { return inflight.KindImage }
func (t *testImage) vkImage() (vk.Image, vk.ImageAspectFlags) {
	var img vk.Image
	return img, t.aspect
}

type testBuffer struct{ name string }

func (t *testBuffer) Name() string               { return t.name }
func (t *testBuffer) Kind() inflight.ResourceKind { return inflight.KindBuffer }
func (t *testBuffer) vkBuffer() vk.Buffer {
	var b vk.Buffer
	return b
}

type foreignResource struct{}

func (foreignResource) Name() string               { return "foreign" }
func (foreignResource) Kind() inflight.ResourceKind { return inflight.KindImage }

func TestConvertBarrierEmptyStages(t *testing.T) {
	pb, err := convertBarrier(inflight.Barrier{
		Memory: []inflight.MemoryBarrier{{SrcAccess: inflight.AccessShaderWrite, DstAccess: inflight.AccessShaderRead}},
	})
	require.NoError(t, err)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), pb.src)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit), pb.dst)
	require.Len(t, pb.memory, 1)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderWriteBit), pb.memory[0].SrcAccessMask)
	assert.Equal(t, vk.AccessFlags(vk.AccessShaderReadBit), pb.memory[0].DstAccessMask)
}

func TestConvertBarrierOwnershipTransfer(t *testing.T) {
	img := &testImage{name: "hdr", aspect: vk.ImageAspectFlags(vk.ImageAspectColorBit)}
	pb, err := convertBarrier(inflight.Barrier{
		SrcStage: inflight.StageComputeShader,
		DstStage: inflight.StageFragmentShader,
		ByRegion: true,
		Images: []inflight.ImageBarrier{{
			Resource:  img,
			SrcAccess: inflight.AccessShaderWrite,
			DstAccess: inflight.AccessShaderRead,
			OldLayout: inflight.LayoutGeneral,
			NewLayout: inflight.LayoutShaderReadOnlyOptimal,
			SrcFamily: 1,
			DstFamily: 0,
		}},
		Buffers: []inflight.BufferBarrier{{
			Resource:  &testBuffer{name: "particles"},
			SrcAccess: inflight.AccessShaderWrite,
			DstAccess: inflight.AccessVertexAttributeRead,
			SrcFamily: inflight.QueueFamilyIgnored,
			DstFamily: inflight.QueueFamilyIgnored,
		}},
	})
	require.NoError(t, err)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit), pb.src)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit), pb.dst)
	assert.Equal(t, vk.DependencyFlags(vk.DependencyByRegionBit), pb.flags)

	require.Len(t, pb.images, 1)
	ib := pb.images[0]
	assert.Equal(t, vk.ImageLayoutGeneral, ib.OldLayout)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, ib.NewLayout)
	assert.Equal(t, uint32(1), ib.SrcQueueFamilyIndex)
	assert.Equal(t, uint32(0), ib.DstQueueFamilyIndex)
	assert.Equal(t, vk.ImageAspectFlags(vk.ImageAspectColorBit), ib.SubresourceRange.AspectMask)
	assert.Equal(t, uint32(1), ib.SubresourceRange.LevelCount)

	require.Len(t, pb.buffers, 1)
	assert.Equal(t, uint32(vk.QueueFamilyIgnored), pb.buffers[0].SrcQueueFamilyIndex)
	assert.Equal(t, vk.DeviceSize(vk.WholeSize), pb.buffers[0].Size)
}

func TestConvertBarrierRejectsForeignResource(t *testing.T) {
	_, err := convertBarrier(inflight.Barrier{
		Images: []inflight.ImageBarrier{{Resource: foreignResource{}}},
	})
	assert.ErrorContains(t, err, "foreign")
}

func TestSubpassDependencyExternal(t *testing.T) {
	dep := subpassDependency(inflight.SubpassDependency{
		Src:       inflight.SubpassExternal,
		Dst:       0,
		SrcStage:  inflight.StageColorAttachmentOutput,
		DstStage:  inflight.StageColorAttachmentOutput,
		DstAccess: inflight.AccessColorAttachmentWrite,
	})
	assert.Equal(t, uint32(vk.SubpassExternal), dep.SrcSubpass)
	assert.Equal(t, uint32(0), dep.DstSubpass)
	assert.Equal(t, vk.DependencyFlags(0), dep.DependencyFlags)

	dep = subpassDependency(inflight.SubpassDependency{Src: 0, Dst: 1, ByRegion: true})
	assert.Equal(t, uint32(0), dep.SrcSubpass)
	assert.Equal(t, uint32(1), dep.DstSubpass)
	assert.Equal(t, vk.DependencyFlags(vk.DependencyByRegionBit), dep.DependencyFlags)
	assert.Equal(t, vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), dep.SrcStageMask)
}
