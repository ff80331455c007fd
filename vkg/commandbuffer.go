package vkg

import (
	"fmt"

	"github.com/pkg/errors"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

// CommandBuffer describes a sequence of commands that will be executed
// upon being sent to a device queue. It implements inflight.CommandBuffer
// plus the draw and dispatch commands the examples need. Applications may
// still call native commands on VK().
//
// Recording errors that cannot be returned where they happen, such as a
// barrier on a non-Vulkan resource, are kept and reported by End.
type CommandBuffer struct {
	Pool            *CommandPool
	VKCommandBuffer vk.CommandBuffer

	label string
	err   error
}

var _ inflight.CommandBuffer = (*CommandBuffer)(nil)

// VK is a utility function for accessing the native vulkan command buffer
func (c *CommandBuffer) VK() vk.CommandBuffer {
	return c.VKCommandBuffer
}

// Begin starts a one time submit recording. Slot command buffers are
// re-recorded every frame.
func (c *CommandBuffer) Begin() error {
	c.err = nil
	c.label = ""
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	return check("begin command buffer", vk.BeginCommandBuffer(c.VKCommandBuffer, &beginInfo))
}

// End finishes recording and reports the first deferred recording error.
func (c *CommandBuffer) End() error {
	if err := check("end command buffer", vk.EndCommandBuffer(c.VKCommandBuffer)); err != nil {
		return err
	}
	return c.err
}

func (c *CommandBuffer) Reset() error {
	return check("reset command buffer", vk.ResetCommandBuffer(c.VKCommandBuffer, 0))
}

// Label names the pass being recorded in later errors.
func (c *CommandBuffer) Label(name string) {
	c.label = name
}

func (c *CommandBuffer) fail(err error) {
	if c.err != nil {
		return
	}
	if c.label != "" {
		err = errors.Wrapf(err, "pass %s", c.label)
	}
	c.err = err
}

func (c *CommandBuffer) PipelineBarrier(b inflight.Barrier) {
	if b.Empty() {
		return
	}
	pb, err := convertBarrier(b)
	if err != nil {
		c.fail(err)
		return
	}
	pb.record(c.VKCommandBuffer)
}

// BeginRenderPass begins the render pass of a subpass group. The group's
// Target must be the *RenderTarget for the framebuffer being drawn.
func (c *CommandBuffer) BeginRenderPass(g *inflight.SubpassGroup) error {
	rt, ok := g.Target.(*RenderTarget)
	if !ok || rt == nil {
		return fmt.Errorf("group %s has no render target", g.Name)
	}
	info := vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  rt.RenderPass.VKRenderPass,
		Framebuffer: rt.Framebuffer,
		RenderArea: vk.Rect2D{
			Extent: vk.Extent2D{Width: rt.Extent.Width, Height: rt.Extent.Height},
		},
		ClearValueCount: uint32(len(rt.RenderPass.clears)),
		PClearValues:    rt.RenderPass.clears,
	}
	vk.CmdBeginRenderPass(c.VKCommandBuffer, &info, vk.SubpassContentsInline)
	return nil
}

func (c *CommandBuffer) NextSubpass() {
	vk.CmdNextSubpass(c.VKCommandBuffer, vk.SubpassContentsInline)
}

func (c *CommandBuffer) EndRenderPass() {
	vk.CmdEndRenderPass(c.VKCommandBuffer)
}

// Destroy returns the command buffer to its pool.
func (c *CommandBuffer) Destroy() {
	c.Pool.FreeBuffer(c)
}

func (c *CommandBuffer) BindComputePipeline(p *ComputePipeline) {
	vk.CmdBindPipeline(c.VKCommandBuffer, vk.PipelineBindPointCompute, p.VKPipeline)
}

func (c *CommandBuffer) BindGraphicsPipeline(p vk.Pipeline) {
	vk.CmdBindPipeline(c.VKCommandBuffer, vk.PipelineBindPointGraphics, p)
}

func (c *CommandBuffer) BindDescriptorSets(bindPoint vk.PipelineBindPoint, layout *PipelineLayout, firstSet int, descriptorSets ...*DescriptorSet) {
	sets := make([]vk.DescriptorSet, len(descriptorSets))
	for i := range descriptorSets {
		sets[i] = descriptorSets[i].VKDescriptorSet
	}
	vk.CmdBindDescriptorSets(c.VKCommandBuffer, bindPoint,
		layout.VKPipelineLayout, uint32(firstSet), uint32(len(sets)), sets, 0, nil)
}

func (c *CommandBuffer) Dispatch(x, y, z int) {
	vk.CmdDispatch(c.VKCommandBuffer, uint32(x), uint32(y), uint32(z))
}

// SetViewport sets a full-depth viewport covering extent.
func (c *CommandBuffer) SetViewport(extent inflight.Extent) {
	vk.CmdSetViewport(c.VKCommandBuffer, 0, 1, []vk.Viewport{{
		Width:    float32(extent.Width),
		Height:   float32(extent.Height),
		MaxDepth: 1,
	}})
}

func (c *CommandBuffer) SetScissor(x, y int32, width, height uint32) {
	vk.CmdSetScissor(c.VKCommandBuffer, 0, 1, []vk.Rect2D{{
		Offset: vk.Offset2D{X: x, Y: y},
		Extent: vk.Extent2D{Width: width, Height: height},
	}})
}

// DrawIndexed binds buf as both vertex and 16 bit index buffer, at the given
// offsets, and draws indexCount indices starting at firstIndex.
func (c *CommandBuffer) DrawIndexed(buf inflight.HostBuffer, vertexOffset, indexOffset uint64, indexCount, firstIndex uint32) {
	hb, ok := buf.(*HostBuffer)
	if !ok {
		c.fail(fmt.Errorf("draw from %T: not a vulkan host buffer", buf))
		return
	}
	vk.CmdBindVertexBuffers(c.VKCommandBuffer, 0, 1, []vk.Buffer{hb.VKBuffer}, []vk.DeviceSize{vk.DeviceSize(vertexOffset)})
	vk.CmdBindIndexBuffer(c.VKCommandBuffer, hb.VKBuffer, vk.DeviceSize(indexOffset), vk.IndexTypeUint16)
	vk.CmdDrawIndexed(c.VKCommandBuffer, indexCount, 1, firstIndex, 0, 0)
}

// Draw draws vertexCount vertices without vertex buffers.
func (c *CommandBuffer) Draw(vertexCount uint32) {
	vk.CmdDraw(c.VKCommandBuffer, vertexCount, 1, 0, 0)
}

// BlitImage copies src, in TRANSFER_SRC_OPTIMAL, to dst, in
// TRANSFER_DST_OPTIMAL, scaling to dst's extent.
func (c *CommandBuffer) BlitImage(src, dst *Image) {
	layers := vk.ImageSubresourceLayers{
		AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
		LayerCount: 1,
	}
	region := vk.ImageBlit{
		SrcSubresource: layers,
		SrcOffsets:     [2]vk.Offset3D{{}, {X: int32(src.Extent.Width), Y: int32(src.Extent.Height), Z: 1}},
		DstSubresource: layers,
		DstOffsets:     [2]vk.Offset3D{{}, {X: int32(dst.Extent.Width), Y: int32(dst.Extent.Height), Z: 1}},
	}
	vk.CmdBlitImage(c.VKCommandBuffer,
		src.VKImage, vk.ImageLayoutTransferSrcOptimal,
		dst.VKImage, vk.ImageLayoutTransferDstOptimal,
		1, []vk.ImageBlit{region}, vk.FilterLinear)
}
