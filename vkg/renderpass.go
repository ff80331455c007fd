package vkg

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

// Attachment is one framebuffer attachment. Passes of the group refer to it
// through their uses of Resource.
type Attachment struct {
	Resource inflight.Resource
	Format   vk.Format
	Load     vk.AttachmentLoadOp
	Store    vk.AttachmentStoreOp
	Initial  inflight.Layout
	Final    inflight.Layout
	Clear    vk.ClearValue
}

// ClearColor is a colour clear value.
func ClearColor(r, g, b, a float32) vk.ClearValue {
	return vk.NewClearValue([]float32{r, g, b, a})
}

// ClearDepth is a depth clear value with a zero stencil.
func ClearDepth(depth float32) vk.ClearValue {
	return vk.NewClearDepthStencil(depth, 0)
}

// RenderPass is the Vulkan render pass of a compiled subpass group.
type RenderPass struct {
	Device       *Device
	VKRenderPass vk.RenderPass
	Group        *inflight.SubpassGroup

	attachments []Attachment
	clears      []vk.ClearValue
}

func isDepthLayout(l inflight.Layout) bool {
	return l == inflight.LayoutDepthStencilAttachmentOptimal || l == inflight.LayoutDepthStencilReadOnlyOptimal
}

func orLayout(l, def inflight.Layout) vk.ImageLayout {
	if l == inflight.LayoutUndefined {
		l = def
	}
	return vk.ImageLayout(l)
}

// subpass builds the attachment references of one pass: local reads of an
// attachment become input attachments, depth layouts the depth attachment,
// and other writes colour attachments.
func subpass(p *inflight.Pass, index map[inflight.Resource]uint32) (vk.SubpassDescription, error) {
	desc := vk.SubpassDescription{PipelineBindPoint: vk.PipelineBindPointGraphics}
	var color, input []vk.AttachmentReference
	var depth *vk.AttachmentReference

	setDepth := func(u inflight.Use, i uint32) error {
		if depth != nil && depth.Attachment != i {
			return fmt.Errorf("pass %s uses two depth attachments", p.Name)
		}
		depth = &vk.AttachmentReference{Attachment: i, Layout: vk.ImageLayout(u.Layout)}
		return nil
	}

	for _, u := range p.Reads {
		i, ok := index[u.Resource]
		if !ok {
			continue
		}
		switch {
		case u.Local:
			input = append(input, vk.AttachmentReference{Attachment: i, Layout: orLayout(u.Layout, inflight.LayoutShaderReadOnlyOptimal)})
		case isDepthLayout(u.Layout):
			if err := setDepth(u, i); err != nil {
				return desc, err
			}
		}
	}
	for _, u := range p.Writes {
		i, ok := index[u.Resource]
		if !ok {
			continue
		}
		if isDepthLayout(u.Layout) {
			if err := setDepth(u, i); err != nil {
				return desc, err
			}
			continue
		}
		color = append(color, vk.AttachmentReference{Attachment: i, Layout: orLayout(u.Layout, inflight.LayoutColorAttachmentOptimal)})
	}

	desc.ColorAttachmentCount = uint32(len(color))
	desc.PColorAttachments = color
	desc.InputAttachmentCount = uint32(len(input))
	desc.PInputAttachments = input
	desc.PDepthStencilAttachment = depth
	return desc, nil
}

// NewRenderPass creates the render pass for g. Subpasses follow the order of
// g.Passes and every dependency of the group is carried over, by region where
// the graph marked it so.
func (d *Device) NewRenderPass(g *inflight.SubpassGroup, attachments []Attachment) (*RenderPass, error) {
	index := make(map[inflight.Resource]uint32, len(attachments))
	descs := make([]vk.AttachmentDescription, len(attachments))
	clears := make([]vk.ClearValue, len(attachments))
	for i, a := range attachments {
		index[a.Resource] = uint32(i)
		descs[i] = vk.AttachmentDescription{
			Format:         a.Format,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         a.Load,
			StoreOp:        a.Store,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayout(a.Initial),
			FinalLayout:    vk.ImageLayout(a.Final),
		}
		clears[i] = a.Clear
	}

	subpasses := make([]vk.SubpassDescription, len(g.Passes))
	for i, p := range g.Passes {
		desc, err := subpass(p, index)
		if err != nil {
			return nil, fmt.Errorf("render pass %s: %w", g.Name, err)
		}
		subpasses[i] = desc
	}

	deps := make([]vk.SubpassDependency, len(g.Dependencies))
	for i, dep := range g.Dependencies {
		deps[i] = subpassDependency(dep)
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(descs)),
		PAttachments:    descs,
		SubpassCount:    uint32(len(subpasses)),
		PSubpasses:      subpasses,
		DependencyCount: uint32(len(deps)),
		PDependencies:   deps,
	}
	var rp vk.RenderPass
	if err := check("create render pass "+g.Name, vk.CreateRenderPass(d.VKDevice, &info, nil, &rp)); err != nil {
		return nil, err
	}
	return &RenderPass{Device: d, VKRenderPass: rp, Group: g, attachments: attachments, clears: clears}, nil
}

func (r *RenderPass) Destroy() {
	vk.DestroyRenderPass(r.Device.VKDevice, r.VKRenderPass, nil)
}

// RenderTarget is a framebuffer of a render pass. Set it as the group's
// Target before recording the group.
type RenderTarget struct {
	RenderPass  *RenderPass
	Framebuffer vk.Framebuffer
	Extent      inflight.Extent
}

// NewTarget creates a framebuffer with one view per attachment, in
// attachment order.
func (r *RenderPass) NewTarget(extent inflight.Extent, views ...*ImageView) (*RenderTarget, error) {
	if len(views) != len(r.attachments) {
		return nil, fmt.Errorf("render pass %s has %d attachments, got %d views", r.Group.Name, len(r.attachments), len(views))
	}
	handles := make([]vk.ImageView, len(views))
	for i, v := range views {
		handles[i] = v.VKImageView
	}
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      r.VKRenderPass,
		AttachmentCount: uint32(len(handles)),
		PAttachments:    handles,
		Width:           extent.Width,
		Height:          extent.Height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := check("create framebuffer "+r.Group.Name, vk.CreateFramebuffer(r.Device.VKDevice, &info, nil, &fb)); err != nil {
		return nil, err
	}
	return &RenderTarget{RenderPass: r, Framebuffer: fb, Extent: extent}, nil
}

func (t *RenderTarget) Destroy() {
	vk.DestroyFramebuffer(t.RenderPass.Device.VKDevice, t.Framebuffer, nil)
}
