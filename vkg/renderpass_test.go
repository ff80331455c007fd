package vkg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"

	"github.com/celer/inflight"
)

func TestSubpassReferences(t *testing.T) {
	albedo := &testImage{name: "albedo"}
	depth := &testImage{name: "depth"}
	shadow := &testImage{name: "shadow"}
	index := map[inflight.Resource]uint32{albedo: 0, depth: 1}

	gbuffer := &inflight.Pass{
		Name: "gbuffer",
		Writes: []inflight.Use{
			{Resource: albedo, Stage: inflight.StageColorAttachmentOutput, Access: inflight.AccessColorAttachmentWrite},
			{Resource: depth, Stage: inflight.StageLateFragmentTests, Access: inflight.AccessDepthStencilWrite, Layout: inflight.LayoutDepthStencilAttachmentOptimal},
		},
	}
	desc, err := subpass(gbuffer, index)
	require.NoError(t, err)
	require.Len(t, desc.PColorAttachments, 1)
	assert.Equal(t, uint32(0), desc.PColorAttachments[0].Attachment)
	assert.Equal(t, vk.ImageLayoutColorAttachmentOptimal, desc.PColorAttachments[0].Layout)
	require.NotNil(t, desc.PDepthStencilAttachment)
	assert.Equal(t, uint32(1), desc.PDepthStencilAttachment.Attachment)

	lighting := &inflight.Pass{
		Name: "lighting",
		Reads: []inflight.Use{
			{Resource: albedo, Stage: inflight.StageFragmentShader, Access: inflight.AccessInputAttachmentRead, Local: true},
			{Resource: shadow, Stage: inflight.StageFragmentShader, Access: inflight.AccessShaderRead},
		},
	}
	desc, err = subpass(lighting, index)
	require.NoError(t, err)
	assert.Empty(t, desc.PColorAttachments)
	assert.Nil(t, desc.PDepthStencilAttachment)
	require.Len(t, desc.PInputAttachments, 1)
	assert.Equal(t, vk.ImageLayoutShaderReadOnlyOptimal, desc.PInputAttachments[0].Layout)
}

func TestSubpassTwoDepthAttachments(t *testing.T) {
	a, b := &testImage{name: "a"}, &testImage{name: "b"}
	p := &inflight.Pass{
		Name: "bad",
		Writes: []inflight.Use{
			{Resource: a, Layout: inflight.LayoutDepthStencilAttachmentOptimal},
			{Resource: b, Layout: inflight.LayoutDepthStencilAttachmentOptimal},
		},
	}
	_, err := subpass(p, map[inflight.Resource]uint32{a: 0, b: 1})
	assert.ErrorContains(t, err, "two depth attachments")
}
