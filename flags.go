package inflight

import (
	"fmt"
	"strings"
)

// Stage is a set of pipeline stages. Bit values match the Vulkan
// VkPipelineStageFlagBits so backends can convert with a plain cast.
type Stage uint32

const (
	StageTopOfPipe             Stage = 0x00000001
	StageDrawIndirect          Stage = 0x00000002
	StageVertexInput           Stage = 0x00000004
	StageVertexShader          Stage = 0x00000008
	StageFragmentShader        Stage = 0x00000080
	StageEarlyFragmentTests    Stage = 0x00000100
	StageLateFragmentTests     Stage = 0x00000200
	StageColorAttachmentOutput Stage = 0x00000400
	StageComputeShader         Stage = 0x00000800
	StageTransfer              Stage = 0x00001000
	StageBottomOfPipe          Stage = 0x00002000
	StageHost                  Stage = 0x00004000
	StageAllGraphics           Stage = 0x00008000
	StageAllCommands           Stage = 0x00010000
)

var stageNames = []struct {
	bit  Stage
	name string
}{
	{StageTopOfPipe, "TOP_OF_PIPE"},
	{StageDrawIndirect, "DRAW_INDIRECT"},
	{StageVertexInput, "VERTEX_INPUT"},
	{StageVertexShader, "VERTEX_SHADER"},
	{StageFragmentShader, "FRAGMENT_SHADER"},
	{StageEarlyFragmentTests, "EARLY_FRAGMENT_TESTS"},
	{StageLateFragmentTests, "LATE_FRAGMENT_TESTS"},
	{StageColorAttachmentOutput, "COLOR_ATTACHMENT_OUTPUT"},
	{StageComputeShader, "COMPUTE_SHADER"},
	{StageTransfer, "TRANSFER"},
	{StageBottomOfPipe, "BOTTOM_OF_PIPE"},
	{StageHost, "HOST"},
	{StageAllGraphics, "ALL_GRAPHICS"},
	{StageAllCommands, "ALL_COMMANDS"},
}

func (s Stage) String() string {
	if s == 0 {
		return "NONE"
	}
	var parts []string
	for _, n := range stageNames {
		if s&n.bit != 0 {
			parts = append(parts, n.name)
			s &^= n.bit
		}
	}
	if s != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(s)))
	}
	return strings.Join(parts, "|")
}

// Access is a set of memory access types. Bit values match VkAccessFlagBits.
type Access uint32

const (
	AccessIndirectCommandRead  Access = 0x00000001
	AccessIndexRead            Access = 0x00000002
	AccessVertexAttributeRead  Access = 0x00000004
	AccessUniformRead          Access = 0x00000008
	AccessInputAttachmentRead  Access = 0x00000010
	AccessShaderRead           Access = 0x00000020
	AccessShaderWrite          Access = 0x00000040
	AccessColorAttachmentRead  Access = 0x00000080
	AccessColorAttachmentWrite Access = 0x00000100
	AccessDepthStencilRead     Access = 0x00000200
	AccessDepthStencilWrite    Access = 0x00000400
	AccessTransferRead         Access = 0x00000800
	AccessTransferWrite        Access = 0x00001000
	AccessHostRead             Access = 0x00002000
	AccessHostWrite            Access = 0x00004000
	AccessMemoryRead           Access = 0x00008000
	AccessMemoryWrite          Access = 0x00010000

	accessWrites = AccessShaderWrite | AccessColorAttachmentWrite | AccessDepthStencilWrite |
		AccessTransferWrite | AccessHostWrite | AccessMemoryWrite
)

var accessNames = []struct {
	bit  Access
	name string
}{
	{AccessIndirectCommandRead, "INDIRECT_COMMAND_READ"},
	{AccessIndexRead, "INDEX_READ"},
	{AccessVertexAttributeRead, "VERTEX_ATTRIBUTE_READ"},
	{AccessUniformRead, "UNIFORM_READ"},
	{AccessInputAttachmentRead, "INPUT_ATTACHMENT_READ"},
	{AccessShaderRead, "SHADER_READ"},
	{AccessShaderWrite, "SHADER_WRITE"},
	{AccessColorAttachmentRead, "COLOR_ATTACHMENT_READ"},
	{AccessColorAttachmentWrite, "COLOR_ATTACHMENT_WRITE"},
	{AccessDepthStencilRead, "DEPTH_STENCIL_READ"},
	{AccessDepthStencilWrite, "DEPTH_STENCIL_WRITE"},
	{AccessTransferRead, "TRANSFER_READ"},
	{AccessTransferWrite, "TRANSFER_WRITE"},
	{AccessHostRead, "HOST_READ"},
	{AccessHostWrite, "HOST_WRITE"},
	{AccessMemoryRead, "MEMORY_READ"},
	{AccessMemoryWrite, "MEMORY_WRITE"},
}

// Writes returns the write subset of a.
func (a Access) Writes() Access {
	return a & accessWrites
}

// IsWrite reports whether a contains any write access.
func (a Access) IsWrite() bool {
	return a.Writes() != 0
}

func (a Access) String() string {
	if a == 0 {
		return "NONE"
	}
	var parts []string
	for _, n := range accessNames {
		if a&n.bit != 0 {
			parts = append(parts, n.name)
			a &^= n.bit
		}
	}
	if a != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(a)))
	}
	return strings.Join(parts, "|")
}

// Layout is an image layout. Values match VkImageLayout.
type Layout int32

const (
	LayoutUndefined                     Layout = 0
	LayoutGeneral                       Layout = 1
	LayoutColorAttachmentOptimal        Layout = 2
	LayoutDepthStencilAttachmentOptimal Layout = 3
	LayoutDepthStencilReadOnlyOptimal   Layout = 4
	LayoutShaderReadOnlyOptimal         Layout = 5
	LayoutTransferSrcOptimal            Layout = 6
	LayoutTransferDstOptimal            Layout = 7
	LayoutPreinitialized                Layout = 8
	LayoutPresentSrc                    Layout = 1000001002
)

func (l Layout) String() string {
	switch l {
	case LayoutUndefined:
		return "UNDEFINED"
	case LayoutGeneral:
		return "GENERAL"
	case LayoutColorAttachmentOptimal:
		return "COLOR_ATTACHMENT_OPTIMAL"
	case LayoutDepthStencilAttachmentOptimal:
		return "DEPTH_STENCIL_ATTACHMENT_OPTIMAL"
	case LayoutDepthStencilReadOnlyOptimal:
		return "DEPTH_STENCIL_READ_ONLY_OPTIMAL"
	case LayoutShaderReadOnlyOptimal:
		return "SHADER_READ_ONLY_OPTIMAL"
	case LayoutTransferSrcOptimal:
		return "TRANSFER_SRC_OPTIMAL"
	case LayoutTransferDstOptimal:
		return "TRANSFER_DST_OPTIMAL"
	case LayoutPreinitialized:
		return "PREINITIALIZED"
	case LayoutPresentSrc:
		return "PRESENT_SRC"
	}
	return fmt.Sprintf("Layout(%d)", int32(l))
}

// QueueCaps describes what a queue can execute. The low bits match
// VkQueueFlagBits; CapPresent is engine specific.
type QueueCaps uint32

const (
	CapGraphics QueueCaps = 0x1
	CapCompute  QueueCaps = 0x2
	CapTransfer QueueCaps = 0x4
	CapPresent  QueueCaps = 0x10000
)

func (c QueueCaps) String() string {
	var parts []string
	if c&CapGraphics != 0 {
		parts = append(parts, "graphics")
	}
	if c&CapCompute != 0 {
		parts = append(parts, "compute")
	}
	if c&CapTransfer != 0 {
		parts = append(parts, "transfer")
	}
	if c&CapPresent != 0 {
		parts = append(parts, "present")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}
