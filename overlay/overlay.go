// Package overlay draws an imgui user interface as part of a frame. Vertex
// and index data are copied into the frame slot's uniform arena, so an
// overlay frame is bound by the same gate as the rest of the frame and is
// never overwritten while the GPU still reads it.
package overlay

import (
	"fmt"
	"time"
	"unsafe"

	"github.com/inkyblackness/imgui-go"
	lin "github.com/xlab/linmath"

	"github.com/celer/inflight"
)

// Drawer is the part of a command buffer the overlay records into. Indices
// are 16 bits wide.
type Drawer interface {
	SetScissor(x, y int32, width, height uint32)
	DrawIndexed(buf inflight.HostBuffer, vertexOffset, indexOffset uint64, indexCount, firstIndex uint32)
}

// UI draws widgets. It is called between imgui.NewFrame and imgui.Render.
type UI interface {
	DrawUI()
}

// Stats describes one recorded overlay frame.
type Stats struct {
	Lists    int
	Commands int
	Vertices int
	Indices  int
	// Bytes is the arena space taken by draw data and the projection.
	Bytes uint64
	// Projection is where the orthographic projection was written.
	Projection *inflight.Allocation
}

type projection struct {
	Proj lin.Mat4x4
}

func (p *projection) bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(p)), unsafe.Sizeof(*p))
}

// Overlay owns an imgui context.
type Overlay struct {
	context *imgui.Context
	io      imgui.IO
	uis     []UI

	atlasWidth  int
	atlasHeight int
	atlas       []byte
}

// New creates an imgui context and builds its font atlas.
func New() *Overlay {
	context := imgui.CreateContext(nil)
	io := imgui.CurrentIO()
	img := io.Fonts().TextureDataRGBA32()
	io.Fonts().SetTextureID(imgui.TextureID(1))

	o := &Overlay{
		context:     context,
		io:          io,
		atlasWidth:  img.Width,
		atlasHeight: img.Height,
	}
	if img.Pixels != nil {
		o.atlas = append([]byte(nil), unsafe.Slice((*byte)(img.Pixels), img.Width*img.Height*4)...)
	}
	return o
}

func (o *Overlay) AddUI(ui UI) {
	o.uis = append(o.uis, ui)
}

// FontAtlas returns the RGBA font texture a backend uploads once.
func (o *Overlay) FontAtlas() (width, height int, pixels []byte) {
	return o.atlasWidth, o.atlasHeight, o.atlas
}

// Record builds the UI for a display of the given extent and records one
// indexed draw per imgui command into d. dt of zero counts as 1/60s.
func (o *Overlay) Record(d Drawer, arena *inflight.Arena, extent inflight.Extent, dt time.Duration) (Stats, error) {
	var st Stats
	if arena == nil || arena.Buffer() == nil {
		return st, fmt.Errorf("overlay needs a uniform arena")
	}
	if extent.Zero() {
		return st, nil
	}
	if size := imgui.IndexBufferLayout(); size != 2 {
		return st, fmt.Errorf("overlay draws 16 bit indices, imgui uses %d bytes", size)
	}
	if err := o.context.SetCurrent(); err != nil {
		return st, err
	}

	if dt <= 0 {
		dt = time.Second / 60
	}
	o.io.SetDeltaTime(float32(dt.Seconds()))
	o.io.SetDisplaySize(imgui.Vec2{X: float32(extent.Width), Y: float32(extent.Height)})
	imgui.NewFrame()
	for _, ui := range o.uis {
		ui.DrawUI()
	}
	imgui.Render()
	drawData := imgui.RenderedDrawData()
	drawData.ScaleClipRects(imgui.Vec2{X: 1, Y: 1})

	w, h := float32(extent.Width), float32(extent.Height)
	p := projection{Proj: lin.Mat4x4{
		{2.0 / w, 0, 0, 0},
		{0, 2.0 / h, 0, 0},
		{0, 0, 1, 0},
		{-1, -1, 0, 1},
	}}
	proj, err := arena.Write(p.bytes())
	if err != nil {
		return st, fmt.Errorf("overlay projection: %w", err)
	}
	st.Projection = proj
	st.Bytes += proj.Size

	vertexSize, _, _, _ := imgui.VertexBufferLayout()
	for _, list := range drawData.CommandLists() {
		vertexData, vertexBytes := list.VertexBuffer()
		indexData, indexBytes := list.IndexBuffer()
		if vertexBytes == 0 || indexBytes == 0 {
			continue
		}
		vertices, err := arena.Write(unsafe.Slice((*byte)(vertexData), vertexBytes))
		if err != nil {
			return st, fmt.Errorf("overlay vertices: %w", err)
		}
		indices, err := arena.Write(unsafe.Slice((*byte)(indexData), indexBytes))
		if err != nil {
			return st, fmt.Errorf("overlay indices: %w", err)
		}
		st.Lists++
		st.Vertices += vertexBytes / vertexSize
		st.Indices += indexBytes / 2
		st.Bytes += vertices.Size + indices.Size

		var first uint32
		for _, cmd := range list.Commands() {
			if cmd.HasUserCallback() {
				cmd.CallUserCallback(list)
				continue
			}
			x, y, cw, ch := scissor(cmd.ClipRect(), w, h)
			d.SetScissor(x, y, cw, ch)
			count := uint32(cmd.ElementCount())
			d.DrawIndexed(arena.Buffer(), vertices.Offset, indices.Offset, count, first)
			first += count
			st.Commands++
		}
	}
	if err := arena.Flush(); err != nil {
		return st, err
	}
	return st, nil
}

// scissor clamps an imgui clip rectangle to the display.
func scissor(clip imgui.Vec4, w, h float32) (int32, int32, uint32, uint32) {
	x0, y0 := max(clip.X, 0), max(clip.Y, 0)
	x1, y1 := min(clip.Z, w), min(clip.W, h)
	if x1 <= x0 || y1 <= y0 {
		return int32(x0), int32(y0), 0, 0
	}
	return int32(x0), int32(y0), uint32(x1 - x0), uint32(y1 - y0)
}

func (o *Overlay) Destroy() {
	o.context.Destroy()
}
