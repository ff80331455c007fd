package demo

import (
	"unsafe"

	lin "github.com/xlab/linmath"

	"github.com/celer/inflight"
)

// Uniforms is the per-frame camera and light block. It is rewritten every
// frame into the slot's uniform arena.
type Uniforms struct {
	Model      lin.Mat4x4
	View       lin.Mat4x4
	Proj       lin.Mat4x4
	LightSpace lin.Mat4x4
	Frame      uint64
	_          uint64
}

var uniformSize = uint64(unsafe.Sizeof(Uniforms{}))

// newUniforms spins the model two degrees a frame and looks at it from
// (2, 2, 2), as the classic cube demo does.
func newUniforms(frame uint64, extent inflight.Extent) *Uniforms {
	u := &Uniforms{Frame: frame}

	var m lin.Mat4x4
	m.Identity()
	u.Model.Rotate(&m, 0.0, 0.0, 1.0, lin.DegreesToRadians(float32(frame%180)*2))
	u.View.LookAt(&lin.Vec3{2, 2, 2}, &lin.Vec3{0, 0, 0}, &lin.Vec3{0, 0, 1})

	ratio := float32(16) / 9
	if !extent.Zero() {
		ratio = float32(extent.Width) / float32(extent.Height)
	}
	u.Proj.Perspective(lin.DegreesToRadians(45), ratio, 0.1, 10.0)

	var lightProj, lightView lin.Mat4x4
	lightProj.Ortho(-5, 5, -5, 5, 0.1, 20)
	lightView.LookAt(&lin.Vec3{4, -4, 8}, &lin.Vec3{0, 0, 0}, &lin.Vec3{0, 0, 1})
	u.LightSpace.Mult(&lightProj, &lightView)
	return u
}

func (u *Uniforms) Bytes() []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(u)), uniformSize)
}

// decodeUniforms copies b into a Uniforms. Short input yields nil.
func decodeUniforms(b []byte) *Uniforms {
	if uint64(len(b)) < uniformSize {
		return nil
	}
	u := &Uniforms{}
	copy(u.Bytes(), b)
	return u
}
