package demo

import (
	"errors"
	"fmt"

	"github.com/celer/inflight"
	"github.com/celer/inflight/softgpu"
)

// SessionOptions configures a Session.
type SessionOptions struct {
	Scene string
	Options
	// Extent of the window surface. Zero renders offscreen.
	Extent inflight.Extent
	// Images in each swapchain.
	Images int
}

// Session runs a scene through a Renderer on a fresh soft device.
type Session struct {
	Env      *Env
	Scene    *Scene
	Renderer *inflight.Renderer[*SlotState]
	Surface  *softgpu.Surface
}

// Report is the outcome of a session.
type Report struct {
	Scene   string
	Stats   inflight.Stats
	Result  Result
	Hazards []softgpu.Hazard
	Misuse  []error
	Leaks   []string
	Draws   int
	Indices uint64
	// Uniforms is the arena space of one slot.
	Uniforms uint64
	Err      error
}

func NewSession(cfg inflight.Config, opts SessionOptions) (*Session, error) {
	env := NewEnv()
	scene, err := NewScene(opts.Scene, env, opts.Options)
	if err != nil {
		env.Device.Close()
		return nil, err
	}
	s := &Session{Env: env, Scene: scene}

	be := inflight.Backend{Device: env.Device, Graphics: env.Graphics}
	if !opts.Extent.Zero() {
		images := opts.Images
		if images == 0 {
			images = 3
		}
		s.Surface = env.Device.NewSurface(opts.Extent.Width, opts.Extent.Height, images)
		be.Surface = s.Surface
	}
	s.Renderer, err = inflight.NewRenderer(cfg, be, scene.NewSlot)
	if err != nil {
		scene.Destroy()
		env.Device.Close()
		return nil, err
	}
	return s, nil
}

// Frame draws one frame.
func (s *Session) Frame() error {
	return s.Renderer.DrawFrame(s.Scene.Record)
}

// Run draws frames frames, calling before ahead of each one. It stops at
// the first error.
func (s *Session) Run(frames int, before func(i int)) error {
	for i := 0; i < frames; i++ {
		if before != nil {
			before(i)
		}
		if err := s.Frame(); err != nil {
			return fmt.Errorf("frame %d: %w", i, err)
		}
	}
	return nil
}

// Resize changes the surface extent and tells the renderer.
func (s *Session) Resize(width, height uint32) error {
	if s.Surface == nil {
		return errors.New("session renders offscreen")
	}
	s.Surface.SetExtent(width, height)
	s.Renderer.Resize()
	return nil
}

// Lose simulates a lost device.
func (s *Session) Lose() {
	s.Env.Device.Lose()
}

// Close shuts the renderer down, releases the scene and reports. The
// device is closed afterwards.
func (s *Session) Close() Report {
	r := Report{Scene: s.Scene.Name, Uniforms: uint64(s.Renderer.Config().UniformArena)}
	r.Err = s.Renderer.Close(s.Scene.Release)
	s.Scene.Destroy()

	r.Stats = s.Renderer.Stats()
	r.Result = s.Scene.Result()
	r.Hazards = s.Env.Device.Hazards()
	r.Misuse = s.Env.Device.Misuse()
	r.Leaks = s.Env.Device.Leaks()
	r.Draws, r.Indices = s.Env.Device.Draws()
	s.Env.Device.Close()
	return r
}
