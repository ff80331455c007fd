// Package demo holds the worked frame pipelines: a single-pass triangle,
// deferred shadows, SSAO and a compute filter handed from the compute queue
// to the graphics queue. Each one is a dependency graph recorded on the
// software GPU, where every pass stamps its outputs with the oldest frame
// index among its inputs. A frame whose final image carries an older stamp
// read something a previous frame wrote, which is what a missing edge looks
// like under load.
package demo

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/celer/inflight"
	"github.com/celer/inflight/overlay"
	"github.com/celer/inflight/softgpu"
)

// Options shapes a scene.
type Options struct {
	// Delay is added to every pass that writes, and to every uniform read.
	// The compute filter takes filterCost times as long.
	Delay time.Duration
	// Omit lists edges, as "producer->consumer", left out of the graph.
	// Omitting an edge compiles the graph without validation.
	Omit []string
	// Overlay, when set, is drawn at the end of the ui pass.
	Overlay *overlay.Overlay
}

// Env is the soft device a scene runs on: a graphics queue on family 0 and
// a compute queue on family 1.
type Env struct {
	Device   *softgpu.Device
	Graphics *softgpu.Queue
	Compute  *softgpu.Queue
}

func NewEnv() *Env {
	d := softgpu.New()
	return &Env{
		Device:   d,
		Graphics: d.NewQueue(0, inflight.CapGraphics|inflight.CapCompute|inflight.CapTransfer|inflight.CapPresent),
		Compute:  d.NewQueue(1, inflight.CapCompute|inflight.CapTransfer),
	}
}

// SlotState is what each frame slot owns.
type SlotState struct {
	Plan *inflight.Plan
	// Filtered is the compute filter output of this slot, if any.
	Filtered *softgpu.Resource
}

// Result counts what the scene observed on the GPU side.
type Result struct {
	// Frames is the number of frames whose final image was read back.
	Frames int
	// Stale counts frames whose final image carried an older frame's stamp.
	Stale int
	// UniformMismatches counts uniform reads that saw another frame's block.
	UniformMismatches int
	// Overlay is the last overlay frame.
	Overlay overlay.Stats
}

type scenario struct {
	// edges lists every dependency, including cross-queue hand-offs.
	edges []string
	setup func(s *Scene)
	graph func(s *Scene, st *SlotState) *inflight.Graph
}

var scenarios = map[string]scenario{
	"triangle": triangle,
	"deferred": deferred,
	"ssao":     ssao,
	"filter":   filter,
}

// Names lists the scenarios.
func Names() []string {
	names := make([]string, 0, len(scenarios))
	for n := range scenarios {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Edges lists the dependency edges of a scenario.
func Edges(name string) ([]string, error) {
	sc, ok := scenarios[name]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q, have %s", name, strings.Join(Names(), ", "))
	}
	return append([]string(nil), sc.edges...), nil
}

// Scene is a scenario bound to an Env.
type Scene struct {
	Name string

	env  *Env
	opts Options
	sc   scenario
	omit map[string]bool

	images []*softgpu.Resource
	byName map[string]*softgpu.Resource
	// static holds read-only inputs and the value they were created with.
	static  map[*softgpu.Resource]int64
	readers map[string]bool
	output  *softgpu.Resource
	ui      string
	source  *softgpu.Resource

	mu     sync.Mutex
	plan   *inflight.Plan
	result Result
	last   time.Time
}

// NewScene creates the shared images of a scenario on env.
func NewScene(name string, env *Env, opts Options) (*Scene, error) {
	sc, ok := scenarios[name]
	if !ok {
		return nil, fmt.Errorf("unknown scenario %q, have %s", name, strings.Join(Names(), ", "))
	}
	s := &Scene{
		Name:    name,
		env:     env,
		opts:    opts,
		sc:      sc,
		omit:    map[string]bool{},
		byName:  map[string]*softgpu.Resource{},
		static:  map[*softgpu.Resource]int64{},
		readers: map[string]bool{},
	}
	for _, o := range opts.Omit {
		known := false
		for _, e := range sc.edges {
			if e == o {
				known = true
			}
		}
		if !known {
			return nil, fmt.Errorf("scenario %s has no edge %q, have %s", name, o, strings.Join(sc.edges, ", "))
		}
		s.omit[o] = true
	}
	sc.setup(s)
	return s, nil
}

func (s *Scene) image(name string) *softgpu.Resource {
	r := s.env.Device.NewImage(name)
	s.images = append(s.images, r)
	s.byName[name] = r
	return r
}

func (s *Scene) staticImage(name string, value int64) *softgpu.Resource {
	r := s.env.Device.NewConcurrentImage(name)
	r.SetValue(value)
	s.images = append(s.images, r)
	s.byName[name] = r
	s.static[r] = value
	return r
}

// Image returns a shared image by name, or nil.
func (s *Scene) Image(name string) *softgpu.Resource {
	return s.byName[name]
}

// depend adds an edge unless it is omitted.
func (s *Scene) depend(g *inflight.Graph, producer, consumer string, res inflight.Resource) {
	if s.omit[producer+"->"+consumer] {
		return
	}
	g.Depend(producer, consumer, res)
}

// NewSlot builds the slot's state and compiles its plan. It is the
// Renderer's newData callback.
func (s *Scene) NewSlot(slot *inflight.Slot[*SlotState]) (*SlotState, error) {
	st := &SlotState{}
	if s.source != nil {
		st.Filtered = s.env.Device.NewImage(fmt.Sprintf("filtered[%d]", slot.Index))
	}
	var opts []inflight.CompileOption
	if len(s.omit) > 0 {
		opts = append(opts, inflight.SkipValidation())
	}
	plan, err := s.sc.graph(s, st).Compile(opts...)
	if err != nil {
		s.Release(st)
		return nil, fmt.Errorf("scenario %s: %w", s.Name, err)
	}
	st.Plan = plan
	s.mu.Lock()
	s.plan = plan
	s.mu.Unlock()
	return st, nil
}

// Release frees what NewSlot created.
func (s *Scene) Release(st *SlotState) {
	if st != nil && st.Filtered != nil {
		st.Filtered.Destroy()
		st.Filtered = nil
	}
}

// Validate checks a freshly built graph of the scene, omissions included.
func (s *Scene) Validate() error {
	st := &SlotState{}
	if s.source != nil {
		st.Filtered = s.env.Device.NewImage("filtered")
		defer st.Filtered.Destroy()
	}
	return s.sc.graph(s, st).Validate()
}

// Plan is the most recently compiled plan.
func (s *Scene) Plan() *inflight.Plan {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plan
}

func (s *Scene) Result() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

func (s *Scene) note(f func(r *Result)) {
	s.mu.Lock()
	f(&s.result)
	s.mu.Unlock()
}

// Destroy releases the shared images. The GPU must be idle.
func (s *Scene) Destroy() {
	for _, r := range s.images {
		r.Destroy()
	}
	s.images = nil
}

// frameContext is what pass recorders need from the frame.
type frameContext struct {
	frame    uint64
	arena    *inflight.Arena
	uniforms *inflight.Allocation
	extent   inflight.Extent
	dt       time.Duration
}

const filterCost = 4

// defaultExtent is used offscreen.
var defaultExtent = inflight.Extent{Width: 1280, Height: 720}

// Record is the Renderer's recorder.
func (s *Scene) Record(f *inflight.Frame[*SlotState]) ([]inflight.Work, error) {
	st := f.Slot.Data
	fc := &frameContext{frame: f.Index, arena: f.Slot.Uniforms, extent: defaultExtent}
	sc, idx, acquired := f.Image()
	if acquired {
		fc.extent = sc.Extent()
	}
	now := time.Now()
	if !s.last.IsZero() {
		fc.dt = now.Sub(s.last)
	}
	s.last = now

	al, err := f.Slot.Uniforms.Write(newUniforms(f.Index, fc.extent).Bytes())
	if err != nil {
		return nil, err
	}
	if err := f.Slot.Uniforms.Flush(); err != nil {
		return nil, err
	}
	fc.uniforms = al

	var works []inflight.Work
	var ticket *inflight.Ticket
	if s.source != nil {
		w, tk, err := s.recordFilter(f, st)
		if err != nil {
			return nil, err
		}
		works = append(works, w)
		ticket = tk
	}

	cb, ok := f.Slot.Commands.(*softgpu.CommandBuffer)
	if !ok {
		return nil, fmt.Errorf("scene needs a soft command buffer, got %T", f.Slot.Commands)
	}
	if err := cb.Begin(); err != nil {
		return nil, err
	}
	if ticket != nil {
		if err := ticket.Acquire(cb); err != nil {
			return nil, err
		}
	}
	err = st.Plan.Record(cb, func(_ inflight.CommandBuffer, p *inflight.Pass) error {
		return s.recordPass(fc, cb, p)
	})
	if err != nil {
		return nil, err
	}

	// Still labelled as the last pass, so these follow it in order.
	if acquired {
		img, ok := sc.Image(int(idx)).(*softgpu.Resource)
		if !ok {
			return nil, fmt.Errorf("scene needs a soft swapchain, got %T", sc)
		}
		cb.Transform(img, []*softgpu.Resource{s.output}, func(in []int64) int64 { return in[0] }, 0)
	}
	frame := int64(f.Index)
	cb.Read(s.output, func(v int64) {
		s.note(func(r *Result) {
			r.Frames++
			if v != frame {
				r.Stale++
			}
		})
	})
	if err := cb.End(); err != nil {
		return nil, err
	}

	gfx := inflight.Work{Name: s.Name, Queue: s.env.Graphics, Commands: []inflight.CommandBuffer{cb}, Swapchain: true}
	if ticket != nil {
		gfx.Waits = []*inflight.Ticket{ticket}
	}
	return append(works, gfx), nil
}

// stamp returns the value a pass writes: the frame index, lowered to the
// oldest stamp among its inputs. A static input that changed yields -1.
func (s *Scene) stamp(frame uint64, srcs []*softgpu.Resource) func([]int64) int64 {
	return func(in []int64) int64 {
		out := int64(frame)
		for i, v := range in {
			if want, ok := s.static[srcs[i]]; ok {
				if v != want {
					return -1
				}
				continue
			}
			out = min(out, v)
		}
		return out
	}
}

func soft(res inflight.Resource) (*softgpu.Resource, error) {
	r, ok := res.(*softgpu.Resource)
	if !ok {
		return nil, fmt.Errorf("resource %s is not a soft resource", res.Name())
	}
	return r, nil
}

func (s *Scene) recordPass(fc *frameContext, cb *softgpu.CommandBuffer, p *inflight.Pass) error {
	if s.readers[p.Name] {
		frame := fc.frame
		cb.ReadHost(fc.arena.Buffer(), fc.uniforms.Offset, fc.uniforms.Size, s.opts.Delay, func(b []byte) {
			if u := decodeUniforms(b); u == nil || u.Frame != frame {
				s.note(func(r *Result) { r.UniformMismatches++ })
			}
		})
	}

	srcs := make([]*softgpu.Resource, 0, len(p.Reads))
	for _, u := range p.Reads {
		r, err := soft(u.Resource)
		if err != nil {
			return err
		}
		srcs = append(srcs, r)
	}
	for _, u := range p.Writes {
		r, err := soft(u.Resource)
		if err != nil {
			return err
		}
		cb.Transform(r, srcs, s.stamp(fc.frame, srcs), s.opts.Delay)
	}

	if p.Name == s.ui && s.opts.Overlay != nil {
		st, err := s.opts.Overlay.Record(cb, fc.arena, fc.extent, fc.dt)
		if err != nil {
			return err
		}
		s.note(func(r *Result) { r.Overlay = st })
	}
	return nil
}

// recordFilter records the compute pass of the filter scenario and, unless
// the edge is omitted, the ticket handing its output to graphics.
func (s *Scene) recordFilter(f *inflight.Frame[*SlotState], st *SlotState) (inflight.Work, *inflight.Ticket, error) {
	var w inflight.Work
	c, err := f.Slot.CommandsFor(s.env.Compute)
	if err != nil {
		return w, nil, err
	}
	cb := c.(*softgpu.CommandBuffer)
	if err := cb.Begin(); err != nil {
		return w, nil, err
	}

	var tk *inflight.Ticket
	if !s.omit[filterEdge] {
		tk, err = f.NewTicket("filtered", s.env.Compute, s.env.Graphics, inflight.StageFragmentShader)
		if err != nil {
			return w, nil, err
		}
		tk.Handoff(inflight.Handoff{
			Resource:  st.Filtered,
			SrcStage:  inflight.StageComputeShader,
			SrcAccess: inflight.AccessShaderWrite,
			DstStage:  inflight.StageFragmentShader,
			DstAccess: inflight.AccessShaderRead,
			OldLayout: inflight.LayoutGeneral,
			NewLayout: inflight.LayoutShaderReadOnlyOptimal,
		})
	}

	cb.Label("filter")
	srcs := []*softgpu.Resource{s.source}
	cb.Transform(st.Filtered, srcs, s.stamp(f.Index, srcs), filterCost*s.opts.Delay)
	if tk != nil {
		if err := tk.Release(cb); err != nil {
			return w, nil, err
		}
	}
	if err := cb.End(); err != nil {
		return w, nil, err
	}

	w = inflight.Work{Name: "filter", Queue: s.env.Compute, Commands: []inflight.CommandBuffer{cb}}
	if tk != nil {
		w.Signals = []*inflight.Ticket{tk}
	}
	return w, tk, nil
}
