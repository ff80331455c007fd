package inflight

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testResource struct {
	name string
	kind ResourceKind
}

func (r *testResource) Name() string       { return r.name }
func (r *testResource) Kind() ResourceKind { return r.kind }

// callLog is a CommandBuffer that records what was called on it.
type callLog struct {
	calls    []string
	barriers []Barrier
}

func (c *callLog) Begin() error {
	c.calls = append(c.calls, "begin")
	return nil
}

func (c *callLog) End() error {
	c.calls = append(c.calls, "end")
	return nil
}

func (c *callLog) Reset() error {
	c.calls = append(c.calls, "reset")
	return nil
}

func (c *callLog) Label(name string) {
	c.calls = append(c.calls, "label "+name)
}

func (c *callLog) PipelineBarrier(b Barrier) {
	c.calls = append(c.calls, "barrier")
	c.barriers = append(c.barriers, b)
}

func (c *callLog) BeginRenderPass(g *SubpassGroup) error {
	c.calls = append(c.calls, "begin "+g.Name)
	return nil
}

func (c *callLog) NextSubpass()   { c.calls = append(c.calls, "next") }
func (c *callLog) EndRenderPass() { c.calls = append(c.calls, "end pass") }
func (c *callLog) Destroy()       {}

type deferredGraph struct {
	shadow, albedo, swap *testResource
	g                    *Graph
}

// newDeferredGraph is the shadow, G-buffer, composition and UI frame.
func newDeferredGraph(omit ...string) *deferredGraph {
	d := &deferredGraph{
		shadow: &testResource{"shadowmap", KindImage},
		albedo: &testResource{"albedo", KindImage},
		swap:   &testResource{"swapchain", KindImage},
	}
	d.g = NewGraph().
		AddPass(Pass{Name: "shadow", Writes: []Use{
			{Resource: d.shadow, Stage: StageLateFragmentTests, Access: AccessDepthStencilWrite, Layout: LayoutDepthStencilAttachmentOptimal},
		}}).
		AddPass(Pass{Name: "gbuffer", Group: "scene", Writes: []Use{
			{Resource: d.albedo, Stage: StageColorAttachmentOutput, Access: AccessColorAttachmentWrite, Layout: LayoutColorAttachmentOptimal},
		}}).
		AddPass(Pass{Name: "composition", Group: "scene",
			Reads: []Use{
				{Resource: d.albedo, Stage: StageFragmentShader, Access: AccessInputAttachmentRead, Layout: LayoutShaderReadOnlyOptimal, Local: true},
				{Resource: d.shadow, Stage: StageFragmentShader, Access: AccessShaderRead, Layout: LayoutShaderReadOnlyOptimal},
			},
			Writes: []Use{
				{Resource: d.swap, Stage: StageColorAttachmentOutput, Access: AccessColorAttachmentWrite, Layout: LayoutColorAttachmentOptimal},
			},
		}).
		AddPass(Pass{Name: "ui",
			Reads: []Use{
				{Resource: d.swap, Stage: StageColorAttachmentOutput, Access: AccessColorAttachmentRead, Layout: LayoutColorAttachmentOptimal},
			},
			Writes: []Use{
				{Resource: d.swap, Stage: StageColorAttachmentOutput, Access: AccessColorAttachmentRead | AccessColorAttachmentWrite, Layout: LayoutColorAttachmentOptimal},
			},
		})
	edges := []struct {
		from, to string
		res      Resource
	}{
		{"shadow", "composition", d.shadow},
		{"gbuffer", "composition", d.albedo},
		{"composition", "ui", d.swap},
	}
	for _, e := range edges {
		skip := false
		for _, o := range omit {
			if o == e.from+"->"+e.to {
				skip = true
			}
		}
		if !skip {
			d.g.Depend(e.from, e.to, e.res)
		}
	}
	return d
}

func TestGraphValidate(t *testing.T) {
	d := newDeferredGraph()
	require.NoError(t, d.g.Validate())
	require.Len(t, d.g.Edges(), 3)

	e := d.g.Edges()[0]
	assert.Equal(t, StageLateFragmentTests, e.SrcStage)
	assert.Equal(t, AccessDepthStencilWrite, e.SrcAccess)
	assert.Equal(t, StageFragmentShader, e.DstStage)
	assert.Equal(t, AccessShaderRead, e.DstAccess)
	assert.Equal(t, LayoutDepthStencilAttachmentOptimal, e.OldLayout)
	assert.Equal(t, LayoutShaderReadOnlyOptimal, e.NewLayout)
	assert.False(t, e.ByRegion)
	assert.True(t, d.g.Edges()[1].ByRegion, "input attachment read is framebuffer local")
}

func TestGraphMissingEdge(t *testing.T) {
	for _, omit := range []string{"shadow->composition", "gbuffer->composition", "composition->ui"} {
		t.Run(omit, func(t *testing.T) {
			err := newDeferredGraph(omit).g.Validate()
			var missing *MissingEdgeError
			require.ErrorAs(t, err, &missing)
			require.NotEmpty(t, missing.Missing)
			m := missing.Missing[0]
			assert.Equal(t, omit, m.Producer+"->"+m.Consumer)
			assert.Equal(t, "read-after-write", m.Hazard)
		})
	}
}

func TestGraphWriteHazards(t *testing.T) {
	buf := &testResource{"particles", KindBuffer}
	read := Use{Resource: buf, Stage: StageVertexInput, Access: AccessVertexAttributeRead}
	write := Use{Resource: buf, Stage: StageComputeShader, Access: AccessShaderWrite}

	g := NewGraph().
		AddPass(Pass{Name: "draw", Reads: []Use{read}}).
		AddPass(Pass{Name: "simulate", Writes: []Use{write}}).
		AddPass(Pass{Name: "overwrite", Writes: []Use{write}})
	var missing *MissingEdgeError
	require.ErrorAs(t, g.Validate(), &missing)
	require.Len(t, missing.Missing, 2)
	assert.Equal(t, MissingEdge{Producer: "draw", Consumer: "simulate", Resource: "particles", Hazard: "write-after-read"}, missing.Missing[0])
	assert.Equal(t, MissingEdge{Producer: "simulate", Consumer: "overwrite", Resource: "particles", Hazard: "write-after-write"}, missing.Missing[1])

	g.Depend("draw", "simulate", buf).Depend("simulate", "overwrite", buf)
	require.NoError(t, g.Validate())
	assert.Zero(t, g.Edges()[0].SrcAccess, "write-after-read needs only an execution dependency")
}

func TestGraphTransitiveEdges(t *testing.T) {
	img := &testResource{"hdr", KindImage}
	w := Use{Resource: img, Stage: StageColorAttachmentOutput, Access: AccessColorAttachmentWrite}
	r := Use{Resource: img, Stage: StageFragmentShader, Access: AccessShaderRead}
	g := NewGraph().
		AddPass(Pass{Name: "a", Writes: []Use{w}}).
		AddPass(Pass{Name: "b", Reads: []Use{r}, Writes: []Use{{Resource: &testResource{"bloom", KindImage}, Stage: StageColorAttachmentOutput, Access: AccessColorAttachmentWrite}}}).
		AddPass(Pass{Name: "c", Reads: []Use{r}})
	g.Depend("a", "b", img)
	require.Error(t, g.Validate())
	g.Depend("b", "c", img)
	assert.NoError(t, g.Validate(), "a reaches c through b")
}

func TestGraphEdgesOrderOnlyTheirResource(t *testing.T) {
	x, y, z := &testResource{"x", KindImage}, &testResource{"y", KindImage}, &testResource{"z", KindImage}
	write := func(r Resource) Use {
		return Use{Resource: r, Stage: StageColorAttachmentOutput, Access: AccessColorAttachmentWrite, Layout: LayoutColorAttachmentOptimal}
	}
	read := func(r Resource) Use {
		return Use{Resource: r, Stage: StageFragmentShader, Access: AccessShaderRead, Layout: LayoutShaderReadOnlyOptimal}
	}
	g := NewGraph().
		AddPass(Pass{Name: "a", Writes: []Use{write(x), write(y)}}).
		AddPass(Pass{Name: "b", Reads: []Use{read(y)}, Writes: []Use{write(z)}}).
		AddPass(Pass{Name: "c", Reads: []Use{read(x), read(z)}}).
		Depend("a", "b", y).
		Depend("b", "c", z)

	var missing *MissingEdgeError
	require.ErrorAs(t, g.Validate(), &missing)
	assert.Equal(t, []MissingEdge{{Producer: "a", Consumer: "c", Resource: "x", Hazard: "read-after-write"}}, missing.Missing)
	_, err := g.Compile()
	require.ErrorAs(t, err, &missing)

	g.Depend("a", "c", x)
	require.NoError(t, g.Validate())
	plan, err := g.Compile()
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)
	b := plan.Steps[2].Barrier
	require.NotNil(t, b)
	var found bool
	for _, ib := range b.Images {
		if ib.Resource != x {
			continue
		}
		found = true
		assert.Equal(t, AccessColorAttachmentWrite, ib.SrcAccess)
		assert.Equal(t, AccessShaderRead, ib.DstAccess)
		assert.Equal(t, LayoutColorAttachmentOptimal, ib.OldLayout)
		assert.Equal(t, LayoutShaderReadOnlyOptimal, ib.NewLayout)
	}
	assert.True(t, found, "barrier before c covers x: %+v", b.Images)
}

func TestGraphCompileSecondReaderStartsFromTransitionedLayout(t *testing.T) {
	img := &testResource{"normal", KindImage}
	write := Use{Resource: img, Stage: StageColorAttachmentOutput, Access: AccessColorAttachmentWrite, Layout: LayoutColorAttachmentOptimal}
	read := Use{Resource: img, Stage: StageFragmentShader, Access: AccessShaderRead, Layout: LayoutShaderReadOnlyOptimal}
	plan, err := NewGraph().
		AddPass(Pass{Name: "gbuffer", Writes: []Use{write}}).
		AddPass(Pass{Name: "ssao", Reads: []Use{read}}).
		AddPass(Pass{Name: "composition", Reads: []Use{read}}).
		Depend("gbuffer", "composition", img).
		Depend("gbuffer", "ssao", img).
		Compile()
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)

	first := plan.Steps[1].Barrier
	require.NotNil(t, first)
	require.Len(t, first.Images, 1)
	assert.Equal(t, LayoutColorAttachmentOptimal, first.Images[0].OldLayout)
	assert.Equal(t, LayoutShaderReadOnlyOptimal, first.Images[0].NewLayout)

	second := plan.Steps[2].Barrier
	require.NotNil(t, second)
	require.Len(t, second.Images, 1)
	assert.Equal(t, LayoutShaderReadOnlyOptimal, second.Images[0].OldLayout)
	assert.Equal(t, LayoutShaderReadOnlyOptimal, second.Images[0].NewLayout)
	assert.Equal(t, AccessColorAttachmentWrite, second.Images[0].SrcAccess)
}

func TestGraphConstructionErrors(t *testing.T) {
	img := &testResource{"img", KindImage}
	use := []Use{{Resource: img, Stage: StageFragmentShader, Access: AccessShaderRead}}

	assert.Error(t, NewGraph().AddPass(Pass{}).Err())
	assert.Error(t, NewGraph().AddPass(Pass{Name: "a"}).AddPass(Pass{Name: "a"}).Err())
	assert.Error(t, NewGraph().AddPass(Pass{Name: "a"}).Depend("a", "b", img).Err())

	g := NewGraph().AddPass(Pass{Name: "a", Reads: use}).AddPass(Pass{Name: "b", Reads: use})
	assert.ErrorIs(t, g.Depend("b", "a", img).Err(), ErrEdgeOrder)

	g = NewGraph().AddPass(Pass{Name: "a"}).AddPass(Pass{Name: "b", Reads: use})
	assert.ErrorContains(t, g.Depend("a", "b", img).Err(), "does not use")
	_, err := g.Compile()
	assert.Error(t, err)
}

func TestGraphCompile(t *testing.T) {
	d := newDeferredGraph()
	plan, err := d.g.Compile()
	require.NoError(t, err)
	require.Len(t, plan.Steps, 3)

	assert.Nil(t, plan.Steps[0].Barrier)
	assert.Equal(t, "shadow", plan.Steps[0].Pass.Name)

	scene := plan.Group("scene")
	require.NotNil(t, scene)
	assert.Same(t, scene, plan.Steps[1].Group)
	require.Len(t, scene.Passes, 2)
	assert.Contains(t, scene.Dependencies, SubpassDependency{
		Src: 0, Dst: 1,
		SrcStage: StageColorAttachmentOutput, DstStage: StageFragmentShader,
		SrcAccess: AccessColorAttachmentWrite, DstAccess: AccessInputAttachmentRead,
		ByRegion: true,
	})
	assert.Contains(t, scene.Dependencies, SubpassDependency{
		Src: SubpassExternal, Dst: 0,
		SrcStage: StageBottomOfPipe, SrcAccess: AccessMemoryRead,
		DstStage: StageColorAttachmentOutput, DstAccess: AccessColorAttachmentRead | AccessColorAttachmentWrite,
		ByRegion: true,
	})
	assert.True(t, scene.Joined(1))
	assert.False(t, scene.Joined(0))

	b := plan.Steps[1].Barrier
	require.NotNil(t, b, "shadow map barrier sits before the scene render pass")
	assert.Equal(t, StageLateFragmentTests, b.SrcStage)
	assert.Equal(t, StageFragmentShader, b.DstStage)
	assert.False(t, b.ByRegion)
	require.Len(t, b.Images, 1)
	assert.Equal(t, ImageBarrier{
		Resource: d.shadow, SrcAccess: AccessDepthStencilWrite, DstAccess: AccessShaderRead,
		OldLayout: LayoutDepthStencilAttachmentOptimal, NewLayout: LayoutShaderReadOnlyOptimal,
		SrcFamily: QueueFamilyIgnored, DstFamily: QueueFamilyIgnored,
	}, b.Images[0])

	require.NotNil(t, plan.Steps[2].Barrier)
	assert.Equal(t, "ui", plan.Steps[2].Pass.Name)
}

func TestGraphCompileMergesBarriers(t *testing.T) {
	a := &testResource{"a", KindImage}
	b := &testResource{"b", KindBuffer}
	g := NewGraph().
		AddPass(Pass{Name: "p1", Writes: []Use{{Resource: a, Stage: StageComputeShader, Access: AccessShaderWrite}}}).
		AddPass(Pass{Name: "p2", Writes: []Use{{Resource: b, Stage: StageTransfer, Access: AccessTransferWrite}}}).
		AddPass(Pass{Name: "p3", Reads: []Use{
			{Resource: a, Stage: StageFragmentShader, Access: AccessShaderRead, Local: true},
			{Resource: b, Stage: StageVertexInput, Access: AccessVertexAttributeRead},
		}}).
		Depend("p1", "p3", a).
		Depend("p2", "p3", b)
	plan, err := g.Compile()
	require.NoError(t, err)
	bar := plan.Steps[2].Barrier
	require.NotNil(t, bar)
	assert.Equal(t, StageComputeShader|StageTransfer, bar.SrcStage)
	assert.Equal(t, StageFragmentShader|StageVertexInput, bar.DstStage)
	assert.False(t, bar.ByRegion, "one non-local edge makes the whole barrier global")
	assert.Len(t, bar.Images, 1)
	assert.Len(t, bar.Buffers, 1)
}

func TestGraphCompileNonContiguousGroup(t *testing.T) {
	g := NewGraph().
		AddPass(Pass{Name: "a", Group: "g"}).
		AddPass(Pass{Name: "b"}).
		AddPass(Pass{Name: "c", Group: "g"})
	_, err := g.Compile()
	assert.ErrorContains(t, err, "not contiguous")
}

func TestGraphSkipValidation(t *testing.T) {
	_, err := newDeferredGraph("gbuffer->composition").g.Compile()
	require.Error(t, err)
	plan, err := newDeferredGraph("gbuffer->composition").g.Compile(SkipValidation())
	require.NoError(t, err)
	assert.False(t, plan.Group("scene").Joined(1))
}

func TestPlanRecord(t *testing.T) {
	plan, err := newDeferredGraph().g.Compile()
	require.NoError(t, err)

	var cb callLog
	var order []string
	require.NoError(t, plan.Record(&cb, func(_ CommandBuffer, p *Pass) error {
		order = append(order, p.Name)
		return nil
	}))
	assert.Equal(t, []string{"shadow", "gbuffer", "composition", "ui"}, order)
	assert.Equal(t, []string{
		"label shadow",
		"barrier", "begin scene", "label gbuffer", "next", "label composition", "end pass",
		"barrier", "label ui",
	}, cb.calls)

	cb = callLog{}
	err = plan.Record(&cb, func(_ CommandBuffer, p *Pass) error {
		if p.Name == "gbuffer" {
			return fmt.Errorf("no pipeline")
		}
		return nil
	})
	assert.ErrorContains(t, err, "pass gbuffer: no pipeline")
	assert.Equal(t, "end pass", cb.calls[len(cb.calls)-1], "render pass is closed on error")
}

func TestPlanDot(t *testing.T) {
	plan, err := newDeferredGraph().g.Compile()
	require.NoError(t, err)
	dot := plan.Dot()
	assert.Contains(t, dot, `subgraph "cluster_scene"`)
	assert.Contains(t, dot, `"gbuffer" -> "composition" [label="albedo", style=dashed];`)
	assert.Contains(t, dot, `"shadow" -> "composition" [label="shadowmap"];`)
	assert.Len(t, plan.Edges(), 3)
}
