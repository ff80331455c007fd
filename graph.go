package inflight

import (
	"fmt"
	"sort"
	"strings"
)

// SubpassExternal refers to work outside a subpass group.
const SubpassExternal = -1

// Use is one access a pass makes to a resource.
type Use struct {
	Resource Resource
	Stage    Stage
	Access   Access
	Layout   Layout
	// Local marks a framebuffer-local read: each fragment only reads what
	// the producer wrote at the same pixel, so the dependency can be by region.
	Local bool
}

// Pass is a node of the dependency graph. Contiguous passes sharing a Group
// are recorded as subpasses of one render pass.
type Pass struct {
	Name   string
	Group  string
	Reads  []Use
	Writes []Use
}

func (p *Pass) use(res Resource, write bool) (Use, bool) {
	list := p.Reads
	if write {
		list = p.Writes
	}
	for _, u := range list {
		if u.Resource == res {
			return u, true
		}
	}
	return Use{}, false
}

// DependencyEdge orders Consumer after Producer for Resource.
type DependencyEdge struct {
	Producer  string
	Consumer  string
	Resource  Resource
	SrcStage  Stage
	SrcAccess Access
	DstStage  Stage
	DstAccess Access
	OldLayout Layout
	NewLayout Layout
	ByRegion  bool
}

func (e DependencyEdge) String() string {
	region := ""
	if e.ByRegion {
		region = " by-region"
	}
	return fmt.Sprintf("%s -> %s [%s] %s/%s -> %s/%s%s", e.Producer, e.Consumer, e.Resource.Name(),
		e.SrcStage, e.SrcAccess, e.DstStage, e.DstAccess, region)
}

// MissingEdge is a hazard with no declared dependency.
type MissingEdge struct {
	Producer string
	Consumer string
	Resource string
	Hazard   string
}

// MissingEdgeError lists every undeclared hazard in a graph.
type MissingEdgeError struct {
	Missing []MissingEdge
}

func (e *MissingEdgeError) Error() string {
	parts := make([]string, len(e.Missing))
	for i, m := range e.Missing {
		parts[i] = fmt.Sprintf("%s %s -> %s on %s", m.Hazard, m.Producer, m.Consumer, m.Resource)
	}
	return "missing dependency: " + strings.Join(parts, "; ")
}

// Graph declares the passes of one frame and the dependencies between them.
// Passes execute in declaration order.
type Graph struct {
	passes []*Pass
	index  map[string]int
	edges  []DependencyEdge
	err    error
}

func NewGraph() *Graph {
	return &Graph{index: map[string]int{}}
}

// AddPass appends a pass.
func (g *Graph) AddPass(p Pass) *Graph {
	if g.err != nil {
		return g
	}
	if p.Name == "" {
		g.err = fmt.Errorf("pass without a name")
		return g
	}
	if _, dup := g.index[p.Name]; dup {
		g.err = fmt.Errorf("duplicate pass %q", p.Name)
		return g
	}
	g.index[p.Name] = len(g.passes)
	g.passes = append(g.passes, &p)
	return g
}

// Depend declares that consumer must observe producer's access to res.
// Stages, access masks and layouts are taken from the passes' uses.
func (g *Graph) Depend(producer, consumer string, res Resource) *Graph {
	if g.err != nil {
		return g
	}
	pi, ok := g.index[producer]
	if !ok {
		g.err = fmt.Errorf("unknown pass %q", producer)
		return g
	}
	ci, ok := g.index[consumer]
	if !ok {
		g.err = fmt.Errorf("unknown pass %q", consumer)
		return g
	}
	if pi >= ci {
		g.err = fmt.Errorf("%s -> %s: %w", producer, consumer, ErrEdgeOrder)
		return g
	}
	p, c := g.passes[pi], g.passes[ci]

	src, srcWrite := p.use(res, true)
	if !srcWrite {
		var ok bool
		if src, ok = p.use(res, false); !ok {
			g.err = fmt.Errorf("pass %q does not use %s", producer, res.Name())
			return g
		}
	}
	dst, ok := c.use(res, false)
	if !ok {
		if dst, ok = c.use(res, true); !ok {
			g.err = fmt.Errorf("pass %q does not use %s", consumer, res.Name())
			return g
		}
	}

	e := DependencyEdge{
		Producer:  producer,
		Consumer:  consumer,
		Resource:  res,
		SrcStage:  src.Stage,
		DstStage:  dst.Stage,
		DstAccess: dst.Access,
		OldLayout: src.Layout,
		NewLayout: dst.Layout,
		ByRegion:  dst.Local,
	}
	if srcWrite {
		e.SrcAccess = src.Access.Writes()
	}
	g.edges = append(g.edges, e)
	return g
}

// Passes returns the passes in execution order.
func (g *Graph) Passes() []*Pass {
	return g.passes
}

// Edges returns the declared edges.
func (g *Graph) Edges() []DependencyEdge {
	return g.edges
}

// Err returns the first construction error.
func (g *Graph) Err() error {
	return g.err
}

// Validate checks that every read-after-write, write-after-write and
// write-after-read pair on a resource is ordered by the declared edges on
// that resource, directly or through a chain of them. Compile emits
// barriers per edge, so an edge on one resource never orders another.
func (g *Graph) Validate() error {
	if g.err != nil {
		return g.err
	}
	var missing []MissingEdge
	for _, res := range g.resources() {
		reach := g.reach(res)
		check := func(from, to int, hazard string) {
			if !reach[from][to] {
				missing = append(missing, MissingEdge{
					Producer: g.passes[from].Name,
					Consumer: g.passes[to].Name,
					Resource: res.Name(),
					Hazard:   hazard,
				})
			}
		}

		lastWriter := -1
		var readers []int
		for i, p := range g.passes {
			_, reads := p.use(res, false)
			_, writes := p.use(res, true)
			if reads && lastWriter >= 0 {
				check(lastWriter, i, "read-after-write")
			}
			if writes {
				if len(readers) == 0 && lastWriter >= 0 {
					check(lastWriter, i, "write-after-write")
				}
				for _, r := range readers {
					check(r, i, "write-after-read")
				}
				lastWriter = i
				readers = nil
			} else if reads {
				readers = append(readers, i)
			}
		}
	}
	if len(missing) > 0 {
		return &MissingEdgeError{Missing: missing}
	}
	return nil
}

// reach is the transitive closure of the edges declared on res.
func (g *Graph) reach(res Resource) [][]bool {
	n := len(g.passes)
	reach := make([][]bool, n)
	for i := range reach {
		reach[i] = make([]bool, n)
	}
	for _, e := range g.edges {
		if e.Resource == res {
			reach[g.index[e.Producer]][g.index[e.Consumer]] = true
		}
	}
	for k := 0; k < n; k++ {
		for i := 0; i < n; i++ {
			if !reach[i][k] {
				continue
			}
			for j := 0; j < n; j++ {
				if reach[k][j] {
					reach[i][j] = true
				}
			}
		}
	}
	return reach
}

// resources lists every resource in first-use order.
func (g *Graph) resources() []Resource {
	seen := map[Resource]bool{}
	var out []Resource
	for _, p := range g.passes {
		for _, u := range append(append([]Use{}, p.Writes...), p.Reads...) {
			if !seen[u.Resource] {
				seen[u.Resource] = true
				out = append(out, u.Resource)
			}
		}
	}
	return out
}

// SubpassDependency is a dependency inside, into or out of a subpass group.
type SubpassDependency struct {
	Src       int
	Dst       int
	SrcStage  Stage
	DstStage  Stage
	SrcAccess Access
	DstAccess Access
	ByRegion  bool
}

// SubpassGroup is a render pass made of consecutive passes.
type SubpassGroup struct {
	Name         string
	Passes       []*Pass
	Dependencies []SubpassDependency
	// Target holds the backend render pass and framebuffer for the frame
	// being recorded.
	Target any
}

// Joined reports whether the transition into subpass dst is covered by a
// dependency from an earlier subpass.
func (s *SubpassGroup) Joined(dst int) bool {
	for _, d := range s.Dependencies {
		if d.Dst == dst && d.Src != SubpassExternal && d.Src < dst {
			return true
		}
	}
	return false
}

// Step is either a single pass or a subpass group, preceded by an optional
// pipeline barrier.
type Step struct {
	Barrier *Barrier
	Pass    *Pass
	Group   *SubpassGroup
}

// Plan is a compiled graph ready to record.
type Plan struct {
	Steps  []Step
	edges  []DependencyEdge
	groups map[string]*SubpassGroup
	passes []*Pass
}

// CompileOption adjusts Compile.
type CompileOption func(*compileOptions)

type compileOptions struct {
	skipValidation bool
}

// SkipValidation compiles a graph with missing edges. Only the hazard
// harness should use it.
func SkipValidation() CompileOption {
	return func(o *compileOptions) { o.skipValidation = true }
}

// Compile validates the graph and turns edges into subpass dependencies and
// pipeline barriers.
func (g *Graph) Compile(opts ...CompileOption) (*Plan, error) {
	var o compileOptions
	for _, opt := range opts {
		opt(&o)
	}
	if g.err != nil {
		return nil, g.err
	}
	if !o.skipValidation {
		if err := g.Validate(); err != nil {
			return nil, err
		}
	}

	plan := &Plan{edges: g.edges, groups: map[string]*SubpassGroup{}, passes: g.passes}
	stepOf := make([]int, len(g.passes))
	local := make([]int, len(g.passes))
	for i, p := range g.passes {
		if p.Group != "" && i > 0 && g.passes[i-1].Group == p.Group {
			st := &plan.Steps[len(plan.Steps)-1]
			local[i] = len(st.Group.Passes)
			st.Group.Passes = append(st.Group.Passes, p)
			stepOf[i] = len(plan.Steps) - 1
			continue
		}
		if p.Group != "" {
			if _, dup := plan.groups[p.Group]; dup {
				return nil, fmt.Errorf("group %q is not contiguous", p.Group)
			}
			grp := &SubpassGroup{Name: p.Group, Passes: []*Pass{p}}
			plan.groups[p.Group] = grp
			plan.Steps = append(plan.Steps, Step{Group: grp})
		} else {
			plan.Steps = append(plan.Steps, Step{Pass: p})
		}
		stepOf[i] = len(plan.Steps) - 1
		local[i] = 0
	}

	for _, grp := range plan.groups {
		last := len(grp.Passes) - 1
		grp.Dependencies = append(grp.Dependencies,
			SubpassDependency{
				Src: SubpassExternal, Dst: 0,
				SrcStage: StageBottomOfPipe, SrcAccess: AccessMemoryRead,
				DstStage: StageColorAttachmentOutput, DstAccess: AccessColorAttachmentRead | AccessColorAttachmentWrite,
				ByRegion: true,
			},
			SubpassDependency{
				Src: last, Dst: SubpassExternal,
				SrcStage: StageColorAttachmentOutput, SrcAccess: AccessColorAttachmentRead | AccessColorAttachmentWrite,
				DstStage: StageBottomOfPipe, DstAccess: AccessMemoryRead,
				ByRegion: true,
			})
	}

	// Edges are visited in consumer order so that an image already moved
	// out of the producer's layout by an earlier barrier starts from the
	// layout that barrier left it in.
	edges := append([]DependencyEdge(nil), g.edges...)
	sort.SliceStable(edges, func(i, j int) bool {
		return g.index[edges[i].Consumer] < g.index[edges[j].Consumer]
	})
	type transition struct {
		layout Layout
		at     int
	}
	layouts := map[Resource]transition{}

	barriers := map[int]*barrierBuilder{}
	for _, e := range edges {
		pi, ci := g.index[e.Producer], g.index[e.Consumer]
		if stepOf[pi] == stepOf[ci] {
			grp := plan.Steps[stepOf[ci]].Group
			grp.Dependencies = append(grp.Dependencies, SubpassDependency{
				Src: local[pi], Dst: local[ci],
				SrcStage: e.SrcStage, DstStage: e.DstStage,
				SrcAccess: e.SrcAccess, DstAccess: e.DstAccess,
				ByRegion: e.ByRegion,
			})
			continue
		}
		if e.Resource.Kind() == KindImage {
			if t, ok := layouts[e.Resource]; ok && t.at > pi && t.at < ci {
				e.OldLayout = t.layout
			}
			layouts[e.Resource] = transition{layout: e.NewLayout, at: ci}
		}
		bb := barriers[stepOf[ci]]
		if bb == nil {
			bb = newBarrierBuilder()
			barriers[stepOf[ci]] = bb
		}
		bb.add(e)
	}
	for i, bb := range barriers {
		b := bb.build()
		plan.Steps[i].Barrier = &b
	}
	return plan, nil
}

type barrierBuilder struct {
	b      Barrier
	images map[Resource]int
	bufs   map[Resource]int
	region bool
}

func newBarrierBuilder() *barrierBuilder {
	return &barrierBuilder{images: map[Resource]int{}, bufs: map[Resource]int{}, region: true}
}

func (bb *barrierBuilder) add(e DependencyEdge) {
	bb.b.SrcStage |= e.SrcStage
	bb.b.DstStage |= e.DstStage
	bb.region = bb.region && e.ByRegion
	switch e.Resource.Kind() {
	case KindImage:
		if i, ok := bb.images[e.Resource]; ok {
			ib := &bb.b.Images[i]
			ib.SrcAccess |= e.SrcAccess
			ib.DstAccess |= e.DstAccess
			return
		}
		bb.images[e.Resource] = len(bb.b.Images)
		bb.b.Images = append(bb.b.Images, ImageBarrier{
			Resource: e.Resource, SrcAccess: e.SrcAccess, DstAccess: e.DstAccess,
			OldLayout: e.OldLayout, NewLayout: e.NewLayout,
			SrcFamily: QueueFamilyIgnored, DstFamily: QueueFamilyIgnored,
		})
	case KindBuffer:
		if i, ok := bb.bufs[e.Resource]; ok {
			bf := &bb.b.Buffers[i]
			bf.SrcAccess |= e.SrcAccess
			bf.DstAccess |= e.DstAccess
			return
		}
		bb.bufs[e.Resource] = len(bb.b.Buffers)
		bb.b.Buffers = append(bb.b.Buffers, BufferBarrier{
			Resource: e.Resource, SrcAccess: e.SrcAccess, DstAccess: e.DstAccess,
			SrcFamily: QueueFamilyIgnored, DstFamily: QueueFamilyIgnored,
		})
	default:
		bb.b.Memory = append(bb.b.Memory, MemoryBarrier{SrcAccess: e.SrcAccess, DstAccess: e.DstAccess})
	}
}

func (bb *barrierBuilder) build() Barrier {
	bb.b.ByRegion = bb.region
	return bb.b
}

// Group returns the named subpass group, or nil.
func (p *Plan) Group(name string) *SubpassGroup {
	return p.groups[name]
}

// Edges returns the graph edges the plan was compiled from.
func (p *Plan) Edges() []DependencyEdge {
	return p.edges
}

// Record walks the plan: barriers, render pass boundaries, and fn for each
// pass in order. Each pass is labelled with its name.
func (p *Plan) Record(cb CommandBuffer, fn func(cb CommandBuffer, pass *Pass) error) error {
	for _, st := range p.Steps {
		if st.Barrier != nil {
			cb.PipelineBarrier(*st.Barrier)
		}
		if st.Pass != nil {
			cb.Label(st.Pass.Name)
			if err := fn(cb, st.Pass); err != nil {
				return fmt.Errorf("pass %s: %w", st.Pass.Name, err)
			}
			continue
		}
		if err := cb.BeginRenderPass(st.Group); err != nil {
			return fmt.Errorf("group %s: %w", st.Group.Name, err)
		}
		for i, pass := range st.Group.Passes {
			if i > 0 {
				cb.NextSubpass()
			}
			cb.Label(pass.Name)
			if err := fn(cb, pass); err != nil {
				cb.EndRenderPass()
				return fmt.Errorf("pass %s: %w", pass.Name, err)
			}
		}
		cb.EndRenderPass()
	}
	return nil
}

// Dot renders the plan as a Graphviz digraph.
func (p *Plan) Dot() string {
	var sb strings.Builder
	sb.WriteString("digraph frame {\n\trankdir=LR;\n")
	names := make([]string, 0, len(p.groups))
	for name := range p.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(&sb, "\tsubgraph \"cluster_%s\" {\n\t\tlabel=%q;\n", name, name)
		for _, pass := range p.groups[name].Passes {
			fmt.Fprintf(&sb, "\t\t%q;\n", pass.Name)
		}
		sb.WriteString("\t}\n")
	}
	for _, pass := range p.passes {
		if pass.Group == "" {
			fmt.Fprintf(&sb, "\t%q;\n", pass.Name)
		}
	}
	for _, e := range p.edges {
		style := ""
		if e.ByRegion {
			style = ", style=dashed"
		}
		fmt.Fprintf(&sb, "\t%q -> %q [label=%q%s];\n", e.Producer, e.Consumer, e.Resource.Name(), style)
	}
	sb.WriteString("}\n")
	return sb.String()
}
