package demo

import (
	"github.com/celer/inflight"
)

func colorWrite(r inflight.Resource) inflight.Use {
	return inflight.Use{Resource: r, Stage: inflight.StageColorAttachmentOutput, Access: inflight.AccessColorAttachmentWrite, Layout: inflight.LayoutColorAttachmentOptimal}
}

func depthWrite(r inflight.Resource) inflight.Use {
	return inflight.Use{Resource: r, Stage: inflight.StageLateFragmentTests, Access: inflight.AccessDepthStencilWrite, Layout: inflight.LayoutDepthStencilAttachmentOptimal}
}

func sampled(r inflight.Resource) inflight.Use {
	return inflight.Use{Resource: r, Stage: inflight.StageFragmentShader, Access: inflight.AccessShaderRead, Layout: inflight.LayoutShaderReadOnlyOptimal}
}

// local is a same-pixel read of an attachment written earlier in the group.
func local(r inflight.Resource) inflight.Use {
	return inflight.Use{Resource: r, Stage: inflight.StageFragmentShader, Access: inflight.AccessInputAttachmentRead, Layout: inflight.LayoutShaderReadOnlyOptimal, Local: true}
}

// uiPass blends over the final image.
func uiPass(backbuffer inflight.Resource) inflight.Pass {
	return inflight.Pass{
		Name: "ui",
		Reads: []inflight.Use{
			{Resource: backbuffer, Stage: inflight.StageColorAttachmentOutput, Access: inflight.AccessColorAttachmentRead, Layout: inflight.LayoutColorAttachmentOptimal},
		},
		Writes: []inflight.Use{
			{Resource: backbuffer, Stage: inflight.StageColorAttachmentOutput, Access: inflight.AccessColorAttachmentRead | inflight.AccessColorAttachmentWrite, Layout: inflight.LayoutColorAttachmentOptimal},
		},
	}
}

// triangle is one pass and the overlay.
var triangle = scenario{
	edges: []string{"triangle->ui"},
	setup: func(s *Scene) {
		s.output = s.image("backbuffer")
		s.readers["triangle"] = true
		s.ui = "ui"
	},
	graph: func(s *Scene, _ *SlotState) *inflight.Graph {
		g := inflight.NewGraph().
			AddPass(inflight.Pass{Name: "triangle", Writes: []inflight.Use{colorWrite(s.output)}}).
			AddPass(uiPass(s.output))
		s.depend(g, "triangle", "ui", s.output)
		return g
	},
}

// deferred renders a shadow map, then the G-buffer and composition as two
// subpasses of one render pass. Composition reads the G-buffer at the same
// pixel, so that dependency is by region.
var deferred = scenario{
	edges: []string{"shadow->composition", "gbuffer->composition", "composition->ui"},
	setup: func(s *Scene) {
		s.output = s.image("backbuffer")
		s.image("shadowmap")
		s.image("albedo")
		s.image("normal")
		s.readers["shadow"] = true
		s.readers["gbuffer"] = true
		s.ui = "ui"
	},
	graph: func(s *Scene, _ *SlotState) *inflight.Graph {
		shadowmap, albedo, normal := s.Image("shadowmap"), s.Image("albedo"), s.Image("normal")
		g := inflight.NewGraph().
			AddPass(inflight.Pass{Name: "shadow", Writes: []inflight.Use{depthWrite(shadowmap)}}).
			AddPass(inflight.Pass{Name: "gbuffer", Group: "scene", Writes: []inflight.Use{colorWrite(albedo), colorWrite(normal)}}).
			AddPass(inflight.Pass{Name: "composition", Group: "scene",
				Reads:  []inflight.Use{local(albedo), local(normal), sampled(shadowmap)},
				Writes: []inflight.Use{colorWrite(s.output)},
			}).
			AddPass(uiPass(s.output))
		s.depend(g, "shadow", "composition", shadowmap)
		s.depend(g, "gbuffer", "composition", albedo)
		s.depend(g, "gbuffer", "composition", normal)
		s.depend(g, "composition", "ui", s.output)
		return g
	},
}

// ssao chains G-buffer, ambient occlusion, blur and composition as separate
// passes, each edge a pipeline barrier.
var ssao = scenario{
	edges: []string{"gbuffer->ssao", "ssao->blur", "blur->composition", "gbuffer->composition", "composition->ui"},
	setup: func(s *Scene) {
		s.output = s.image("backbuffer")
		s.image("depth")
		s.image("normal")
		s.image("ao")
		s.image("ao-blurred")
		s.readers["gbuffer"] = true
		s.ui = "ui"
	},
	graph: func(s *Scene, _ *SlotState) *inflight.Graph {
		depth, normal := s.Image("depth"), s.Image("normal")
		ao, blurred := s.Image("ao"), s.Image("ao-blurred")
		g := inflight.NewGraph().
			AddPass(inflight.Pass{Name: "gbuffer", Writes: []inflight.Use{depthWrite(depth), colorWrite(normal)}}).
			AddPass(inflight.Pass{Name: "ssao",
				Reads: []inflight.Use{
					{Resource: depth, Stage: inflight.StageFragmentShader, Access: inflight.AccessShaderRead, Layout: inflight.LayoutDepthStencilReadOnlyOptimal},
					sampled(normal),
				},
				Writes: []inflight.Use{colorWrite(ao)},
			}).
			AddPass(inflight.Pass{Name: "blur", Reads: []inflight.Use{sampled(ao)}, Writes: []inflight.Use{colorWrite(blurred)}}).
			AddPass(inflight.Pass{Name: "composition",
				Reads:  []inflight.Use{sampled(blurred), sampled(normal)},
				Writes: []inflight.Use{colorWrite(s.output)},
			}).
			AddPass(uiPass(s.output))
		s.depend(g, "gbuffer", "ssao", depth)
		s.depend(g, "gbuffer", "ssao", normal)
		s.depend(g, "ssao", "blur", ao)
		s.depend(g, "blur", "composition", blurred)
		s.depend(g, "gbuffer", "composition", normal)
		s.depend(g, "composition", "ui", s.output)
		return g
	},
}

const filterEdge = "filter->composite"

// filter runs an image filter on the compute queue over a source image
// loaded once, then composites the slot's filtered image on the graphics
// queue. The filter edge is a ticket, not a graph edge.
var filter = scenario{
	edges: []string{filterEdge, "scene->composite", "composite->ui"},
	setup: func(s *Scene) {
		s.output = s.image("backbuffer")
		s.image("color")
		s.source = s.staticImage("source", 7)
		s.readers["scene"] = true
		s.ui = "ui"
	},
	graph: func(s *Scene, st *SlotState) *inflight.Graph {
		color := s.Image("color")
		g := inflight.NewGraph().
			AddPass(inflight.Pass{Name: "scene", Writes: []inflight.Use{colorWrite(color)}}).
			AddPass(inflight.Pass{Name: "composite",
				Reads:  []inflight.Use{sampled(color), sampled(st.Filtered)},
				Writes: []inflight.Use{colorWrite(s.output)},
			}).
			AddPass(uiPass(s.output))
		s.depend(g, "scene", "composite", color)
		s.depend(g, "composite", "ui", s.output)
		return g
	},
}
