package overlay

import (
	"fmt"

	"github.com/inkyblackness/imgui-go"

	"github.com/celer/inflight"
)

// StatsUI shows renderer statistics in a small window.
type StatsUI struct {
	Title string
	Stats func() inflight.Stats
	// Lines are extra rows shown under the statistics.
	Lines func() []string
}

func (s *StatsUI) DrawUI() {
	title := s.Title
	if title == "" {
		title = "frames"
	}
	imgui.Begin(title)
	if s.Stats != nil {
		st := s.Stats()
		imgui.Text(fmt.Sprintf("frames %d, abandoned %d", st.Frames, st.Abandoned))
		imgui.Text(fmt.Sprintf("swapchains recreated %d", st.Recreations))
		imgui.Text(fmt.Sprintf("in flight max %d", st.MaxInFlight))
		imgui.Text(fmt.Sprintf("gate wait %v (max %v)", st.LastGateWait, st.MaxGateWait))
	}
	if s.Lines != nil {
		imgui.Separator()
		for _, l := range s.Lines() {
			imgui.Text(l)
		}
	}
	imgui.End()
}
