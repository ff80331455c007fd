package inflight_test

import (
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/inflight"
	"github.com/celer/inflight/softgpu"
)

func testConfig() inflight.Config {
	cfg := inflight.DefaultConfig()
	cfg.FenceTimeout = inflight.Duration(5 * time.Second)
	return cfg
}

func newTestRenderer(t *testing.T, g *testGPU, surf *softgpu.Surface) *inflight.Renderer[struct{}] {
	t.Helper()
	be := inflight.Backend{Device: g.dev, Graphics: g.gfx}
	if surf != nil {
		be.Surface = surf
	}
	r, err := inflight.NewRenderer[struct{}](testConfig(), be, nil)
	require.NoError(t, err)
	return r
}

// clearImage records a short pass that writes the frame index into the acquired
// swapchain image.
func clearImage(g *testGPU, calls *int) inflight.Recorder[struct{}] {
	return func(f *inflight.Frame[struct{}]) ([]inflight.Work, error) {
		*calls++
		cb := f.Slot.Commands.(*softgpu.CommandBuffer)
		if err := cb.Begin(); err != nil {
			return nil, err
		}
		cb.Label("clear")
		cb.Sleep(2 * time.Millisecond)
		if sc, idx, ok := f.Image(); ok {
			cb.Write(sc.Image(int(idx)).(*softgpu.Resource), int64(f.Index), 0)
		}
		if err := cb.End(); err != nil {
			return nil, err
		}
		return []inflight.Work{{Name: "clear", Queue: g.gfx, Commands: []inflight.CommandBuffer{cb}, Swapchain: true}}, nil
	}
}

func TestRendererResizeMidStream(t *testing.T) {
	g := newTestGPU(t)
	surf := g.dev.NewSurface(800, 600, 3)
	r := newTestRenderer(t, g, surf)

	var log []string
	require.NoError(t, r.Register(&targets{dev: g.dev, name: "depth", log: &log}))

	var calls int
	for i := 0; i < 10; i++ {
		if i == 4 {
			surf.SetExtent(1024, 768)
			r.Resize()
		}
		require.NoError(t, r.DrawFrame(clearImage(g, &calls)), "frame %d", i)
	}
	require.NoError(t, g.dev.WaitIdle())

	st := r.Stats()
	assert.Equal(t, uint64(10), st.Frames)
	assert.Zero(t, st.Abandoned)
	assert.Equal(t, uint64(1), st.Recreations)
	assert.LessOrEqual(t, st.MaxInFlight, 2)
	assert.Equal(t, 10, calls)
	assert.Equal(t, 6, r.Surface().Swapchain().(*softgpu.Swapchain).Presented())
	assert.Equal(t, []string{"create depth 800x600", "destroy depth", "create depth 1024x768"}, log)

	require.NoError(t, r.Close(nil))
	assert.ErrorIs(t, r.DrawFrame(clearImage(g, &calls)), inflight.ErrClosed)
	assert.Empty(t, g.dev.Misuse())
	assert.Empty(t, g.dev.Leaks())
}

func TestRendererOutOfDateRetriedInFrame(t *testing.T) {
	g := newTestGPU(t)
	surf := g.dev.NewSurface(800, 600, 2)
	r := newTestRenderer(t, g, surf)

	var calls int
	require.NoError(t, r.DrawFrame(clearImage(g, &calls)))
	surf.SetExtent(640, 480)
	require.NoError(t, r.DrawFrame(clearImage(g, &calls)))

	st := r.Stats()
	assert.Equal(t, uint64(2), st.Frames, "the out of date frame is still drawn")
	assert.Zero(t, st.Abandoned)
	assert.Equal(t, uint64(1), st.Recreations)
	require.NoError(t, r.Close(nil))
	assert.Empty(t, g.dev.Misuse())
	assert.Empty(t, g.dev.Leaks())
}

func TestRendererMinimized(t *testing.T) {
	g := newTestGPU(t)
	surf := g.dev.NewSurface(800, 600, 2)
	r := newTestRenderer(t, g, surf)

	var calls int
	require.NoError(t, r.DrawFrame(clearImage(g, &calls)))
	surf.SetExtent(0, 0)
	for i := 0; i < 3; i++ {
		require.NoError(t, r.DrawFrame(clearImage(g, &calls)), "minimized frames are skipped")
	}
	assert.Equal(t, 1, calls, "nothing is recorded while minimized")
	assert.Equal(t, uint64(3), r.Stats().Abandoned)

	surf.SetExtent(400, 300)
	require.NoError(t, r.DrawFrame(clearImage(g, &calls)))
	st := r.Stats()
	assert.Equal(t, uint64(2), st.Frames)
	assert.Equal(t, uint64(1), st.Recreations)
	assert.Equal(t, inflight.Extent{Width: 400, Height: 300}, r.Surface().Swapchain().Extent())

	require.NoError(t, r.Close(nil))
	assert.Empty(t, g.dev.Misuse())
	assert.Empty(t, g.dev.Leaks())
}

func TestRendererSuboptimal(t *testing.T) {
	g := newTestGPU(t)
	surf := g.dev.NewSurface(800, 600, 2)
	r := newTestRenderer(t, g, surf)

	var calls int
	surf.SetSuboptimal(true)
	require.NoError(t, r.DrawFrame(clearImage(g, &calls)))
	assert.Equal(t, uint64(1), r.Stats().Frames, "a suboptimal image is drawn")
	assert.Zero(t, r.Stats().Recreations)
	assert.Equal(t, inflight.SurfaceResizePending, r.Surface().State())

	require.NoError(t, r.DrawFrame(clearImage(g, &calls)))
	assert.Equal(t, uint64(1), r.Stats().Recreations)
	assert.Equal(t, inflight.SurfaceRunning, r.Surface().State())

	require.NoError(t, r.Close(nil))
	assert.Empty(t, g.dev.Misuse())
}

func TestRendererRecorderError(t *testing.T) {
	g := newTestGPU(t)
	surf := g.dev.NewSurface(800, 600, 2)
	r := newTestRenderer(t, g, surf)

	boom := errors.New("boom")
	err := r.DrawFrame(func(f *inflight.Frame[struct{}]) ([]inflight.Work, error) {
		return nil, boom
	})
	assert.Equal(t, boom, err)
	assert.NoError(t, r.Err(), "a recorder error is not fatal")
	assert.Equal(t, uint64(1), r.Stats().Abandoned)

	var calls int
	require.NoError(t, r.DrawFrame(clearImage(g, &calls)))
	require.NoError(t, g.dev.WaitIdle())
	assert.Equal(t, 2, r.Surface().Swapchain().(*softgpu.Swapchain).Presented(),
		"the abandoned frame still presents its image")

	require.NoError(t, r.Close(nil))
	assert.Empty(t, g.dev.Misuse())
	assert.Empty(t, g.dev.Leaks())
}

func TestRendererDeviceLost(t *testing.T) {
	g := newTestGPU(t)
	surf := g.dev.NewSurface(800, 600, 2)
	r := newTestRenderer(t, g, surf)

	var fatal []error
	r.OnFatal = func(err error) { fatal = append(fatal, err) }

	var calls int
	for i := 0; i < 2; i++ {
		require.NoError(t, r.DrawFrame(clearImage(g, &calls)))
	}
	g.dev.Lose()

	err := r.DrawFrame(clearImage(g, &calls))
	require.Error(t, err)
	assert.True(t, inflight.IsFatal(err))
	assert.ErrorIs(t, err, inflight.ErrDeviceLost)
	var de *inflight.DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, uint64(2), de.Frame)

	assert.Equal(t, err, r.DrawFrame(clearImage(g, &calls)), "later frames return the same error")
	assert.Equal(t, err, r.Err())
	assert.Len(t, fatal, 1)
	assert.Equal(t, 2, calls)

	assert.NoError(t, r.Close(nil), "close after a fatal error still releases")
}

func TestRendererOffscreen(t *testing.T) {
	g := newTestGPU(t)
	r, err := inflight.NewRenderer(testConfig(), inflight.Backend{Device: g.dev, Graphics: g.gfx},
		func(s *inflight.Slot[*softgpu.Resource]) (*softgpu.Resource, error) {
			return g.dev.NewBuffer("particles"), nil
		})
	require.NoError(t, err)
	assert.Nil(t, r.Surface())
	assert.Error(t, r.Register(&targets{}))
	r.Resize()

	var seen []int64
	simulate := func(f *inflight.Frame[*softgpu.Resource]) ([]inflight.Work, error) {
		particles := f.Slot.Data
		tk, err := f.NewTicket("particles", g.comp, g.gfx, inflight.StageVertexInput)
		if err != nil {
			return nil, err
		}
		tk.Handoff(inflight.Handoff{
			Resource: particles,
			SrcStage: inflight.StageComputeShader, SrcAccess: inflight.AccessShaderWrite,
			DstStage: inflight.StageVertexInput, DstAccess: inflight.AccessVertexAttributeRead,
		})

		c, err := f.Slot.CommandsFor(g.comp)
		if err != nil {
			return nil, err
		}
		ccb := c.(*softgpu.CommandBuffer)
		if err := ccb.Begin(); err != nil {
			return nil, err
		}
		ccb.Label("simulate")
		ccb.Write(particles, int64(f.Index), 5*time.Millisecond)
		if err := tk.Release(ccb); err != nil {
			return nil, err
		}
		if err := ccb.End(); err != nil {
			return nil, err
		}

		gcb := f.Slot.Commands.(*softgpu.CommandBuffer)
		if err := gcb.Begin(); err != nil {
			return nil, err
		}
		if err := tk.Acquire(gcb); err != nil {
			return nil, err
		}
		gcb.Label("draw")
		gcb.Read(particles, func(v int64) { seen = append(seen, v) })
		if err := gcb.End(); err != nil {
			return nil, err
		}
		return []inflight.Work{
			{Name: "simulate", Queue: g.comp, Commands: []inflight.CommandBuffer{ccb}, Signals: []*inflight.Ticket{tk}},
			{Name: "draw", Queue: g.gfx, Commands: []inflight.CommandBuffer{gcb}, Waits: []*inflight.Ticket{tk}},
		}, nil
	}
	for i := 0; i < 6; i++ {
		require.NoError(t, r.DrawFrame(simulate), "frame %d", i)
	}
	require.NoError(t, r.Ring().WaitIdle())

	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5}, seen)
	assert.Equal(t, uint64(6), r.Stats().Frames)
	assert.Empty(t, g.dev.Hazards())
	require.NoError(t, r.Close(func(b *softgpu.Resource) { b.Destroy() }))
	assert.Empty(t, g.dev.Leaks())
	assert.Empty(t, g.dev.Misuse())
}

func TestNewRendererValidates(t *testing.T) {
	g := newTestGPU(t)

	cfg := testConfig()
	cfg.FramesInFlight = 0
	_, err := inflight.NewRenderer[struct{}](cfg, inflight.Backend{Device: g.dev, Graphics: g.gfx}, nil)
	assert.Error(t, err)

	_, err = inflight.NewRenderer[struct{}](testConfig(), inflight.Backend{Device: g.dev}, nil)
	assert.Error(t, err)

	_, err = inflight.NewRenderer[struct{}](testConfig(), inflight.Backend{Device: g.dev, Graphics: g.gfx, Surface: g.dev.NewSurface(0, 0, 2)}, nil)
	assert.ErrorIs(t, err, inflight.ErrSurfaceMinimized)
	assert.Empty(t, g.dev.Leaks(), "a failed renderer releases its ring")
}

func TestRendererFatalRecordDoesNotBlockClose(t *testing.T) {
	g := newTestGPU(t)
	cfg := testConfig()
	cfg.FenceTimeout = inflight.Duration(inflight.WaitForever)
	r, err := inflight.NewRenderer[struct{}](cfg, inflight.Backend{Device: g.dev, Graphics: g.gfx}, nil)
	require.NoError(t, err)
	var fatal []error
	r.OnFatal = func(err error) { fatal = append(fatal, err) }

	var calls int
	require.NoError(t, r.DrawFrame(clearImage(g, &calls)))
	err = r.DrawFrame(func(*inflight.Frame[struct{}]) ([]inflight.Work, error) {
		return nil, inflight.ErrOutOfDeviceMemory
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, inflight.ErrOutOfDeviceMemory)
	var de *inflight.DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, "record", de.Op)
	assert.Equal(t, uint64(1), de.Frame)
	assert.Equal(t, 1, de.Slot)
	assert.Len(t, fatal, 1)

	done := make(chan error, 1)
	go func() { done <- r.Close(nil) }()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Close waited on a gate that no submission will signal")
	}
	assert.Empty(t, g.dev.Leaks())
}
