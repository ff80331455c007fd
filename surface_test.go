package inflight_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/inflight"
	"github.com/celer/inflight/softgpu"
)

// targets is a size dependent set of per swapchain image render targets.
type targets struct {
	dev    *softgpu.Device
	name   string
	log    *[]string
	images []*softgpu.Resource
	fail   error
}

func (tg *targets) Create(sc inflight.Swapchain) error {
	if tg.fail != nil {
		return tg.fail
	}
	ext := sc.Extent()
	for i := 0; i < sc.ImageCount(); i++ {
		tg.images = append(tg.images, tg.dev.NewImage(fmt.Sprintf("%s[%d]", tg.name, i)))
	}
	*tg.log = append(*tg.log, fmt.Sprintf("create %s %dx%d", tg.name, ext.Width, ext.Height))
	return nil
}

func (tg *targets) Destroy() {
	for _, img := range tg.images {
		img.Destroy()
	}
	tg.images = nil
	*tg.log = append(*tg.log, "destroy "+tg.name)
}

func newSurfaceCycle(t *testing.T, g *testGPU, surf *softgpu.Surface, retries int) *inflight.SurfaceCycle {
	t.Helper()
	sc, err := inflight.NewSurfaceCycle(g.dev, surf, inflight.SurfaceOptions{MaxRetries: retries})
	require.NoError(t, err)
	return sc
}

func newSemaphore(t *testing.T, g *testGPU) *softgpu.Semaphore {
	t.Helper()
	s, err := g.dev.NewSemaphore()
	require.NoError(t, err)
	sem := s.(*softgpu.Semaphore)
	t.Cleanup(sem.Destroy)
	return sem
}

// acquire uses a fresh semaphore so that every signal has its own target.
func acquire(t *testing.T, g *testGPU, sc *inflight.SurfaceCycle) (uint32, *softgpu.Semaphore, error) {
	t.Helper()
	sem := newSemaphore(t, g)
	idx, err := sc.Acquire(sem)
	return idx, sem, err
}

func TestSurfaceResizeCoalesces(t *testing.T) {
	g := newTestGPU(t)
	surf := g.dev.NewSurface(800, 600, 3)
	sc := newSurfaceCycle(t, g, surf, 3)
	defer sc.Destroy()

	var log []string
	require.NoError(t, sc.Register(&targets{dev: g.dev, name: "gbuffer", log: &log}))
	require.NoError(t, sc.Register(&targets{dev: g.dev, name: "post", log: &log}))
	assert.Equal(t, 6, g.dev.Live()["image"])

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sc.Resize()
		}()
	}
	wg.Wait()
	assert.Equal(t, inflight.SurfaceResizePending, sc.State())
	assert.Equal(t, uint64(1), sc.Generation())

	surf.SetExtent(1024, 768)
	_, sem, err := acquire(t, g, sc)
	require.NoError(t, err)
	assert.True(t, sem.Pending())

	assert.Equal(t, inflight.SurfaceRunning, sc.State())
	assert.Equal(t, uint64(2), sc.Generation(), "eight resizes, one recreation")
	assert.Equal(t, 2, surf.Created())
	assert.Equal(t, inflight.Extent{Width: 1024, Height: 768}, sc.Swapchain().Extent())
	assert.Equal(t, []string{
		"create gbuffer 800x600",
		"create post 800x600",
		"destroy post",
		"destroy gbuffer",
		"create gbuffer 1024x768",
		"create post 1024x768",
	}, log)
	assert.Equal(t, 6, g.dev.Live()["image"])
	assert.Equal(t, 1, g.dev.Live()["swapchain"])
	assert.Empty(t, g.dev.Misuse())
}

func TestSurfaceOutOfDateRetry(t *testing.T) {
	g := newTestGPU(t)
	surf := g.dev.NewSurface(640, 480, 2)
	sc := newSurfaceCycle(t, g, surf, 3)
	defer sc.Destroy()

	surf.SetExtent(1280, 720)
	idx, sem, err := acquire(t, g, sc)
	require.NoError(t, err, "out of date is handled inside the acquire")
	assert.Equal(t, uint32(0), idx)
	assert.True(t, sem.Pending())
	assert.Equal(t, uint64(2), sc.Generation())
	assert.Equal(t, inflight.SurfaceRunning, sc.State())
}

func TestSurfaceRetriesExhausted(t *testing.T) {
	g := newTestGPU(t)
	surf := g.dev.NewSurface(640, 480, 2)
	sc := newSurfaceCycle(t, g, surf, 0)
	defer sc.Destroy()

	surf.SetExtent(1280, 720)
	_, sem, err := acquire(t, g, sc)
	assert.ErrorIs(t, err, inflight.ErrOutOfDate)
	assert.True(t, inflight.IsRecoverable(err))
	assert.False(t, sem.Pending(), "a failed acquire signals nothing")
	assert.Equal(t, inflight.SurfaceResizePending, sc.State())

	_, _, err = acquire(t, g, sc)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), sc.Generation())
}

func TestSurfaceSuboptimal(t *testing.T) {
	g := newTestGPU(t)
	surf := g.dev.NewSurface(640, 480, 2)
	sc := newSurfaceCycle(t, g, surf, 3)
	defer sc.Destroy()

	surf.SetSuboptimal(true)
	_, sem, err := acquire(t, g, sc)
	require.NoError(t, err, "a suboptimal image is still used")
	assert.True(t, sem.Pending())
	assert.Equal(t, inflight.SurfaceResizePending, sc.State())
	assert.Equal(t, uint64(1), sc.Generation())

	_, _, err = acquire(t, g, sc)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), sc.Generation())
	assert.Equal(t, inflight.SurfaceRunning, sc.State())
}

func TestSurfaceMinimized(t *testing.T) {
	g := newTestGPU(t)
	surf := g.dev.NewSurface(640, 480, 2)
	sc := newSurfaceCycle(t, g, surf, 3)
	defer sc.Destroy()

	var log []string
	require.NoError(t, sc.Register(&targets{dev: g.dev, name: "color", log: &log}))

	surf.SetExtent(0, 0)
	for i := 0; i < 3; i++ {
		_, sem, err := acquire(t, g, sc)
		assert.ErrorIs(t, err, inflight.ErrSurfaceMinimized)
		assert.True(t, inflight.IsRecoverable(err))
		assert.False(t, sem.Pending())
	}
	assert.Equal(t, uint64(1), sc.Generation())
	assert.Equal(t, []string{"create color 640x480"}, log, "nothing is torn down while minimized")

	surf.SetExtent(320, 200)
	_, _, err := acquire(t, g, sc)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), sc.Generation())
	assert.Equal(t, "create color 320x200", log[len(log)-1])
}

func TestSurfaceDependentFailureIsFatal(t *testing.T) {
	g := newTestGPU(t)
	surf := g.dev.NewSurface(640, 480, 2)
	sc := newSurfaceCycle(t, g, surf, 3)
	defer sc.Destroy()

	var log []string
	tg := &targets{dev: g.dev, name: "color", log: &log}
	require.NoError(t, sc.Register(tg))
	tg.fail = inflight.ErrOutOfDeviceMemory

	sc.Resize()
	_, _, err := acquire(t, g, sc)
	assert.ErrorIs(t, err, inflight.ErrOutOfDeviceMemory)
	assert.Equal(t, inflight.SurfaceLost, sc.State())

	sc.Resize()
	assert.Equal(t, inflight.SurfaceLost, sc.State(), "a lost surface ignores resizes")
	_, _, err = acquire(t, g, sc)
	assert.ErrorIs(t, err, inflight.ErrDeviceLost)
}

func TestSurfaceDeviceLost(t *testing.T) {
	g := newTestGPU(t)
	surf := g.dev.NewSurface(640, 480, 2)
	sc := newSurfaceCycle(t, g, surf, 3)
	defer sc.Destroy()

	// Semaphores cannot be created once the device is gone.
	sem := newSemaphore(t, g)
	g.dev.Lose()
	_, err := sc.Acquire(sem)
	assert.ErrorIs(t, err, inflight.ErrDeviceLost)
	assert.True(t, inflight.IsFatal(err))
	assert.Equal(t, inflight.SurfaceLost, sc.State())

	_, err = sc.Acquire(sem)
	assert.ErrorIs(t, err, inflight.ErrDeviceLost, "a lost surface stays lost")
}
