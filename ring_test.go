package inflight_test

import (
	"encoding/binary"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/celer/inflight"
	"github.com/celer/inflight/softgpu"
)

type testGPU struct {
	dev  *softgpu.Device
	gfx  *softgpu.Queue
	comp *softgpu.Queue
}

func newTestGPU(t *testing.T) *testGPU {
	t.Helper()
	d := softgpu.New()
	g := &testGPU{
		dev:  d,
		gfx:  d.NewQueue(0, inflight.CapGraphics|inflight.CapCompute|inflight.CapPresent),
		comp: d.NewQueue(1, inflight.CapCompute),
	}
	t.Cleanup(d.Close)
	return g
}

func ringOptions() inflight.RingOptions {
	return inflight.RingOptions{FenceTimeout: 5 * time.Second, UniformBytes: 256, UniformAlignment: 64}
}

// begin starts recording the slot's primary command buffer.
func begin[T any](t *testing.T, f *inflight.Frame[T]) *softgpu.CommandBuffer {
	t.Helper()
	cb := f.Slot.Commands.(*softgpu.CommandBuffer)
	require.NoError(t, cb.Begin())
	return cb
}

func TestRingDoubleBufferedBlocking(t *testing.T) {
	g := newTestGPU(t)
	ring, err := inflight.NewFrameRing[struct{}](g.dev, g.gfx, 2, ringOptions(), nil)
	require.NoError(t, err)
	defer ring.Destroy(nil)

	var done [3]atomic.Bool
	var waits [3]time.Duration
	for i := 0; i < 3; i++ {
		f, err := ring.BeginFrame()
		require.NoError(t, err)
		assert.Equal(t, uint64(i), f.Index)
		assert.Equal(t, i%2, f.Slot.Index)
		waits[i] = f.GateWait
		if i == 2 {
			assert.True(t, done[0].Load(), "frame 2 starts only after frame 0 completed")
			assert.False(t, done[1].Load())
		}

		cb := begin(t, f)
		cb.Sleep(60 * time.Millisecond)
		cb.Func(nil, nil, func() error {
			done[i].Store(true)
			return nil
		})
		require.NoError(t, cb.End())
		require.NoError(t, f.Submit(inflight.Work{Name: "draw", Queue: g.gfx, Commands: []inflight.CommandBuffer{cb}}))
		require.NoError(t, ring.EndFrame(f))
	}

	assert.Less(t, waits[0], 20*time.Millisecond)
	assert.Less(t, waits[1], 20*time.Millisecond, "slot 1 starts signalled")
	assert.Greater(t, waits[2], 30*time.Millisecond)
	assert.Equal(t, uint64(3), ring.Counter())
}

func TestRingNoOverwrite(t *testing.T) {
	g := newTestGPU(t)
	ring, err := inflight.NewFrameRing[struct{}](g.dev, g.gfx, 2, ringOptions(), nil)
	require.NoError(t, err)

	var mismatches atomic.Int32
	for i := 0; i < 8; i++ {
		f, err := ring.BeginFrame()
		require.NoError(t, err)

		var stamp [8]byte
		binary.LittleEndian.PutUint64(stamp[:], f.Index)
		al, err := f.Slot.Uniforms.Write(stamp[:])
		require.NoError(t, err)
		assert.Equal(t, f.Slot.Uniforms.Base(), al.Offset, "arena is reset when the slot is reused")
		require.NoError(t, f.Slot.Uniforms.Flush())

		want := f.Index
		cb := begin(t, f)
		cb.ReadHost(f.Slot.Uniforms.Buffer(), al.Offset, al.Size, 15*time.Millisecond, func(b []byte) {
			if binary.LittleEndian.Uint64(b) != want {
				mismatches.Add(1)
			}
		})
		require.NoError(t, cb.End())
		require.NoError(t, f.Submit(inflight.Work{Name: "draw", Queue: g.gfx, Commands: []inflight.CommandBuffer{cb}}))
		require.NoError(t, ring.EndFrame(f))
	}
	require.NoError(t, ring.Destroy(nil))
	assert.Zero(t, mismatches.Load())
	assert.Empty(t, g.dev.Misuse())
	assert.Empty(t, g.dev.Leaks())
}

func TestRingBoundsFramesInFlight(t *testing.T) {
	for _, n := range []int{1, 2, 3} {
		g := newTestGPU(t)
		ring, err := inflight.NewFrameRing[struct{}](g.dev, g.gfx, n, ringOptions(), nil)
		require.NoError(t, err)
		for i := 0; i < 3*n+2; i++ {
			f, err := ring.BeginFrame()
			require.NoError(t, err)
			cb := begin(t, f)
			cb.Sleep(20 * time.Millisecond)
			require.NoError(t, cb.End())
			require.NoError(t, f.Submit(inflight.Work{Queue: g.gfx, Commands: []inflight.CommandBuffer{cb}}))
			require.NoError(t, ring.EndFrame(f))
			assert.LessOrEqual(t, ring.InFlight(), n)
		}
		require.NoError(t, ring.WaitIdle())
		assert.Equal(t, n, g.dev.MaxInFlight(), "ring of %d", n)
		assert.Zero(t, ring.InFlight())
		require.NoError(t, ring.Destroy(nil))
	}
}

func TestRingZeroWorkFrames(t *testing.T) {
	g := newTestGPU(t)
	opts := ringOptions()
	opts.FenceTimeout = time.Second
	ring, err := inflight.NewFrameRing[struct{}](g.dev, g.gfx, 2, opts, nil)
	require.NoError(t, err)
	defer ring.Destroy(nil)

	for i := 0; i < 5; i++ {
		f, err := ring.BeginFrame()
		require.NoError(t, err, "frame %d", i)
		if i%2 == 0 {
			require.NoError(t, ring.EndFrame(f))
		} else {
			require.NoError(t, ring.Abandon(f))
		}
		assert.True(t, f.Submitted(), "the slot fence is still submitted")
	}
}

func TestRingFenceTimeoutIsFatal(t *testing.T) {
	g := newTestGPU(t)
	opts := ringOptions()
	opts.FenceTimeout = 20 * time.Millisecond
	ring, err := inflight.NewFrameRing[struct{}](g.dev, g.gfx, 1, opts, nil)
	require.NoError(t, err)

	f, err := ring.BeginFrame()
	require.NoError(t, err)
	cb := begin(t, f)
	cb.Sleep(200 * time.Millisecond)
	require.NoError(t, cb.End())
	require.NoError(t, f.Submit(inflight.Work{Queue: g.gfx, Commands: []inflight.CommandBuffer{cb}}))
	require.NoError(t, ring.EndFrame(f))

	_, err = ring.BeginFrame()
	require.Error(t, err)
	assert.True(t, inflight.IsFatal(err))
	assert.ErrorIs(t, err, inflight.ErrTimeout)
	var de *inflight.DeviceError
	require.True(t, errors.As(err, &de))
	assert.Equal(t, uint64(1), de.Frame)
	assert.Equal(t, 0, de.Slot)

	require.NoError(t, g.dev.WaitIdle())
	require.NoError(t, ring.Destroy(nil))
}

func TestRingProgrammerErrors(t *testing.T) {
	g := newTestGPU(t)
	ring, err := inflight.NewFrameRing[struct{}](g.dev, g.gfx, 2, ringOptions(), nil)
	require.NoError(t, err)
	defer ring.Destroy(nil)

	f, err := ring.BeginFrame()
	require.NoError(t, err)
	_, err = ring.BeginFrame()
	assert.ErrorIs(t, err, inflight.ErrFrameActive)

	require.NoError(t, f.Submit())
	assert.ErrorIs(t, f.Submit(), inflight.ErrFrameActive)
	require.NoError(t, ring.EndFrame(f))
	assert.ErrorIs(t, ring.EndFrame(f), inflight.ErrNoActiveFrame)
	assert.ErrorIs(t, f.Submit(), inflight.ErrNoActiveFrame)

	_, err = inflight.NewFrameRing[struct{}](g.dev, g.gfx, 0, ringOptions(), nil)
	assert.Error(t, err)
}

type slotData struct {
	target *softgpu.Resource
}

func TestRingSlotData(t *testing.T) {
	g := newTestGPU(t)
	ring, err := inflight.NewFrameRing(g.dev, g.gfx, 3, ringOptions(), func(s *inflight.Slot[slotData]) (slotData, error) {
		return slotData{target: g.dev.NewImage("target")}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, ring.Len())
	assert.Equal(t, 3, g.dev.Live()["image"])

	f, err := ring.BeginFrame()
	require.NoError(t, err)
	other, err := f.Slot.CommandsFor(g.comp)
	require.NoError(t, err)
	again, err := f.Slot.CommandsFor(g.comp)
	require.NoError(t, err)
	assert.Same(t, other, again)
	same, err := f.Slot.CommandsFor(g.gfx)
	require.NoError(t, err)
	assert.Same(t, f.Slot.Commands, same)
	require.NoError(t, ring.EndFrame(f))

	require.NoError(t, ring.Destroy(func(d slotData) { d.target.Destroy() }))
	assert.Empty(t, g.dev.Leaks())
	assert.Empty(t, g.dev.Misuse())
}

func TestRingWaitIdleSkipsUnsubmittedGate(t *testing.T) {
	g := newTestGPU(t)
	opts := ringOptions()
	opts.FenceTimeout = inflight.WaitForever
	ring, err := inflight.NewFrameRing[struct{}](g.dev, g.gfx, 2, opts, nil)
	require.NoError(t, err)

	f, err := ring.BeginFrame()
	require.NoError(t, err)
	assert.False(t, f.Slot.Gate().Signaled())
	assert.Zero(t, ring.InFlight())
	require.NoError(t, ring.WaitIdle(), "the open frame's gate has no fence submission yet")

	require.NoError(t, ring.EndFrame(f))
	require.NoError(t, ring.WaitIdle())
	assert.True(t, f.Slot.Gate().Signaled())
	require.NoError(t, ring.Destroy(nil))
}
