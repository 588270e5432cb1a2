package geometry

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-9

func square(side float64) Bounds {
	return Bounds{RenderedWidth: side, RenderedHeight: side, NaturalWidth: side, NaturalHeight: side}
}

func assertRect(t *testing.T, want, got Rect) {
	t.Helper()
	assert.InDelta(t, want.X, got.X, tol, "x")
	assert.InDelta(t, want.Y, got.Y, tol, "y")
	assert.InDelta(t, want.Width, got.Width, tol, "width")
	assert.InDelta(t, want.Height, got.Height, tol, "height")
}

func TestOnImageReady(t *testing.T) {
	tests := []struct {
		name   string
		bounds Bounds
		aspect float64
		want   Rect
	}{
		{
			name:   "landscape square crop",
			bounds: Bounds{RenderedWidth: 300, RenderedHeight: 200, NaturalWidth: 1200, NaturalHeight: 800},
			aspect: 1,
			want:   Rect{X: 90, Y: 40, Width: 120, Height: 120},
		},
		{
			name:   "wide crop",
			bounds: Bounds{RenderedWidth: 400, RenderedHeight: 300},
			aspect: 2,
			want:   Rect{X: 110, Y: 105, Width: 180, Height: 90},
		},
		{
			name:   "tall crop fitted to height",
			bounds: Bounds{RenderedWidth: 300, RenderedHeight: 200},
			aspect: 0.5,
			want:   Rect{X: 100, Y: 0, Width: 100, Height: 200},
		},
		{
			name:   "free aspect",
			bounds: Bounds{RenderedWidth: 300, RenderedHeight: 200},
			want:   Rect{X: 90, Y: 40, Width: 120, Height: 120},
		},
		{
			name:   "floor at minimum size",
			bounds: Bounds{RenderedWidth: 60, RenderedHeight: 60},
			aspect: 1,
			want:   Rect{X: 5, Y: 5, Width: 50, Height: 50},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(Config{AspectRatio: tt.aspect})
			got := c.OnImageReady(tt.bounds)
			assertRect(t, tt.want, got)
			require.NoError(t, c.Validate())
		})
	}
}

func TestResetIsIdempotent(t *testing.T) {
	c := NewController(Config{AspectRatio: 1.5})
	c.OnImageReady(Bounds{RenderedWidth: 640, RenderedHeight: 480})
	c.ZoomOut()
	require.True(t, c.BeginDrag(Pt(320, 240)))
	c.OnPointerMove(Pt(100, 50))

	first := c.Reset()
	second := c.Reset()
	assert.Equal(t, first, second)
	assert.True(t, IsIdle(c.State()))
}

func TestResizeSEAnchorsTopLeft(t *testing.T) {
	c := NewController(Config{AspectRatio: 1})
	start := c.OnImageReady(square(300))
	assertRect(t, Rect{X: 60, Y: 60, Width: 180, Height: 180}, start)

	require.True(t, c.BeginResize(SE, Pt(240, 240)))
	got := c.OnPointerMove(Pt(250, 250))

	assert.Equal(t, start.X, got.X)
	assert.Equal(t, start.Y, got.Y)
	assert.InDelta(t, start.Width+10, got.Width, tol)
	assert.InDelta(t, start.Height+10, got.Height, tol)
}

func TestResizeCornersFollowPointer(t *testing.T) {
	start := Rect{X: 60, Y: 60, Width: 180, Height: 180}
	tests := []struct {
		handle Handle
		from   Point
		to     Point
		want   Rect
	}{
		{NW, Pt(60, 60), Pt(80, 80), Rect{X: 80, Y: 80, Width: 160, Height: 160}},
		{NE, Pt(240, 60), Pt(260, 60), Rect{X: 60, Y: 40, Width: 200, Height: 200}},
		{SW, Pt(60, 240), Pt(40, 240), Rect{X: 40, Y: 60, Width: 200, Height: 200}},
		{SE, Pt(240, 240), Pt(240, 200), Rect{X: 60, Y: 60, Width: 140, Height: 140}},
	}
	for _, tt := range tests {
		t.Run(tt.handle.String(), func(t *testing.T) {
			c := NewController(Config{AspectRatio: 1})
			assertRect(t, start, c.OnImageReady(square(300)))
			require.True(t, c.BeginResize(tt.handle, tt.from))
			got := c.OnPointerMove(tt.to)
			assertRect(t, tt.want, got)
		})
	}
}

func TestResizeKeepsMinimumSize(t *testing.T) {
	for _, aspect := range []float64{1, 2, 0.5} {
		c := NewController(Config{AspectRatio: aspect})
		c.OnImageReady(Bounds{RenderedWidth: 500, RenderedHeight: 500})
		r := c.Rect()
		require.True(t, c.BeginResize(SE, Pt(r.Right(), r.Bottom())))
		got := c.OnPointerMove(Pt(-1000, -1000))
		assert.GreaterOrEqual(t, got.Width, MinSize-tol)
		assert.GreaterOrEqual(t, got.Height, MinSize-tol)
		assert.InDelta(t, got.Width/aspect, got.Height, tol)
		require.NoError(t, c.Validate())
	}
}

func TestDragClampsPositionOnly(t *testing.T) {
	c := NewController(Config{AspectRatio: 1})
	start := c.OnImageReady(square(300))

	require.True(t, c.BeginDrag(Pt(100, 100)))
	got := c.OnPointerMove(Pt(20, 100))
	assert.Equal(t, 0.0, got.X)
	assert.Equal(t, start.Width, got.Width)
	assert.Equal(t, start.Height, got.Height)

	got = c.OnPointerMove(Pt(1000, 1000))
	assert.Equal(t, 300-start.Width, got.X)
	assert.Equal(t, 300-start.Height, got.Y)
}

func TestResizeClampsLeftEdge(t *testing.T) {
	for _, mode := range []ClampMode{ClampJoint, ClampSequential} {
		t.Run(mode.String(), func(t *testing.T) {
			c := NewController(Config{AspectRatio: 1, Clamp: mode})
			c.OnImageReady(square(300))
			require.True(t, c.BeginDrag(Pt(100, 100)))
			c.OnPointerMove(Pt(60, 60))
			c.EndGesture()
			assertRect(t, Rect{X: 20, Y: 20, Width: 180, Height: 180}, c.Rect())

			require.True(t, c.BeginResize(SW, Pt(20, 200)))
			got := c.OnPointerMove(Pt(-10, 200))
			assertRect(t, Rect{X: 0, Y: 20, Width: 200, Height: 200}, got)
			require.NoError(t, c.Validate())
		})
	}
}

func TestClampModesDisagreeOnTwoEdges(t *testing.T) {
	run := func(mode ClampMode) (Rect, error) {
		c := NewController(Config{AspectRatio: 1, Clamp: mode})
		c.OnImageReady(square(300))
		require.True(t, c.BeginResize(NW, Pt(60, 60)))
		c.OnPointerMove(Pt(-20, 60))
		return c.Rect(), c.Validate()
	}

	joint, err := run(ClampJoint)
	require.NoError(t, err)
	assertRect(t, Rect{X: 0, Y: 0, Width: 240, Height: 240}, joint)

	seq, err := run(ClampSequential)
	assertRect(t, Rect{X: 0, Y: 0, Width: 240, Height: 220}, seq)
	var gerr *GeometryError
	require.ErrorAs(t, err, &gerr)
	assert.Equal(t, "aspect ratio mismatch", gerr.Reason)
}

func TestZoomBounds(t *testing.T) {
	tests := []struct {
		name    string
		bounds  Bounds
		aspect  float64
		wantMin float64
		wantMax float64
	}{
		{"square", Bounds{RenderedWidth: 300, RenderedHeight: 200}, 1, 50, 200},
		{"wide", Bounds{RenderedWidth: 400, RenderedHeight: 300}, 2, 100, 300},
		{"wide fits by height", Bounds{RenderedWidth: 600, RenderedHeight: 100}, 4.0 / 3, 200.0 / 3, 100},
		{"tall", Bounds{RenderedWidth: 200, RenderedHeight: 640}, 9.0 / 16, 50, 200},
		{"floor above ceiling", Bounds{RenderedWidth: 400, RenderedHeight: 80}, 2, 100, 100},
		{"free", Bounds{RenderedWidth: 400, RenderedHeight: 300}, 0, 50, 300},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(Config{AspectRatio: tt.aspect})
			c.OnImageReady(tt.bounds)
			side := math.Min(tt.bounds.RenderedWidth, tt.bounds.RenderedHeight)

			for i := 0; i < 40; i++ {
				r := c.ZoomIn()
				require.GreaterOrEqual(t, r.Width, math.Min(MinSize, tt.wantMin)-tol)
				require.NoError(t, c.Validate())
			}
			assert.InDelta(t, tt.wantMin, c.Rect().Width, tol)

			for i := 0; i < 40; i++ {
				r := c.ZoomOut()
				require.LessOrEqual(t, r.Width, math.Max(side, tt.wantMin)+tol)
				if tt.aspect <= 0 {
					require.LessOrEqual(t, r.Height, side+tol)
				}
				require.NoError(t, c.Validate())
			}
			assert.InDelta(t, tt.wantMax, c.Rect().Width, tol)
		})
	}
}

func TestZoomRecenters(t *testing.T) {
	c := NewController(Config{AspectRatio: 1})
	c.OnImageReady(square(300))

	got := c.ZoomIn()
	assertRect(t, Rect{X: 69, Y: 69, Width: 162, Height: 162}, got)

	require.True(t, c.BeginDrag(Pt(100, 100)))
	c.OnPointerMove(Pt(0, 0))
	c.EndGesture()
	got = c.ZoomOut()
	assert.Equal(t, 0.0, got.X)
	assert.Equal(t, 0.0, got.Y)
	assert.InDelta(t, 162*1.1, got.Width, tol)
}

func TestZoomIgnoredDuringGesture(t *testing.T) {
	c := NewController(Config{AspectRatio: 1})
	start := c.OnImageReady(square(300))
	require.True(t, c.BeginDrag(Pt(150, 150)))
	assert.Equal(t, start, c.ZoomIn())
}

func TestBeginIgnoredWhenBusy(t *testing.T) {
	c := NewController(Config{AspectRatio: 1})
	c.OnImageReady(square(300))

	require.True(t, c.BeginDrag(Pt(150, 150)))
	assert.False(t, c.BeginResize(SE, Pt(240, 240)))
	assert.False(t, c.BeginDrag(Pt(150, 150)))
	assert.IsType(t, Dragging{}, c.State())

	c.EndGesture()
	assert.True(t, IsIdle(c.State()))
	assert.True(t, c.BeginResize(SE, Pt(240, 240)))
}

func TestPointerDownHitTest(t *testing.T) {
	tests := []struct {
		name  string
		at    Point
		want  State
		began bool
	}{
		{"corner", Pt(243, 238), Resizing{Handle: SE}, true},
		{"body", Pt(150, 150), Dragging{Grab: Pt(90, 90)}, true},
		{"outside", Pt(10, 10), Idle{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewController(Config{AspectRatio: 1})
			c.OnImageReady(square(300))
			assert.Equal(t, tt.began, c.PointerDown(tt.at))
			switch want := tt.want.(type) {
			case Resizing:
				got, ok := c.State().(Resizing)
				require.True(t, ok)
				assert.Equal(t, want.Handle, got.Handle)
				assert.Equal(t, tt.at, got.Anchor.Pointer)
			default:
				assert.Equal(t, tt.want, c.State())
			}
		})
	}
}

func TestFreeAspectResize(t *testing.T) {
	c := NewController(Config{})
	c.OnImageReady(square(300))
	require.True(t, c.BeginResize(SE, Pt(240, 240)))
	got := c.OnPointerMove(Pt(280, 200))
	assertRect(t, Rect{X: 60, Y: 60, Width: 220, Height: 140}, got)
	require.NoError(t, c.Validate())
}

func TestEventsBeforeImageReadyAreIgnored(t *testing.T) {
	c := NewController(Config{AspectRatio: 1})
	assert.False(t, c.BeginDrag(Pt(10, 10)))
	assert.Equal(t, Rect{}, c.OnPointerMove(Pt(20, 20)))
	assert.Equal(t, Rect{}, c.ZoomOut())
	assert.True(t, IsIdle(c.State()))
}

func TestInvariantsHoldForRandomGestures(t *testing.T) {
	bounds := []Bounds{
		{RenderedWidth: 300, RenderedHeight: 200},
		{RenderedWidth: 200, RenderedHeight: 640},
		{RenderedWidth: 1024, RenderedHeight: 768},
	}
	for _, mode := range []ClampMode{ClampJoint, ClampSequential} {
		t.Run(mode.String(), func(t *testing.T) {
			rng := rand.New(rand.NewSource(7))
			for _, b := range bounds {
				for _, aspect := range []float64{0, 1, 4.0 / 3, 9.0 / 16, 3} {
					c := NewController(Config{AspectRatio: aspect, Clamp: mode})
					c.OnImageReady(b)
					require.NoError(t, c.Validate())
					for i := 0; i < 500; i++ {
						p := Pt(rng.Float64()*(b.RenderedWidth+200)-100, rng.Float64()*(b.RenderedHeight+200)-100)
						switch rng.Intn(8) {
						case 0:
							c.PointerDown(p)
						case 1:
							c.BeginResize(Handles[rng.Intn(len(Handles))], p)
						case 2:
							c.EndGesture()
						case 3:
							c.ZoomIn()
						case 4:
							c.ZoomOut()
						default:
							c.OnPointerMove(p)
						}
						err := c.Validate()
						var gerr *GeometryError
						// sequential clamping may only leave the aspect ratio off
						if mode == ClampSequential && errors.As(err, &gerr) && gerr.Reason == "aspect ratio mismatch" {
							continue
						}
						require.NoError(t, err, "aspect=%v bounds=%+v step=%d", aspect, b, i)
					}
				}
			}
		})
	}
}
