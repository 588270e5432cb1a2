package raster

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"image/png"
	"math"
	"testing"

	"github.com/chai2010/webp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cropdeck/geometry"
)

var (
	red  = color.RGBA{R: 0xff, A: 0xff}
	blue = color.RGBA{B: 0xff, A: 0xff}
)

// scenarioImage is 1200x800, blue except for the native region the default
// crop of a 300x200 rendering maps to, which is red.
func scenarioImage() *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, 1200, 800))
	draw.Draw(img, img.Bounds(), image.NewUniform(blue), image.Point{}, draw.Src)
	draw.Draw(img, image.Rect(360, 160, 840, 640), image.NewUniform(red), image.Point{}, draw.Src)
	return img
}

var scenarioBounds = geometry.Bounds{RenderedWidth: 300, RenderedHeight: 200, NaturalWidth: 1200, NaturalHeight: 800}

func TestSourceRect(t *testing.T) {
	tests := []struct {
		name   string
		bounds geometry.Bounds
		rect   geometry.Rect
		want   geometry.Rect
	}{
		{
			name:   "double resolution",
			bounds: geometry.Bounds{RenderedWidth: 200, RenderedHeight: 200, NaturalWidth: 400, NaturalHeight: 400},
			rect:   geometry.Rect{X: 50, Y: 50, Width: 100, Height: 100},
			want:   geometry.Rect{X: 100, Y: 100, Width: 200, Height: 200},
		},
		{
			name:   "scenario",
			bounds: scenarioBounds,
			rect:   geometry.Rect{X: 90, Y: 40, Width: 120, Height: 120},
			want:   geometry.Rect{X: 360, Y: 160, Width: 480, Height: 480},
		},
		{
			name:   "anisotropic",
			bounds: geometry.Bounds{RenderedWidth: 100, RenderedHeight: 100, NaturalWidth: 300, NaturalHeight: 200},
			rect:   geometry.Rect{X: 10, Y: 10, Width: 50, Height: 50},
			want:   geometry.Rect{X: 30, Y: 20, Width: 150, Height: 100},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SourceRect(tt.bounds, tt.rect))
		})
	}
}

func near(t *testing.T, want color.RGBA, got color.Color, delta uint8) {
	t.Helper()
	r, g, b, _ := got.RGBA()
	assert.InDelta(t, want.R, uint8(r>>8), float64(delta), "red")
	assert.InDelta(t, want.G, uint8(g>>8), float64(delta), "green")
	assert.InDelta(t, want.B, uint8(b>>8), float64(delta), "blue")
}

func TestRasterizeScenarioCircle(t *testing.T) {
	c := geometry.NewController(geometry.Config{AspectRatio: 1})
	rect := c.OnImageReady(scenarioBounds)
	assert.InDelta(t, 90, rect.X, 1e-9)
	assert.InDelta(t, 40, rect.Y, 1e-9)
	assert.InDelta(t, 120, rect.Width, 1e-9)
	assert.InDelta(t, 120, rect.Height, 1e-9)

	bm, err := Rasterize(scenarioImage(), scenarioBounds, rect, Config{OutputSize: 400, Shape: ShapeCircle})
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", bm.MimeType)
	assert.Equal(t, 400, bm.Width)
	assert.Equal(t, 400, bm.Height)

	out, err := jpeg.Decode(bytes.NewReader(bm.Data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 400, 400), out.Bounds())
	near(t, red, out.At(200, 200), 24)
	near(t, color.RGBA{A: 0xff}, out.At(2, 2), 24)
	near(t, color.RGBA{A: 0xff}, out.At(397, 397), 24)
}

func TestRasterizeRectSamplesOnlyTheSourceRegion(t *testing.T) {
	bm, err := Rasterize(scenarioImage(), scenarioBounds,
		geometry.Rect{X: 90, Y: 40, Width: 120, Height: 120},
		Config{OutputSize: 100, Format: FormatPNG})
	require.NoError(t, err)
	assert.Equal(t, "image/png", bm.MimeType)

	out, err := png.Decode(bytes.NewReader(bm.Data))
	require.NoError(t, err)
	for _, p := range []image.Point{{0, 0}, {99, 0}, {0, 99}, {99, 99}, {50, 50}} {
		near(t, red, out.At(p.X, p.Y), 1)
	}
}

func TestRasterizeCircleKeepsAlphaInPNG(t *testing.T) {
	surface, err := Draw(scenarioImage(), scenarioBounds,
		geometry.Rect{X: 90, Y: 40, Width: 120, Height: 120},
		Config{OutputSize: 64, Shape: ShapeCircle, Format: FormatPNG})
	require.NoError(t, err)
	assert.Equal(t, uint8(0), surface.RGBAAt(0, 0).A)
	assert.Equal(t, uint8(0), surface.RGBAAt(63, 63).A)
	assert.Equal(t, uint8(0xff), surface.RGBAAt(32, 32).A)
}

func TestRasterizeOutputHeight(t *testing.T) {
	b := geometry.Bounds{RenderedWidth: 400, RenderedHeight: 300, NaturalWidth: 800, NaturalHeight: 600}
	bm, err := Rasterize(image.NewRGBA(image.Rect(0, 0, 800, 600)), b,
		geometry.Rect{X: 0, Y: 0, Width: 200, Height: 100},
		Config{OutputSize: 300, OutputHeight: 150, Format: FormatPNG})
	require.NoError(t, err)
	assert.Equal(t, 300, bm.Width)
	assert.Equal(t, 150, bm.Height)
}

func TestRasterizeWebP(t *testing.T) {
	bm, err := Rasterize(scenarioImage(), scenarioBounds,
		geometry.Rect{X: 90, Y: 40, Width: 120, Height: 120},
		Config{Format: FormatWebP})
	require.NoError(t, err)
	assert.Equal(t, "image/webp", bm.MimeType)

	cfg, err := webp.DecodeConfig(bytes.NewReader(bm.Data))
	require.NoError(t, err)
	assert.Equal(t, DefaultOutputSize, cfg.Width)
	assert.Equal(t, DefaultOutputSize, cfg.Height)
}

func TestRasterizeUnavailable(t *testing.T) {
	rect := geometry.Rect{X: 90, Y: 40, Width: 120, Height: 120}
	tests := []struct {
		name   string
		img    image.Image
		bounds geometry.Bounds
		cfg    Config
	}{
		{"not decoded", scenarioImage(), geometry.Bounds{RenderedWidth: 300, RenderedHeight: 200}, Config{}},
		{"no rendered size", scenarioImage(), geometry.Bounds{NaturalWidth: 1200, NaturalHeight: 800}, Config{}},
		{"no image", nil, scenarioBounds, Config{}},
		{"negative surface", scenarioImage(), scenarioBounds, Config{OutputSize: -1}},
		{"huge surface", scenarioImage(), scenarioBounds, Config{OutputSize: MaxOutputSize + 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bm, err := Rasterize(tt.img, tt.bounds, rect, tt.cfg)
			require.ErrorIs(t, err, ErrUnavailable)
			assert.Nil(t, bm)
		})
	}
}

func TestRasterizeOutsideImage(t *testing.T) {
	_, err := Rasterize(scenarioImage(), scenarioBounds, geometry.Rect{X: 400, Y: 400, Width: 50, Height: 50}, Config{})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnavailable)
}

func TestParseRoundTrip(t *testing.T) {
	for _, s := range []Shape{ShapeRect, ShapeCircle} {
		got, err := ParseShape(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	for _, f := range []Format{FormatJPEG, FormatPNG, FormatWebP} {
		got, err := ParseFormat(f.Ext())
		require.NoError(t, err)
		assert.Equal(t, f, got)
	}
	_, err := ParseShape("hexagon")
	assert.Error(t, err)
}

func TestOverlay(t *testing.T) {
	gray := color.RGBA{R: 128, G: 128, B: 128, A: 0xff}
	src := image.NewRGBA(image.Rect(0, 0, 300, 200))
	draw.Draw(src, src.Bounds(), image.NewUniform(gray), image.Point{}, draw.Src)
	b := geometry.Bounds{RenderedWidth: 300, RenderedHeight: 200, NaturalWidth: 300, NaturalHeight: 200}
	rect := geometry.Rect{X: 90, Y: 40, Width: 120, Height: 120}

	out, err := Overlay(src, b, rect, ShapeRect)
	require.NoError(t, err)
	require.Equal(t, image.Rect(0, 0, 300, 200), out.Bounds())
	near(t, gray, out.At(150, 100), 2)
	near(t, color.RGBA{R: 64, G: 64, B: 64}, out.At(10, 10), 4)
	near(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff}, out.At(90, 40), 0)
	near(t, color.RGBA{R: 0xff, G: 0xff, B: 0xff}, out.At(150, 40), 0)

	circle, err := Overlay(src, b, rect, ShapeCircle)
	require.NoError(t, err)
	near(t, gray, circle.At(150, 100), 2)
	near(t, color.RGBA{R: 64, G: 64, B: 64}, circle.At(100, 50), 4)
}

func TestOverlayRejectsUnusableSurface(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 300, 200))
	rect := geometry.Rect{X: 0, Y: 0, Width: 100, Height: 100}
	for _, b := range []geometry.Bounds{
		{RenderedWidth: 1e10, RenderedHeight: 1e10},
		{RenderedWidth: MaxOutputSize + 1, RenderedHeight: 200},
		{RenderedWidth: 300, RenderedHeight: 0},
		{RenderedWidth: math.NaN(), RenderedHeight: 200},
		{RenderedWidth: 300, RenderedHeight: math.Inf(1)},
	} {
		_, err := Overlay(src, b, rect, ShapeRect)
		assert.ErrorIs(t, err, ErrUnavailable, "bounds %+v", b)
	}
}
