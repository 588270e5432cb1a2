// Package geometry models the crop rectangle of an interactive crop session.
//
// All coordinates are display-space pixels, relative to the top-left corner of
// the rendered image element. The package knows nothing about pixels or
// bitmaps; see package raster for that.
package geometry

import (
	"fmt"
	"math"
)

const (
	// MinSize is the smallest width or height a crop rectangle may have.
	MinSize = 50.0
	// DefaultFill is the share of the shorter rendered side covered by the
	// initial rectangle.
	DefaultFill = 0.6
	// ZoomStep is the relative width change applied by one zoom step.
	ZoomStep = 0.1
	// HandleSize is the side of the square hit box centered on each corner.
	HandleSize = 12.0

	epsilon = 1e-6
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func Pt(x, y float64) Point {
	return Point{X: x, Y: y}
}

func (p Point) Sub(q Point) Point {
	return Point{X: p.X - q.X, Y: p.Y - q.Y}
}

// Rect is a crop rectangle in display space.
type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

func (r Rect) Center() Point {
	return Point{X: r.X + r.Width/2, Y: r.Y + r.Height/2}
}

// Contains reports whether p lies inside r, edges included.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.X && p.X <= r.Right() && p.Y >= r.Y && p.Y <= r.Bottom()
}

func (r Rect) String() string {
	return fmt.Sprintf("rect(x=%.2f,y=%.2f,w=%.2f,h=%.2f)", r.X, r.Y, r.Width, r.Height)
}

// Bounds is the rendered bounding box of the source image, captured once when
// the image is ready.
type Bounds struct {
	RenderedWidth  float64 `json:"rendered_width"`
	RenderedHeight float64 `json:"rendered_height"`
	NaturalWidth   float64 `json:"natural_width"`
	NaturalHeight  float64 `json:"natural_height"`
}

// Valid reports whether the rendered size is usable for geometry.
func (b Bounds) Valid() bool {
	return b.RenderedWidth > 0 && b.RenderedHeight > 0
}

// Scale returns the display-to-native scale factors.
func (b Bounds) Scale() (sx, sy float64) {
	if !b.Valid() {
		return 0, 0
	}
	return b.NaturalWidth / b.RenderedWidth, b.NaturalHeight / b.RenderedHeight
}

// ClampMode selects how a resize that crosses the image edges is corrected.
type ClampMode int

const (
	// ClampJoint limits the width by every edge constraint at once and only
	// then derives the height, so the aspect ratio always holds.
	ClampJoint ClampMode = iota
	// ClampSequential corrects the left, top, right and bottom edges one
	// after another. Height is never fed back into width, so a gesture that
	// trips a vertical edge leaves the aspect ratio off until the next move.
	// Kept for consumers that depend on the historical behavior.
	ClampSequential
)

func (m ClampMode) String() string {
	switch m {
	case ClampJoint:
		return "joint"
	case ClampSequential:
		return "sequential"
	default:
		return fmt.Sprintf("ClampMode(%d)", int(m))
	}
}

func ParseClampMode(s string) (ClampMode, error) {
	switch s {
	case "", "joint":
		return ClampJoint, nil
	case "sequential":
		return ClampSequential, nil
	default:
		return 0, fmt.Errorf("unknown clamp mode %q", s)
	}
}

// Config is fixed for the lifetime of a session.
type Config struct {
	// AspectRatio is width/height. Zero or negative leaves the aspect free.
	AspectRatio float64
	Clamp       ClampMode
}

func (c Config) locked() bool {
	return c.AspectRatio > 0
}

func (c Config) heightFor(w float64) float64 {
	if c.AspectRatio == 1 {
		return w
	}
	return w / c.AspectRatio
}

// widthRange returns the permitted widths of an aspect-locked rectangle. The
// floor keeps both sides at MinSize and degrades to the ceiling when the
// rendered image is too small to hold a MinSize rectangle.
func (c Config) widthRange(b Bounds) (lo, hi float64) {
	hi = math.Min(b.RenderedWidth, b.RenderedHeight*c.AspectRatio)
	lo = MinSize * math.Max(1, c.AspectRatio)
	if lo > hi {
		lo = hi
	}
	return lo, hi
}

// zoomRange narrows widthRange for zoom: the ceiling is the shorter rendered
// side, unless the floor is already above it.
func (c Config) zoomRange(b Bounds) (lo, hi float64) {
	lo, hi = c.widthRange(b)
	return lo, math.Max(lo, math.Min(hi, shorterSide(b)))
}

func shorterSide(b Bounds) float64 {
	return math.Min(b.RenderedWidth, b.RenderedHeight)
}

func axisRange(dim float64) (lo, hi float64) {
	return math.Min(MinSize, dim), dim
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

// GeometryError signals a rectangle that breaks an invariant. Reaching one is
// a programming defect; operations in this package never return it.
type GeometryError struct {
	Rect   Rect
	Reason string
}

func (e *GeometryError) Error() string {
	return fmt.Sprintf("geometry: %s: %s", e.Reason, e.Rect)
}

// Validate checks r against the bounds, minimum size and aspect invariants.
func Validate(r Rect, b Bounds, c Config) error {
	fail := func(reason string) error {
		return &GeometryError{Rect: r, Reason: reason}
	}
	if r.X < -epsilon || r.Y < -epsilon {
		return fail("negative origin")
	}
	if r.Right() > b.RenderedWidth+epsilon || r.Bottom() > b.RenderedHeight+epsilon {
		return fail("outside rendered bounds")
	}
	if c.locked() {
		lo, _ := c.widthRange(b)
		if r.Width < lo-epsilon || r.Height < c.heightFor(lo)-epsilon {
			return fail("below minimum size")
		}
		if math.Abs(r.Height-c.heightFor(r.Width)) > epsilon*math.Max(1, r.Height) {
			return fail("aspect ratio mismatch")
		}
		return nil
	}
	loW, _ := axisRange(b.RenderedWidth)
	loH, _ := axisRange(b.RenderedHeight)
	if r.Width < loW-epsilon || r.Height < loH-epsilon {
		return fail("below minimum size")
	}
	return nil
}
