package geometry

import (
	"fmt"
	"strings"
)

// Handle is one of the four corner affordances used to resize a rectangle.
type Handle int

const (
	NW Handle = iota
	NE
	SW
	SE
)

// Handles lists every handle in hit-test order.
var Handles = [...]Handle{NW, NE, SW, SE}

func (h Handle) String() string {
	switch h {
	case NW:
		return "nw"
	case NE:
		return "ne"
	case SW:
		return "sw"
	case SE:
		return "se"
	default:
		return fmt.Sprintf("Handle(%d)", int(h))
	}
}

func ParseHandle(s string) (Handle, error) {
	for _, h := range Handles {
		if strings.EqualFold(s, h.String()) {
			return h, nil
		}
	}
	return 0, fmt.Errorf("unknown handle %q", s)
}

func (h Handle) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Handle) UnmarshalText(text []byte) error {
	parsed, err := ParseHandle(string(text))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}

func (h Handle) west() bool  { return h == NW || h == SW }
func (h Handle) north() bool { return h == NW || h == NE }

// growth returns the sign with which pointer movement on each axis grows the
// rectangle when dragging h.
func (h Handle) growth() (gx, gy float64) {
	gx, gy = 1, 1
	if h.west() {
		gx = -1
	}
	if h.north() {
		gy = -1
	}
	return gx, gy
}

// Corner returns the position of h on r.
func (h Handle) Corner(r Rect) Point {
	p := Point{X: r.Right(), Y: r.Bottom()}
	if h.west() {
		p.X = r.X
	}
	if h.north() {
		p.Y = r.Y
	}
	return p
}

// HandleRects returns the hit box of every handle, for overlay rendering.
func HandleRects(r Rect) map[Handle]Rect {
	out := make(map[Handle]Rect, len(Handles))
	for _, h := range Handles {
		c := h.Corner(r)
		out[h] = Rect{X: c.X - HandleSize/2, Y: c.Y - HandleSize/2, Width: HandleSize, Height: HandleSize}
	}
	return out
}

// HandleAt returns the handle whose hit box contains p.
func HandleAt(r Rect, p Point) (Handle, bool) {
	rects := HandleRects(r)
	for _, h := range Handles {
		if rects[h].Contains(p) {
			return h, true
		}
	}
	return 0, false
}
