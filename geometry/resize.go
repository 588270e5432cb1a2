package geometry

import "math"

// initialRect centers a rectangle whose width is DefaultFill of the shorter
// rendered side, fitted into the bounds and floored at MinSize.
func initialRect(b Bounds, c Config) Rect {
	side := DefaultFill * math.Min(b.RenderedWidth, b.RenderedHeight)
	var w, h float64
	if c.locked() {
		lo, hi := c.widthRange(b)
		w = clamp(side, lo, hi)
		h = c.heightFor(w)
	} else {
		loW, hiW := axisRange(b.RenderedWidth)
		loH, hiH := axisRange(b.RenderedHeight)
		w = clamp(side, loW, hiW)
		h = clamp(side, loH, hiH)
	}
	return Rect{
		X:      (b.RenderedWidth - w) / 2,
		Y:      (b.RenderedHeight - h) / 2,
		Width:  w,
		Height: h,
	}
}

// contain moves r inside the bounds without touching its size.
func contain(r Rect, b Bounds) Rect {
	r.Width = math.Min(r.Width, b.RenderedWidth)
	r.Height = math.Min(r.Height, b.RenderedHeight)
	r.X = clamp(r.X, 0, b.RenderedWidth-r.Width)
	r.Y = clamp(r.Y, 0, b.RenderedHeight-r.Height)
	return r
}

func drag(r Rect, grab, p Point, b Bounds) Rect {
	r.X = clamp(p.X-grab.X, 0, b.RenderedWidth-r.Width)
	r.Y = clamp(p.Y-grab.Y, 0, b.RenderedHeight-r.Height)
	return r
}

// place sizes the anchor rectangle to w x h keeping the corner opposite to h
// fixed, so the dragged corner is the one that moves.
func place(s Rect, h Handle, w, ht float64) Rect {
	r := Rect{X: s.X, Y: s.Y, Width: w, Height: ht}
	if h.west() {
		r.X = s.Right() - w
	}
	if h.north() {
		r.Y = s.Bottom() - ht
	}
	return r
}

// room returns the largest width and height available to a resize of s from
// h before the moving corner leaves the image.
func room(s Rect, h Handle, b Bounds) (maxW, maxH float64) {
	maxW = b.RenderedWidth - s.X
	if h.west() {
		maxW = s.Right()
	}
	maxH = b.RenderedHeight - s.Y
	if h.north() {
		maxH = s.Bottom()
	}
	return maxW, maxH
}

func resize(a Anchor, h Handle, p Point, b Bounds, c Config) Rect {
	d := p.Sub(a.Pointer)
	s := a.Rect
	gx, gy := h.growth()

	if !c.locked() {
		loW, _ := axisRange(b.RenderedWidth)
		loH, _ := axisRange(b.RenderedHeight)
		maxW, maxH := room(s, h, b)
		w := clamp(s.Width+gx*d.X, loW, maxW)
		ht := clamp(s.Height+gy*d.Y, loH, maxH)
		return contain(place(s, h, w, ht), b)
	}

	// The width follows whichever axis moved further, measured in width units.
	delta := gx * d.X
	if byY := gy * d.Y * c.AspectRatio; math.Abs(byY) > math.Abs(delta) {
		delta = byY
	}
	lo, _ := c.widthRange(b)
	w := math.Max(s.Width+delta, lo)

	if c.Clamp == ClampSequential {
		return clampSequential(place(s, h, w, c.heightFor(w)), b, c)
	}
	maxW, maxH := room(s, h, b)
	w = math.Min(w, math.Min(maxW, maxH*c.AspectRatio))
	return contain(place(s, h, w, c.heightFor(w)), b)
}

// clampSequential applies the four edge corrections in a fixed order: left,
// top, right, bottom. Only width corrections re-derive the height.
func clampSequential(r Rect, b Bounds, c Config) Rect {
	if r.X < 0 {
		r.Width += r.X
		r.Height = c.heightFor(r.Width)
		r.X = 0
	}
	if r.Y < 0 {
		r.Height += r.Y
		r.Y = 0
	}
	if r.Right() > b.RenderedWidth {
		r.Width = b.RenderedWidth - r.X
		r.Height = c.heightFor(r.Width)
	}
	if r.Bottom() > b.RenderedHeight {
		r.Height = b.RenderedHeight - r.Y
	}
	return r
}

// zoom scales r about its center by factor and pulls it back inside the
// bounds. Neither side grows past the shorter rendered side.
func zoom(r Rect, factor float64, b Bounds, c Config) Rect {
	center := r.Center()
	var w, h float64
	if c.locked() {
		lo, hi := c.zoomRange(b)
		w = clamp(r.Width*factor, lo, hi)
		h = c.heightFor(w)
	} else {
		loW, hiW := axisRange(b.RenderedWidth)
		loH, hiH := axisRange(b.RenderedHeight)
		side := shorterSide(b)
		w = clamp(r.Width*factor, loW, math.Max(loW, math.Min(hiW, side)))
		h = clamp(r.Height*factor, loH, math.Max(loH, math.Min(hiH, side)))
	}
	return contain(Rect{X: center.X - w/2, Y: center.Y - h/2, Width: w, Height: h}, b)
}
