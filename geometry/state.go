package geometry

import "fmt"

// State is the interaction state of a crop session: Idle, Dragging or
// Resizing.
type State interface {
	isState()
	String() string
}

type Idle struct{}

// Dragging moves the whole rectangle. Grab is the pointer offset from the
// rectangle origin at gesture start.
type Dragging struct {
	Grab Point
}

// Resizing moves one corner. Deltas are always taken against Anchor, never
// accumulated, so repeated moves do not drift.
type Resizing struct {
	Handle Handle
	Anchor Anchor
}

// Anchor snapshots the rectangle and pointer at gesture start.
type Anchor struct {
	Rect    Rect
	Pointer Point
}

func (Idle) isState()     {}
func (Dragging) isState() {}
func (Resizing) isState() {}

func (Idle) String() string       { return "idle" }
func (Dragging) String() string   { return "dragging" }
func (s Resizing) String() string { return fmt.Sprintf("resizing[%s]", s.Handle) }

// IsIdle reports whether s is Idle. A nil state counts as Idle.
func IsIdle(s State) bool {
	if s == nil {
		return true
	}
	_, ok := s.(Idle)
	return ok
}

// Event is an input to Reduce.
type Event interface {
	isEvent()
}

type (
	// ImageReady carries the bounding box captured at image load.
	ImageReady struct{ Bounds Bounds }
	// PointerDown begins a resize when it lands on a handle and a drag when it
	// lands on the body. Anywhere else it is ignored.
	PointerDown struct{ Pointer Point }
	BeginDrag   struct{ Pointer Point }
	BeginResize struct {
		Handle  Handle
		Pointer Point
	}
	PointerMove struct{ Pointer Point }
	PointerUp   struct{ Pointer Point }
	ZoomIn      struct{}
	ZoomOut     struct{}
	Reset       struct{}
)

func (ImageReady) isEvent()  {}
func (PointerDown) isEvent() {}
func (BeginDrag) isEvent()   {}
func (BeginResize) isEvent() {}
func (PointerMove) isEvent() {}
func (PointerUp) isEvent()   {}
func (ZoomIn) isEvent()      {}
func (ZoomOut) isEvent()     {}
func (Reset) isEvent()       {}

// Model is the accumulated state of one session.
type Model struct {
	Config Config
	Bounds Bounds
	Rect   Rect
	State  State
}

// Reduce returns the model that results from applying ev to m. It has no side
// effects. Events other than ImageReady are ignored until valid bounds are
// known.
func Reduce(m Model, ev Event) Model {
	if m.State == nil {
		m.State = Idle{}
	}
	if e, ok := ev.(ImageReady); ok {
		m.Bounds = e.Bounds
		m.State = Idle{}
		if e.Bounds.Valid() {
			m.Rect = initialRect(e.Bounds, m.Config)
		} else {
			m.Rect = Rect{}
		}
		return m
	}
	if !m.Bounds.Valid() {
		return m
	}

	switch e := ev.(type) {
	case PointerDown:
		if !IsIdle(m.State) {
			return m
		}
		if h, ok := HandleAt(m.Rect, e.Pointer); ok {
			return Reduce(m, BeginResize{Handle: h, Pointer: e.Pointer})
		}
		if m.Rect.Contains(e.Pointer) {
			return Reduce(m, BeginDrag(e))
		}
	case BeginDrag:
		if IsIdle(m.State) {
			m.State = Dragging{Grab: e.Pointer.Sub(Point{X: m.Rect.X, Y: m.Rect.Y})}
		}
	case BeginResize:
		if IsIdle(m.State) {
			m.State = Resizing{Handle: e.Handle, Anchor: Anchor{Rect: m.Rect, Pointer: e.Pointer}}
		}
	case PointerMove:
		switch s := m.State.(type) {
		case Dragging:
			m.Rect = drag(m.Rect, s.Grab, e.Pointer, m.Bounds)
		case Resizing:
			m.Rect = resize(s.Anchor, s.Handle, e.Pointer, m.Bounds, m.Config)
		}
	case PointerUp:
		m.State = Idle{}
	case ZoomIn:
		if IsIdle(m.State) {
			m.Rect = zoom(m.Rect, 1-ZoomStep, m.Bounds, m.Config)
		}
	case ZoomOut:
		if IsIdle(m.State) {
			m.Rect = zoom(m.Rect, 1+ZoomStep, m.Bounds, m.Config)
		}
	case Reset:
		m.State = Idle{}
		m.Rect = initialRect(m.Bounds, m.Config)
	}
	return m
}
