package geometry

// Controller is the stateful face of Reduce. It is not safe for concurrent
// use; a session drives it from a single event loop.
type Controller struct {
	m Model
}

func NewController(cfg Config) *Controller {
	return &Controller{m: Model{Config: cfg, State: Idle{}}}
}

func (c *Controller) apply(ev Event) Rect {
	c.m = Reduce(c.m, ev)
	return c.m.Rect
}

// began applies ev and reports whether it moved the controller out of Idle.
func (c *Controller) began(ev Event) bool {
	if !IsIdle(c.m.State) {
		return false
	}
	c.apply(ev)
	return !IsIdle(c.m.State)
}

// OnImageReady records the bounding box and returns the default rectangle.
func (c *Controller) OnImageReady(b Bounds) Rect {
	return c.apply(ImageReady{Bounds: b})
}

// PointerDown hit-tests p against the handles and the body and begins the
// matching gesture. It reports whether a gesture began.
func (c *Controller) PointerDown(p Point) bool {
	return c.began(PointerDown{Pointer: p})
}

// BeginDrag reports false when a gesture is already active.
func (c *Controller) BeginDrag(p Point) bool {
	return c.began(BeginDrag{Pointer: p})
}

// BeginResize reports false when a gesture is already active.
func (c *Controller) BeginResize(h Handle, p Point) bool {
	return c.began(BeginResize{Handle: h, Pointer: p})
}

func (c *Controller) OnPointerMove(p Point) Rect {
	return c.apply(PointerMove{Pointer: p})
}

// EndGesture returns the controller to Idle.
func (c *Controller) EndGesture() Rect {
	return c.apply(PointerUp{})
}

func (c *Controller) ZoomIn() Rect  { return c.apply(ZoomIn{}) }
func (c *Controller) ZoomOut() Rect { return c.apply(ZoomOut{}) }
func (c *Controller) Reset() Rect   { return c.apply(Reset{}) }

func (c *Controller) Rect() Rect      { return c.m.Rect }
func (c *Controller) State() State    { return c.m.State }
func (c *Controller) Bounds() Bounds  { return c.m.Bounds }
func (c *Controller) Config() Config  { return c.m.Config }
func (c *Controller) Model() Model    { return c.m }
func (c *Controller) Validate() error { return Validate(c.m.Rect, c.m.Bounds, c.m.Config) }
