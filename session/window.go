package session

import (
	"sync"

	"cropdeck/geometry"
)

// Viewport is the surface that delivers pointer-up events from anywhere in
// the view, not just over the crop element. A session subscribes while a
// gesture is active and calls release when it returns to Idle.
type Viewport interface {
	OnPointerUp(fn func(geometry.Point)) (release func())
}

// Window is a Viewport backed by a listener registry. Callers feed it raw
// pointer-up events through PointerUp.
type Window struct {
	mu        sync.Mutex
	next      int
	listeners map[int]func(geometry.Point)
}

func NewWindow() *Window {
	return &Window{listeners: make(map[int]func(geometry.Point))}
}

func (w *Window) OnPointerUp(fn func(geometry.Point)) func() {
	w.mu.Lock()
	defer w.mu.Unlock()
	id := w.next
	w.next++
	w.listeners[id] = fn

	var once sync.Once
	return func() {
		once.Do(func() {
			w.mu.Lock()
			delete(w.listeners, id)
			w.mu.Unlock()
		})
	}
}

// PointerUp dispatches p to every listener registered at the time of the
// call. Listeners may release themselves while being dispatched.
func (w *Window) PointerUp(p geometry.Point) {
	w.mu.Lock()
	fns := make([]func(geometry.Point), 0, len(w.listeners))
	for _, fn := range w.listeners {
		fns = append(fns, fn)
	}
	w.mu.Unlock()

	for _, fn := range fns {
		fn(p)
	}
}

// Listeners returns the number of registered listeners.
func (w *Window) Listeners() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.listeners)
}
