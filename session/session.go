// Package session runs one interactive crop from image load to a single
// completion event.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"cropdeck/geometry"
	"cropdeck/raster"
)

var (
	// ErrCommitPending is returned by Commit while another commit is in flight.
	ErrCommitPending = errors.New("commit already in progress")
	// ErrClosed is returned by Commit once the session has completed.
	ErrClosed = errors.New("session closed")
)

// Outcome is the completion event of a session: Committed or Cancelled.
type Outcome interface {
	isOutcome()
}

type Committed struct {
	Bitmap *raster.Bitmap
}

type Cancelled struct{}

func (Committed) isOutcome() {}
func (Cancelled) isOutcome() {}

// Options is supplied by the caller at session start and never changes.
type Options struct {
	AspectRatio float64
	Clamp       geometry.ClampMode
	Output      raster.Config
}

// Session is not safe for concurrent use, except that Commit rejects
// re-entrant calls with ErrCommitPending.
type Session struct {
	id       string
	ctrl     *geometry.Controller
	img      image.Image
	opts     Options
	viewport Viewport
	onDone   func(Outcome)
	logger   zerolog.Logger

	release func()
	pending atomic.Bool
	closed  atomic.Bool
	once    sync.Once
}

// New starts a session over img as rendered in b. Natural dimensions missing
// from b are taken from img. onDone receives exactly one Outcome unless the
// session is abandoned without Close.
func New(ctx context.Context, vp Viewport, img image.Image, b geometry.Bounds, opts Options, onDone func(Outcome)) *Session {
	if img != nil && b.NaturalWidth == 0 && b.NaturalHeight == 0 {
		b.NaturalWidth = float64(img.Bounds().Dx())
		b.NaturalHeight = float64(img.Bounds().Dy())
	}
	id := uuid.NewString()
	s := &Session{
		id:       id,
		ctrl:     geometry.NewController(geometry.Config{AspectRatio: opts.AspectRatio, Clamp: opts.Clamp}),
		img:      img,
		opts:     opts,
		viewport: vp,
		onDone:   onDone,
		logger:   log.Ctx(ctx).With().Str("session", id).Logger(),
	}
	rect := s.ctrl.OnImageReady(b)
	s.logger.Debug().
		Stringer("rect", rect).
		Float64("aspect_ratio", opts.AspectRatio).
		Stringer("shape", opts.Output.Shape).
		Msg("session started")
	return s
}

func (s *Session) ID() string              { return s.id }
func (s *Session) Rect() geometry.Rect     { return s.ctrl.Rect() }
func (s *Session) State() geometry.State   { return s.ctrl.State() }
func (s *Session) Bounds() geometry.Bounds { return s.ctrl.Bounds() }
func (s *Session) Options() Options        { return s.opts }
func (s *Session) Image() image.Image      { return s.img }
func (s *Session) Done() bool              { return s.closed.Load() }
func (s *Session) Model() geometry.Model   { return s.ctrl.Model() }
func (s *Session) Listening() bool         { return s.release != nil }

// PointerDown begins a resize or drag depending on what p lands on.
func (s *Session) PointerDown(p geometry.Point) bool {
	return s.begin(!s.Done() && s.ctrl.PointerDown(p))
}

func (s *Session) BeginDrag(p geometry.Point) bool {
	return s.begin(!s.Done() && s.ctrl.BeginDrag(p))
}

func (s *Session) BeginResize(h geometry.Handle, p geometry.Point) bool {
	return s.begin(!s.Done() && s.ctrl.BeginResize(h, p))
}

func (s *Session) Move(p geometry.Point) geometry.Rect {
	if s.Done() {
		return s.ctrl.Rect()
	}
	return s.checked(s.ctrl.OnPointerMove(p))
}

func (s *Session) ZoomIn() geometry.Rect {
	if s.Done() {
		return s.ctrl.Rect()
	}
	return s.checked(s.ctrl.ZoomIn())
}

func (s *Session) ZoomOut() geometry.Rect {
	if s.Done() {
		return s.ctrl.Rect()
	}
	return s.checked(s.ctrl.ZoomOut())
}

// Reset restores the default rectangle and ends any active gesture.
func (s *Session) Reset() geometry.Rect {
	if s.Done() {
		return s.ctrl.Rect()
	}
	r := s.ctrl.Reset()
	s.stopListening()
	return s.checked(r)
}

// begin subscribes to the viewport's pointer-up events once a gesture starts.
func (s *Session) begin(started bool) bool {
	if !started {
		return false
	}
	if s.release == nil && s.viewport != nil {
		s.release = s.viewport.OnPointerUp(s.pointerUp)
	}
	s.logger.Debug().Stringer("state", s.ctrl.State()).Msg("gesture started")
	return true
}

func (s *Session) pointerUp(geometry.Point) {
	r := s.ctrl.EndGesture()
	s.stopListening()
	s.logger.Debug().Stringer("rect", r).Msg("gesture ended")
}

// EndGesture returns the session to Idle without a pointer-up event.
func (s *Session) EndGesture() geometry.Rect {
	r := s.ctrl.EndGesture()
	s.stopListening()
	return r
}

func (s *Session) stopListening() {
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

// checked logs invariant violations. They indicate a defect, not bad input,
// so the rectangle is returned regardless.
func (s *Session) checked(r geometry.Rect) geometry.Rect {
	if err := s.ctrl.Validate(); err != nil {
		ev := s.logger.Error()
		if s.opts.Clamp == geometry.ClampSequential {
			ev = s.logger.Debug()
		}
		ev.Err(err).Msg("crop rectangle broke an invariant")
	}
	return r
}

// Commit rasterizes the current rectangle and completes the session with a
// Committed outcome. A failed rasterization leaves the session open.
func (s *Session) Commit(ctx context.Context) (*raster.Bitmap, error) {
	if s.Done() {
		return nil, ErrClosed
	}
	if !s.pending.CompareAndSwap(false, true) {
		return nil, ErrCommitPending
	}
	defer s.pending.Store(false)
	// a commit that finished between the check above and the swap
	if s.Done() {
		return nil, ErrClosed
	}

	if !geometry.IsIdle(s.ctrl.State()) {
		s.EndGesture()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	rect := s.ctrl.Rect()
	bm, err := raster.Rasterize(s.img, s.ctrl.Bounds(), rect, s.opts.Output)
	if err != nil {
		s.logger.Error().Err(err).Stringer("rect", rect).Msg("rasterization failed")
		return nil, fmt.Errorf("failed to commit session %s: %w", s.id, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.logger.Info().
		Stringer("rect", rect).
		Str("mime_type", bm.MimeType).
		Int("bytes", len(bm.Data)).
		Msg("session committed")
	s.finish(Committed{Bitmap: bm})
	return bm, nil
}

// Cancel completes the session with a Cancelled outcome.
func (s *Session) Cancel() {
	s.finish(Cancelled{})
}

// Close tears the session down, releasing any viewport listener held by an
// unfinished gesture. An open session completes as Cancelled.
func (s *Session) Close() {
	s.stopListening()
	s.finish(Cancelled{})
}

func (s *Session) finish(o Outcome) {
	s.once.Do(func() {
		s.closed.Store(true)
		s.stopListening()
		if _, ok := o.(Cancelled); ok {
			s.logger.Debug().Msg("session cancelled")
		}
		if s.onDone != nil {
			s.onDone(o)
		}
	})
}
