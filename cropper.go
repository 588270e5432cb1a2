package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"

	"cropdeck/geometry"
	"cropdeck/raster"
	"cropdeck/session"
)

type Cropper interface {
	// Crop decodes an image from r, replays the script over it and writes the
	// committed bitmap to w. It returns the display-space rectangle that was
	// committed.
	Crop(ctx context.Context, r io.Reader, w io.Writer, sc Script, opts session.Options) (geometry.Rect, error)
}

// SessionCropper drives a headless crop session with recorded events.
type SessionCropper struct{}

func (c *SessionCropper) Crop(ctx context.Context, r io.Reader, w io.Writer, sc Script, opts session.Options) (geometry.Rect, error) {
	src, err := raster.Decode(r)
	if err != nil {
		return geometry.Rect{}, err
	}

	win := session.NewWindow()
	var outcome session.Outcome
	s := session.New(ctx, win, src, sc.bounds(src), opts, func(o session.Outcome) {
		outcome = o
	})
	defer s.Close()

	for i, ev := range sc.Events {
		if err := ctx.Err(); err != nil {
			return geometry.Rect{}, err
		}
		rect := ev.Apply(s, win)
		log.Ctx(ctx).Trace().
			Int("seq", i).
			Stringer("event", ev).
			Stringer("rect", rect).
			Stringer("state", s.State()).
			Msg("applied")
	}

	bm, err := s.Commit(ctx)
	if err != nil {
		return geometry.Rect{}, err
	}
	if _, ok := outcome.(session.Committed); !ok {
		return geometry.Rect{}, errors.New("session did not complete with a commit")
	}
	if _, err := w.Write(bm.Data); err != nil {
		return geometry.Rect{}, fmt.Errorf("failed to write %s: %w", bm.MimeType, err)
	}
	return s.Rect(), nil
}

func NewSessionCropper() *SessionCropper {
	return &SessionCropper{}
}
