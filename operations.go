package main

import (
	"bufio"
	"bytes"
	"context"
	"crypto/md5"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"cropdeck/geometry"
	"cropdeck/raster"
	"cropdeck/session"
)

type Events = []Event

// Event is one user input of a crop session, decoded from a JSON object with
// a "type" field. Exactly one field is set.
type Event struct {
	PointerDown *PointerDownEvent
	PointerMove *PointerEvent
	PointerUp   *PointerEvent
	ZoomIn      *struct{}
	ZoomOut     *struct{}
	Reset       *struct{}
}

type PointerEvent struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (p PointerEvent) Point() geometry.Point {
	return geometry.Pt(p.X, p.Y)
}

// PointerDownEvent starts a gesture. Handle forces a resize from that corner
// and Target "body" forces a drag; with neither the pointer is hit-tested.
type PointerDownEvent struct {
	PointerEvent
	Handle *geometry.Handle `json:"handle,omitempty"`
	Target string           `json:"target,omitempty"`
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var ev struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("failed to unmarshal event: %w", err)
	}

	kind := strings.ToLower(ev.Type)
	switch kind {
	case "pointerdown":
		var down PointerDownEvent
		if err := json.Unmarshal(data, &down); err != nil {
			return fmt.Errorf("failed to unmarshal pointerdown event: %w", err)
		}
		e.PointerDown = &down
	case "pointermove", "pointerup":
		var p PointerEvent
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("failed to unmarshal %s event: %w", kind, err)
		}
		if kind == "pointermove" {
			e.PointerMove = &p
		} else {
			e.PointerUp = &p
		}
	case "zoomin":
		e.ZoomIn = &struct{}{}
	case "zoomout":
		e.ZoomOut = &struct{}{}
	case "reset":
		e.Reset = &struct{}{}
	default:
		return fmt.Errorf("unknown event %q", ev.Type)
	}
	return nil
}

func (e Event) String() string {
	switch {
	case e.PointerDown != nil:
		if e.PointerDown.Handle != nil {
			return fmt.Sprintf("pointerdown(%g,%g,%s)", e.PointerDown.X, e.PointerDown.Y, e.PointerDown.Handle)
		}
		return fmt.Sprintf("pointerdown(%g,%g)", e.PointerDown.X, e.PointerDown.Y)
	case e.PointerMove != nil:
		return fmt.Sprintf("pointermove(%g,%g)", e.PointerMove.X, e.PointerMove.Y)
	case e.PointerUp != nil:
		return fmt.Sprintf("pointerup(%g,%g)", e.PointerUp.X, e.PointerUp.Y)
	case e.ZoomIn != nil:
		return "zoomin"
	case e.ZoomOut != nil:
		return "zoomout"
	case e.Reset != nil:
		return "reset"
	default:
		return "noop"
	}
}

// Apply feeds e to the session. Pointer-up events go through the window, the
// way a browser delivers them, so only a session with an active gesture hears
// them.
func (e Event) Apply(s *session.Session, w *session.Window) geometry.Rect {
	switch {
	case e.PointerDown != nil:
		down := e.PointerDown
		switch {
		case down.Handle != nil:
			s.BeginResize(*down.Handle, down.Point())
		case down.Target == "body":
			s.BeginDrag(down.Point())
		default:
			s.PointerDown(down.Point())
		}
	case e.PointerMove != nil:
		return s.Move(e.PointerMove.Point())
	case e.PointerUp != nil:
		w.PointerUp(e.PointerUp.Point())
	case e.ZoomIn != nil:
		return s.ZoomIn()
	case e.ZoomOut != nil:
		return s.ZoomOut()
	case e.Reset != nil:
		return s.Reset()
	}
	return s.Rect()
}

type RenderedSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Script is a recorded crop session over one file.
type Script struct {
	Filename    string        `json:"filename"`
	Rendered    RenderedSize  `json:"rendered"`
	AspectRatio *float64      `json:"aspect_ratio,omitempty"`
	Shape       *raster.Shape `json:"shape,omitempty"`

	// OutputHeight gives the script a non-square surface, zero keeps the
	// configured one.
	OutputHeight int    `json:"output_height,omitempty"`
	Events       Events `json:"events"`
}

func (sc Script) bounds(img image.Image) geometry.Bounds {
	return displayBounds(img, sc.Rendered.Width, sc.Rendered.Height)
}

// displayBounds returns the bounding box of img rendered at w x h. A missing
// rendered size means the image is shown at its natural size.
func displayBounds(img image.Image, w, h float64) geometry.Bounds {
	nw, nh := float64(img.Bounds().Dx()), float64(img.Bounds().Dy())
	if w <= 0 || h <= 0 {
		w, h = nw, nh
	}
	return geometry.Bounds{
		RenderedWidth:  w,
		RenderedHeight: h,
		NaturalWidth:   nw,
		NaturalHeight:  nh,
	}
}

func (sc Script) options(defaults session.Options) session.Options {
	opts := defaults
	if sc.AspectRatio != nil {
		opts.AspectRatio = *sc.AspectRatio
	}
	if sc.Shape != nil {
		opts.Output.Shape = *sc.Shape
	}
	if sc.OutputHeight > 0 {
		opts.Output.OutputHeight = sc.OutputHeight
	}
	return opts
}

func readScripts(r io.Reader) ([]Script, error) {
	var scripts []Script
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for line := 1; sc.Scan(); line++ {
		text := bytes.TrimSpace(sc.Bytes())
		if len(text) == 0 {
			continue
		}
		var script Script
		if err := json.Unmarshal(text, &script); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		scripts = append(scripts, script)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read scripts: %w", err)
	}
	return scripts, nil
}

// rectID names an output after the crop that produced it.
func rectID(r geometry.Rect) string {
	m := md5.New()
	_, err := m.Write([]byte(r.String()))
	if err != nil {
		log.Error().Err(err).Msg("failed to hash crop rect")
		return ""
	}
	return fmt.Sprintf("%x", m.Sum(nil))
}

type ScriptExecutor struct {
	BaseDir   string
	OutputDir string
	Cropper   Cropper
	Defaults  session.Options
}

// Exec replays every script in its own session, in parallel.
func (r ScriptExecutor) Exec(ctx context.Context, scripts []Script) error {
	if len(scripts) == 0 {
		log.Ctx(ctx).Warn().Msg("no scripts to execute")
		return nil
	}

	pooler := pool.New().WithErrors().WithContext(ctx).WithMaxGoroutines(runtime.NumCPU())

	if err := os.MkdirAll(r.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", r.OutputDir, err)
	}
	for _, sc := range scripts {
		pooler.Go(func(ctx context.Context) error {
			if err := r.execute(ctx, sc); err != nil {
				log.Ctx(ctx).Error().Err(err).
					Str("filename", sc.Filename).
					Int("events", len(sc.Events)).
					Msg("failed to replay script")
				return err
			}
			return nil
		})
	}

	if err := pooler.Wait(); err != nil {
		log.Ctx(ctx).Error().
			Err(err).
			Msg("finished with errors")
		return err
	}

	return nil
}

func (r ScriptExecutor) execute(ctx context.Context, sc Script) error {
	log.Ctx(ctx).Info().Str("filename", sc.Filename).Int("events", len(sc.Events)).Msg("replaying")
	sourcePath := filepath.Join(r.BaseDir, sc.Filename)
	f, err := os.Open(sourcePath)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", sourcePath, err)
	}
	defer f.Close()

	opts := sc.options(r.Defaults)
	var b bytes.Buffer
	rect, err := r.Cropper.Crop(ctx, f, &b, sc, opts)
	if err != nil {
		return err
	}

	return writeOutput(r.OutputDir, sc.Filename, rect, opts.Output.Format, b.Bytes())
}

func writeOutput(dir, filename string, rect geometry.Rect, format raster.Format, data []byte) error {
	newName := fmt.Sprintf("%s-%s.%s", filepath.Base(filename), rectID(rect), format.Ext())
	outPath := filepath.Join(dir, newName)
	if err := os.WriteFile(outPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write cropped file %s: %w", newName, err)
	}
	return nil
}
