package main

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/filesystem"
	"github.com/rs/zerolog/log"

	"cropdeck/geometry"
	"cropdeck/raster"
	"cropdeck/session"
)

//go:embed static
var staticFS embed.FS
var isDebug = os.Getenv("DEBUG") == "1"

type Config struct {
	RootDir string
	// Defaults apply to every session; a create request may override the
	// aspect ratio, shape, format and output size.
	Defaults         session.Options
	OnBeforeShutdown func()
	OnReady          func(addr string)
	OnCommit         func(c Commit)
}

// Commit is handed to Config.OnCommit once a session completes with a bitmap.
type Commit struct {
	Filename string         `json:"filename"`
	Rect     geometry.Rect  `json:"rect"`
	Source   geometry.Rect  `json:"source"`
	Bitmap   *raster.Bitmap `json:"-"`
}

// webSession serializes the requests of one browser crop session.
type webSession struct {
	mu       sync.Mutex
	filename string
	window   *session.Window
	session  *session.Session
}

type WebApp struct {
	config       Config
	shutdownCh   chan struct{}
	shutdownOnce sync.Once

	mu       sync.RWMutex
	sessions map[string]*webSession
}

func NewWebApp(config Config) *WebApp {
	return &WebApp{
		config:     config,
		shutdownCh: make(chan struct{}),
		sessions:   make(map[string]*webSession),
	}
}

func (a *WebApp) Shutdown() {
	a.shutdownOnce.Do(func() {
		close(a.shutdownCh)
	})
}

type sessionRequest struct {
	File           string         `json:"file"`
	RenderedWidth  float64        `json:"rendered_width"`
	RenderedHeight float64        `json:"rendered_height"`
	AspectRatio    *float64       `json:"aspect_ratio"`
	Shape          *raster.Shape  `json:"shape"`
	Format         *raster.Format `json:"format"`
	OutputSize     int            `json:"output_size"`
	OutputHeight   int            `json:"output_height"`
}

// validate rejects rendered sizes no browser could report. Omitting both
// means the image is shown at its natural size.
func (r sessionRequest) validate() error {
	if r.RenderedWidth == 0 && r.RenderedHeight == 0 {
		return nil
	}
	for _, v := range []float64{r.RenderedWidth, r.RenderedHeight} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 1 || v > raster.MaxOutputSize {
			return fiber.NewError(http.StatusBadRequest,
				fmt.Sprintf("rendered size %gx%g must be within 1..%d", r.RenderedWidth, r.RenderedHeight, raster.MaxOutputSize))
		}
	}
	for _, v := range []int{r.OutputSize, r.OutputHeight} {
		if v < 0 || v > raster.MaxOutputSize {
			return fiber.NewError(http.StatusBadRequest, fmt.Sprintf("output size must be within 0..%d", raster.MaxOutputSize))
		}
	}
	return nil
}

func (r sessionRequest) options(defaults session.Options) session.Options {
	opts := defaults
	if r.AspectRatio != nil {
		opts.AspectRatio = *r.AspectRatio
	}
	if r.Shape != nil {
		opts.Output.Shape = *r.Shape
	}
	if r.Format != nil {
		opts.Output.Format = *r.Format
	}
	if r.OutputSize > 0 {
		opts.Output.OutputSize = r.OutputSize
		opts.Output.OutputHeight = 0
	}
	if r.OutputHeight > 0 {
		opts.Output.OutputHeight = r.OutputHeight
	}
	return opts
}

type sessionView struct {
	ID      string                            `json:"id"`
	File    string                            `json:"file"`
	State   string                            `json:"state"`
	Rect    geometry.Rect                     `json:"rect"`
	Source  geometry.Rect                     `json:"source"`
	Bounds  geometry.Bounds                   `json:"bounds"`
	Handles map[geometry.Handle]geometry.Rect `json:"handles"`
}

func (ws *webSession) view() sessionView {
	s := ws.session
	return sessionView{
		ID:      s.ID(),
		File:    ws.filename,
		State:   s.State().String(),
		Rect:    s.Rect(),
		Source:  raster.SourceRect(s.Bounds(), s.Rect()),
		Bounds:  s.Bounds(),
		Handles: geometry.HandleRects(s.Rect()),
	}
}

// resolve maps a client supplied file name to a path inside the root dir.
func (a *WebApp) resolve(name string) (string, error) {
	clean := path.Clean("/" + name)
	if clean == "/" || !isImage(clean) {
		return "", fiber.NewError(http.StatusBadRequest, fmt.Sprintf("%q is not an image", name))
	}
	return filepath.Join(a.config.RootDir, filepath.FromSlash(clean)), nil
}

func (a *WebApp) lookup(id string) (*webSession, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	ws, ok := a.sessions[id]
	if !ok {
		return nil, fiber.NewError(http.StatusNotFound, fmt.Sprintf("session %s not found", id))
	}
	return ws, nil
}

// completed runs inside the session's completion event, so it must not take
// ws.mu.
func (a *WebApp) completed(ctx context.Context, ws *webSession, o session.Outcome) {
	id := ws.session.ID()
	a.mu.Lock()
	delete(a.sessions, id)
	a.mu.Unlock()

	committed, ok := o.(session.Committed)
	if !ok {
		log.Ctx(ctx).Info().Str("session", id).Str("filename", ws.filename).Msg("crop cancelled")
		return
	}
	rect := ws.session.Rect()
	if fn := a.config.OnCommit; fn != nil {
		fn(Commit{
			Filename: ws.filename,
			Rect:     rect,
			Source:   raster.SourceRect(ws.session.Bounds(), rect),
			Bitmap:   committed.Bitmap,
		})
	}
}

// closeSessions tears down every open session, releasing their listeners.
func (a *WebApp) closeSessions() {
	a.mu.RLock()
	open := make([]*webSession, 0, len(a.sessions))
	for _, ws := range a.sessions {
		open = append(open, ws)
	}
	a.mu.RUnlock()

	for _, ws := range open {
		ws.mu.Lock()
		ws.session.Close()
		ws.mu.Unlock()
	}
}

func (a *WebApp) Sessions() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.sessions)
}

func commitError(err error) error {
	switch {
	case errors.Is(err, raster.ErrUnavailable):
		return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, session.ErrCommitPending):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.Is(err, session.ErrClosed):
		return fiber.NewError(http.StatusGone, err.Error())
	}
	return err
}

// Handler builds the fiber app without listening. ctx carries the logger
// handed to every session.
func (a *WebApp) Handler(ctx context.Context) *fiber.App {
	webapp := fiber.New(fiber.Config{
		Immutable:             true,
		DisableStartupMessage: true,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			log.Ctx(ctx).Error().
				Err(err).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Msg("Request failed")
			var fiberErr *fiber.Error
			if errors.As(err, &fiberErr) {
				if fiberErr.Code == http.StatusNotFound && c.Path() == "/favicon.ico" {
					return nil
				}
				return c.Status(fiberErr.Code).JSON(fiber.Map{"error": fiberErr.Message})
			}
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "Internal Server Error"})
		},
	})

	webapp.Hooks().OnListen(func(listen fiber.ListenData) error {
		if fn := a.config.OnReady; fn != nil {
			fn(fmt.Sprintf("http://%s:%s", listen.Host, listen.Port))
		}
		return nil
	})

	filesRoot := http.Dir(a.config.RootDir)
	webapp.Get("/api/view", func(c *fiber.Ctx) error {
		filePath := c.Query("file")
		return filesystem.SendFile(c, filesRoot, filePath)
	})

	webapp.Get("/api/ls", func(c *fiber.Ctx) error {
		dir, err := walkImages(ctx, a.config.RootDir)
		if err != nil {
			return fmt.Errorf("failed to walk dir: %w", err)
		}

		for i := range dir.Files {
			dir.Files[i].URL = "/api/view?file=" + url.QueryEscape(dir.Files[i].Name)
		}

		return c.JSON(dir)
	})

	webapp.Post("/api/sessions", func(c *fiber.Ctx) error {
		var request sessionRequest
		if err := c.BodyParser(&request); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}
		if err := request.validate(); err != nil {
			return err
		}

		p, err := a.resolve(request.File)
		if err != nil {
			return err
		}
		img, err := raster.Open(p)
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				return fiber.NewError(http.StatusNotFound, fmt.Sprintf("file %s not found", request.File))
			}
			return fiber.NewError(http.StatusUnprocessableEntity, err.Error())
		}

		ws := &webSession{filename: request.File, window: session.NewWindow()}
		b := displayBounds(img, request.RenderedWidth, request.RenderedHeight)
		ws.session = session.New(ctx, ws.window, img, b, request.options(a.config.Defaults), func(o session.Outcome) {
			a.completed(ctx, ws, o)
		})

		a.mu.Lock()
		a.sessions[ws.session.ID()] = ws
		a.mu.Unlock()

		return c.Status(http.StatusCreated).JSON(ws.view())
	})

	webapp.Post("/api/sessions/:id/events", func(c *fiber.Ctx) error {
		ws, err := a.lookup(c.Params("id"))
		if err != nil {
			return err
		}
		var ev Event
		if err := c.BodyParser(&ev); err != nil {
			return fiber.NewError(http.StatusBadRequest, err.Error())
		}

		ws.mu.Lock()
		defer ws.mu.Unlock()
		if ws.session.Done() {
			return commitError(session.ErrClosed)
		}
		ev.Apply(ws.session, ws.window)
		return c.JSON(ws.view())
	})

	webapp.Get("/api/sessions/:id/preview", func(c *fiber.Ctx) error {
		ws, err := a.lookup(c.Params("id"))
		if err != nil {
			return err
		}

		ws.mu.Lock()
		s := ws.session
		preview, err := raster.Overlay(s.Image(), s.Bounds(), s.Rect(), s.Options().Output.Shape)
		ws.mu.Unlock()
		if err != nil {
			return commitError(err)
		}

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, preview, imaging.PNG); err != nil {
			return fmt.Errorf("failed to encode preview: %w", err)
		}
		c.Set(fiber.HeaderContentType, "image/png")
		return c.Send(buf.Bytes())
	})

	webapp.Post("/api/sessions/:id/commit", func(c *fiber.Ctx) error {
		ws, err := a.lookup(c.Params("id"))
		if err != nil {
			return err
		}

		ws.mu.Lock()
		bm, err := ws.session.Commit(c.UserContext())
		ws.mu.Unlock()
		if err != nil {
			return commitError(err)
		}

		c.Set(fiber.HeaderContentType, bm.MimeType)
		return c.Send(bm.Data)
	})

	webapp.Delete("/api/sessions/:id", func(c *fiber.Ctx) error {
		ws, err := a.lookup(c.Params("id"))
		if err != nil {
			return err
		}

		ws.mu.Lock()
		ws.session.Cancel()
		ws.mu.Unlock()
		return c.SendStatus(http.StatusNoContent)
	})

	webapp.Post("/api/shutdown", func(c *fiber.Ctx) error {
		a.Shutdown()
		return nil
	})

	if isDebug {
		log.Debug().Msg("Debug mode enabled, serving static files from './static' directory")
		webapp.Static("/", "static")
	} else {
		log.Debug().Msg("Serving static files from embedded filesystem")
		webapp.Use("/", filesystem.New(filesystem.Config{
			Root:       http.FS(staticFS),
			PathPrefix: "/static",
		}))
	}

	return webapp
}

func (a *WebApp) Run(ctx context.Context) error {
	webapp := a.Handler(ctx)

	go func() {
		select {
		case <-ctx.Done():
		case <-a.shutdownCh:
		}
		if fn := a.config.OnBeforeShutdown; fn != nil {
			fn()
		}
		a.closeSessions()
		if err := webapp.ShutdownWithTimeout(5 * time.Second); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("Failed to shutdown web application")
		}
	}()

	// Let the OS assign a random available port
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", 0))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	if err := webapp.Listener(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}
