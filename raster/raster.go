// Package raster turns a display-space crop rectangle into an encoded bitmap
// sampled from the source image at native resolution.
package raster

import (
	"errors"
	"fmt"
	"image"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"

	"cropdeck/geometry"
)

// ErrUnavailable is returned when no drawing surface can be produced: the
// output size is unusable or the source image has not been decoded.
var ErrUnavailable = errors.New("rasterization unavailable")

// Bitmap is an encoded output image.
type Bitmap struct {
	Data     []byte
	MimeType string
	Format   Format
	Width    int
	Height   int
}

// SourceRect maps a display-space rectangle into native pixel coordinates.
func SourceRect(b geometry.Bounds, r geometry.Rect) geometry.Rect {
	sx, sy := b.Scale()
	return geometry.Rect{
		X:      r.X * sx,
		Y:      r.Y * sy,
		Width:  r.Width * sx,
		Height: r.Height * sy,
	}
}

// pixelRect rounds r to whole pixels.
func pixelRect(r geometry.Rect) image.Rectangle {
	return image.Rect(
		int(math.Round(r.X)),
		int(math.Round(r.Y)),
		int(math.Round(r.Right())),
		int(math.Round(r.Bottom())),
	)
}

// Rasterize draws the region of img selected by r onto an output surface
// described by cfg and encodes it. The source region is resampled to fill
// the whole surface, so r must already have the surface's aspect ratio.
func Rasterize(img image.Image, b geometry.Bounds, r geometry.Rect, cfg Config) (*Bitmap, error) {
	cfg = cfg.withDefaults()
	surface, err := Draw(img, b, r, cfg)
	if err != nil {
		return nil, err
	}
	data, err := Encode(surface, cfg)
	if err != nil {
		return nil, err
	}
	return &Bitmap{
		Data:     data,
		MimeType: cfg.Format.MimeType(),
		Format:   cfg.Format,
		Width:    surface.Bounds().Dx(),
		Height:   surface.Bounds().Dy(),
	}, nil
}

// Draw renders the unencoded output surface. Pixels outside a circle clip
// stay transparent.
func Draw(img image.Image, b geometry.Bounds, r geometry.Rect, cfg Config) (*image.RGBA, error) {
	cfg = cfg.withDefaults()
	w, h := cfg.Size()
	if w <= 0 || h <= 0 || w > MaxOutputSize || h > MaxOutputSize {
		return nil, fmt.Errorf("%w: output surface %dx%d", ErrUnavailable, w, h)
	}
	if img == nil {
		return nil, fmt.Errorf("%w: no source image", ErrUnavailable)
	}
	if !b.Valid() || b.NaturalWidth <= 0 || b.NaturalHeight <= 0 {
		return nil, fmt.Errorf("%w: source image not decoded (natural %gx%g, rendered %gx%g)",
			ErrUnavailable, b.NaturalWidth, b.NaturalHeight, b.RenderedWidth, b.RenderedHeight)
	}

	src := SourceRect(b, r)
	sr := pixelRect(src).Add(img.Bounds().Min).Intersect(img.Bounds())
	if sr.Empty() {
		return nil, fmt.Errorf("source region %s is outside the image", src)
	}

	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	var opts *xdraw.Options
	if cfg.Shape == ShapeCircle {
		opts = &xdraw.Options{DstMask: ellipseMask(dst.Bounds())}
	}
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, sr, draw.Over, opts)
	return dst, nil
}

// ellipseMask returns the ellipse inscribed in r with a one pixel
// anti-aliased edge. For a square r it is a circle.
func ellipseMask(r image.Rectangle) *image.Alpha {
	m := image.NewAlpha(r)
	rx, ry := float64(r.Dx())/2, float64(r.Dy())/2
	cx, cy := float64(r.Min.X)+rx, float64(r.Min.Y)+ry
	edge := math.Min(rx, ry)
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			nx := (float64(x) + 0.5 - cx) / rx
			ny := (float64(y) + 0.5 - cy) / ry
			d := math.Sqrt(nx*nx + ny*ny)
			a := (1-d)*edge + 0.5
			if a <= 0 {
				continue
			}
			if a > 1 {
				a = 1
			}
			m.Pix[m.PixOffset(x, y)] = uint8(a*255 + 0.5)
		}
	}
	return m
}
