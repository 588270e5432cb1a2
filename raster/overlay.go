package raster

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"

	"cropdeck/geometry"
)

var (
	shadeColor  = color.NRGBA{A: 0x80}
	guideColor  = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
	handleColor = color.NRGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}
)

// Overlay renders what the user sees during a session: the source scaled to
// its rendered size, the area outside the crop shaded, the crop outline and
// the four handles. With a circle shape only the inscribed circle is left
// unshaded. The rendered size is bounded by MaxOutputSize like any other
// surface.
func Overlay(img image.Image, b geometry.Bounds, r geometry.Rect, shape Shape) (*image.RGBA, error) {
	if !(b.RenderedWidth >= 1 && b.RenderedWidth <= MaxOutputSize) || !(b.RenderedHeight >= 1 && b.RenderedHeight <= MaxOutputSize) {
		return nil, fmt.Errorf("%w: overlay surface %gx%g", ErrUnavailable, b.RenderedWidth, b.RenderedHeight)
	}
	w, h := int(math.Round(b.RenderedWidth)), int(math.Round(b.RenderedHeight))
	out := image.NewRGBA(image.Rect(0, 0, w, h))
	if img != nil {
		xdraw.ApproxBiLinear.Scale(out, out.Bounds(), img, img.Bounds(), draw.Src, nil)
	}

	crop := pixelRect(r).Intersect(out.Bounds())
	lit := image.NewAlpha(crop)
	draw.Draw(lit, crop, image.Opaque, image.Point{}, draw.Src)
	if shape == ShapeCircle {
		lit = ellipseMask(crop)
	}
	shade := image.NewAlpha(out.Bounds())
	for i := range shade.Pix {
		shade.Pix[i] = 0xff
	}
	for y := crop.Min.Y; y < crop.Max.Y; y++ {
		for x := crop.Min.X; x < crop.Max.X; x++ {
			shade.Pix[shade.PixOffset(x, y)] = 0xff - lit.AlphaAt(x, y).A
		}
	}
	draw.DrawMask(out, out.Bounds(), image.NewUniform(shadeColor), image.Point{}, shade, image.Point{}, draw.Over)

	outline(out, crop, guideColor)
	for _, hr := range geometry.HandleRects(r) {
		draw.Draw(out, pixelRect(hr).Intersect(out.Bounds()), image.NewUniform(handleColor), image.Point{}, draw.Src)
	}
	return out, nil
}

func outline(dst draw.Image, r image.Rectangle, c color.Color) {
	if r.Empty() {
		return
	}
	u := image.NewUniform(c)
	for _, edge := range []image.Rectangle{
		image.Rect(r.Min.X, r.Min.Y, r.Max.X, r.Min.Y+1),
		image.Rect(r.Min.X, r.Max.Y-1, r.Max.X, r.Max.Y),
		image.Rect(r.Min.X, r.Min.Y, r.Min.X+1, r.Max.Y),
		image.Rect(r.Max.X-1, r.Min.Y, r.Max.X, r.Max.Y),
	} {
		draw.Draw(dst, edge, u, image.Point{}, draw.Src)
	}
}
