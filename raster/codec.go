package raster

import (
	"bytes"
	"fmt"
	"image"
	"image/draw"
	"io"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"
)

// Decode reads a source image, applying its EXIF orientation so natural
// dimensions match what a browser renders.
func Decode(r io.Reader) (image.Image, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Open decodes the image file at path.
func Open(path string) (image.Image, error) {
	img, err := imaging.Open(path, imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to open image %s: %w", path, err)
	}
	return img, nil
}

// Encode writes img in cfg.Format. Formats without alpha are flattened over
// cfg.Background first, so a circle clip comes out as a flat raster.
func Encode(img image.Image, cfg Config) ([]byte, error) {
	cfg = cfg.withDefaults()
	var buf bytes.Buffer
	switch cfg.Format {
	case FormatJPEG:
		if err := imaging.Encode(&buf, flatten(img, cfg), imaging.JPEG, imaging.JPEGQuality(cfg.Quality)); err != nil {
			return nil, fmt.Errorf("failed to encode jpeg: %w", err)
		}
	case FormatPNG:
		if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
			return nil, fmt.Errorf("failed to encode png: %w", err)
		}
	case FormatWebP:
		if err := webp.Encode(&buf, img, &webp.Options{Quality: float32(cfg.Quality)}); err != nil {
			return nil, fmt.Errorf("failed to encode webp: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported format %s", cfg.Format)
	}
	return buf.Bytes(), nil
}

func flatten(img image.Image, cfg Config) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(b)
	draw.Draw(out, b, image.NewUniform(cfg.Background), image.Point{}, draw.Src)
	draw.Draw(out, b, img, b.Min, draw.Over)
	return out
}
