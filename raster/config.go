package raster

import (
	"fmt"
	"image/color"
	"strings"
)

const (
	DefaultOutputSize = 400
	DefaultQuality    = 95
	// MaxOutputSize bounds either side of the output surface.
	MaxOutputSize = 8192
)

// Shape is the clip applied to the output surface.
type Shape int

const (
	ShapeRect Shape = iota
	ShapeCircle
)

func (s Shape) String() string {
	switch s {
	case ShapeRect:
		return "rect"
	case ShapeCircle:
		return "circle"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

func ParseShape(s string) (Shape, error) {
	switch strings.ToLower(s) {
	case "", "rect":
		return ShapeRect, nil
	case "circle":
		return ShapeCircle, nil
	default:
		return 0, fmt.Errorf("unknown shape %q", s)
	}
}

func (s Shape) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Shape) UnmarshalText(text []byte) error {
	parsed, err := ParseShape(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Format is the encoding of the output bitmap.
type Format int

const (
	FormatJPEG Format = iota
	FormatPNG
	FormatWebP
)

func (f Format) String() string {
	switch f {
	case FormatJPEG:
		return "jpeg"
	case FormatPNG:
		return "png"
	case FormatWebP:
		return "webp"
	default:
		return fmt.Sprintf("Format(%d)", int(f))
	}
}

func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "", "jpg", "jpeg":
		return FormatJPEG, nil
	case "png":
		return FormatPNG, nil
	case "webp":
		return FormatWebP, nil
	default:
		return 0, fmt.Errorf("unknown format %q", s)
	}
}

func (f Format) MarshalText() ([]byte, error) {
	return []byte(f.String()), nil
}

func (f *Format) UnmarshalText(text []byte) error {
	parsed, err := ParseFormat(string(text))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}

func (f Format) MimeType() string {
	switch f {
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	default:
		return "image/jpeg"
	}
}

// Ext returns the file extension without the dot.
func (f Format) Ext() string {
	switch f {
	case FormatPNG:
		return "png"
	case FormatWebP:
		return "webp"
	default:
		return "jpg"
	}
}

// Transparent reports whether the format keeps an alpha channel.
func (f Format) Transparent() bool {
	return f == FormatPNG || f == FormatWebP
}

// Config describes the output surface. The zero value rasterizes to a
// 400x400 JPEG at quality 95.
type Config struct {
	OutputSize int
	// OutputHeight overrides the surface height. Zero keeps it square.
	OutputHeight int
	Shape        Shape
	Format       Format
	Quality      int
	// Background fills the area outside the clip for formats without alpha.
	// Nil means black.
	Background color.Color
}

func (c Config) withDefaults() Config {
	if c.OutputSize == 0 {
		c.OutputSize = DefaultOutputSize
	}
	if c.OutputHeight == 0 {
		c.OutputHeight = c.OutputSize
	}
	if c.Quality <= 0 || c.Quality > 100 {
		c.Quality = DefaultQuality
	}
	if c.Background == nil {
		c.Background = color.Black
	}
	return c
}

// Size returns the output surface dimensions.
func (c Config) Size() (w, h int) {
	c = c.withDefaults()
	return c.OutputSize, c.OutputHeight
}
