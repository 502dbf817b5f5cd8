// Package export renders the board to PNG or PDF files.
package export

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	ErrEmptyImage  = errors.New("export: empty image")
	ErrUnsupported = errors.New("export: unsupported format")
)

// Flatten composites img over opaque white; transparent board pixels become
// the paper.
func Flatten(img image.Image) *image.RGBA {
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Over)
	return out
}

// PNG writes img flattened onto white.
func PNG(w io.Writer, img image.Image) error {
	if img.Bounds().Empty() {
		return ErrEmptyImage
	}
	if err := png.Encode(w, Flatten(img)); err != nil {
		return fmt.Errorf("export: png: %w", err)
	}
	return nil
}

// ToFile writes img to path, choosing the format from the extension.
func ToFile(path string, img image.Image) (err error) {
	var write func(io.Writer, image.Image) error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".png":
		write = PNG
	case ".pdf":
		write = PDF
	default:
		return fmt.Errorf("%w: %q", ErrUnsupported, filepath.Ext(path))
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("export: %w", cerr)
		}
	}()
	return write(f, img)
}
