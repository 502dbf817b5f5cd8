// Package raster is the fixed-size pixel grid the board draws into.
//
// Pixels live in a gg.Pixmap, four premultiplied RGBA bytes per pixel. The
// same bytes are exposed to golang.org/x/image as an *image.RGBA view, so gg
// strokes and x/image text composite into one buffer. Images and encodings
// leaving the package are straight alpha.
package raster

import (
	"errors"
	"fmt"
	"image"

	"github.com/gogpu/gg"
	"golang.org/x/image/font"
)

var (
	ErrInvalidSize  = errors.New("raster: invalid size")
	ErrSizeMismatch = errors.New("raster: snapshot size mismatch")
)

// Point is a position in raster pixel coordinates.
type Point struct {
	X, Y float64
}

// Pt is shorthand for Point{X: x, Y: y}.
func Pt(x, y float64) Point { return Point{X: x, Y: y} }

// Raster is a width x height pixel grid mutated in place by draw operations.
// It is not safe for concurrent use; the controller serializes access.
type Raster struct {
	width  int
	height int

	pm   *gg.Pixmap
	dc   *gg.Context
	view *image.RGBA

	// eraser coverage is rendered here first, then subtracted from pm
	scratch   *gg.Pixmap
	scratchDC *gg.Context

	face font.Face
}

// New creates a transparent raster.
func New(width, height int) (*Raster, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height)
	}
	face, err := textFace()
	if err != nil {
		return nil, err
	}

	pm := gg.NewPixmap(width, height)
	scratch := gg.NewPixmap(width, height)
	return &Raster{
		width:     width,
		height:    height,
		pm:        pm,
		dc:        gg.NewContext(width, height, gg.WithPixmap(pm)),
		view:      rgbaView(pm),
		scratch:   scratch,
		scratchDC: gg.NewContext(width, height, gg.WithPixmap(scratch)),
		face:      face,
	}, nil
}

func rgbaView(pm *gg.Pixmap) *image.RGBA {
	return &image.RGBA{
		Pix:    pm.Data(),
		Stride: 4 * pm.Width(),
		Rect:   image.Rect(0, 0, pm.Width(), pm.Height()),
	}
}

func (r *Raster) Width() int  { return r.width }
func (r *Raster) Height() int { return r.height }

func (r *Raster) Bounds() image.Rectangle {
	return image.Rect(0, 0, r.width, r.height)
}

// InBounds reports whether p lies on the raster.
func (r *Raster) InBounds(p Point) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < float64(r.width) && p.Y < float64(r.height)
}

// Snapshot copies the current pixels.
func (r *Raster) Snapshot() Snapshot {
	return newSnapshot(r.width, r.height, r.pm.Data())
}

// Restore repaints the raster with the pixels of s.
func (r *Raster) Restore(s Snapshot) error {
	if s.width != r.width || s.height != r.height {
		return fmt.Errorf("%w: have %dx%d, got %dx%d",
			ErrSizeMismatch, r.width, r.height, s.width, s.height)
	}
	copy(r.pm.Data(), s.pix)
	return nil
}

// Clear wipes every pixel to transparent.
func (r *Raster) Clear() {
	r.pm.Clear(gg.Transparent)
}

// Image returns a straight-alpha copy of the pixels.
func (r *Raster) Image() *image.NRGBA {
	img := image.NewNRGBA(r.Bounds())
	unpremultiply(img.Pix, r.pm.Data())
	return img
}

// Equal reports whether the raster currently shows exactly the pixels of s.
func (r *Raster) Equal(s Snapshot) bool {
	return r.Snapshot().Equal(s)
}
