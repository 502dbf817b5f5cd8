package raster

import (
	"bytes"
	"image"
	"image/color"
	"sync/atomic"
)

var snapshotSeq atomic.Uint64

// Snapshot is an immutable copy of a raster's premultiplied pixels.
//
// Every snapshot carries a process-unique ID so encoders can cache work per
// snapshot. The zero Snapshot is empty and has ID 0.
type Snapshot struct {
	id     uint64
	width  int
	height int
	pix    []byte
}

func newSnapshot(width, height int, pix []byte) Snapshot {
	cp := make([]byte, len(pix))
	copy(cp, pix)
	return Snapshot{
		id:     snapshotSeq.Add(1),
		width:  width,
		height: height,
		pix:    cp,
	}
}

// Blank returns a transparent snapshot of the given size.
func Blank(width, height int) Snapshot {
	return Snapshot{
		id:     snapshotSeq.Add(1),
		width:  width,
		height: height,
		pix:    make([]byte, 4*width*height),
	}
}

// FromImage copies img into a width x height snapshot anchored at the
// origin. Parts of img outside that area are cropped; uncovered pixels stay
// transparent.
func FromImage(img image.Image, width, height int) Snapshot {
	s := Blank(width, height)
	b := img.Bounds()
	src, straight := img.(*image.NRGBA)
	if straight && b.Min == (image.Point{}) && b.Dx() == width && b.Dy() == height && src.Stride == 4*width {
		premultiply(s.pix, src.Pix[:len(s.pix)])
		return s
	}
	for y := 0; y < height && y < b.Dy(); y++ {
		for x := 0; x < width && x < b.Dx(); x++ {
			i := 4 * (y*width + x)
			px := s.pix[i : i+4 : i+4]
			if straight {
				j := src.PixOffset(b.Min.X+x, b.Min.Y+y)
				premultiply(px, src.Pix[j:j+4])
				continue
			}
			c := color.RGBAModel.Convert(img.At(b.Min.X+x, b.Min.Y+y)).(color.RGBA)
			px[0], px[1], px[2], px[3] = c.R, c.G, c.B, c.A
		}
	}
	return s
}

func (s Snapshot) ID() uint64  { return s.id }
func (s Snapshot) Width() int  { return s.width }
func (s Snapshot) Height() int { return s.height }

// IsZero reports whether s is the zero Snapshot.
func (s Snapshot) IsZero() bool { return s.pix == nil }

// Equal reports whether both snapshots hold the same size and pixels.
func (s Snapshot) Equal(o Snapshot) bool {
	return s.width == o.width && s.height == o.height && bytes.Equal(s.pix, o.pix)
}

// Image returns a straight-alpha copy of the snapshot.
func (s Snapshot) Image() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, s.width, s.height))
	unpremultiply(img.Pix, s.pix)
	return img
}
