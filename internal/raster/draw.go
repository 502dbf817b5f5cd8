package raster

import (
	"image"
	"image/color"
	"math"

	"github.com/gogpu/gg"
	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"
)

// Style is the pen used by stroke operations.
type Style struct {
	Color color.NRGBA
	Width float64
}

func (r *Raster) pen(st Style, join gg.LineJoin) {
	r.dc.SetColor(st.Color)
	r.dc.SetLineWidth(st.Width)
	r.dc.SetLineCap(gg.LineCapRound)
	r.dc.SetLineJoin(join)
}

// StrokeSegment draws a straight segment with round caps. Zero-length
// segments draw nothing.
func (r *Raster) StrokeSegment(from, to Point, st Style) error {
	if from == to || st.Width <= 0 {
		return nil
	}
	r.pen(st, gg.LineJoinRound)
	r.dc.DrawLine(from.X, from.Y, to.X, to.Y)
	return r.dc.Stroke()
}

// StrokeRect outlines the axis-aligned rectangle with corners a and b.
func (r *Raster) StrokeRect(a, b Point, st Style) error {
	x, y := math.Min(a.X, b.X), math.Min(a.Y, b.Y)
	w, h := math.Abs(b.X-a.X), math.Abs(b.Y-a.Y)
	if (w == 0 && h == 0) || st.Width <= 0 {
		return nil
	}
	r.pen(st, gg.LineJoinMiter)
	r.dc.DrawRectangle(x, y, w, h)
	return r.dc.Stroke()
}

// StrokeCircle outlines the circle around center.
func (r *Raster) StrokeCircle(center Point, radius float64, st Style) error {
	if radius <= 0 || st.Width <= 0 {
		return nil
	}
	r.pen(st, gg.LineJoinRound)
	r.dc.DrawCircle(center.X, center.Y, radius)
	return r.dc.Stroke()
}

// FillText renders s with its baseline starting at at.
func (r *Raster) FillText(s string, at Point, c color.Color) {
	if s == "" {
		return
	}
	d := &font.Drawer{
		Dst:  r.view,
		Src:  image.NewUniform(c),
		Face: r.face,
		Dot:  fixed.Point26_6{X: fixed.Int26_6(at.X * 64), Y: fixed.Int26_6(at.Y * 64)},
	}
	d.DrawString(s)
}

// EraseSegment removes paint under a round-capped segment of the given
// width (destination-out): each pixel keeps (1-coverage) of its paint.
func (r *Raster) EraseSegment(from, to Point, width float64) error {
	if from == to || width <= 0 {
		return nil
	}
	box := segmentBox(from, to, width).Intersect(r.Bounds())
	if box.Empty() {
		return nil
	}

	r.scratchDC.SetColor(color.NRGBA{A: 255})
	r.scratchDC.SetLineWidth(width)
	r.scratchDC.SetLineCap(gg.LineCapRound)
	r.scratchDC.SetLineJoin(gg.LineJoinRound)
	r.scratchDC.DrawLine(from.X, from.Y, to.X, to.Y)
	if err := r.scratchDC.Stroke(); err != nil {
		return err
	}

	mask, dst := r.scratch.Data(), r.pm.Data()
	for y := box.Min.Y; y < box.Max.Y; y++ {
		for x := box.Min.X; x < box.Max.X; x++ {
			i := 4 * (y*r.width + x)
			cov := uint32(mask[i+3])
			if cov == 0 {
				continue
			}
			mask[i+0], mask[i+1], mask[i+2], mask[i+3] = 0, 0, 0, 0

			scaleAlpha(dst[i:i+4:i+4], 255-cov)
		}
	}
	return nil
}

// segmentBox is the pixel box a stroked segment can touch, with room for
// anti-aliasing.
func segmentBox(a, b Point, width float64) image.Rectangle {
	pad := width/2 + 2
	return image.Rect(
		int(math.Floor(math.Min(a.X, b.X)-pad)),
		int(math.Floor(math.Min(a.Y, b.Y)-pad)),
		int(math.Ceil(math.Max(a.X, b.X)+pad)),
		int(math.Ceil(math.Max(a.Y, b.Y)+pad)),
	)
}
