package export

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
	"io"

	"github.com/jung-kurt/gofpdf"
)

// PDF writes img as a one-page PDF whose page is the image's size in points.
func PDF(w io.Writer, img image.Image) error {
	b := img.Bounds()
	if b.Empty() {
		return ErrEmptyImage
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, Flatten(img)); err != nil {
		return fmt.Errorf("export: encode page image: %w", err)
	}

	wd, ht := float64(b.Dx()), float64(b.Dy())
	orientation, size := "P", gofpdf.SizeType{Wd: wd, Ht: ht}
	if wd > ht {
		orientation, size = "L", gofpdf.SizeType{Wd: ht, Ht: wd}
	}
	p := gofpdf.NewCustom(&gofpdf.InitType{
		OrientationStr: orientation,
		UnitStr:        "pt",
		Size:           size,
	})
	p.SetMargins(0, 0, 0)
	p.SetAutoPageBreak(false, 0)
	p.SetCreator("LocalWhiteboard", true)
	p.AddPage()

	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	p.RegisterImageOptionsReader("board", opts, &buf)
	p.ImageOptions("board", 0, 0, wd, ht, false, opts, 0, "")
	if err := p.Output(w); err != nil {
		return fmt.Errorf("export: pdf: %w", err)
	}
	return nil
}
