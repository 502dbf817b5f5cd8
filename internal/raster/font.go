package raster

import (
	"fmt"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// TextSize is the pixel size of the fixed text font.
const TextSize = 16

var parseFont = sync.OnceValues(func() (*opentype.Font, error) {
	f, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("raster: parse font: %w", err)
	}
	return f, nil
})

// textFace returns a fresh face; faces keep scratch buffers and are not
// shared between rasters.
func textFace() (font.Face, error) {
	f, err := parseFont()
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    TextSize,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("raster: font face: %w", err)
	}
	return face, nil
}
