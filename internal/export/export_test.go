package export

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LocalWhiteboard/internal/raster"
)

func board() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, 40, 30))
	img.SetNRGBA(5, 5, color.NRGBA{R: 255, A: 255})
	img.SetNRGBA(6, 5, color.NRGBA{B: 255, A: 128})
	return img
}

func TestPNG_FlattensOntoWhite(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PNG(&buf, board()))

	got, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 30), got.Bounds())

	rgba := func(x, y int) color.RGBA {
		return color.RGBAModel.Convert(got.At(x, y)).(color.RGBA)
	}
	assert.Equal(t, color.RGBA{255, 255, 255, 255}, rgba(0, 0))
	assert.Equal(t, color.RGBA{255, 0, 0, 255}, rgba(5, 5))
	half := rgba(6, 5)
	assert.Equal(t, uint8(255), half.A)
	assert.Equal(t, uint8(255), half.B)
	assert.InDelta(t, 127, int(half.R), 2)
}

func TestPDF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PDF(&buf, board()))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), []byte("%PDF")))
	assert.Contains(t, buf.String(), "/Image")
}

func TestEmptyImage(t *testing.T) {
	empty := image.NewNRGBA(image.Rect(0, 0, 0, 0))
	assert.ErrorIs(t, PNG(&bytes.Buffer{}, empty), ErrEmptyImage)
	assert.ErrorIs(t, PDF(&bytes.Buffer{}, empty), ErrEmptyImage)
}

func TestToFile(t *testing.T) {
	dir := t.TempDir()

	require.NoError(t, ToFile(filepath.Join(dir, "board.PNG"), board()))
	data, err := os.ReadFile(filepath.Join(dir, "board.PNG"))
	require.NoError(t, err)
	_, err = png.Decode(bytes.NewReader(data))
	assert.NoError(t, err)

	require.NoError(t, ToFile(filepath.Join(dir, "board.pdf"), board()))
	data, err = os.ReadFile(filepath.Join(dir, "board.pdf"))
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	err = ToFile(filepath.Join(dir, "board.gif"), board())
	assert.ErrorIs(t, err, ErrUnsupported)
	assert.NoFileExists(t, filepath.Join(dir, "board.gif"))
}

func TestFlatten_RedStrokeHasNoDarkFringe(t *testing.T) {
	r, err := raster.New(80, 50)
	require.NoError(t, err)
	red := raster.Style{Color: color.NRGBA{R: 255, A: 255}, Width: 3}
	require.NoError(t, r.StrokeSegment(raster.Pt(4, 6), raster.Pt(75, 44), red))
	require.NoError(t, r.StrokeCircle(raster.Pt(40, 25), 12, red))

	out := Flatten(r.Image())
	tinted := 0
	for y := 0; y < 50; y++ {
		for x := 0; x < 80; x++ {
			c := out.RGBAAt(x, y)
			require.Equal(t, uint8(255), c.R, "pixel %d,%d", x, y)
			if c.G < 255 {
				tinted++
			}
		}
	}
	assert.Positive(t, tinted)
}
