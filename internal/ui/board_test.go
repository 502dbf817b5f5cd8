package ui

import (
	"image"
	"testing"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"LocalWhiteboard/internal/raster"
	"LocalWhiteboard/internal/state"
)

func newTestBoard(t *testing.T) (*BoardWidget, *state.Controller) {
	t.Helper()
	test.NewTempApp(t)
	r, err := raster.New(200, 150)
	require.NoError(t, err)
	c, err := state.New(r, state.DefaultOptions())
	require.NoError(t, err)
	b := NewBoardWidget(c)
	w := test.NewWindow(b)
	t.Cleanup(w.Close)
	return b, c
}

func mouse(x, y float32, button desktop.MouseButton) *desktop.MouseEvent {
	return &desktop.MouseEvent{
		PointEvent: fyne.PointEvent{Position: fyne.NewPos(x, y)},
		Button:     button,
	}
}

func drag(x, y float32) *fyne.DragEvent {
	return &fyne.DragEvent{PointEvent: fyne.PointEvent{Position: fyne.NewPos(x, y)}}
}

func painted(img *image.NRGBA) bool {
	for i := 3; i < len(img.Pix); i += 4 {
		if img.Pix[i] > 0 {
			return true
		}
	}
	return false
}

func TestBoard_DragDrawsOneOperation(t *testing.T) {
	b, c := newTestBoard(t)

	b.MouseDown(mouse(10, 10, desktop.MouseButtonPrimary))
	b.Dragged(drag(60, 40))
	b.Dragged(drag(120, 90))
	b.MouseUp(mouse(120, 90, desktop.MouseButtonPrimary))

	assert.Equal(t, 1, c.HistoryLen())
	assert.False(t, c.Drawing())
	assert.True(t, painted(c.Image()))
}

func TestBoard_SecondaryButtonIgnored(t *testing.T) {
	b, c := newTestBoard(t)
	b.MouseDown(mouse(10, 10, desktop.MouseButtonSecondary))
	b.MouseMoved(mouse(50, 50, desktop.MouseButtonSecondary))
	b.MouseUp(mouse(50, 50, desktop.MouseButtonSecondary))
	assert.Zero(t, c.HistoryLen())
}

func TestBoard_MouseOutAbandonsLine(t *testing.T) {
	b, c := newTestBoard(t)
	require.NoError(t, c.SetTool(state.ToolLine))

	b.MouseDown(mouse(10, 10, desktop.MouseButtonPrimary))
	b.Dragged(drag(150, 100))
	require.True(t, painted(c.Image()))
	b.MouseOut()

	assert.False(t, c.Drawing())
	assert.False(t, painted(c.Image()))
}

func TestBoard_TypingCommitsText(t *testing.T) {
	b, c := newTestBoard(t)
	require.NoError(t, c.SetTool(state.ToolText))

	b.MouseDown(mouse(40, 60, desktop.MouseButtonPrimary))
	b.MouseUp(mouse(40, 60, desktop.MouseButtonPrimary))
	b.TypedRune('H')
	b.TypedRune('i')
	b.TypedKey(&fyne.KeyEvent{Name: fyne.KeyBackspace})
	b.TypedRune('o')

	text, _, ok := c.PendingText()
	require.True(t, ok)
	assert.Equal(t, "Ho", text)

	r := test.WidgetRenderer(b).(*boardWidgetRenderer)
	r.Refresh()
	assert.True(t, r.text.Visible())
	assert.Equal(t, "Ho|", r.text.Text)

	b.TypedKey(&fyne.KeyEvent{Name: fyne.KeyReturn})
	_, _, ok = c.PendingText()
	assert.False(t, ok)
	assert.True(t, painted(c.Image()))

	r.Refresh()
	assert.False(t, r.text.Visible())
}

func TestBoard_EscapeDiscardsText(t *testing.T) {
	b, c := newTestBoard(t)
	require.NoError(t, c.SetTool(state.ToolText))

	b.MouseDown(mouse(40, 60, desktop.MouseButtonPrimary))
	b.MouseUp(mouse(40, 60, desktop.MouseButtonPrimary))
	b.TypedRune('x')
	b.TypedKey(&fyne.KeyEvent{Name: fyne.KeyEscape})

	assert.False(t, painted(c.Image()))
}

func TestBoard_RendererShowsRaster(t *testing.T) {
	b, c := newTestBoard(t)
	r := test.WidgetRenderer(b).(*boardWidgetRenderer)
	assert.Equal(t, fyne.NewSize(200, 150), r.MinSize())
	assert.Equal(t, canvas.ImageScalePixels, r.image.ScaleMode)

	require.NoError(t, c.SetTool(state.ToolRectangle))
	c.Begin(raster.Pt(10, 10))
	c.End(raster.Pt(100, 100))
	r.Refresh()

	img, ok := r.image.Image.(*image.NRGBA)
	require.True(t, ok)
	assert.True(t, painted(img))
}

func TestToolbar(t *testing.T) {
	b, c := newTestBoard(t)
	obj := NewToolbar(b, Actions{Undo: func() {}, Redo: func() {}, Clear: c.Clear, Export: func() {}})
	require.NotNil(t, obj)
	assert.Equal(t, []string{"freehand", "rectangle", "circle", "line", "text", "eraser"}, toolNames())

	swatch := newColorSwatch(palette[1], c.SetColor)
	swatch.Tapped(nil)
	assert.Equal(t, palette[1], c.Color())
}

func TestWindow(t *testing.T) {
	a := test.NewTempApp(t)
	r, err := raster.New(120, 80)
	require.NoError(t, err)
	c, err := state.New(r, state.DefaultOptions())
	require.NoError(t, err)
	b := NewBoardWidget(c)

	w := NewWindow(a, "board", fyne.NewSize(300, 250), b, Actions{
		Undo:  func() { c.Undo() },
		Redo:  func() { c.Redo() },
		Clear: c.Clear,
	})
	defer w.Close()

	w.SetStatus("saved")
	assert.Eventually(t, func() bool { return w.status.Text == "saved" }, time.Second, 10*time.Millisecond)
}
