package ui

import (
	"image/color"
	"log/slog"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/driver/desktop"
	"fyne.io/fyne/v2/widget"

	"LocalWhiteboard/internal/logging"
	"LocalWhiteboard/internal/raster"
	"LocalWhiteboard/internal/state"
)

const gridSize = 50

var (
	paperColor = color.NRGBA{R: 245, G: 246, B: 248, A: 255}
	gridColor  = color.NRGBA{R: 228, G: 229, B: 232, A: 255}
)

// BoardWidget shows the controller's raster over a grid and feeds it pointer
// and keyboard input.
type BoardWidget struct {
	widget.BaseWidget
	ctrl *state.Controller
	log  *slog.Logger
}

var (
	_ fyne.Widget       = (*BoardWidget)(nil)
	_ fyne.Draggable    = (*BoardWidget)(nil)
	_ fyne.Focusable    = (*BoardWidget)(nil)
	_ desktop.Mouseable = (*BoardWidget)(nil)
	_ desktop.Hoverable = (*BoardWidget)(nil)
)

func NewBoardWidget(ctrl *state.Controller) *BoardWidget {
	b := &BoardWidget{ctrl: ctrl, log: logging.For("ui")}
	b.ExtendBaseWidget(b)
	return b
}

// Controller returns the controller the board draws through.
func (b *BoardWidget) Controller() *state.Controller { return b.ctrl }

// Changed repaints the board. It may be called from any goroutine.
func (b *BoardWidget) Changed(state.Change) {
	fyne.Do(b.Refresh)
}

func toPoint(p fyne.Position) raster.Point {
	return raster.Pt(float64(p.X), float64(p.Y))
}

func (b *BoardWidget) MouseDown(e *desktop.MouseEvent) {
	if e.Button != desktop.MouseButtonPrimary {
		return
	}
	if c := fyne.CurrentApp().Driver().CanvasForObject(b); c != nil {
		c.Focus(b)
	}
	b.ctrl.Begin(toPoint(e.Position))
}

func (b *BoardWidget) MouseUp(e *desktop.MouseEvent) {
	if e.Button != desktop.MouseButtonPrimary {
		return
	}
	b.ctrl.End(toPoint(e.Position))
}

func (b *BoardWidget) Dragged(e *fyne.DragEvent) {
	b.ctrl.Continue(toPoint(e.Position))
}

func (b *BoardWidget) DragEnd() {}

func (b *BoardWidget) MouseIn(*desktop.MouseEvent) {}

func (b *BoardWidget) MouseMoved(e *desktop.MouseEvent) {
	b.ctrl.Continue(toPoint(e.Position))
}

// MouseOut abandons the operation in progress.
func (b *BoardWidget) MouseOut() {
	b.ctrl.Leave()
}

func (b *BoardWidget) FocusGained() {}
func (b *BoardWidget) FocusLost()   {}

func (b *BoardWidget) TypedRune(r rune) {
	b.ctrl.TypeKey(string(r))
}

func (b *BoardWidget) TypedKey(e *fyne.KeyEvent) {
	switch e.Name {
	case fyne.KeyReturn, fyne.KeyEnter:
		b.ctrl.TypeKey(state.KeyEnter)
	case fyne.KeyEscape:
		b.ctrl.TypeKey(state.KeyEscape)
	case fyne.KeyBackspace:
		b.ctrl.TypeKey(state.KeyBackspace)
	}
}

func (b *BoardWidget) CreateRenderer() fyne.WidgetRenderer {
	w, h := b.ctrl.Size()
	r := &boardWidgetRenderer{
		board: b,
		size:  fyne.NewSize(float32(w), float32(h)),
		grid: canvas.NewRasterWithPixels(func(x, y, _, _ int) color.Color {
			if x%gridSize == 0 || y%gridSize == 0 {
				return gridColor
			}
			return paperColor
		}),
		image: canvas.NewImageFromImage(b.ctrl.Image()),
		text:  canvas.NewText("", color.Black),
	}
	r.image.FillMode = canvas.ImageFillStretch
	r.image.ScaleMode = canvas.ImageScalePixels
	r.text.TextSize = raster.TextSize
	r.text.Hide()
	return r
}

type boardWidgetRenderer struct {
	board *BoardWidget
	size  fyne.Size
	grid  *canvas.Raster
	image *canvas.Image
	text  *canvas.Text
}

func (r *boardWidgetRenderer) Objects() []fyne.CanvasObject {
	return []fyne.CanvasObject{r.grid, r.image, r.text}
}

func (r *boardWidgetRenderer) Layout(size fyne.Size) {
	r.grid.Resize(size)
	r.image.Move(fyne.NewPos(0, 0))
	r.image.Resize(r.size)
	r.layoutText()
}

func (r *boardWidgetRenderer) layoutText() {
	r.text.Resize(r.text.MinSize())
}

func (r *boardWidgetRenderer) MinSize() fyne.Size {
	return r.size
}

func (r *boardWidgetRenderer) Refresh() {
	ctrl := r.board.ctrl
	r.image.Image = ctrl.Image()
	r.image.Refresh()

	if text, at, ok := ctrl.PendingText(); ok {
		r.text.Text = text + "|"
		r.text.Color = ctrl.Color()
		// canvas.Text is placed by its top edge; the raster draws on the baseline
		r.text.Move(fyne.NewPos(float32(at.X), float32(at.Y)-raster.TextSize))
		r.layoutText()
		r.text.Show()
	} else {
		r.text.Hide()
	}
	r.text.Refresh()
}

func (r *boardWidgetRenderer) Destroy() {}
