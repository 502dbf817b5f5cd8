package ui

import (
	"image/color"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/canvas"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/layout"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"

	"LocalWhiteboard/internal/state"
)

// palette is the fixed set of swatches; any color can still come from config.
var palette = []color.NRGBA{
	{A: 255},
	{R: 255, A: 255},
	{G: 255, A: 255},
	{B: 255, A: 255},
	{R: 255, G: 255, A: 255},
}

// Actions are the toolbar buttons that need the rest of the app.
type Actions struct {
	Undo   func()
	Redo   func()
	Clear  func()
	Export func()
}

// --- Custom Widget for Color Swatches ---
type colorSwatch struct {
	widget.BaseWidget
	Color    color.NRGBA
	OnTapped func(color.NRGBA)
}

func newColorSwatch(c color.NRGBA, tapped func(color.NRGBA)) *colorSwatch {
	s := &colorSwatch{Color: c, OnTapped: tapped}
	s.ExtendBaseWidget(s)
	return s
}

func (s *colorSwatch) CreateRenderer() fyne.WidgetRenderer {
	rect := canvas.NewRectangle(s.Color)
	rect.SetMinSize(fyne.NewSize(28, 28))

	border := canvas.NewRectangle(color.Transparent)
	border.StrokeColor = color.Gray{Y: 150}
	border.StrokeWidth = 1

	return widget.NewSimpleRenderer(container.NewStack(rect, border))
}

func (s *colorSwatch) Tapped(_ *fyne.PointEvent) {
	if s.OnTapped != nil {
		s.OnTapped(s.Color)
	}
}

func toolNames() []string {
	names := make([]string, len(state.Tools))
	for i, t := range state.Tools {
		names[i] = t.String()
	}
	return names
}

// NewToolbar builds the tool selector, history actions, palette and width
// slider for board.
func NewToolbar(board *BoardWidget, actions Actions) fyne.CanvasObject {
	ctrl := board.Controller()

	tools := widget.NewRadioGroup(toolNames(), func(name string) {
		t, err := state.ParseTool(name)
		if err != nil {
			return
		}
		if err := ctrl.SetTool(t); err != nil {
			board.log.Warn("set tool", "err", err)
		}
	})
	tools.Horizontal = true
	tools.Required = true
	tools.SetSelected(ctrl.Tool().String())

	tb := widget.NewToolbar(
		widget.NewToolbarAction(theme.ContentUndoIcon(), actions.Undo),
		widget.NewToolbarAction(theme.ContentRedoIcon(), actions.Redo),
		widget.NewToolbarAction(theme.DeleteIcon(), actions.Clear),
		widget.NewToolbarSeparator(),
		widget.NewToolbarAction(theme.DocumentSaveIcon(), actions.Export),
	)

	// --- Color Palette ---
	onColorTapped := func(c color.NRGBA) {
		ctrl.SetColor(c)
		board.Refresh()
	}
	colorBox := container.NewHBox()
	for _, c := range palette {
		colorBox.Add(newColorSwatch(c, onColorTapped))
	}

	// --- Stroke Width Slider ---
	strokeSlider := widget.NewSlider(1.0, 50.0)
	strokeSlider.SetValue(ctrl.Width())
	strokeSlider.OnChanged = ctrl.SetWidth
	sliderContainer := container.New(layout.NewGridWrapLayout(fyne.NewSize(150, 35)), strokeSlider)

	return container.NewHBox(
		tools,
		widget.NewSeparator(),
		tb,
		widget.NewSeparator(),
		colorBox,
		widget.NewSeparator(),
		widget.NewLabel("Size:"),
		sliderContainer,
		layout.NewSpacer(),
	)
}
