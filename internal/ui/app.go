package ui

import (
	"fmt"
	"strings"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	fynestorage "fyne.io/fyne/v2/storage"
	"fyne.io/fyne/v2/widget"

	"LocalWhiteboard/internal/export"
)

const appID = "io.localwhiteboard"

// Window is the board window: toolbar on top, board below, status line at
// the bottom.
type Window struct {
	fyne.Window
	Board  *BoardWidget
	status *widget.Label
}

// NewWindow builds the board window in a. A nil Export action opens the
// export dialog.
func NewWindow(a fyne.App, title string, size fyne.Size, board *BoardWidget, actions Actions) *Window {
	w := &Window{
		Window: a.NewWindow(title),
		Board:  board,
		status: widget.NewLabel("Ready"),
	}
	if actions.Export == nil {
		actions.Export = w.ShowExport
	}

	toolbar := NewToolbar(board, actions)
	content := container.NewBorder(toolbar, w.status, nil, nil, container.NewScroll(board))
	w.SetContent(content)
	w.Resize(size)
	w.Canvas().Focus(board)
	return w
}

// SetStatus shows text in the status line. It may be called from any
// goroutine.
func (w *Window) SetStatus(text string) {
	fyne.Do(func() { w.status.SetText(text) })
}

// ShowExport asks for a .png or .pdf destination and writes the board there.
func (w *Window) ShowExport() {
	d := dialog.NewFileSave(func(writer fyne.URIWriteCloser, err error) {
		if err != nil {
			dialog.ShowError(err, w)
			return
		}
		if writer == nil {
			return
		}
		if err := w.exportTo(writer); err != nil {
			w.Board.log.Error("export failed", "uri", writer.URI().String(), "err", err)
			dialog.ShowError(err, w)
			return
		}
		w.SetStatus("Exported " + writer.URI().Name())
	}, w)
	d.SetFileName("whiteboard.png")
	d.SetFilter(fynestorage.NewExtensionFileFilter([]string{".png", ".pdf"}))
	d.Show()
}

func (w *Window) exportTo(writer fyne.URIWriteCloser) (err error) {
	defer func() {
		if cerr := writer.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("export: %w", cerr)
		}
	}()
	img := w.Board.Controller().Image()
	switch strings.ToLower(writer.URI().Extension()) {
	case ".pdf":
		return export.PDF(writer, img)
	case ".png", "":
		return export.PNG(writer, img)
	default:
		return fmt.Errorf("%w: %q", export.ErrUnsupported, writer.URI().Extension())
	}
}

// RunApp opens the board window and blocks until it is closed. setup runs
// before the window is shown.
func RunApp(title string, size fyne.Size, board *BoardWidget, actions Actions, setup func(*Window)) {
	a := app.NewWithID(appID)
	w := NewWindow(a, title, size, board, actions)
	if setup != nil {
		setup(w)
	}
	w.ShowAndRun()
}
