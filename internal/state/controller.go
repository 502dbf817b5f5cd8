// Package state is the board's draw surface controller: it turns pointer and
// key input plus the active tool into raster mutations and keeps the
// snapshot history used by undo and redo.
package state

import (
	"fmt"
	"image"
	"image/color"
	"log/slog"
	"math"
	"slices"
	"sync"
	"unicode"
	"unicode/utf8"

	"LocalWhiteboard/internal/logging"
	"LocalWhiteboard/internal/raster"
)

// Key names understood by TypeKey. Any other single printable character is
// typed as-is.
const (
	KeyEnter     = "Enter"
	KeyEscape    = "Escape"
	KeyBackspace = "Backspace"
)

// Options configures a Controller.
type Options struct {
	Color       color.NRGBA
	Width       float64
	EraserWidth float64
	// HistoryLimit caps the undo history; 0 keeps every snapshot.
	HistoryLimit int
}

// DefaultOptions is a black 2px pen with a 20px eraser.
func DefaultOptions() Options {
	return Options{
		Color:       color.NRGBA{A: 255},
		Width:       2,
		EraserWidth: 20,
	}
}

type pendingText struct {
	active  bool
	at      raster.Point
	content []rune
}

// Controller owns the raster, the history and redo stacks and the pending
// text entry. All methods are safe for concurrent use; each call runs as one
// sequential step.
type Controller struct {
	mu sync.Mutex

	raster      *raster.Raster
	tool        Tool
	style       raster.Style
	eraserWidth float64
	limit       int

	history []raster.Snapshot
	redo    []raster.Snapshot

	drawing bool
	erasing bool
	anchor  raster.Point
	last    raster.Point

	text pendingText

	// OnChange runs after any call that changed the raster, the pending text
	// or completed an operation. It is called without the lock held, so it
	// may call back into the controller.
	OnChange func(Change)

	log *slog.Logger
}

// New wraps r. A nil raster means there is no surface to draw on.
func New(r *raster.Raster, opts Options) (*Controller, error) {
	if r == nil {
		return nil, ErrNoSurface
	}
	def := DefaultOptions()
	if opts.Width <= 0 {
		opts.Width = def.Width
	}
	if opts.EraserWidth <= 0 {
		opts.EraserWidth = def.EraserWidth
	}
	if opts.HistoryLimit < 0 {
		opts.HistoryLimit = 0
	}
	return &Controller{
		raster:      r,
		tool:        ToolFreehand,
		style:       raster.Style{Color: opts.Color, Width: opts.Width},
		eraserWidth: opts.EraserWidth,
		limit:       opts.HistoryLimit,
		log:         logging.For("controller"),
	}, nil
}

func (c *Controller) emit(ch Change) {
	if c.OnChange != nil {
		c.OnChange(ch)
	}
}

// Begin starts an operation at p (pointer down). The current raster is
// pushed as the undo checkpoint and the redo stack is dropped.
func (c *Controller) Begin(p raster.Point) {
	c.mu.Lock()
	if !c.raster.InBounds(p) {
		c.mu.Unlock()
		return
	}
	changed := c.abandon()
	if c.text.active {
		c.text = pendingText{}
		changed = true
	}

	c.pushHistory(c.raster.Snapshot())
	c.redo = nil
	c.drawing = true
	c.erasing = c.tool == ToolEraser
	c.anchor, c.last = p, p
	c.mu.Unlock()

	if changed {
		c.emit(ChangePreview)
	}
}

// Continue extends the active operation to p (pointer move).
func (c *Controller) Continue(p raster.Point) {
	c.mu.Lock()
	if !c.drawing {
		c.mu.Unlock()
		return
	}

	var err error
	switch c.tool {
	case ToolFreehand, ToolEraser:
		if c.erasing {
			err = c.raster.EraseSegment(c.last, p, c.eraserWidth)
		} else {
			err = c.raster.StrokeSegment(c.last, p, c.style)
		}
	case ToolLine:
		c.restoreCheckpoint()
		err = c.raster.StrokeSegment(c.anchor, p, c.style)
	default:
		c.mu.Unlock()
		return
	}
	tool := c.tool
	c.last = p
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("draw failed", "tool", tool, "err", err)
	}
	c.emit(ChangePreview)
}

// End completes the active operation at p (pointer up). Shapes are drawn
// here; the text tool opens a pending text entry at p instead.
func (c *Controller) End(p raster.Point) {
	c.mu.Lock()
	if !c.drawing {
		c.mu.Unlock()
		return
	}

	var err error
	switch c.tool {
	case ToolRectangle:
		err = c.raster.StrokeRect(c.anchor, p, c.style)
	case ToolCircle:
		radius := math.Hypot(p.X-c.anchor.X, p.Y-c.anchor.Y)
		err = c.raster.StrokeCircle(c.anchor, radius, c.style)
	case ToolLine:
		c.restoreCheckpoint()
		err = c.raster.StrokeSegment(c.anchor, p, c.style)
	case ToolText:
		c.text = pendingText{active: true, at: p}
	}
	tool := c.tool
	c.drawing = false
	c.anchor, c.last = raster.Point{}, raster.Point{}
	c.mu.Unlock()

	if err != nil {
		c.log.Warn("draw failed", "tool", tool, "err", err)
	}
	c.log.Debug("operation committed", "tool", tool)
	c.emit(ChangeCommit)
}

// Leave ends the active operation without committing it (pointer left the
// surface). Live freehand and eraser segments stay; a line preview is rolled
// back.
func (c *Controller) Leave() {
	c.mu.Lock()
	changed := c.abandon()
	c.mu.Unlock()

	if changed {
		c.emit(ChangePreview)
	}
}

// TypeKey feeds one key to the pending text entry and reports whether it was
// consumed. Without a pending entry every key is ignored.
func (c *Controller) TypeKey(key string) bool {
	c.mu.Lock()
	if !c.text.active {
		c.mu.Unlock()
		return false
	}

	change := ChangePreview
	switch key {
	case KeyEnter:
		c.raster.FillText(string(c.text.content), c.text.at, c.style.Color)
		c.text = pendingText{}
		change = ChangeCommit
	case KeyEscape:
		c.text = pendingText{}
	case KeyBackspace:
		if n := len(c.text.content); n > 0 {
			c.text.content = c.text.content[:n-1]
		}
	default:
		r, size := utf8.DecodeRuneInString(key)
		if size == 0 || size != len(key) || r == utf8.RuneError || !unicode.IsPrint(r) {
			c.mu.Unlock()
			return false
		}
		c.text.content = append(c.text.content, r)
	}
	c.mu.Unlock()

	c.emit(change)
	return true
}

// Undo restores the latest history snapshot, moving the current raster onto
// the redo stack. It reports false when there is nothing to undo.
func (c *Controller) Undo() bool {
	c.mu.Lock()
	c.abandon()
	c.text = pendingText{}
	if len(c.history) == 0 {
		c.mu.Unlock()
		return false
	}

	c.redo = append(c.redo, c.raster.Snapshot())
	i := len(c.history) - 1
	prev := c.history[i]
	c.history[i] = raster.Snapshot{}
	c.history = c.history[:i]
	c.repaint(prev)
	c.mu.Unlock()

	c.emit(ChangeUndo)
	return true
}

// Redo reapplies the latest undone snapshot. It reports false when the redo
// stack is empty.
func (c *Controller) Redo() bool {
	c.mu.Lock()
	c.abandon()
	c.text = pendingText{}
	if len(c.redo) == 0 {
		c.mu.Unlock()
		return false
	}

	c.pushHistory(c.raster.Snapshot())
	i := len(c.redo) - 1
	next := c.redo[i]
	c.redo[i] = raster.Snapshot{}
	c.redo = c.redo[:i]
	c.repaint(next)
	c.mu.Unlock()

	c.emit(ChangeRedo)
	return true
}

// Clear wipes the raster and resets history to the single empty raster.
// This is a hard reset; only "back to empty" remains undoable.
func (c *Controller) Clear() {
	c.mu.Lock()
	c.abandon()
	c.text = pendingText{}
	c.raster.Clear()
	c.history = []raster.Snapshot{c.raster.Snapshot()}
	c.redo = nil
	c.mu.Unlock()

	c.log.Debug("board cleared")
	c.emit(ChangeClear)
}

// Restore replaces the raster and history, e.g. with state loaded from
// storage. The redo stack is emptied and any operation in flight is dropped.
func (c *Controller) Restore(current raster.Snapshot, history []raster.Snapshot) error {
	c.mu.Lock()
	if err := c.raster.Restore(current); err != nil {
		c.mu.Unlock()
		return err
	}
	w, h := c.raster.Width(), c.raster.Height()
	kept := make([]raster.Snapshot, 0, len(history))
	for _, s := range history {
		if s.Width() != w || s.Height() != h {
			c.log.Warn("dropping history entry with wrong size", "width", s.Width(), "height", s.Height())
			continue
		}
		kept = append(kept, s)
	}
	if c.limit > 0 && len(kept) > c.limit {
		kept = kept[len(kept)-c.limit:]
	}
	c.history = kept
	c.redo = nil
	c.drawing = false
	c.text = pendingText{}
	c.mu.Unlock()

	c.emit(ChangeRestore)
	return nil
}

// SetTool selects the active tool. Switching while an operation is active
// abandons it like Leave; switching away from text drops a pending entry.
func (c *Controller) SetTool(t Tool) error {
	if !t.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownTool, string(t))
	}
	c.mu.Lock()
	changed := c.abandon()
	if t != ToolText && c.text.active {
		c.text = pendingText{}
		changed = true
	}
	c.tool = t
	c.mu.Unlock()

	if changed {
		c.emit(ChangePreview)
	}
	return nil
}

func (c *Controller) Tool() Tool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tool
}

// SetColor changes the pen color. The eraser ignores it.
func (c *Controller) SetColor(col color.NRGBA) {
	c.mu.Lock()
	c.style.Color = col
	c.mu.Unlock()
}

func (c *Controller) Color() color.NRGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.style.Color
}

// SetWidth changes the pen width; non-positive widths are ignored.
func (c *Controller) SetWidth(w float64) {
	if w <= 0 {
		return
	}
	c.mu.Lock()
	c.style.Width = w
	c.mu.Unlock()
}

func (c *Controller) Width() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.style.Width
}

// PendingText returns the text typed so far and its anchor while a text
// entry is pending.
func (c *Controller) PendingText() (string, raster.Point, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.text.active {
		return "", raster.Point{}, false
	}
	return string(c.text.content), c.text.at, true
}

// Drawing reports whether a pointer operation is in progress.
func (c *Controller) Drawing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.drawing
}

func (c *Controller) CanUndo() bool { return c.HistoryLen() > 0 }
func (c *Controller) CanRedo() bool { return c.RedoLen() > 0 }

func (c *Controller) HistoryLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.history)
}

func (c *Controller) RedoLen() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.redo)
}

// Size returns the raster dimensions.
func (c *Controller) Size() (int, int) {
	return c.raster.Width(), c.raster.Height()
}

// Snapshot copies the current raster.
func (c *Controller) Snapshot() raster.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raster.Snapshot()
}

// State returns the current raster and a copy of the history, oldest first.
func (c *Controller) State() (raster.Snapshot, []raster.Snapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raster.Snapshot(), slices.Clone(c.history)
}

// Image returns a copy of the raster for display or export.
func (c *Controller) Image() *image.NRGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.raster.Image()
}

func (c *Controller) pushHistory(s raster.Snapshot) {
	c.history = append(c.history, s)
	if c.limit > 0 && len(c.history) > c.limit {
		c.history = slices.Delete(c.history, 0, len(c.history)-c.limit)
	}
}

// restoreCheckpoint repaints the latest history snapshot, or clears the
// raster when there is none.
func (c *Controller) restoreCheckpoint() {
	if len(c.history) == 0 {
		c.raster.Clear()
		return
	}
	c.repaint(c.history[len(c.history)-1])
}

func (c *Controller) repaint(s raster.Snapshot) {
	if err := c.raster.Restore(s); err != nil {
		c.log.Error("repaint failed", "err", err)
	}
}

// abandon ends the active operation without committing. It reports whether
// the raster changed.
func (c *Controller) abandon() bool {
	if !c.drawing {
		return false
	}
	c.drawing = false
	c.anchor, c.last = raster.Point{}, raster.Point{}
	if c.tool == ToolLine {
		c.restoreCheckpoint()
		return true
	}
	return false
}
