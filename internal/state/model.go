package state

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrNoSurface   = errors.New("state: drawing surface unavailable")
	ErrUnknownTool = errors.New("state: unknown tool")
)

// Tool is the active drawing tool.
type Tool string

const (
	ToolFreehand  Tool = "freehand"
	ToolRectangle Tool = "rectangle"
	ToolCircle    Tool = "circle"
	ToolLine      Tool = "line"
	ToolText      Tool = "text"
	ToolEraser    Tool = "eraser"
)

// Tools lists every tool in toolbar order.
var Tools = []Tool{ToolFreehand, ToolRectangle, ToolCircle, ToolLine, ToolText, ToolEraser}

func (t Tool) Valid() bool {
	switch t {
	case ToolFreehand, ToolRectangle, ToolCircle, ToolLine, ToolText, ToolEraser:
		return true
	}
	return false
}

func (t Tool) String() string { return string(t) }

// ParseTool maps a tool name to a Tool.
func ParseTool(s string) (Tool, error) {
	t := Tool(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownTool, s)
	}
	return t, nil
}

// Change describes what a controller call did to the raster.
type Change int

const (
	// ChangePreview repainted uncommitted pixels (line preview, live stroke).
	ChangePreview Change = iota
	// ChangeCommit completed an operation; state should be saved.
	ChangeCommit
	ChangeUndo
	ChangeRedo
	// ChangeClear reset raster and history; state should be saved.
	ChangeClear
	// ChangeRestore replaced state from storage; never saved back.
	ChangeRestore
)

func (c Change) String() string {
	switch c {
	case ChangePreview:
		return "preview"
	case ChangeCommit:
		return "commit"
	case ChangeUndo:
		return "undo"
	case ChangeRedo:
		return "redo"
	case ChangeClear:
		return "clear"
	case ChangeRestore:
		return "restore"
	}
	return fmt.Sprintf("change(%d)", int(c))
}

// Persistent reports whether the change is a committed mutation that the
// persistence layer writes out.
func (c Change) Persistent() bool {
	return c == ChangeCommit || c == ChangeClear
}
