package persist

import (
	"context"

	"LocalWhiteboard/internal/state"
)

// SavePolicy decides which controller changes are written to storage.
// Committed operations and clears always are. Undo and redo only move through
// history the record already holds, so they are saved only with AfterUndo.
type SavePolicy struct {
	AfterUndo bool
}

// Wants reports whether ch should trigger a save.
func (p SavePolicy) Wants(ch state.Change) bool {
	if ch.Persistent() {
		return true
	}
	return p.AfterUndo && (ch == state.ChangeUndo || ch == state.ChangeRedo)
}

// AutoSave returns a change hook that saves in the background for every
// change p wants. done, when set, gets each save's result.
func (b *Bridge) AutoSave(ctx context.Context, p SavePolicy, done func(error)) func(state.Change) {
	return func(ch state.Change) {
		if !p.Wants(ch) {
			return
		}
		go func() {
			err := b.Save(ctx)
			if done != nil {
				done(err)
			}
		}()
	}
}
