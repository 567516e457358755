package domain

// HistoryState reflects the engine's current history cursor.
type HistoryState struct {
	CanUndo bool `json:"can_undo"`
	CanRedo bool `json:"can_redo"`
}
