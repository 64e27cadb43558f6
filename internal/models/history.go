package models

import "time"

// HistoryAction describes what happened to the history
type HistoryAction string

const (
	HistoryActionCreated HistoryAction = "created"
	HistoryActionDeleted HistoryAction = "deleted"
	HistoryActionCleared HistoryAction = "cleared"
)

// HistoryEvent is published after every successful history write
type HistoryEvent struct {
	Action HistoryAction `json:"action"`
	QRCode *QRCode       `json:"qr_code,omitempty"`
	Count  int64         `json:"count,omitempty"`
	At     time.Time     `json:"at"`
}

// Settings are the user preferences shown on the settings screen
type Settings struct {
	DarkTheme    bool  `json:"dark_theme"`
	AutoCopy     bool  `json:"auto_copy"`
	HistoryCount int64 `json:"history_count"`
}
