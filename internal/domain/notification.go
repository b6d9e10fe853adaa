package domain

import "time"

// NotificationKind classifies user-facing notification items.
type NotificationKind string

const (
	NotificationProgress   NotificationKind = "progress"
	NotificationCompleted  NotificationKind = "completed"
	NotificationFailed     NotificationKind = "failed"
	NotificationSaveFailed NotificationKind = "save_failed"
)

// NotificationPriority drives how prominently the UI surfaces an item.
type NotificationPriority string

const (
	PriorityNormal NotificationPriority = "normal"
	PriorityHigh   NotificationPriority = "high"
)

// Notification is one item of the read-side notification feed. Items derived
// from job state are never persisted; items published by other subsystems
// arrive through the notification center.
type Notification struct {
	ID        string               `json:"id"`
	TaskID    string               `json:"task_id,omitempty"`
	Kind      NotificationKind     `json:"kind"`
	Title     string               `json:"title"`
	Message   string               `json:"message,omitempty"`
	Priority  NotificationPriority `json:"priority"`
	Progress  int                  `json:"progress,omitempty"`
	Read      bool                 `json:"read"`
	CreatedAt time.Time            `json:"created_at"`
}
