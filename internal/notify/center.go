// Package notify keeps the in-app notification surface for generation jobs.
// Terminal outcomes are stored as items via the Center; everything the UI
// shows is projected on read from those items plus the live job snapshot.
package notify

import (
	"sync"
	"time"

	"vidtrack/internal/domain"
)

// Center stores published notifications newest-first. It holds raw facts
// (kind, task, message); localized copy is rendered at projection time.
type Center struct {
	mu    sync.Mutex
	items []domain.Notification
}

func NewCenter() *Center {
	return &Center{}
}

// Publish stores a notification. A zero CreatedAt is stamped with now.
func (c *Center) Publish(n domain.Notification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append([]domain.Notification{n}, c.items...)
}

// Items returns a copy of the stored notifications, newest first.
func (c *Center) Items() []domain.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]domain.Notification, len(c.items))
	copy(out, c.items)
	return out
}

// MarkRead flags one stored item as read. False when the id is unknown.
func (c *Center) MarkRead(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].ID == id {
			c.items[i].Read = true
			return true
		}
	}
	return false
}

// MarkAllRead flags every stored item as read.
func (c *Center) MarkAllRead() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		c.items[i].Read = true
	}
}

// HasTask reports whether a stored item already exists for the task.
func (c *Center) HasTask(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.items {
		if c.items[i].TaskID == taskID {
			return true
		}
	}
	return false
}
