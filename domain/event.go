package domain

import (
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
)

// Board event types journaled for downstream read models.
const (
	TaskCreated = "task-created"
	TaskUpdated = "task-updated"
	TaskMoved   = "task-moved"
	TaskDeleted = "task-deleted"
)

// Event records a single mutation of the task collection.
type Event struct {
	ID         string                 `json:"id"`
	EntityID   string                 `json:"entityId"`
	EntityType string                 `json:"entityType"`
	Type       string                 `json:"type"`
	Data       sonic.NoCopyRawMessage `json:"data,omitempty"`
	Time       int64                  `json:"time"`
}

// EventEnvelope wraps an event with the board it belongs to.
type EventEnvelope struct {
	BoardID string `json:"boardId"`
	Event   Event  `json:"event"`
}

var lastTimestamp int64

// NextTimestamp returns a strictly increasing nanosecond timestamp so
// events produced in the same instant still carry a usable order.
func NextTimestamp() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastTimestamp)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastTimestamp, last, now) {
			return now
		}
	}
}
