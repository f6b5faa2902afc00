package embedded

import (
	"slices"
	"time"

	"github.com/infinispan/infinispan-subsystem/internal/shared/queue"
)

const defaultEventLogSize = 1024

type EventLevel string

const (
	LevelInfo  EventLevel = "INFO"
	LevelWarn  EventLevel = "WARN"
	LevelError EventLevel = "ERROR"
)

type EventCategory string

const (
	CategoryLifecycle EventCategory = "LIFECYCLE"
	CategoryCluster   EventCategory = "CLUSTER"
	CategoryTasks     EventCategory = "TASKS"
	CategorySecurity  EventCategory = "SECURITY"
)

// Event is one entry of the server event log.
type Event struct {
	When     time.Time
	Level    EventLevel
	Category EventCategory
	Message  string
	Detail   string
	Context  string
	Scope    string
}

// EventLog keeps the most recent events; the oldest are dropped once it is full.
type EventLog struct {
	ring *queue.Ring[Event]
}

func NewEventLog(size int) *EventLog {
	if size <= 0 {
		size = defaultEventLogSize
	}
	return &EventLog{ring: queue.NewRing[Event](size)}
}

func (l *EventLog) Log(level EventLevel, category EventCategory, context, message string) {
	e := Event{When: time.Now(), Level: level, Category: category, Context: context, Message: message}
	for !l.ring.TryPush(e) {
		l.ring.TryPop()
	}
}

// EventFilter selects events for Read. Zero fields match everything; Count defaults to 100.
type EventFilter struct {
	Since    time.Time
	Count    int
	Category EventCategory
	Level    EventLevel
}

// Read returns matching events, newest first.
func (l *EventLog) Read(f EventFilter) []Event {
	if f.Count <= 0 {
		f.Count = 100
	}
	items := l.ring.Items()
	slices.Reverse(items)
	out := make([]Event, 0, min(f.Count, len(items)))
	for _, e := range items {
		if len(out) == f.Count {
			break
		}
		if !f.Since.IsZero() && e.When.Before(f.Since) {
			continue
		}
		if f.Category != "" && e.Category != f.Category {
			continue
		}
		if f.Level != "" && e.Level != f.Level {
			continue
		}
		out = append(out, e)
	}
	return out
}
