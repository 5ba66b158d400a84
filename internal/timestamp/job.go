package timestamp

import (
	"context"

	"github.com/lox/drillprep/internal/models"
)

type EventType string

const (
	EventProgress EventType = "progress"
	EventDone     EventType = "done"
	EventError    EventType = "error"
)

type Event struct {
	Type     EventType `json:"type"`
	Progress int       `json:"progress"`
	Error    string    `json:"error,omitempty"`
	Result   *Result   `json:"result,omitempty"`
}

// Job is a conversion running on its own goroutine. Events carries progress
// updates followed by exactly one done or error event, then closes.
type Job struct {
	Events <-chan Event
	cancel context.CancelFunc
}

func (j *Job) Cancel() {
	j.cancel()
}

// Start runs Convert in the background. Progress events are dropped when the
// consumer falls behind; the final event is always delivered.
func (c *Converter) Start(ctx context.Context, ds *models.Dataset, req Request) *Job {
	ctx, cancel := context.WithCancel(ctx)
	events := make(chan Event, 16)

	go func() {
		defer close(events)
		defer cancel()

		res, err := c.Convert(ctx, ds, req, func(p int) {
			select {
			case events <- Event{Type: EventProgress, Progress: p}:
			default:
			}
		})
		if err != nil {
			events <- Event{Type: EventError, Error: err.Error()}
			return
		}
		events <- Event{Type: EventDone, Progress: 100, Result: res}
	}()

	return &Job{Events: events, cancel: cancel}
}
