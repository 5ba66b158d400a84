package api

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lox/drillprep/internal/timestamp"
)

const jobRetention = time.Hour

// conversionJob records every event of a timestamp job so that late
// listeners can replay it.
type conversionJob struct {
	ID        string
	SessionID string
	job       *timestamp.Job

	mu       sync.Mutex
	events   []timestamp.Event
	finished time.Time
	changed  chan struct{}
}

func (j *conversionJob) append(ev timestamp.Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	if ev.Type != timestamp.EventProgress {
		j.finished = time.Now()
	}
	close(j.changed)
	j.changed = make(chan struct{})
}

// since returns the events from index i on, whether the job has finished,
// and a channel closed on the next event.
func (j *conversionJob) since(i int) ([]timestamp.Event, bool, <-chan struct{}) {
	j.mu.Lock()
	defer j.mu.Unlock()
	var evs []timestamp.Event
	if i < len(j.events) {
		evs = append(evs, j.events[i:]...)
	}
	return evs, !j.finished.IsZero(), j.changed
}

type JobStatus struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionId"`
	Status    string `json:"status"`
	Progress  int    `json:"progress"`
	Error     string `json:"error,omitempty"`
	Converted int    `json:"converted,omitempty"`
	Invalid   int    `json:"invalid,omitempty"`
}

func (j *conversionJob) status() JobStatus {
	j.mu.Lock()
	defer j.mu.Unlock()
	st := JobStatus{ID: j.ID, SessionID: j.SessionID, Status: "running"}
	if n := len(j.events); n > 0 {
		last := j.events[n-1]
		st.Progress = last.Progress
		switch last.Type {
		case timestamp.EventDone:
			st.Status = "done"
			if last.Result != nil {
				st.Converted, st.Invalid = last.Result.Converted, last.Result.Invalid
			}
		case timestamp.EventError:
			st.Status = "error"
			st.Error = last.Error
		}
	}
	return st
}

type jobRegistry struct {
	mu   sync.Mutex
	jobs map[string]*conversionJob
}

func newJobRegistry() *jobRegistry {
	return &jobRegistry{jobs: make(map[string]*conversionJob)}
}

func (r *jobRegistry) add(sessionID string, job *timestamp.Job) *conversionJob {
	j := &conversionJob{
		ID:        uuid.NewString(),
		SessionID: sessionID,
		job:       job,
		changed:   make(chan struct{}),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pruneLocked(time.Now().Add(-jobRetention))
	r.jobs[j.ID] = j
	return j
}

func (r *jobRegistry) get(id string) (*conversionJob, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	j, ok := r.jobs[id]
	return j, ok
}

func (r *jobRegistry) pruneLocked(cutoff time.Time) {
	for id, j := range r.jobs {
		j.mu.Lock()
		stale := !j.finished.IsZero() && j.finished.Before(cutoff)
		j.mu.Unlock()
		if stale {
			delete(r.jobs, id)
		}
	}
}

func (r *jobRegistry) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, j := range r.jobs {
		j.job.Cancel()
	}
}
