// Package realtime fans task and track state changes out to subscribers.
package realtime

import (
	"sync"

	"github.com/cesargomez89/spotdown/internal/constants"
	"github.com/cesargomez89/spotdown/internal/domain"
)

const (
	EventTaskUpdate  = "task_update"
	EventTrackUpdate = "track_update"
)

// Event is one broadcast message. Payload is either a TaskUpdate or a TrackUpdate.
type Event struct {
	Payload any    `json:"payload"`
	Type    string `json:"type"`
}

type TaskUpdate struct {
	ID               string            `json:"id"`
	Status           domain.TaskStatus `json:"status"`
	BundleURL        string            `json:"bundleUrl,omitempty"`
	ErrorMessage     string            `json:"errorMessage,omitempty"`
	TotalTracks      int               `json:"totalTracks"`
	TracksDownloaded int               `json:"tracksDownloaded"`
}

type TrackUpdate struct {
	TrackID     int64              `json:"trackId"`
	Status      domain.TrackStatus `json:"status"`
	ArtifactURL string             `json:"artifactUrl,omitempty"`
}

// Publisher sends an event to a topic. Delivery is best effort.
type Publisher interface {
	Publish(topic string, event Event)
}

// TaskTopic is the per-task channel name.
func TaskTopic(taskID string) string {
	return constants.RealtimeTopic + taskID
}

func NewTaskEvent(t *domain.Task) Event {
	return Event{
		Type: EventTaskUpdate,
		Payload: TaskUpdate{
			ID:               t.ID,
			Status:           t.Status,
			BundleURL:        t.BundleURL,
			ErrorMessage:     t.ErrorMessage,
			TotalTracks:      t.TotalTracks,
			TracksDownloaded: t.TracksDownloaded,
		},
	}
}

func NewTrackEvent(t *domain.Track) Event {
	return Event{
		Type: EventTrackUpdate,
		Payload: TrackUpdate{
			TrackID:     t.ID,
			Status:      t.Status,
			ArtifactURL: t.ArtifactURL,
		},
	}
}

// Hub is an in-process Publisher with per-topic subscribers.
type Hub struct {
	subs   map[string]map[chan Event]struct{}
	mu     sync.RWMutex
	buffer int
}

func NewHub() *Hub {
	return &Hub{
		subs:   make(map[string]map[chan Event]struct{}),
		buffer: constants.SubscriberQueue,
	}
}

// Subscribe returns a channel of events for topic and a func that
// unsubscribes and closes it.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, h.buffer)

	h.mu.Lock()
	if h.subs[topic] == nil {
		h.subs[topic] = make(map[chan Event]struct{})
	}
	h.subs[topic][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[topic], ch)
			if len(h.subs[topic]) == 0 {
				delete(h.subs, topic)
			}
			h.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Publish never blocks. A subscriber whose buffer is full misses the event.
func (h *Hub) Publish(topic string, event Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[topic] {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[topic])
}
