package search

import (
	"github.com/david/campsite-finder/internal/models"
)

// EventType names one frame of the progressive result stream.
type EventType string

const (
	EventMeta     EventType = "meta"
	EventStatus   EventType = "status"
	EventProgress EventType = "progress"
	EventResult   EventType = "result"
	EventFound    EventType = "found"
	EventNotFound EventType = "not_found"
	EventError    EventType = "error"
	EventDone     EventType = "done"
)

// Event is one (type, payload) pair. Data is JSON-serializable.
type Event struct {
	Type EventType
	Data any
}

// Emit receives events in the order they are produced.
type Emit func(Event)

type Message struct {
	Message string `json:"message"`
}

type Center struct {
	Lat      float64 `json:"lat"`
	Lon      float64 `json:"lon"`
	Location string  `json:"location"`
}

type Meta struct {
	SearchCenter Center `json:"searchCenter"`
}

// Progress is sent at every batch boundary.
type Progress struct {
	Checked int    `json:"checked"`
	Total   int    `json:"total"`
	Found   int    `json:"found"`
	Source  string `json:"source,omitempty"`
}

// Found is a lookahead hit for one month.
type Found struct {
	Month            string                    `json:"month"`
	AvailableDates   []models.Date             `json:"availableDates"`
	SiteAvailability []models.SiteAvailability `json:"siteAvailability"`
}

func MetaEvent(c Center) Event { return Event{Type: EventMeta, Data: Meta{SearchCenter: c}} }
func StatusEvent(msg string) Event { return Event{Type: EventStatus, Data: Message{Message: msg}} }
func ErrorEvent(msg string) Event { return Event{Type: EventError, Data: Message{Message: msg}} }
func NotFoundEvent(msg string) Event { return Event{Type: EventNotFound, Data: Message{Message: msg}} }
func ProgressEvent(p Progress) Event { return Event{Type: EventProgress, Data: p} }
func ResultEvent(c models.Campsite) Event { return Event{Type: EventResult, Data: c} }
func FoundEvent(f Found) Event { return Event{Type: EventFound, Data: f} }
func DoneEvent() Event { return Event{Type: EventDone, Data: struct{}{}} }
