package events

import "time"

// Lifecycle event names emitted by the engine.
const (
	LoadingStarted  = "loading_started"
	BackendSelected = "backend_selected"
	LoadingFailed   = "loading_failed"
	Fallback        = "fallback"
	ModelLoaded     = "model_loaded"
	ModelUnloaded   = "model_unloaded"
	BackendSwitched = "backend_switched"
)

// Event represents an engine lifecycle event.
// Minimal and stable: name + backend/model context and optional fields via
// key/values.
type Event struct {
	Name    string
	Backend string
	Model   string
	Fields  map[string]any
	At      time.Time
}

// Publisher receives events from the engine. Implementations should be
// lightweight and non-blocking; Publish must not panic. The engine never
// depends on what consumers do with the events.
type Publisher interface {
	Publish(Event)
}

// Noop is the default publisher; it drops events.
type Noop struct{}

func (Noop) Publish(Event) {}

// New builds an Event stamped with the current time.
func New(name, backend, model string, fields map[string]any) Event {
	return Event{Name: name, Backend: backend, Model: model, Fields: fields, At: time.Now()}
}
