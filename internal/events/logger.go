package events

import "github.com/rs/zerolog"

// Logged decorates a publisher, logging every event before forwarding it.
// Pass a nil next to only log.
type Logged struct {
	log  zerolog.Logger
	next Publisher
}

func NewLogged(log zerolog.Logger, next Publisher) *Logged {
	return &Logged{log: log, next: next}
}

func (l *Logged) Publish(e Event) {
	ev := l.log.Debug().Str("event", e.Name)
	if e.Backend != "" {
		ev = ev.Str("backend", e.Backend)
	}
	if e.Model != "" {
		ev = ev.Str("model", e.Model)
	}
	if len(e.Fields) > 0 {
		ev = ev.Fields(e.Fields)
	}
	ev.Msg("engine event")
	if l.next != nil {
		l.next.Publish(e)
	}
}
