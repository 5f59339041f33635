package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"inferd/internal/events"
	"inferd/pkg/types"
)

const sseKeepalive = 15 * time.Second

// handleEvents godoc
// @Summary      Engine event stream
// @Description  Streams lifecycle events (loading_started, backend_selected, fallback, model_loaded, ...) as server-sent events.
// @Tags         status
// @Produce      text/event-stream
// @Success      200 {string} string "SSE stream of EventMessage payloads"
// @Router       /events [get]
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	fl, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	ch, cancel := s.fanout.Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fl.Flush()

	keepalive := time.NewTicker(sseKeepalive)
	defer keepalive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			fl.Flush()
		case <-keepalive.C:
			// Comment frame; keeps proxies from closing idle streams.
			if _, err := io.WriteString(w, ": keepalive\n\n"); err != nil {
				return
			}
			fl.Flush()
		}
	}
}

func writeSSE(w io.Writer, ev events.Event) error {
	data, err := json.Marshal(types.EventMessage{
		Name:    ev.Name,
		Backend: ev.Backend,
		Model:   ev.Model,
		Fields:  ev.Fields,
		AtMS:    ev.At.UnixMilli(),
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data)
	return err
}
