package http

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/aretw0/switchboard/pkg/domain"
)

// SubscribeEvents handles the GET /events request (SSE).
// The optional tenant query parameter narrows the stream to one tenant.
func (s *Server) SubscribeEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming not supported", http.StatusInternalServerError)
		s.logger.Error("SubscribeEvents: Streaming not supported")
		return
	}

	tenant := domain.TenantID(r.URL.Query().Get("tenant"))
	if tenant != "" {
		if err := tenant.Validate(); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := s.Events.Subscribe(tenant)
	defer cancel()
	s.logger.Info("SSE: Client subscribed", "tenant", tenant)

	fmt.Fprintf(w, "event: ping\ndata: connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			s.logger.Info("SSE: Client disconnected", "tenant", tenant)
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			data, err := json.Marshal(ev)
			if err != nil {
				s.logger.Error("SSE: Event encode failed", "err", err)
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", ev.ID, ev.Type, data)
			flusher.Flush()
		}
	}
}
