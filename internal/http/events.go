package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/events"
	"github.com/QUUS-TheSmallCodeTeam/EG-DESK-Taehwa-sub000/internal/observability"
)

const (
	sseBuffer    = 64
	sseHeartbeat = 15 * time.Second
)

// HandleEvents streams bus events as server-sent events. A client that falls
// behind loses events rather than blocking publishers.
func (h *Handler) HandleEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := observability.FromContext(ctx)

	flusher, ok := w.(http.Flusher)
	if !ok {
		logger.Error("streaming not supported")
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	queue := make(chan events.Event, sseBuffer)
	owner := "sse-" + uuid.NewString()
	unsubscribe := h.bus.SubscribeAll(func(_ context.Context, evt events.Event) {
		select {
		case queue <- evt:
		default:
			logger.Warn("dropping event for slow subscriber", observability.String("event", string(evt.Name)))
		}
	}, owner)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	logger.Info("event stream opened")

	heartbeat := time.NewTicker(sseHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("event stream closed")
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case evt := <-queue:
			data, err := json.Marshal(evt)
			if err != nil {
				logger.Error("failed to encode event", observability.Error(err))
				continue
			}
			fmt.Fprintf(w, "id: %s\nevent: %s\ndata: %s\n\n", evt.ID, evt.Name, data)
			flusher.Flush()
		}
	}
}
