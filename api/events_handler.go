package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/xraph/herald"
	"github.com/xraph/herald/stream"
)

const keepAliveInterval = 15 * time.Second

// topicsParam reads repeated ?topic= parameters, defaulting to the firehose.
func topicsParam(r *http.Request) ([]string, error) {
	topics := r.URL.Query()["topic"]
	if len(topics) == 0 {
		return []string{stream.TopicFirehose}, nil
	}
	for _, t := range topics {
		if err := stream.ValidateTopic(t); err != nil {
			return nil, &herald.ValidationError{Field: "topic", Reason: err.Error()}
		}
	}
	return topics, nil
}

// events streams lifecycle events as server-sent events.
func (a *API) events(w http.ResponseWriter, r *http.Request) {
	topics, err := topicsParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		a.writeError(w, r, fmt.Errorf("streaming unsupported by response writer"))
		return
	}

	subID := uuid.NewString()
	sub := a.broker.Subscribe(subID, topics...)
	defer a.broker.RemoveSubscriber(subID)

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(keepAliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case evt, open := <-sub.C():
			if !open {
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				a.logger.Error("events: marshal", slog.String("error", err.Error()))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Type, data); err != nil {
				return
			}
			flusher.Flush()
			sub.AddCredits(1)
		}
	}
}

// eventsWS streams lifecycle events over a WebSocket, one JSON text frame
// per event. Client frames are read only to notice disconnects.
func (a *API) eventsWS(w http.ResponseWriter, r *http.Request) {
	topics, err := topicsParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	subID := uuid.NewString()
	sub := a.broker.Subscribe(subID, topics...)
	defer a.broker.RemoveSubscriber(subID)

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		a.logger.Warn("events: websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		for {
			if _, _, err := wsutil.ReadClientData(conn); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-gone:
			return
		case evt, open := <-sub.C():
			if !open {
				body := ws.NewCloseFrameBody(ws.StatusGoingAway, "shutting down")
				_ = ws.WriteFrame(conn, ws.NewCloseFrame(body))
				return
			}
			data, err := json.Marshal(evt)
			if err != nil {
				a.logger.Error("events: marshal", slog.String("error", err.Error()))
				continue
			}
			if err := wsutil.WriteServerText(conn, data); err != nil {
				return
			}
			sub.AddCredits(1)
		}
	}
}
