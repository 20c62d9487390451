package api

import (
	"context"
	"net/http"
	"time"

	"github.com/xraph/herald/job"
)

func (a *API) stats(w http.ResponseWriter, r *http.Request) {
	st, err := a.eng.Stats(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}

	var queues []string
	for _, kind := range []job.Kind{job.KindDelivery, job.KindTrigger} {
		if a.eng.Queue(kind) != nil {
			queues = append(queues, string(kind))
		}
	}
	writeJSON(w, http.StatusOK, StatsResponse{Stats: st, Queues: queues})
}

func (a *API) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := a.eng.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
