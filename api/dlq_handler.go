package api

import (
	"net/http"
)

func (a *API) listDLQ(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	entries, err := a.eng.DLQService().List(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, DLQListResponse{Entries: entries, Count: len(entries)})
}

func (a *API) replayDLQ(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.eng.DLQService().Replay(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ReplayResponse{Replayed: 1})
}

func (a *API) replayAllDLQ(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	n, err := a.eng.DLQService().ReplayAll(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, ReplayResponse{Replayed: n})
}
