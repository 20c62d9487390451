package api

import (
	"net/http"

	"github.com/xraph/herald/job"
)

func (a *API) createDelivery(w http.ResponseWriter, r *http.Request) {
	var req CreateDeliveryRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	id, err := a.eng.EnqueueDelivery(r.Context(), job.DeliveryPayload{
		Source:    req.Source,
		Message:   req.Message,
		Severity:  job.Severity(req.Severity),
		Title:     req.Title,
		ChannelID: req.ChannelID,
	}, scheduleOptions(req.ScheduledFor, req.MaxRetries)...)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, EnqueueResponse{ID: id})
}

func (a *API) createTrigger(w http.ResponseWriter, r *http.Request) {
	var req CreateTriggerRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	opts := scheduleOptions(req.ScheduledFor, req.MaxRetries)
	if req.NotifyOnComplete {
		opts = append(opts, job.WithNotifyOnComplete(true))
	}
	id, err := a.eng.EnqueueTrigger(r.Context(), job.TriggerPayload{
		AutomationID: req.AutomationID,
		RequestedBy:  req.RequestedBy,
		Variables:    req.Variables,
	}, opts...)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, EnqueueResponse{ID: id})
}

func (a *API) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	j, err := a.eng.Get(r.Context(), id)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (a *API) cancelJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.eng.Cancel(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) retryJob(w http.ResponseWriter, r *http.Request) {
	id, err := jobIDParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	if err := a.eng.Retry(r.Context(), id); err != nil {
		a.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (a *API) listDue(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.eng.ListDue(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, JobListResponse{Jobs: jobs, Count: len(jobs)})
}

func (a *API) listFailed(w http.ResponseWriter, r *http.Request) {
	limit, err := limitParam(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	jobs, err := a.eng.ListFailed(r.Context(), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, JobListResponse{Jobs: jobs, Count: len(jobs)})
}
