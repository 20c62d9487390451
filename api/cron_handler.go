package api

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xraph/herald"
	"github.com/xraph/herald/cron"
)

func cronNotFound(name string) error {
	return fmt.Errorf("%w: %q", herald.ErrCronNotFound, name)
}

func (a *API) listCrons(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.eng.Cron().List())
}

func (a *API) createCron(w http.ResponseWriter, r *http.Request) {
	var def cron.Definition
	if err := decodeJSON(r, &def); err != nil {
		a.writeError(w, r, err)
		return
	}
	entry, err := a.eng.Cron().Register(def)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

func (a *API) getCron(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	entry, ok := a.eng.Cron().Get(name)
	if !ok {
		a.writeError(w, r, cronNotFound(name))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (a *API) deleteCron(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !a.eng.Cron().Remove(name) {
		a.writeError(w, r, cronNotFound(name))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) enableCron(w http.ResponseWriter, r *http.Request) {
	a.setCronEnabled(w, r, true)
}

func (a *API) disableCron(w http.ResponseWriter, r *http.Request) {
	a.setCronEnabled(w, r, false)
}

func (a *API) setCronEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	name := chi.URLParam(r, "name")
	entry, ok := a.eng.Cron().SetEnabled(name, enabled)
	if !ok {
		a.writeError(w, r, cronNotFound(name))
		return
	}
	writeJSON(w, http.StatusOK, entry)
}
