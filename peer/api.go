package peer

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// API serves a session's metadata over HTTP.
type API struct {
	session *Session
	logger  *zap.Logger
}

// NewAPI creates an API for s.
func NewAPI(s *Session, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{session: s, logger: logger}
}

// Routes registers the API handlers on r.
func (a *API) Routes(r *mux.Router) {
	r.HandleFunc("/metadata", a.getAll).Methods(http.MethodGet)
	r.HandleFunc("/metadata/{key}", a.get).Methods(http.MethodGet)
	r.HandleFunc("/metadata/{key}", a.put).Methods(http.MethodPut)
	r.HandleFunc("/metadata/{key}", a.delete).Methods(http.MethodDelete)
	r.HandleFunc("/undo", a.undo).Methods(http.MethodPost)
	r.HandleFunc("/redo", a.redo).Methods(http.MethodPost)
	r.HandleFunc("/attributes", a.attributes).Methods(http.MethodGet)
}

type valueBody struct {
	Value any `json:"value"`
}

type historyResult struct {
	Applied bool `json:"applied"`
}

func (a *API) getAll(w http.ResponseWriter, r *http.Request) {
	all, err := a.session.GetAll()
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, all)
}

func (a *API) get(w http.ResponseWriter, r *http.Request) {
	value, ok, err := a.session.Get(mux.Vars(r)["key"])
	if err != nil {
		a.fail(w, err)
		return
	}
	if !ok {
		http.Error(w, "no such key", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, valueBody{Value: value})
}

func (a *API) put(w http.ResponseWriter, r *http.Request) {
	var body valueBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if err := a.session.Set(mux.Vars(r)["key"], body.Value); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) delete(w http.ResponseWriter, r *http.Request) {
	if err := a.session.Set(mux.Vars(r)["key"], nil); err != nil {
		a.fail(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) undo(w http.ResponseWriter, r *http.Request) {
	applied, err := a.session.Undo()
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResult{Applied: applied})
}

func (a *API) redo(w http.ResponseWriter, r *http.Request) {
	applied, err := a.session.Redo()
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, historyResult{Applied: applied})
}

func (a *API) attributes(w http.ResponseWriter, r *http.Request) {
	attrs, err := a.session.Attributes()
	if err != nil {
		a.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, attrs)
}

func (a *API) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrSessionClosed) {
		http.Error(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	a.logger.Error("request failed", zap.Error(err))
	http.Error(w, err.Error(), http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
