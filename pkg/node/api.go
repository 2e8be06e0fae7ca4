package node

import (
	"net/http"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/skycoin/datalink/internal/httputil"
	"github.com/skycoin/datalink/internal/metrics"
	"github.com/skycoin/datalink/pkg/store"
)

func newAPI(n *Node) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Timeout(time.Second * 30))
	r.Route("/api", func(r chi.Router) {
		r.Get("/sessions", n.getSessions())
		r.Get("/sessions/{id}", n.getSession())
		r.Post("/sessions/{id}/reset", n.postReset())
		r.Get("/runs", n.getRuns())
		r.Get("/runs/{id}", n.getRun())
	})
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(n.reg, promhttp.HandlerOpts{}))
	return metrics.Handler(n.m, r)
}

func (n *Node) getSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, r, http.StatusOK, n.Sessions())
	}
}

func (n *Node) getSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idFromParam(w, r)
		if !ok {
			return
		}
		info, err := n.Session(id)
		if err != nil {
			httputil.WriteJSON(w, r, http.StatusNotFound, err)
			return
		}
		httputil.WriteJSON(w, r, http.StatusOK, info)
	}
}

func (n *Node) postReset() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idFromParam(w, r)
		if !ok {
			return
		}
		if err := n.ResetSession(id); err != nil {
			httputil.WriteJSON(w, r, http.StatusNotFound, err)
			return
		}
		info, err := n.Session(id)
		if err != nil {
			httputil.WriteJSON(w, r, http.StatusNotFound, err)
			return
		}
		httputil.WriteJSON(w, r, http.StatusOK, info)
	}
}

func (n *Node) getRuns() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		runs, err := n.Runs()
		if err != nil {
			httputil.WriteJSON(w, r, http.StatusInternalServerError, err)
			return
		}
		httputil.WriteJSON(w, r, http.StatusOK, runs)
	}
}

func (n *Node) getRun() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := idFromParam(w, r)
		if !ok {
			return
		}
		run, err := n.Run(id)
		switch {
		case errors.Is(err, store.ErrRunNotFound):
			httputil.WriteJSON(w, r, http.StatusNotFound, err)
		case err != nil:
			httputil.WriteJSON(w, r, http.StatusInternalServerError, err)
		default:
			httputil.WriteJSON(w, r, http.StatusOK, run)
		}
	}
}

func idFromParam(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httputil.WriteJSON(w, r, http.StatusBadRequest, errors.New("invalid id provided"))
		return uuid.UUID{}, false
	}
	return id, true
}
