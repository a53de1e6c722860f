// Package api serves persisted artifacts and fixture predictions over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"goalcast/domain/core"
	"goalcast/domain/model"
	"goalcast/internal/errors"
	"goalcast/internal/logging"
	"goalcast/internal/predict"
	"goalcast/ports"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// Predictor scores a fixture against a competition's artifact
type Predictor interface {
	Predict(ctx context.Context, competition core.CompetitionID, fx predict.Fixture) (*predict.Prediction, error)
}

// Server is the read and predict API
type Server struct {
	router    *chi.Mux
	store     ports.ArtifactStore
	index     ports.ArtifactIndex
	predictor Predictor
	log       *logrus.Entry
}

// NewServer wires routes. index may be nil, in which case listings come
// from the artifact store and history is unavailable.
func NewServer(store ports.ArtifactStore, index ports.ArtifactIndex, predictor Predictor, log *logrus.Entry) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		store:     store,
		index:     index,
		predictor: predictor,
		log:       logging.Component(log, "api"),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(s.requestLogger)
	s.router.Use(middleware.Recoverer)
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Route("/artifacts", func(r chi.Router) {
		r.Get("/", s.handleListArtifacts)
		r.Get("/{competition}", s.handleGetArtifact)
		r.Get("/{competition}/history", s.handleHistory)
		r.Post("/{competition}/predictions", s.handlePredict)
	})
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe runs the server until ctx is cancelled
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		s.log.WithField("addr", addr).Info("[API] listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdown)
	}
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("[API] request")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// artifactSummary is the listing shape when no index is configured
type artifactSummary struct {
	Competition core.CompetitionID `json:"competition"`
}

func (s *Server) handleListArtifacts(w http.ResponseWriter, r *http.Request) {
	if s.index != nil {
		records, err := s.index.List(r.Context())
		if err != nil {
			s.writeError(w, err)
			return
		}
		if records == nil {
			records = []model.ArtifactRecord{}
		}
		writeJSON(w, http.StatusOK, records)
		return
	}

	ids, err := s.store.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	out := make([]artifactSummary, len(ids))
	for i, id := range ids {
		out[i] = artifactSummary{Competition: id}
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	competition, ok := s.competition(w, r)
	if !ok {
		return
	}
	a, err := s.store.Load(r.Context(), competition)
	if err != nil {
		s.writeError(w, err)
		return
	}
	// Member state is opaque and large; callers get the envelope.
	view := *a
	view.Members = make([]model.MemberState, len(a.Members))
	for i, m := range a.Members {
		m.State = nil
		view.Members[i] = m
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	competition, ok := s.competition(w, r)
	if !ok {
		return
	}
	if s.index == nil {
		s.writeError(w, errors.NotFound("artifact index"))
		return
	}
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			s.writeError(w, errors.InvalidInput("limit must be a positive integer"))
			return
		}
		limit = n
	}
	records, err := s.index.History(r.Context(), competition, limit)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if records == nil {
		records = []model.ArtifactRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	competition, ok := s.competition(w, r)
	if !ok {
		return
	}
	var fx predict.Fixture
	if err := json.NewDecoder(r.Body).Decode(&fx); err != nil {
		s.writeError(w, errors.InvalidInput("body must be {\"home_team\": ..., \"away_team\": ...}"))
		return
	}
	prediction, err := s.predictor.Predict(r.Context(), competition, fx)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, prediction)
}

func (s *Server) competition(w http.ResponseWriter, r *http.Request) (core.CompetitionID, bool) {
	id, err := core.ParseCompetitionID(chi.URLParam(r, "competition"))
	if err != nil {
		s.writeError(w, errors.InvalidInput(err.Error()))
		return "", false
	}
	return id, true
}

// statusFor maps an error code to an HTTP status
func statusFor(err error) int {
	if core.IsNotFoundError(err) {
		return http.StatusNotFound
	}
	switch errors.GetCode(err) {
	case errors.CodeInvalidInput:
		return http.StatusBadRequest
	case errors.CodeNotFound:
		return http.StatusNotFound
	case errors.CodeDataError:
		return http.StatusUnprocessableEntity
	case errors.CodeCancelled:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Error("[API] request failed")
	}
	code := errors.GetCode(err)
	if !errors.IsAppError(err) {
		code = errors.CodeInternalError
	}
	writeJSON(w, status, map[string]string{"error": err.Error(), "code": code})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
