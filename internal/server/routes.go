package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/leapstack-labs/dbtlineage/internal/artifacts"
	"github.com/leapstack-labs/dbtlineage/internal/lineage"
	"github.com/leapstack-labs/dbtlineage/internal/service"
	"github.com/leapstack-labs/dbtlineage/pkg/parser"
)

// maxResolveBody bounds the body of POST /api/resolve.
const maxResolveBody = 1 << 20

func (s *Server) routes() http.Handler {
	r := chi.NewMux()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Timeout(s.opts.Config.RequestTimeout))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.Config.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/models", s.handleModels)
		r.Get("/model/{model}/details", s.handleModelDetails)
		r.Get("/lineage/{model}/{column}", s.handleExplore)
		r.Get("/upstream/{model}/{column}", s.handleUpstream)
		r.Get("/downstream/{model}/{column}", s.handleDownstream)
		r.Get("/impact-analysis/{model}/{column}", s.handleImpact)
		r.Post("/resolve", s.handleResolve)
	})

	return r
}

type healthResponse struct {
	Status   string    `json:"status"`
	Project  string    `json:"project,omitempty"`
	Snapshot string    `json:"snapshot"`
	LoadedAt time.Time `json:"loaded_at"`
	Reloads  int64     `json:"reloads"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	reg := s.snapshot().reg
	id, err := reg.SnapshotID()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:   "ok",
		Project:  reg.Project(),
		Snapshot: id,
		LoadedAt: reg.LoadedAt(),
		Reloads:  s.Reloads(),
	})
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	tree, err := s.Service().ModelTree()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

func (s *Server) handleModelDetails(w http.ResponseWriter, r *http.Request) {
	sel := service.Selector{Model: chi.URLParam(r, "model"), Upstream: true, Downstream: true}
	details, err := s.Service().ModelInfo(sel)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

func (s *Server) handleExplore(w http.ResponseWriter, r *http.Request) {
	g, err := s.Service().Explore(chi.URLParam(r, "model"), chi.URLParam(r, "column"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleUpstream(w http.ResponseWriter, r *http.Request) {
	refs, err := s.Service().Upstream(chi.URLParam(r, "model"), chi.URLParam(r, "column"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

func (s *Server) handleDownstream(w http.ResponseWriter, r *http.Request) {
	refs, err := s.Service().Downstream(chi.URLParam(r, "model"), chi.URLParam(r, "column"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, refs)
}

func (s *Server) handleImpact(w http.ResponseWriter, r *http.Request) {
	impact, err := s.Service().Impact(chi.URLParam(r, "model"), chi.URLParam(r, "column"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, impact)
}

type resolveRequest struct {
	SQL     string `json:"sql"`
	Dialect string `json:"dialect"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxResolveBody)).Decode(&req); err != nil {
		s.writeError(w, r, fmt.Errorf("%w: decode body: %v", errBadRequest, err))
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		s.writeError(w, r, fmt.Errorf("%w: sql is required", errBadRequest))
		return
	}

	var opts []lineage.Option
	if req.Dialect != "" {
		d, ok := parser.DialectByName(artifacts.DialectForAdapter(req.Dialect))
		if !ok {
			s.writeError(w, r, fmt.Errorf("%w: unknown dialect %q", errBadRequest, req.Dialect))
			return
		}
		opts = append(opts, lineage.WithDialect(d))
	}

	res, err := lineage.Resolve(req.SQL, opts...)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
