// Package server exposes the HTTP surface: endpoint execution and prompt
// preview under /v1, and tenant administration under /admin.
package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/johnqh/shapeshyft-api/internal/auth"
	"github.com/johnqh/shapeshyft-api/internal/logger"
	"github.com/johnqh/shapeshyft-api/internal/service"
	"github.com/johnqh/shapeshyft-api/internal/store"
)

// Server wires handlers onto a mux.
type Server struct {
	svc       *service.Service
	store     store.Store
	verifier  auth.Verifier
	masterKey []byte
	validate  *validator.Validate
}

// New creates the server. masterKey encrypts credentials submitted through
// the admin API.
func New(svc *service.Service, st store.Store, verifier auth.Verifier, masterKey []byte) *Server {
	return &Server{
		svc:       svc,
		store:     st,
		verifier:  verifier,
		masterKey: masterKey,
		validate:  validator.New(),
	}
}

// Handler returns the routed HTTP handler with auth applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/{project}/{endpoint}/prompt", s.handlePreview)
	mux.HandleFunc("/v1/{project}/{endpoint}", s.handleExecute)

	mux.HandleFunc("POST /admin/projects", s.handleCreateProject)
	mux.HandleFunc("GET /admin/projects", s.handleListProjects)
	mux.HandleFunc("DELETE /admin/projects/{project}", s.handleDeleteProject)
	mux.HandleFunc("POST /admin/projects/{project}/endpoints", s.handleCreateEndpoint)
	mux.HandleFunc("GET /admin/projects/{project}/endpoints", s.handleListEndpoints)
	mux.HandleFunc("PUT /admin/projects/{project}/endpoints/{endpoint}", s.handleUpdateEndpoint)
	mux.HandleFunc("DELETE /admin/projects/{project}/endpoints/{endpoint}", s.handleDeleteEndpoint)
	mux.HandleFunc("PUT /admin/projects/{project}/credentials/{provider}", s.handlePutCredential)
	mux.HandleFunc("DELETE /admin/projects/{project}/credentials/{provider}", s.handleDeleteCredential)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	return s.withAuth(mux)
}

// subjectKey carries the authenticated subject through the request context.
type subjectKey struct{}

// withAuth verifies the bearer token on everything except /healthz.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		token, ok := bearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		subject, err := s.verifier.Verify(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "invalid bearer token")
			return
		}

		ctx := contextWithSubject(r.Context(), subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleExecute runs an endpoint. Any verb reaches here; the orchestrator
// checks it against the endpoint's declared verb.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	input, err := extractInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := s.svc.Execute(r.Context(), service.ExecuteRequest{
		Subject:      subjectFrom(r.Context()),
		ProjectSlug:  r.PathValue("project"),
		EndpointSlug: r.PathValue("endpoint"),
		Verb:         r.Method,
		Input:        input,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if result.Payload != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"api_payload":   result.Payload,
			"provider":      result.Provider,
			"endpoint_hint": result.EndpointHint,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"output": result.Output,
		"usage":  result.Usage,
	})
}

// handlePreview returns the prompt an execution would send, without calling
// any provider.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	input, err := extractInput(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	built, err := s.svc.PreviewPrompt(r.Context(), service.ExecuteRequest{
		Subject:      subjectFrom(r.Context()),
		ProjectSlug:  r.PathValue("project"),
		EndpointSlug: r.PathValue("endpoint"),
		Verb:         r.Method,
		Input:        input,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"prompt": built})
}

// extractInput reads query parameters for read verbs and the JSON body
// otherwise. An empty body decodes to nil.
func extractInput(r *http.Request) (any, error) {
	switch r.Method {
	case http.MethodGet, http.MethodHead, http.MethodDelete:
		query := r.URL.Query()
		if len(query) == 0 {
			return nil, nil
		}
		input := make(map[string]any, len(query))
		for key, values := range query {
			input[key] = values[0]
		}
		return input, nil
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, errors.New("failed to read request body")
	}
	if len(body) == 0 {
		return nil, nil
	}
	var input any
	if err := json.Unmarshal(body, &input); err != nil {
		return nil, errors.New("request body is not valid JSON")
	}
	return input, nil
}

// writeServiceError maps the orchestrator's error taxonomy onto statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrConfiguration):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, service.ErrProvider):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
