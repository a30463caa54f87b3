package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/johnqh/shapeshyft-api/internal/crypto"
	"github.com/johnqh/shapeshyft-api/internal/store"
	"github.com/johnqh/shapeshyft-api/pkg/llm"
	"github.com/johnqh/shapeshyft-api/pkg/schema"
)

type createProjectRequest struct {
	Slug string `json:"slug" validate:"required,max=64"`
	Name string `json:"name" validate:"max=256"`
}

type endpointRequest struct {
	Slug         string          `json:"slug" validate:"required,max=64"`
	Kind         string          `json:"kind" validate:"required"`
	Verb         string          `json:"verb" validate:"required,oneof=GET POST PUT PATCH DELETE"`
	Provider     string          `json:"provider" validate:"required"`
	Model        string          `json:"model"`
	OutputSchema json.RawMessage `json:"output_schema"`
	Instructions string          `json:"instructions"`
	Context      string          `json:"context"`
	Temperature  float64         `json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens    int             `json:"max_tokens" validate:"gte=0"`
}

type credentialRequest struct {
	APIKey      string `json:"api_key"`
	EndpointURL string `json:"endpoint_url"`
	Active      *bool  `json:"active"`
}

// decodeValid decodes the body into dst and runs struct validation.
func (s *Server) decodeValid(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New("request body is not valid JSON")
	}
	return s.validate.Struct(dst)
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req createProjectRequest
	if err := s.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	project := &store.Project{
		OwnerSubject: subjectFrom(r.Context()),
		Slug:         req.Slug,
		Name:         req.Name,
	}
	if err := s.store.CreateProject(r.Context(), project); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, projectResponse(project))
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.store.ListProjects(r.Context(), subjectFrom(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(projects))
	for _, p := range projects {
		out = append(out, projectResponse(p))
	}
	writeJSON(w, http.StatusOK, map[string]any{"projects": out})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	project, err := s.ownProject(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := s.store.DeleteProject(r.Context(), project.ID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleCreateEndpoint(w http.ResponseWriter, r *http.Request) {
	project, err := s.ownProject(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req endpointRequest
	if err := s.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	endpoint, err := endpointFromRequest(project, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.store.CreateEndpoint(r.Context(), endpoint); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, endpointResponse(endpoint))
}

func (s *Server) handleListEndpoints(w http.ResponseWriter, r *http.Request) {
	project, err := s.ownProject(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	endpoints, err := s.store.ListEndpoints(r.Context(), project.ID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	out := make([]map[string]any, 0, len(endpoints))
	for _, e := range endpoints {
		out = append(out, endpointResponse(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"endpoints": out})
}

func (s *Server) handleUpdateEndpoint(w http.ResponseWriter, r *http.Request) {
	project, err := s.ownProject(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	existing, err := s.store.GetEndpoint(r.Context(), project.ID, r.PathValue("endpoint"))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	var req endpointRequest
	req.Slug = existing.Slug // slug is not updatable
	if err := s.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	updated, err := endpointFromRequest(project, &req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	updated.ID = existing.ID
	updated.Slug = existing.Slug
	updated.CreatedAt = existing.CreatedAt

	if err := s.store.UpdateEndpoint(r.Context(), updated); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, endpointResponse(updated))
}

func (s *Server) handleDeleteEndpoint(w http.ResponseWriter, r *http.Request) {
	project, err := s.ownProject(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	endpoint, err := s.store.GetEndpoint(r.Context(), project.ID, r.PathValue("endpoint"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if err := s.store.DeleteEndpoint(r.Context(), endpoint.ID); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePutCredential(w http.ResponseWriter, r *http.Request) {
	project, err := s.ownProject(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	provider := llm.ProviderID(r.PathValue("provider"))
	if !llm.IsValid(provider) {
		writeError(w, http.StatusBadRequest, "unknown provider: "+string(provider))
		return
	}

	var req credentialRequest
	if err := s.decodeValid(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if provider == llm.ProviderLLMServer && req.EndpointURL == "" {
		writeError(w, http.StatusBadRequest, "endpoint_url is required for llm_server")
		return
	}
	if provider != llm.ProviderLLMServer && req.APIKey == "" {
		writeError(w, http.StatusBadRequest, "api_key is required")
		return
	}

	cred := &store.Credential{
		ProjectID:   project.ID,
		Provider:    provider,
		EndpointURL: req.EndpointURL,
		Active:      true,
	}
	if req.Active != nil {
		cred.Active = *req.Active
	}
	if req.APIKey != "" {
		ciphertext, nonce, err := crypto.Encrypt(s.masterKey, req.APIKey)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		cred.Ciphertext = ciphertext
		cred.Nonce = nonce
	}

	if err := s.store.UpsertCredential(r.Context(), cred); err != nil {
		writeServiceError(w, err)
		return
	}
	// The key is never echoed back.
	writeJSON(w, http.StatusOK, map[string]any{
		"provider": cred.Provider,
		"active":   cred.Active,
	})
}

func (s *Server) handleDeleteCredential(w http.ResponseWriter, r *http.Request) {
	project, err := s.ownProject(r)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	provider := llm.ProviderID(r.PathValue("provider"))
	if err := s.store.DeleteCredential(r.Context(), project.ID, provider); err != nil {
		writeServiceError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ownProject resolves the {project} path segment under the authenticated
// subject, so no admin operation can reach another tenant's rows.
func (s *Server) ownProject(r *http.Request) (*store.Project, error) {
	return s.store.GetProject(r.Context(), subjectFrom(r.Context()), r.PathValue("project"))
}

func endpointFromRequest(project *store.Project, req *endpointRequest) (*store.Endpoint, error) {
	kind := store.EndpointKind(req.Kind)
	if !kind.Valid() {
		return nil, errors.New("unknown endpoint kind: " + req.Kind)
	}
	provider := llm.ProviderID(req.Provider)
	if !llm.IsValid(provider) {
		return nil, errors.New("unknown provider: " + req.Provider)
	}

	var outputSchema *schema.JSONSchema
	if len(req.OutputSchema) > 0 {
		parsed, err := schema.FromJSON(req.OutputSchema)
		if err != nil {
			return nil, err
		}
		outputSchema = parsed
	}

	return &store.Endpoint{
		ProjectID:    project.ID,
		Slug:         req.Slug,
		Kind:         kind,
		Verb:         req.Verb,
		Provider:     provider,
		Model:        req.Model,
		OutputSchema: outputSchema,
		Instructions: req.Instructions,
		Context:      req.Context,
		Temperature:  req.Temperature,
		MaxTokens:    req.MaxTokens,
	}, nil
}

func projectResponse(p *store.Project) map[string]any {
	return map[string]any{
		"id":         p.ID,
		"slug":       p.Slug,
		"name":       p.Name,
		"created_at": p.CreatedAt,
	}
}

func endpointResponse(e *store.Endpoint) map[string]any {
	return map[string]any{
		"id":            e.ID,
		"slug":          e.Slug,
		"kind":          e.Kind,
		"verb":          e.Verb,
		"provider":      e.Provider,
		"model":         e.Model,
		"output_schema": e.OutputSchema,
		"instructions":  e.Instructions,
		"context":       e.Context,
		"temperature":   e.Temperature,
		"max_tokens":    e.MaxTokens,
		"updated_at":    e.UpdatedAt,
	}
}
