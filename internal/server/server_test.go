package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/johnqh/shapeshyft-api/internal/analytics"
	"github.com/johnqh/shapeshyft-api/internal/auth"
	"github.com/johnqh/shapeshyft-api/internal/service"
	"github.com/johnqh/shapeshyft-api/internal/store"
	"github.com/johnqh/shapeshyft-api/pkg/llm"
)

// memStore is an in-memory Store for handler tests.
type memStore struct {
	mu          sync.Mutex
	projects    []*store.Project
	endpoints   []*store.Endpoint
	credentials []*store.Credential
	events      []*store.AnalyticsEvent
}

func (m *memStore) CreateProject(_ context.Context, p *store.Project) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	m.projects = append(m.projects, p)
	return nil
}

func (m *memStore) GetProject(_ context.Context, ownerSubject, slug string) (*store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.projects {
		if p.OwnerSubject == ownerSubject && p.Slug == slug {
			return p, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListProjects(_ context.Context, ownerSubject string) ([]*store.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Project
	for _, p := range m.projects {
		if p.OwnerSubject == ownerSubject {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memStore) DeleteProject(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, p := range m.projects {
		if p.ID == id {
			m.projects = append(m.projects[:i], m.projects[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) CreateEndpoint(_ context.Context, e *store.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.endpoints = append(m.endpoints, e)
	return nil
}

func (m *memStore) UpdateEndpoint(_ context.Context, e *store.Endpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, old := range m.endpoints {
		if old.ID == e.ID {
			m.endpoints[i] = e
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) GetEndpoint(_ context.Context, projectID uuid.UUID, slug string) (*store.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.endpoints {
		if e.ProjectID == projectID && e.Slug == slug {
			return e, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) ListEndpoints(_ context.Context, projectID uuid.UUID) ([]*store.Endpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*store.Endpoint
	for _, e := range m.endpoints {
		if e.ProjectID == projectID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (m *memStore) DeleteEndpoint(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, e := range m.endpoints {
		if e.ID == id {
			m.endpoints = append(m.endpoints[:i], m.endpoints[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) UpsertCredential(_ context.Context, c *store.Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, old := range m.credentials {
		if old.ProjectID == c.ProjectID && old.Provider == c.Provider {
			m.credentials[i] = c
			return nil
		}
	}
	m.credentials = append(m.credentials, c)
	return nil
}

func (m *memStore) GetCredential(_ context.Context, projectID uuid.UUID, provider llm.ProviderID) (*store.Credential, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.credentials {
		if c.ProjectID == projectID && c.Provider == provider {
			return c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (m *memStore) DeleteCredential(_ context.Context, projectID uuid.UUID, provider llm.ProviderID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, c := range m.credentials {
		if c.ProjectID == projectID && c.Provider == provider {
			m.credentials = append(m.credentials[:i], m.credentials[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (m *memStore) CreateEvent(_ context.Context, e *store.AnalyticsEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, e)
	return nil
}

func (m *memStore) ListEvents(context.Context, uuid.UUID, int) ([]*store.AnalyticsEvent, error) {
	return nil, nil
}

var _ store.Store = (*memStore)(nil)

type testEnv struct {
	store   *memStore
	handler http.Handler
	token   string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ms := &memStore{}
	verifier, err := auth.NewHMACVerifier([]byte("test-secret"))
	require.NoError(t, err)

	key := bytes.Repeat([]byte{0x01}, 32)
	svc := service.New(ms, analytics.NewRecorder(ms), key)
	srv := New(svc, ms, verifier, key)

	return &testEnv{
		store:   ms,
		handler: srv.Handler(),
		token:   verifier.Sign("user-1"),
	}
}

func (env *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+env.token)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestAuthRequired(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/admin/projects", nil)
	rec := httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/admin/projects", nil)
	req.Header.Set("Authorization", "Bearer bogus.token")
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// Health stays open.
	req = httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec = httptest.NewRecorder()
	env.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProjectCRUD(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/admin/projects", map[string]any{"slug": "demo", "name": "Demo"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodGet, "/admin/projects", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	projects := decodeBody(t, rec)["projects"].([]any)
	assert.Len(t, projects, 1)

	rec = env.do(t, http.MethodDelete, "/admin/projects/demo", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodDelete, "/admin/projects/demo", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCreateProjectValidation(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/admin/projects", map[string]any{"name": "no slug"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func setupEndpoint(t *testing.T, env *testEnv, kind, provider string) {
	t.Helper()
	rec := env.do(t, http.MethodPost, "/admin/projects", map[string]any{"slug": "demo"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/admin/projects/demo/endpoints", map[string]any{
		"slug":     "classify",
		"kind":     kind,
		"verb":     "POST",
		"provider": provider,
		"output_schema": map[string]any{
			"type": "object",
			"properties": map[string]any{
				"label": map[string]any{"type": "string"},
			},
			"required": []string{"label"},
		},
		"instructions": "Classify the input.",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestEndpointValidation(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/admin/projects", map[string]any{"slug": "demo"})
	require.Equal(t, http.StatusCreated, rec.Code)

	tests := []struct {
		name string
		body map[string]any
	}{
		{"bad kind", map[string]any{"slug": "e", "kind": "batch", "verb": "POST", "provider": "openai"}},
		{"bad provider", map[string]any{"slug": "e", "kind": "structured", "verb": "POST", "provider": "mystery"}},
		{"bad verb", map[string]any{"slug": "e", "kind": "structured", "verb": "FETCH", "provider": "openai"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := env.do(t, http.MethodPost, "/admin/projects/demo/endpoints", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestExecutePayloadOnly(t *testing.T) {
	env := newTestEnv(t)
	setupEndpoint(t, env, "structured_payload", "openai")

	rec := env.do(t, http.MethodPut, "/admin/projects/demo/credentials/openai", map[string]any{"api_key": "sk-test"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/v1/demo/classify", map[string]any{"text": "hello"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, "openai", body["provider"])
	assert.NotEmpty(t, body["endpoint_hint"])

	payload := body["api_payload"].(map[string]any)
	assert.NotNil(t, payload["tools"])
	assert.Empty(t, env.store.events, "payload-only emits no analytics")
}

func TestExecuteAgainstLLMServer(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"tool_calls":[{"function":{"name":"structured_response","arguments":"{\"label\":\"positive\"}"}}]}}],"usage":{"prompt_tokens":9,"completion_tokens":3}}`))
	}))
	defer upstream.Close()

	env := newTestEnv(t)
	setupEndpoint(t, env, "structured", "llm_server")

	rec := env.do(t, http.MethodPut, "/admin/projects/demo/credentials/llm_server", map[string]any{"endpoint_url": upstream.URL})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = env.do(t, http.MethodPost, "/v1/demo/classify", map[string]any{"text": "great"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	assert.Equal(t, map[string]any{"label": "positive"}, body["output"])
	usage := body["usage"].(map[string]any)
	assert.Equal(t, 9.0, usage["tokens_input"])
	assert.Equal(t, 3.0, usage["tokens_output"])

	require.Len(t, env.store.events, 1)
	assert.True(t, env.store.events[0].Success)
}

func TestExecuteErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	setupEndpoint(t, env, "structured", "openai")

	// No credential configured.
	rec := env.do(t, http.MethodPost, "/v1/demo/classify", map[string]any{"a": 1})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	// Unknown endpoint.
	rec = env.do(t, http.MethodPost, "/v1/demo/missing", map[string]any{"a": 1})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Verb mismatch.
	rec = env.do(t, http.MethodGet, "/v1/demo/classify", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Malformed body.
	req := httptest.NewRequest(http.MethodPost, "/v1/demo/classify", bytes.NewReader([]byte("{not json")))
	req.Header.Set("Authorization", "Bearer "+env.token)
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPreviewPromptEndpoint(t *testing.T) {
	env := newTestEnv(t)
	setupEndpoint(t, env, "structured", "openai")

	rec := env.do(t, http.MethodPost, "/v1/demo/classify/prompt", map[string]any{"text": "sample"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody(t, rec)
	built := body["prompt"].(string)
	assert.Contains(t, built, "Required Output Fields")
	assert.Contains(t, built, "sample")
	assert.Empty(t, env.store.events)
}

func TestCredentialRules(t *testing.T) {
	env := newTestEnv(t)
	rec := env.do(t, http.MethodPost, "/admin/projects", map[string]any{"slug": "demo"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodPut, "/admin/projects/demo/credentials/openai", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "hosted providers need an api_key")

	rec = env.do(t, http.MethodPut, "/admin/projects/demo/credentials/llm_server", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, rec.Code, "llm_server needs an endpoint_url")

	rec = env.do(t, http.MethodPut, "/admin/projects/demo/credentials/mystery", map[string]any{"api_key": "k"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPut, "/admin/projects/demo/credentials/openai", map[string]any{"api_key": "sk-test"})
	require.Equal(t, http.StatusOK, rec.Code)

	// Stored encrypted, never echoed.
	cred := env.store.credentials[0]
	assert.NotEmpty(t, cred.Ciphertext)
	assert.NotContains(t, cred.Ciphertext, "sk-test")
	assert.NotContains(t, rec.Body.String(), "sk-test")
}
