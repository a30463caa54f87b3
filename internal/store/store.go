// Package store defines the persisted domain model and its repositories:
// projects, their endpoints and provider credentials, and the analytics
// events executions leave behind.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/johnqh/shapeshyft-api/pkg/llm"
	"github.com/johnqh/shapeshyft-api/pkg/schema"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// EndpointKind classifies what an endpoint execution does. The set is
// closed at the enum; the API rejects anything else at create time.
type EndpointKind string

const (
	KindStructured        EndpointKind = "structured"
	KindText              EndpointKind = "text"
	KindStructuredPayload EndpointKind = "structured_payload"
	KindTextPayload       EndpointKind = "text_payload"
)

// Valid reports whether k is in the closed kind set.
func (k EndpointKind) Valid() bool {
	switch k {
	case KindStructured, KindText, KindStructuredPayload, KindTextPayload:
		return true
	}
	return false
}

// PayloadOnly reports whether executions of this kind stop at payload
// construction instead of calling the provider.
func (k EndpointKind) PayloadOnly() bool {
	return k == KindStructuredPayload || k == KindTextPayload
}

// RequiresText reports whether executions of this kind require a string
// "text" field in the input.
func (k EndpointKind) RequiresText() bool {
	return k == KindText || k == KindTextPayload
}

// Project is a tenant namespace. Projects are keyed by the owning auth
// subject plus a slug, so two users can hold the same slug independently.
type Project struct {
	ID           uuid.UUID
	OwnerSubject string
	Slug         string
	Name         string
	CreatedAt    time.Time
}

// Endpoint is one named transformation inside a project.
type Endpoint struct {
	ID           uuid.UUID
	ProjectID    uuid.UUID
	Slug         string
	Kind         EndpointKind
	Verb         string // HTTP method executions must use
	Provider     llm.ProviderID
	Model        string
	OutputSchema *schema.JSONSchema // nil for text kinds
	Instructions string
	Context      string
	Temperature  float64
	MaxTokens    int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Credential is an encrypted provider API key scoped to a project. The
// plaintext key exists only transiently during an execution.
type Credential struct {
	ID          uuid.UUID
	ProjectID   uuid.UUID
	Provider    llm.ProviderID
	Ciphertext  string // hex, AES-256-GCM
	Nonce       string // hex
	EndpointURL string // llm_server only
	Active      bool
	CreatedAt   time.Time
}

// AnalyticsEvent records one LLM attempt, successful or not.
type AnalyticsEvent struct {
	ID                 uuid.UUID
	EndpointID         uuid.UUID
	Provider           llm.ProviderID
	Model              string
	Success            bool
	ErrorMessage       string
	TokensInput        int
	TokensOutput       int
	LatencyMs          int64
	EstimatedCostCents int64
	CreatedAt          time.Time
}

// ProjectStore persists tenant namespaces.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *Project) error
	GetProject(ctx context.Context, ownerSubject, slug string) (*Project, error)
	ListProjects(ctx context.Context, ownerSubject string) ([]*Project, error)
	DeleteProject(ctx context.Context, id uuid.UUID) error
}

// EndpointStore persists endpoint definitions.
type EndpointStore interface {
	CreateEndpoint(ctx context.Context, e *Endpoint) error
	UpdateEndpoint(ctx context.Context, e *Endpoint) error
	GetEndpoint(ctx context.Context, projectID uuid.UUID, slug string) (*Endpoint, error)
	ListEndpoints(ctx context.Context, projectID uuid.UUID) ([]*Endpoint, error)
	DeleteEndpoint(ctx context.Context, id uuid.UUID) error
}

// CredentialStore persists encrypted provider credentials, one per
// (project, provider) pair.
type CredentialStore interface {
	UpsertCredential(ctx context.Context, c *Credential) error
	GetCredential(ctx context.Context, projectID uuid.UUID, provider llm.ProviderID) (*Credential, error)
	DeleteCredential(ctx context.Context, projectID uuid.UUID, provider llm.ProviderID) error
}

// AnalyticsStore persists execution events.
type AnalyticsStore interface {
	CreateEvent(ctx context.Context, e *AnalyticsEvent) error
	ListEvents(ctx context.Context, endpointID uuid.UUID, limit int) ([]*AnalyticsEvent, error)
}

// Store is the full persistence surface the service consumes.
type Store interface {
	ProjectStore
	EndpointStore
	CredentialStore
	AnalyticsStore
}
