package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/johnqh/shapeshyft-api/pkg/llm"
	"github.com/johnqh/shapeshyft-api/pkg/schema"
)

// Postgres implements Store on a pgx connection pool.
type Postgres struct {
	db *pgxpool.Pool
}

// NewPostgres connects a pool to databaseURL and pings it.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &Postgres{db: pool}, nil
}

// Close releases the pool.
func (s *Postgres) Close() {
	s.db.Close()
}

func (s *Postgres) CreateProject(ctx context.Context, p *Project) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO projects (id, owner_subject, slug, name, created_at) VALUES ($1, $2, $3, $4, $5)`
	_, err := s.db.Exec(ctx, query, p.ID, p.OwnerSubject, p.Slug, p.Name, p.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

func (s *Postgres) GetProject(ctx context.Context, ownerSubject, slug string) (*Project, error) {
	query := `SELECT id, owner_subject, slug, name, created_at FROM projects WHERE owner_subject = $1 AND slug = $2`
	var p Project
	err := s.db.QueryRow(ctx, query, ownerSubject, slug).
		Scan(&p.ID, &p.OwnerSubject, &p.Slug, &p.Name, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	return &p, nil
}

func (s *Postgres) ListProjects(ctx context.Context, ownerSubject string) ([]*Project, error) {
	query := `SELECT id, owner_subject, slug, name, created_at FROM projects WHERE owner_subject = $1 ORDER BY created_at`
	rows, err := s.db.Query(ctx, query, ownerSubject)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []*Project
	for rows.Next() {
		var p Project
		if err := rows.Scan(&p.ID, &p.OwnerSubject, &p.Slug, &p.Name, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, &p)
	}
	return projects, rows.Err()
}

func (s *Postgres) DeleteProject(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete project: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) CreateEndpoint(ctx context.Context, e *Endpoint) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	now := time.Now().UTC()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	e.UpdatedAt = now

	schemaJSON, err := marshalSchema(e.OutputSchema)
	if err != nil {
		return err
	}

	query := `INSERT INTO endpoints
		(id, project_id, slug, kind, verb, provider, model, output_schema, instructions, context, temperature, max_tokens, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`
	_, err = s.db.Exec(ctx, query,
		e.ID, e.ProjectID, e.Slug, e.Kind, e.Verb, e.Provider, e.Model,
		schemaJSON, e.Instructions, e.Context, e.Temperature, e.MaxTokens,
		e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create endpoint: %w", err)
	}
	return nil
}

func (s *Postgres) UpdateEndpoint(ctx context.Context, e *Endpoint) error {
	e.UpdatedAt = time.Now().UTC()

	schemaJSON, err := marshalSchema(e.OutputSchema)
	if err != nil {
		return err
	}

	query := `UPDATE endpoints SET
		kind = $1, verb = $2, provider = $3, model = $4, output_schema = $5,
		instructions = $6, context = $7, temperature = $8, max_tokens = $9, updated_at = $10
		WHERE id = $11`
	tag, err := s.db.Exec(ctx, query,
		e.Kind, e.Verb, e.Provider, e.Model, schemaJSON,
		e.Instructions, e.Context, e.Temperature, e.MaxTokens, e.UpdatedAt, e.ID)
	if err != nil {
		return fmt.Errorf("failed to update endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const endpointColumns = `id, project_id, slug, kind, verb, provider, model, output_schema, instructions, context, temperature, max_tokens, created_at, updated_at`

func scanEndpoint(row pgx.Row) (*Endpoint, error) {
	var e Endpoint
	var schemaJSON []byte
	err := row.Scan(&e.ID, &e.ProjectID, &e.Slug, &e.Kind, &e.Verb, &e.Provider, &e.Model,
		&schemaJSON, &e.Instructions, &e.Context, &e.Temperature, &e.MaxTokens,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if len(schemaJSON) > 0 {
		var parsed schema.JSONSchema
		if err := json.Unmarshal(schemaJSON, &parsed); err != nil {
			return nil, fmt.Errorf("failed to parse stored schema: %w", err)
		}
		e.OutputSchema = &parsed
	}
	return &e, nil
}

func (s *Postgres) GetEndpoint(ctx context.Context, projectID uuid.UUID, slug string) (*Endpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM endpoints WHERE project_id = $1 AND slug = $2`
	e, err := scanEndpoint(s.db.QueryRow(ctx, query, projectID, slug))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get endpoint: %w", err)
	}
	return e, nil
}

func (s *Postgres) ListEndpoints(ctx context.Context, projectID uuid.UUID) ([]*Endpoint, error) {
	query := `SELECT ` + endpointColumns + ` FROM endpoints WHERE project_id = $1 ORDER BY slug`
	rows, err := s.db.Query(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list endpoints: %w", err)
	}
	defer rows.Close()

	var endpoints []*Endpoint
	for rows.Next() {
		e, err := scanEndpoint(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan endpoint: %w", err)
		}
		endpoints = append(endpoints, e)
	}
	return endpoints, rows.Err()
}

func (s *Postgres) DeleteEndpoint(ctx context.Context, id uuid.UUID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM endpoints WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete endpoint: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) UpsertCredential(ctx context.Context, c *Credential) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO credentials (id, project_id, provider, ciphertext, nonce, endpoint_url, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (project_id, provider)
		DO UPDATE SET ciphertext = EXCLUDED.ciphertext, nonce = EXCLUDED.nonce, endpoint_url = EXCLUDED.endpoint_url, active = EXCLUDED.active`
	_, err := s.db.Exec(ctx, query, c.ID, c.ProjectID, c.Provider, c.Ciphertext, c.Nonce, c.EndpointURL, c.Active, c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert credential: %w", err)
	}
	return nil
}

func (s *Postgres) GetCredential(ctx context.Context, projectID uuid.UUID, provider llm.ProviderID) (*Credential, error) {
	query := `SELECT id, project_id, provider, ciphertext, nonce, endpoint_url, active, created_at
		FROM credentials WHERE project_id = $1 AND provider = $2`
	var c Credential
	err := s.db.QueryRow(ctx, query, projectID, provider).
		Scan(&c.ID, &c.ProjectID, &c.Provider, &c.Ciphertext, &c.Nonce, &c.EndpointURL, &c.Active, &c.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &c, nil
}

func (s *Postgres) DeleteCredential(ctx context.Context, projectID uuid.UUID, provider llm.ProviderID) error {
	tag, err := s.db.Exec(ctx, `DELETE FROM credentials WHERE project_id = $1 AND provider = $2`, projectID, provider)
	if err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Postgres) CreateEvent(ctx context.Context, e *AnalyticsEvent) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	query := `INSERT INTO analytics_events
		(id, endpoint_id, provider, model, success, error_message, tokens_input, tokens_output, latency_ms, estimated_cost_cents, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	_, err := s.db.Exec(ctx, query,
		e.ID, e.EndpointID, e.Provider, e.Model, e.Success, e.ErrorMessage,
		e.TokensInput, e.TokensOutput, e.LatencyMs, e.EstimatedCostCents, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create analytics event: %w", err)
	}
	return nil
}

func (s *Postgres) ListEvents(ctx context.Context, endpointID uuid.UUID, limit int) ([]*AnalyticsEvent, error) {
	query := `SELECT id, endpoint_id, provider, model, success, error_message, tokens_input, tokens_output, latency_ms, estimated_cost_cents, created_at
		FROM analytics_events WHERE endpoint_id = $1 ORDER BY created_at DESC LIMIT $2`
	rows, err := s.db.Query(ctx, query, endpointID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list analytics events: %w", err)
	}
	defer rows.Close()

	var events []*AnalyticsEvent
	for rows.Next() {
		var e AnalyticsEvent
		if err := rows.Scan(&e.ID, &e.EndpointID, &e.Provider, &e.Model, &e.Success, &e.ErrorMessage,
			&e.TokensInput, &e.TokensOutput, &e.LatencyMs, &e.EstimatedCostCents, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan analytics event: %w", err)
		}
		events = append(events, &e)
	}
	return events, rows.Err()
}

func marshalSchema(s *schema.JSONSchema) ([]byte, error) {
	if s == nil {
		return nil, nil
	}
	b, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize schema: %w", err)
	}
	return b, nil
}

var _ Store = (*Postgres)(nil)
