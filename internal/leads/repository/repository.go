// Package repository persists leads, their qualification answers, queued
// call requests and recorded funnel events in PostgreSQL.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"windowleads_backend/internal/qualification/ports"
	"windowleads_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound      = apperr.NotFound("lead not found")
	ErrInvalidLeadID = apperr.Validation("invalid lead id")
)

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateLead inserts a lead from the contact step and returns its id.
func (r *Repository) CreateLead(ctx context.Context, lead ports.NewLead) (string, error) {
	attribution, err := json.Marshal(nonNilAttribution(lead.Attribution))
	if err != nil {
		return "", fmt.Errorf("encode attribution: %w", err)
	}

	id := uuid.New()
	_, err = r.pool.Exec(ctx, `
		INSERT INTO leads (id, first_name, last_name, email, phone, attribution)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, id, lead.FirstName, lead.LastName, lead.Email, lead.Phone, attribution)
	if err != nil {
		return "", fmt.Errorf("insert lead: %w", err)
	}
	return id.String(), nil
}

// UpdateQualification stores the answers and score on an existing lead.
func (r *Repository) UpdateQualification(ctx context.Context, u ports.QualificationUpdate) error {
	id, err := parseLeadID(u.LeadID)
	if err != nil {
		return err
	}

	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET timeline = $2, has_quote = $3, homeowner = $4, window_scope = $5,
			score = $6, segment = $7, qualified_at = now(), updated_at = now()
		WHERE id = $1
	`, id, string(u.Timeline), string(u.HasQuote), u.Homeowner, string(u.WindowScope), u.Score, string(u.Segment))
	if err != nil {
		return fmt.Errorf("update qualification: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Lead is the stored view of a lead.
type Lead struct {
	ID          uuid.UUID
	FirstName   string
	LastName    string
	Email       string
	Phone       string
	Attribution map[string]string
	Score       *int
	Segment     *string
	QualifiedAt *time.Time
	CreatedAt   time.Time
}

// GetLead loads one lead by id.
func (r *Repository) GetLead(ctx context.Context, leadID string) (Lead, error) {
	id, err := parseLeadID(leadID)
	if err != nil {
		return Lead{}, err
	}

	var (
		lead        Lead
		attribution []byte
	)
	err = r.pool.QueryRow(ctx, `
		SELECT id, first_name, last_name, email, phone, attribution, score, segment, qualified_at, created_at
		FROM leads WHERE id = $1
	`, id).Scan(&lead.ID, &lead.FirstName, &lead.LastName, &lead.Email, &lead.Phone, &attribution,
		&lead.Score, &lead.Segment, &lead.QualifiedAt, &lead.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Lead{}, ErrNotFound
		}
		return Lead{}, fmt.Errorf("get lead: %w", err)
	}
	if len(attribution) > 0 {
		if err := json.Unmarshal(attribution, &lead.Attribution); err != nil {
			return Lead{}, fmt.Errorf("decode attribution: %w", err)
		}
	}
	return lead, nil
}

// CallRequestRecord is a call request accepted by the call worker.
type CallRequestRecord struct {
	ID      uuid.UUID
	LeadID  string
	Phone   string
	Payload map[string]any
}

// InsertCallRequest stores a call request. A lead holds at most one request;
// redelivered tasks are ignored. inserted reports whether a row was written.
func (r *Repository) InsertCallRequest(ctx context.Context, rec CallRequestRecord) (inserted bool, err error) {
	leadID, err := parseLeadID(rec.LeadID)
	if err != nil {
		return false, err
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return false, fmt.Errorf("encode call payload: %w", err)
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO call_requests (id, lead_id, phone, payload)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (lead_id) DO NOTHING
	`, rec.ID, leadID, rec.Phone, payload)
	if err != nil {
		return false, fmt.Errorf("insert call request: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// FunnelEventRecord is one emitted funnel event.
type FunnelEventRecord struct {
	ID         uuid.UUID
	Name       string
	Category   string
	LeadID     string
	Payload    map[string]any
	OccurredAt time.Time
}

// RecordFunnelEvent appends an event. Duplicate ids are ignored.
func (r *Repository) RecordFunnelEvent(ctx context.Context, rec FunnelEventRecord) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("encode event payload: %w", err)
	}

	var leadID *string
	if rec.LeadID != "" {
		leadID = &rec.LeadID
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO funnel_events (id, name, category, lead_id, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.Name, rec.Category, leadID, payload, rec.OccurredAt)
	if err != nil {
		return fmt.Errorf("insert funnel event: %w", err)
	}
	return nil
}

func parseLeadID(raw string) (uuid.UUID, error) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w %q", ErrInvalidLeadID, raw)
	}
	return id, nil
}

func nonNilAttribution(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
