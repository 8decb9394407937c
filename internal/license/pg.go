package license

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// PgDB is the slice of pgxpool.Pool the store needs; pgxmock satisfies it.
type PgDB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PgStore serves license refs and reciprocity agreements from Postgres.
type PgStore struct {
	db PgDB
}

func NewPgStore(db PgDB) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) LicenseRefs(ctx context.Context, providerID uuid.UUID) ([]Ref, error) {
	rows, err := s.db.Query(ctx, `
		SELECT provider_id, license_number, license_state
		FROM provider_licenses
		WHERE provider_id = $1
	`, providerID)
	if err != nil {
		return nil, fmt.Errorf("query provider licenses: %w", err)
	}
	defer rows.Close()

	var refs []Ref
	for rows.Next() {
		var ref Ref
		if err := rows.Scan(&ref.ProviderID, &ref.Number, &ref.State); err != nil {
			return nil, fmt.Errorf("scan license ref: %w", err)
		}
		refs = append(refs, ref)
	}

	return refs, rows.Err()
}

func (s *PgStore) FindAgreement(ctx context.Context, fromState, toState string) (*Agreement, error) {
	row := s.db.QueryRow(ctx, `
		SELECT id, from_state, to_state, effective_from, expires_at
		FROM reciprocity_agreements
		WHERE from_state = $1 AND to_state = $2
	`, fromState, toState)

	var a Agreement
	err := row.Scan(&a.ID, &a.FromState, &a.ToState, &a.EffectiveFrom, &a.ExpiresAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan reciprocity agreement: %w", err)
	}

	return &a, nil
}
