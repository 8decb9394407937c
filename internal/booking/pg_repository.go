package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the slice of pgxpool.Pool the repository needs; pgxmock satisfies
// it in tests.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type PgRepository struct {
	db DB
}

func NewPgRepository(db DB) *PgRepository {
	return &PgRepository{db: db}
}

// Helpers

func scanProvider(row pgx.Row) (*Provider, error) {
	var p Provider
	var hoursJSON []byte

	err := row.Scan(
		&p.ID,
		&p.Name,
		&p.StateCode,
		&hoursJSON,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProviderNotFound
		}
		return nil, err
	}

	if len(hoursJSON) > 0 {
		if err := json.Unmarshal(hoursJSON, &p.Hours); err != nil {
			return nil, fmt.Errorf("decode working hours: %w", err)
		}
	}
	return &p, nil
}

func scanClient(row pgx.Row) (*Client, error) {
	var c Client
	var email *string

	err := row.Scan(
		&c.ID,
		&c.Name,
		&email,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrClientNotFound
		}
		return nil, err
	}

	c.Email = email
	return &c, nil
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var orgID, slotID *uuid.UUID

	err := row.Scan(
		&a.ID,
		&a.ProviderID,
		&a.ClientID,
		&orgID,
		&a.ServiceType,
		&a.Start,
		&a.End,
		&a.Status,
		&slotID,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, err
	}

	a.OrganizationID = orgID
	a.CapacitySlotID = slotID
	return &a, nil
}

func scanCapacitySlot(row pgx.Row) (*CapacitySlot, error) {
	var s CapacitySlot

	err := row.Scan(
		&s.ID,
		&s.ProviderID,
		&s.Start,
		&s.End,
		&s.MaxOccupancy,
		&s.BookedCount,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSlotNotFound
		}
		return nil, err
	}

	return &s, nil
}

const appointmentColumns = `id, provider_id, client_id, organization_id, service_type,
	start_time, end_time, status, capacity_slot_id, created_at, updated_at`

// Interface methods

func (r *PgRepository) GetProviderByID(ctx context.Context, id uuid.UUID) (*Provider, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, state_code, working_hours, created_at, updated_at
		FROM providers
		WHERE id = $1
	`, id)
	return scanProvider(row)
}

func (r *PgRepository) GetClientByID(ctx context.Context, id uuid.UUID) (*Client, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, name, email, created_at, updated_at
		FROM clients
		WHERE id = $1
	`, id)
	return scanClient(row)
}

func (r *PgRepository) ListBlockedTimes(ctx context.Context, providerID uuid.UUID) ([]BlockedTime, error) {
	rows, err := r.db.Query(ctx, `
		SELECT id, provider_id, start_time, end_time, reason, recurring, created_at
		FROM blocked_times
		WHERE provider_id = $1
	`, providerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []BlockedTime
	for rows.Next() {
		var b BlockedTime
		if err := rows.Scan(&b.ID, &b.ProviderID, &b.Start, &b.End, &b.Reason, &b.Recurring, &b.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, b)
	}

	return result, rows.Err()
}

func (r *PgRepository) ListActiveAppointmentsByProvider(ctx context.Context, providerID uuid.UUID, iv Interval) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND status <> 'cancelled'
		  AND start_time < $3
		  AND end_time > $2
	`, providerID, iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func (r *PgRepository) ListActiveAppointmentsByClient(ctx context.Context, clientID uuid.UUID, iv Interval) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE client_id = $1
		  AND status <> 'cancelled'
		  AND start_time < $3
		  AND end_time > $2
	`, clientID, iv.Start, iv.End)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}

func collectAppointments(rows pgx.Rows) ([]Appointment, error) {
	var result []Appointment
	for rows.Next() {
		a, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *a)
	}
	return result, rows.Err()
}

func (r *PgRepository) GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *PgRepository) CreateConfirmedAppointment(ctx context.Context, a *Appointment) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create appointment: %w", err)
	}
	defer tx.Rollback(ctx)

	// Row-lock overlapping appointments so two inserts that slipped past
	// the in-memory checks cannot both commit.
	taken, err := providerOverlapExists(ctx, tx, a.ProviderID, a.Interval(), uuid.Nil)
	if err != nil {
		return err
	}
	if taken {
		return ErrIntervalTaken
	}

	busy, err := clientOverlapExists(ctx, tx, a.ClientID, a.Interval(), uuid.Nil)
	if err != nil {
		return err
	}
	if busy {
		return ErrClientBusy
	}

	if err := insertAppointment(ctx, tx, a); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func (r *PgRepository) CreateAppointmentInSlot(ctx context.Context, a *Appointment, slotID uuid.UUID) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin slot reservation: %w", err)
	}
	defer tx.Rollback(ctx)

	var maxOccupancy, bookedCount int
	err = tx.QueryRow(ctx, `
		SELECT max_occupancy, booked_count
		FROM capacity_slots
		WHERE id = $1
		FOR UPDATE
	`, slotID).Scan(&maxOccupancy, &bookedCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrSlotNotFound
		}
		return fmt.Errorf("lock capacity slot: %w", err)
	}

	if bookedCount >= maxOccupancy {
		return ErrSlotFull
	}

	_, err = tx.Exec(ctx, `
		UPDATE capacity_slots
		SET booked_count = booked_count + 1,
		    updated_at = now()
		WHERE id = $1
	`, slotID)
	if err != nil {
		return fmt.Errorf("increment slot occupancy: %w", err)
	}

	busy, err := clientOverlapExists(ctx, tx, a.ClientID, a.Interval(), uuid.Nil)
	if err != nil {
		return err
	}
	if busy {
		return ErrClientBusy
	}

	if err := insertAppointment(ctx, tx, a); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

func insertAppointment(ctx context.Context, tx pgx.Tx, a *Appointment) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO appointments (id, provider_id, client_id, organization_id, service_type,
			start_time, end_time, status, capacity_slot_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, now(), now())
	`, a.ID, a.ProviderID, a.ClientID, a.OrganizationID, a.ServiceType,
		a.Start, a.End, a.Status, a.CapacitySlotID)
	if err != nil {
		return fmt.Errorf("insert appointment: %w", err)
	}
	return nil
}

func providerOverlapExists(ctx context.Context, tx pgx.Tx, providerID uuid.UUID, iv Interval, exclude uuid.UUID) (bool, error) {
	rows, err := tx.Query(ctx, `
		SELECT id
		FROM appointments
		WHERE provider_id = $1
		  AND id <> $2
		  AND status <> 'cancelled'
		  AND capacity_slot_id IS NULL
		  AND start_time < $4
		  AND end_time > $3
		FOR UPDATE
	`, providerID, exclude, iv.Start, iv.End)
	if err != nil {
		return false, fmt.Errorf("lock overlapping appointments: %w", err)
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, err
	}
	return found, nil
}

// clientOverlapExists re-checks the client's appointments at write time.
// The provider lock does not serialize two bookings for one client with
// different providers, so the transaction first locks the clients row to
// order them, then looks for an overlap. Capacity appointments count:
// client exclusivity spans group sessions too.
func clientOverlapExists(ctx context.Context, tx pgx.Tx, clientID uuid.UUID, iv Interval, exclude uuid.UUID) (bool, error) {
	var lockedID uuid.UUID
	err := tx.QueryRow(ctx, `
		SELECT id
		FROM clients
		WHERE id = $1
		FOR UPDATE
	`, clientID).Scan(&lockedID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return false, ErrClientNotFound
		}
		return false, fmt.Errorf("lock client: %w", err)
	}

	rows, err := tx.Query(ctx, `
		SELECT id
		FROM appointments
		WHERE client_id = $1
		  AND id <> $2
		  AND status <> 'cancelled'
		  AND start_time < $4
		  AND end_time > $3
	`, clientID, exclude, iv.Start, iv.End)
	if err != nil {
		return false, fmt.Errorf("check client appointments: %w", err)
	}
	defer rows.Close()

	found := rows.Next()
	if err := rows.Err(); err != nil {
		return false, err
	}
	return found, nil
}

func (r *PgRepository) UpdateAppointmentStatus(ctx context.Context, id uuid.UUID, from, to AppointmentStatus) (*Appointment, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE appointments
		SET status = $2,
		    updated_at = now()
		WHERE id = $1
		  AND status = $3
		RETURNING `+appointmentColumns+`
	`, id, to, from)

	return scanAppointment(row)
}

func (r *PgRepository) UpdateAppointmentInterval(ctx context.Context, id uuid.UUID, iv Interval) (*Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin interval update: %w", err)
	}
	defer tx.Rollback(ctx)

	appt, err := scanAppointment(tx.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, err
	}

	taken, err := providerOverlapExists(ctx, tx, appt.ProviderID, iv, id)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, ErrIntervalTaken
	}

	busy, err := clientOverlapExists(ctx, tx, appt.ClientID, iv, id)
	if err != nil {
		return nil, err
	}
	if busy {
		return nil, ErrClientBusy
	}

	updated, err := scanAppointment(tx.QueryRow(ctx, `
		UPDATE appointments
		SET start_time = $2,
		    end_time = $3,
		    updated_at = now()
		WHERE id = $1
		RETURNING `+appointmentColumns+`
	`, id, iv.Start, iv.End))
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit interval update: %w", err)
	}
	return updated, nil
}

func (r *PgRepository) FindCapacitySlot(ctx context.Context, providerID uuid.UUID, iv Interval) (*CapacitySlot, error) {
	row := r.db.QueryRow(ctx, `
		SELECT id, provider_id, start_time, end_time, max_occupancy, booked_count, created_at, updated_at
		FROM capacity_slots
		WHERE provider_id = $1
		  AND start_time = $2
		  AND end_time = $3
	`, providerID, iv.Start, iv.End)
	return scanCapacitySlot(row)
}

func (r *PgRepository) SignedConsentForms(ctx context.Context, clientID uuid.UUID) ([]string, error) {
	rows, err := r.db.Query(ctx, `
		SELECT form
		FROM client_consents
		WHERE client_id = $1
	`, clientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var forms []string
	for rows.Next() {
		var form string
		if err := rows.Scan(&form); err != nil {
			return nil, err
		}
		forms = append(forms, form)
	}

	return forms, rows.Err()
}

func (r *PgRepository) ListAppointmentsByProviderRange(ctx context.Context, providerID uuid.UUID, from, to time.Time) ([]Appointment, error) {
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE provider_id = $1
		  AND start_time >= $2
		  AND start_time < $3
		ORDER BY start_time
	`, providerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return collectAppointments(rows)
}
