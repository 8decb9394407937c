package booking

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockRepo(t *testing.T) (*PgRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPgRepository(mock), mock
}

func TestPgGetProviderByID(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	now := time.Now().UTC()
	hoursJSON := []byte(`{"1":[{"open":540,"close":1080}]}`)

	mock.ExpectQuery("SELECT id, name, state_code, working_hours").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "state_code", "working_hours", "created_at", "updated_at"}).
			AddRow(id, "Dana Reyes", "CA", hoursJSON, now, now))

	p, err := repo.GetProviderByID(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "CA", p.StateCode)
	require.Len(t, p.Hours[time.Monday], 1)
	assert.Equal(t, 540, p.Hours[time.Monday][0].OpenMinute)

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgGetProviderByIDNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)

	id := uuid.New()
	mock.ExpectQuery("SELECT id, name, state_code, working_hours").
		WithArgs(id).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.GetProviderByID(context.Background(), id)
	require.ErrorIs(t, err, ErrProviderNotFound)
}

func newTestAppointment() *Appointment {
	return &Appointment{
		ID:          uuid.New(),
		ProviderID:  uuid.New(),
		ClientID:    uuid.New(),
		ServiceType: "haircut",
		Start:       monday,
		End:         monday.Add(45 * time.Minute),
		Status:      StatusConfirmed,
	}
}

func TestPgCreateConfirmedAppointment(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := newTestAppointment()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id").
		WithArgs(a.ProviderID, uuid.Nil, a.Start, a.End).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery("FROM clients").
		WithArgs(a.ClientID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(a.ClientID))
	mock.ExpectQuery("WHERE client_id").
		WithArgs(a.ClientID, uuid.Nil, a.Start, a.End).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(a.ID, a.ProviderID, a.ClientID, a.OrganizationID, a.ServiceType,
			a.Start, a.End, a.Status, a.CapacitySlotID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateConfirmedAppointment(context.Background(), a))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateConfirmedAppointmentClientBusy(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := newTestAppointment()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id").
		WithArgs(a.ProviderID, uuid.Nil, a.Start, a.End).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectQuery("FROM clients").
		WithArgs(a.ClientID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(a.ClientID))
	mock.ExpectQuery("WHERE client_id").
		WithArgs(a.ClientID, uuid.Nil, a.Start, a.End).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectRollback()

	err := repo.CreateConfirmedAppointment(context.Background(), a)
	require.ErrorIs(t, err, ErrClientBusy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateConfirmedAppointmentIntervalTaken(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := newTestAppointment()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id").
		WithArgs(a.ProviderID, uuid.Nil, a.Start, a.End).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(uuid.New()))
	mock.ExpectRollback()

	err := repo.CreateConfirmedAppointment(context.Background(), a)
	require.ErrorIs(t, err, ErrIntervalTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateAppointmentInSlot(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := newTestAppointment()
	slotID := uuid.New()
	a.CapacitySlotID = &slotID

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT max_occupancy, booked_count").
		WithArgs(slotID).
		WillReturnRows(pgxmock.NewRows([]string{"max_occupancy", "booked_count"}).AddRow(5, 2))
	mock.ExpectExec("UPDATE capacity_slots").
		WithArgs(slotID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectQuery("FROM clients").
		WithArgs(a.ClientID).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(a.ClientID))
	mock.ExpectQuery("WHERE client_id").
		WithArgs(a.ClientID, uuid.Nil, a.Start, a.End).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))
	mock.ExpectExec("INSERT INTO appointments").
		WithArgs(a.ID, a.ProviderID, a.ClientID, a.OrganizationID, a.ServiceType,
			a.Start, a.End, a.Status, a.CapacitySlotID).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateAppointmentInSlot(context.Background(), a, slotID))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgCreateAppointmentInSlotFull(t *testing.T) {
	repo, mock := newMockRepo(t)
	a := newTestAppointment()
	slotID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT max_occupancy, booked_count").
		WithArgs(slotID).
		WillReturnRows(pgxmock.NewRows([]string{"max_occupancy", "booked_count"}).AddRow(2, 2))
	mock.ExpectRollback()

	err := repo.CreateAppointmentInSlot(context.Background(), a, slotID)
	require.ErrorIs(t, err, ErrSlotFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPgUpdateAppointmentStatusLostRace(t *testing.T) {
	repo, mock := newMockRepo(t)
	id := uuid.New()

	// Conditional update matched zero rows.
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, StatusCheckedIn, StatusConfirmed).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.UpdateAppointmentStatus(context.Background(), id, StatusConfirmed, StatusCheckedIn)
	require.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestPgFindCapacitySlotNotFound(t *testing.T) {
	repo, mock := newMockRepo(t)
	providerID := uuid.New()
	iv := Interval{Start: monday, End: monday.Add(time.Hour)}

	mock.ExpectQuery("SELECT id, provider_id, start_time, end_time, max_occupancy").
		WithArgs(providerID, iv.Start, iv.End).
		WillReturnError(pgx.ErrNoRows)

	_, err := repo.FindCapacitySlot(context.Background(), providerID, iv)
	require.ErrorIs(t, err, ErrSlotNotFound)
}
