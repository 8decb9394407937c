package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/glowgrid/spa-booking-engine/internal/booking"
	"github.com/glowgrid/spa-booking-engine/internal/db"
)

var states = []string{"CA", "NY", "TX", "FL", "WA", "CO", "AZ", "NV"}

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("seed starting")

	dsn := os.Getenv("POSTGRES_DSN")
	if dsn == "" {
		log.Fatal("POSTGRES_DSN is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := db.ConnectPostgres(ctx, dsn)
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	gofakeit.Seed(time.Now().UnixNano())

	providerIDs, err := seedProviders(context.Background(), pool, 50)
	if err != nil {
		log.Fatalf("seed providers: %v", err)
	}
	if err := seedLicenses(context.Background(), pool, providerIDs); err != nil {
		log.Fatalf("seed licenses: %v", err)
	}
	if err := seedReciprocity(context.Background(), pool); err != nil {
		log.Fatalf("seed reciprocity agreements: %v", err)
	}
	if err := seedCapacitySlots(context.Background(), pool, providerIDs); err != nil {
		log.Fatalf("seed capacity slots: %v", err)
	}

	clientIDs, err := seedClients(context.Background(), pool, 2000)
	if err != nil {
		log.Fatalf("seed clients: %v", err)
	}
	if err := seedConsents(context.Background(), pool, clientIDs); err != nil {
		log.Fatalf("seed consents: %v", err)
	}

	log.Println("seed complete")
}

// weekdayHours builds a Mon-Sat 9:00-18:00 schedule with a random subset of
// providers also open Sunday mornings.
func weekdayHours() booking.WorkingHours {
	hours := booking.WorkingHours{}
	for day := time.Monday; day <= time.Saturday; day++ {
		hours[day] = []booking.TimeWindow{{OpenMinute: 9 * 60, CloseMinute: 18 * 60}}
	}
	if gofakeit.Bool() {
		hours[time.Sunday] = []booking.TimeWindow{{OpenMinute: 10 * 60, CloseMinute: 14 * 60}}
	}
	return hours
}

func seedProviders(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d providers", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback(ctx)

	ids := make([]uuid.UUID, 0, count)
	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		state := states[gofakeit.Number(0, len(states)-1)]

		hoursJSON, err := json.Marshal(weekdayHours())
		if err != nil {
			return nil, err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO providers (id, name, state_code, working_hours, created_at, updated_at)
			VALUES ($1, $2, $3, $4, now(), now())
		`, id, name, state, hoursJSON)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	log.Println("providers seeded")
	return ids, nil
}

func seedLicenses(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID) error {
	log.Printf("seeding licenses for %d providers", len(providerIDs))

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, providerID := range providerIDs {
		// Most providers hold one license in their home state; some hold a
		// second out-of-state license to exercise the reciprocity path.
		licenses := 1
		if gofakeit.Number(0, 9) < 2 {
			licenses = 2
		}
		for i := 0; i < licenses; i++ {
			number := gofakeit.Numerify("LIC-######")
			state := states[gofakeit.Number(0, len(states)-1)]

			_, err := tx.Exec(ctx, `
				INSERT INTO provider_licenses (id, provider_id, license_number, license_state, created_at)
				VALUES ($1, $2, $3, $4, now())
			`, uuid.New(), providerID, number, state)
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("licenses seeded")
	return nil
}

func seedReciprocity(ctx context.Context, pool *pgxpool.Pool) error {
	log.Println("seeding reciprocity agreements")

	pairs := [][2]string{
		{"CA", "NV"}, {"NV", "CA"},
		{"NY", "FL"},
		{"TX", "CO"}, {"CO", "TX"},
		{"WA", "AZ"},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, pair := range pairs {
		effectiveFrom := time.Now().AddDate(-1, 0, 0)
		expiresAt := time.Now().AddDate(2, 0, 0)

		_, err := tx.Exec(ctx, `
			INSERT INTO reciprocity_agreements (id, from_state, to_state, effective_from, expires_at)
			VALUES ($1, $2, $3, $4, $5)
		`, uuid.New(), pair[0], pair[1], effectiveFrom, expiresAt)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("reciprocity agreements seeded")
	return nil
}

func seedCapacitySlots(ctx context.Context, pool *pgxpool.Pool, providerIDs []uuid.UUID) error {
	log.Println("seeding capacity slots")

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	// Group class slots for the next 14 days, one morning slot per provider
	// per day, for a fifth of providers.
	for i, providerID := range providerIDs {
		if i%5 != 0 {
			continue
		}
		for day := 1; day <= 14; day++ {
			start := time.Now().UTC().Truncate(24 * time.Hour).AddDate(0, 0, day).Add(10 * time.Hour)
			end := start.Add(time.Hour)
			serviceType := "group_yoga"
			if gofakeit.Bool() {
				serviceType = "group_meditation"
			}

			_, err := tx.Exec(ctx, `
				INSERT INTO capacity_slots (id, provider_id, service_type, start_time, end_time, max_occupancy, booked_count, created_at, updated_at)
				VALUES ($1, $2, $3, $4, $5, $6, 0, now(), now())
			`, uuid.New(), providerID, serviceType, start, end, gofakeit.Number(5, 15))
			if err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("capacity slots seeded")
	return nil
}

func seedClients(ctx context.Context, pool *pgxpool.Pool, count int) ([]uuid.UUID, error) {
	log.Printf("seeding %d clients", count)

	const batchSize = 500
	ids := make([]uuid.UUID, 0, count)

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO clients (id, name, email, created_at, updated_at)
				VALUES ($1, $2, $3, now(), now())
			`, id, name, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return nil, err
			}
			ids = append(ids, id)
		}

		if err := tx.Commit(ctx); err != nil {
			return nil, err
		}

		log.Printf("clients seeded: %d/%d", end, count)
	}

	log.Println("clients seeded")
	return ids, nil
}

func seedConsents(ctx context.Context, pool *pgxpool.Pool, clientIDs []uuid.UUID) error {
	log.Println("seeding client consents")

	forms := []string{"chemical_peel_consent", "microneedling_consent"}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i, clientID := range clientIDs {
		if i%4 != 0 {
			continue
		}
		form := forms[gofakeit.Number(0, len(forms)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO client_consents (id, client_id, form, signed_at)
			VALUES ($1, $2, $3, now())
		`, uuid.New(), clientID, form)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("client consents seeded")
	return nil
}
