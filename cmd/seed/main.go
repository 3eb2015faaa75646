package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/clinichq/scheduling/internal/db"
)

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

	if err := seedProfessionals(context.Background(), pool, 20); err != nil {
		log.Fatalf("seed professionals: %v", err)
	}
	if err := seedRooms(context.Background(), pool, 8); err != nil {
		log.Fatalf("seed rooms: %v", err)
	}
	if err := seedConsultationTypes(context.Background(), pool); err != nil {
		log.Fatalf("seed consultation types: %v", err)
	}
	if err := seedPatients(context.Background(), pool, 2000); err != nil {
		log.Fatalf("seed patients: %v", err)
	}

	log.Println("seed complete")
}

func seedProfessionals(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d professionals", count)

	specialties := []string{
		"Dermatology",
		"Cardiology",
		"General Practice",
		"Orthopedics",
		"Endocrinology",
		"Nutrition",
		"Physiotherapy",
		"Psychiatry",
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 0; i < count; i++ {
		id := uuid.New()
		name := gofakeit.Name()
		spec := specialties[gofakeit.Number(0, len(specialties)-1)]

		_, err := tx.Exec(ctx, `
			INSERT INTO professionals (id, name, specialty, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
		`, id, name, spec)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	log.Println("professionals seeded")
	return nil
}

func seedRooms(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d rooms", count)

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for i := 1; i <= count; i++ {
		_, err := tx.Exec(ctx, `
			INSERT INTO rooms (id, name)
			VALUES ($1, $2)
		`, uuid.New(), gofakeit.Numerify("Room ##"))
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedConsultationTypes(ctx context.Context, pool *pgxpool.Pool) error {
	types := []struct {
		name     string
		duration int
	}{
		{"First consultation", 60},
		{"Follow-up", 30},
		{"Procedure", 90},
		{"Quick check", 15},
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	for _, t := range types {
		_, err := tx.Exec(ctx, `
			INSERT INTO consultation_types (id, name, duration_min)
			VALUES ($1, $2, $3)
		`, uuid.New(), t.name, t.duration)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func seedPatients(ctx context.Context, pool *pgxpool.Pool, count int) error {
	log.Printf("seeding %d patients", count)

	const batchSize = 500

	for offset := 0; offset < count; offset += batchSize {
		end := offset + batchSize
		if end > count {
			end = count
		}

		tx, err := pool.Begin(ctx)
		if err != nil {
			return err
		}

		for i := offset; i < end; i++ {
			id := uuid.New()
			name := gofakeit.Name()
			phone := gofakeit.Phone()
			email := gofakeit.Email()

			_, err := tx.Exec(ctx, `
				INSERT INTO patients (id, name, phone, email, created_at, updated_at)
				VALUES ($1, $2, $3, $4, now(), now())
			`, id, name, phone, email)
			if err != nil {
				_ = tx.Rollback(ctx)
				return err
			}
		}

		if err := tx.Commit(ctx); err != nil {
			return err
		}

		log.Printf("patients seeded: %d/%d", end, count)
	}

	return nil
}
