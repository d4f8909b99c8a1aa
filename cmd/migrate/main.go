package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"crop-advisor/internal/domain"
	"crop-advisor/internal/repository"
	"crop-advisor/pkg/database"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

const usage = "Usage: go run ./cmd/migrate [up|drop|status|import <visitor_data.json>]"

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL environment variable is not set")
	}

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	command := os.Args[1]
	switch command {
	case "up", "drop":
		conn, err := pgx.Connect(ctx, dbURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer conn.Close(ctx)

		if command == "up" {
			if _, err := conn.Exec(ctx, database.PostgresSchema); err != nil {
				log.Fatalf("Failed to create tables: %v", err)
			}
			fmt.Println("visitor_record table created")
		} else {
			if _, err := conn.Exec(ctx, database.PostgresDropSchema); err != nil {
				log.Fatalf("Failed to drop tables: %v", err)
			}
			fmt.Println("visitor_record table dropped")
		}

	case "status":
		repo := openRepository(ctx, dbURL)
		defer repo.Close()

		record, err := repo.Get(ctx)
		if err != nil {
			log.Fatalf("Failed to read visitor record: %v", err)
		}
		stats := domain.NewVisitorStats(record)
		fmt.Printf("count=%d", stats.Count)
		if stats.LastVisit != nil {
			fmt.Printf(" last_visit=%s", stats.LastVisit.Format(time.RFC3339))
		}
		fmt.Println()

	case "import":
		if len(os.Args) < 3 {
			fmt.Println(usage)
			os.Exit(1)
		}
		if err := importFile(ctx, dbURL, os.Args[2]); err != nil {
			log.Fatalf("Failed to import visitor data: %v", err)
		}

	default:
		fmt.Printf("Unknown command: %s\n%s\n", command, usage)
		os.Exit(1)
	}
}

func openRepository(ctx context.Context, dbURL string) repository.VisitorRepository {
	db, err := database.NewPostgresDB(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	return repository.NewPostgresVisitorRepository(db)
}

// importFile copies a JSON visitor file into postgres, replacing the stored record
func importFile(ctx context.Context, dbURL, path string) error {
	target := openRepository(ctx, dbURL)
	defer target.Close()

	record, err := importRecord(ctx, path, target)
	if err != nil {
		return err
	}

	fmt.Printf("imported %d visits from %s\n", record.Count, path)
	return nil
}

// importRecord reads the visitor file at path and stores it in target
func importRecord(ctx context.Context, path string, target repository.VisitorRepository) (*domain.VisitorRecord, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	source, err := repository.NewFileVisitorRepository(path)
	if err != nil {
		return nil, err
	}
	record, err := source.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	if err := target.Put(ctx, record); err != nil {
		return nil, fmt.Errorf("write %s store: %w", target.Backend(), err)
	}
	return record, nil
}
