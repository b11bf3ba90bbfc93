package main

import (
	"context"
	"fmt"
	"log"

	"github.com/david/opportunity-importer/internal/config"
	"github.com/david/opportunity-importer/internal/db"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.Database.URL, 2)
	if err != nil {
		log.Fatalf("Unable to connect to database: %v", err)
	}
	defer pool.Close()

	stats, err := db.NewStore(pool).GetStagingStats(ctx)
	if err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	fmt.Printf("Staged opportunities: %d\n", stats.Total)
	fmt.Printf("With embedding: %d\n", stats.WithEmbedding)
	fmt.Printf("With deadline: %d\n", stats.WithDeadline)
	fmt.Printf("Staged in last 24h: %d\n", stats.Last24h)
	fmt.Printf("Import runs: %d (failed: %d)\n", stats.ImportRuns, stats.FailedRuns)
}
