package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/stemsi/cq-evaluator/internal/config"
	"github.com/stemsi/cq-evaluator/internal/database"
	"github.com/stemsi/cq-evaluator/internal/logger"
	"github.com/stemsi/cq-evaluator/internal/model"
	"github.com/stemsi/cq-evaluator/internal/repository"
)

// seed-topics loads a JSON array of topics into the recommendation catalog.
// Topics are matched by name, so the file can be re-applied after edits.
func main() {
	var file string
	flag.StringVar(&file, "file", "topics.json", "Path to the topic catalog JSON file")
	flag.Parse()

	cfg := config.Load()
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	raw, err := os.ReadFile(file)
	if err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Failed to read topic file")
	}

	var topics []model.Topic
	if err := json.Unmarshal(raw, &topics); err != nil {
		log.Fatal().Err(err).Str("file", file).Msg("Failed to parse topic file")
	}

	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	topicRepo := repository.NewTopicRepository(pool)

	fmt.Printf("=== Seeding %d Topics ===\n", len(topics))

	seeded, skipped := 0, 0
	for i := range topics {
		t := &topics[i]
		t.Name = strings.TrimSpace(t.Name)
		if t.Name == "" {
			fmt.Printf("Skipping topic #%d: name is required\n", i+1)
			skipped++
			continue
		}
		if err := topicRepo.Upsert(ctx, t); err != nil {
			log.Error().Err(err).Str("topic", t.Name).Msg("Failed to upsert topic")
			skipped++
			continue
		}
		seeded++
	}

	fmt.Printf("Done. Seeded: %d, skipped: %d\n", seeded, skipped)
}
