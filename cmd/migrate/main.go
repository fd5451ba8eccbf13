// Migrate applies the embedded schema migrations to DATABASE_URL.
// Usage: migrate [up|down]  (default up)
package main

import (
	"errors"
	"log"
	"os"

	"foxtrail/handoff/internal/config"
	"foxtrail/handoff/internal/db/migrate"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("migrate: DATABASE_URL is required")
	}

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}
	if direction != "up" && direction != "down" {
		log.Fatalf("migrate: unknown direction %q (want up or down)", direction)
	}

	if err := migrate.Run(cfg.DatabaseURL, direction); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("migrate: no change")
			return
		}
		log.Fatalf("migrate: %v", err)
	}
	log.Printf("migrate: %s complete", direction)
}
