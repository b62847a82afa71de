// Command migrate runs schema operations for the backend.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"strings"

	"agora/internal/config"
	"agora/internal/database"

	"gorm.io/gorm"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func usage() error {
	return fmt.Errorf("usage: go run ./cmd/migrate <up|status|reset>")
}

func run() error {
	flag.Parse()
	if flag.NArg() < 1 {
		return usage()
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// Connect migrates on its own outside production, so open the raw
	// dialector here to keep status and reset side-effect free.
	dialector, err := database.Dialector(cfg)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	db, err := gorm.Open(dialector, &gorm.Config{})
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}

	ctx := context.Background()
	cmd := strings.ToLower(strings.TrimSpace(flag.Arg(0)))
	switch cmd {
	case "up":
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		log.Println("migrations applied")
	case "status":
		migrator := db.WithContext(ctx).Migrator()
		pending := 0
		for _, model := range database.PersistentModels() {
			stmt := &gorm.Statement{DB: db}
			if err := stmt.Parse(model); err != nil {
				return fmt.Errorf("parse model: %w", err)
			}
			present := migrator.HasTable(model)
			if !present {
				pending++
			}
			log.Printf("table=%s present=%t", stmt.Schema.Table, present)
		}
		log.Printf("driver=%s env=%s pending=%d", dialector.Name(), cfg.Env, pending)
	case "reset":
		if cfg.IsProduction() {
			return fmt.Errorf("reset is disabled in production")
		}
		models := database.PersistentModels()
		// Reverse registration order so dependents drop first.
		for i := len(models) - 1; i >= 0; i-- {
			if err := db.WithContext(ctx).Migrator().DropTable(models[i]); err != nil {
				return fmt.Errorf("drop table: %w", err)
			}
		}
		if err := database.Migrate(ctx, db); err != nil {
			return err
		}
		log.Println("database reset")
	default:
		return usage()
	}

	return nil
}
