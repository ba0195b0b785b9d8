// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/unclebandit/dripline/internal/config"
	"github.com/unclebandit/dripline/internal/db"
	"github.com/unclebandit/dripline/internal/logging"
)

var seedFiles = []string{
	"contacts.sql",
	"templates.sql",
	"campaigns.sql",
}

func main() {
	configPath := flag.String("config", os.Getenv("DRIPLINE_CONFIG"), "path to a YAML config file")
	dir := flag.String("dir", "seed", "directory holding the seed files")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger, err := logging.New(cfg.Log)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	ctx := context.Background()
	conn, err := db.Open(ctx, cfg.Database, logger)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer conn.Close()

	if err := db.Migrate(ctx, conn); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	for _, file := range seedFiles {
		path := filepath.Join(*dir, file)
		content, err := os.ReadFile(path)
		if err != nil {
			logger.Fatal("read seed file", zap.String("file", path), zap.Error(err))
		}
		if _, err := conn.ExecContext(ctx, string(content)); err != nil {
			logger.Fatal("execute seed file", zap.String("file", path), zap.Error(err))
		}
		fmt.Printf("Seeded: %s\n", path)
	}

	fmt.Println("Database seeding completed successfully!")
}
