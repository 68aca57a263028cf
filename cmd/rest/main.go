package main

import (
	"context"
	"log"

	"personal-knowledge-be/internal/bootstrap"
	"personal-knowledge-be/internal/config"
	"personal-knowledge-be/internal/server"
	"personal-knowledge-be/internal/tracer"
	"personal-knowledge-be/pkg/database"

	"gorm.io/gorm"
)

func main() {
	shutdownTracer := tracer.InitTracer()
	defer shutdownTracer(context.Background())

	cfg := config.Load()

	// Postgres is only needed for the pgvector chunk store.
	var gormDB *gorm.DB
	if cfg.Database.Connection != "" {
		var err error
		gormDB, err = database.NewGormDBFromDSN(cfg.Database.Connection)
		if err != nil {
			log.Panicf("Unable to connect to GORM DB: %v", err)
		}
	}

	container := bootstrap.NewContainer(gormDB, cfg)
	defer container.Logger.Sync()

	// Index the document library in the background so startup stays fast.
	go func() {
		log.Println("Background: Starting Indexer Service...")
		if err := container.IndexerService.Consume(context.Background()); err != nil {
			log.Printf("Background Indexer Error: %v", err)
			return
		}
		if _, err := container.LibraryService.PublishAll(context.Background()); err != nil {
			log.Printf("Background Library Scan Error: %v", err)
		}
	}()

	srv := server.New(cfg, container)
	log.Fatal(srv.Run())
}
