// Entry point: wires configuration, storage, repositories, the
// allocation engine and the HTTP surface together.
package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/gateleaf/ticket-engine/internal/allocator"
	"github.com/gateleaf/ticket-engine/internal/clock"
	"github.com/gateleaf/ticket-engine/internal/config"
	"github.com/gateleaf/ticket-engine/internal/counter"
	"github.com/gateleaf/ticket-engine/internal/database"
	"github.com/gateleaf/ticket-engine/internal/document"
	"github.com/gateleaf/ticket-engine/internal/handler"
	"github.com/gateleaf/ticket-engine/internal/queue"
	"github.com/gateleaf/ticket-engine/internal/repository"
	"github.com/gateleaf/ticket-engine/internal/router"
	"github.com/gateleaf/ticket-engine/internal/storage"
)

func main() {
	// .env is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err == nil {
		log.Println("loaded configuration from .env")
	}
	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	migrateCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := database.Migrate(migrateCtx, db); err != nil {
		cancel()
		log.Fatalf("migrate: %v", err)
	}
	cancel()

	blobs, err := storage.NewS3(context.Background(), cfg.S3Region, cfg.S3Bucket)
	if err != nil {
		log.Fatalf("object storage: %v", err)
	}

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Println("redis unavailable, rate limiting and availability cache disabled")
	}

	// Repositories and services.
	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	events := repository.NewEventRepo(db)
	types := repository.NewTicketTypeRepo(db)
	tickets := repository.NewTicketRepo(db)
	claims := repository.NewClaimRepo(db)
	ingests := repository.NewIngestRepo(db)

	alloc := allocator.New(repository.NewAllocationStore(db), clock.New())
	pipeline := document.NewPipeline(document.NewPDFEngine(), document.NewFitzRenderer(), blobs, ingests)
	counters := counter.New(rdb, events.Availability, counter.DefaultTTL)

	// Background workers.
	go func() {
		if err := queue.StartAllocationConsumer(); err != nil {
			log.Printf("allocation consumer stopped: %v", err)
		}
	}()
	if cfg.ReconcileMin > 0 {
		go reconcileLoop(events, alloc, counters, time.Duration(cfg.ReconcileMin)*time.Minute)
	}

	e := echo.New()
	e.HideBanner = true
	e.Use(echomw.Recover())
	e.Use(echomw.Logger())

	router.RegisterPublic(e, handler.NewPublicHandler(events, types, tickets, counters))
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, tokens), cfg.JWTSecret)
	router.RegisterClaims(e,
		handler.NewClaimHandler(cfg, alloc, claims, tickets, blobs, counters),
		cfg.JWTSecret, config.LoadRateLimitConfig(), rdb)
	router.RegisterAdmin(e,
		handler.NewAdminEventHandler(events, types, alloc, counters),
		handler.NewAdminIngestHandler(pipeline, types),
		handler.NewAdminTicketHandler(cfg, alloc, tickets, blobs, counters),
		handler.NewAdminUserHandler(users),
		cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}

// reconcileLoop periodically recounts every event's claims so counter
// drift never outlives one sweep interval.
func reconcileLoop(events *repository.EventRepo, alloc *allocator.Allocator, counters *counter.Cache, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for range ticker.C {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		list, err := events.List(ctx)
		if err != nil {
			log.Printf("reconcile: list events: %v", err)
			cancel()
			continue
		}
		for _, ev := range list {
			if _, err := alloc.Reconcile(ctx, ev.ID); err != nil {
				log.Printf("reconcile: event %d: %v", ev.ID, err)
				continue
			}
			counters.Invalidate(ctx, ev.ID)
		}
		cancel()
	}
}
