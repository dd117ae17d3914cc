package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"strata/internal/auth"
	"strata/internal/config"
	"strata/internal/core/probe"
	"strata/internal/handler"
	"strata/internal/hub"
	"strata/internal/loader"
	"strata/internal/pgquery"
	"strata/internal/repository/postgres"
	"strata/internal/service"
	"strata/internal/watcher"
	"strata/internal/worker"
)

func main() {
	// Command line flags
	configPath := flag.String("config", "", "config file path (default: search standard locations)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	hashKey := flag.Bool("hash-key", false, "read an API key on stdin, print its bcrypt hash, and exit")
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)

	if *hashKey {
		if err := printKeyHash(); err != nil {
			log.Fatalf("Failed to hash key: %v", err)
		}
		return
	}

	log.Println("Starting Strata server...")

	// Load configuration
	cfg, cfgPath, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if cfgPath != "" {
		log.Printf("Config loaded: %s", cfgPath)
	} else {
		log.Println("No config file found, using defaults")
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}

	// Open the connection pool
	pool, err := pgxpool.New(context.Background(), cfg.Database.PoolDSN())
	if err != nil {
		log.Fatalf("Failed to open connection pool: %v", err)
	}
	defer pool.Close()
	source := postgres.NewPoolSource(pool)
	log.Printf("Database pool opened: %s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)

	// Probe the database and resolve the operating mode
	mode := resolveMode(cfg, source)
	log.Printf("Operating mode: %s", mode)

	// Initialize event bus
	eventBus := service.NewEventBus()

	// Initialize SSE hub
	sseHub := hub.New()
	go sseHub.Run()

	// Connect event bus to SSE hub
	eventChan := make(chan service.Event, 100)
	eventBus.Subscribe(eventChan)
	go func() {
		for event := range eventChan {
			sseHub.Broadcast(hub.Event{
				Type:    string(event.Type),
				Subject: event.Subject,
				Data:    event.Payload,
			})
		}
	}()

	// Initialize services
	opts := service.Options{
		Mode:           mode,
		LogQueries:     cfg.Logging.Queries,
		AttachmentBase: cfg.Attachments.BasePath,
		ExportDir:      cfg.Export.Dir,
	}
	connect := func(ctx context.Context, dbname string) (*postgres.Session, error) {
		return postgres.Connect(ctx, cfg.Database.DSNFor(dbname))
	}
	layerSvc := service.NewLayerService(source, eventBus, opts)
	counterSvc := service.NewCounterService(source, eventBus, opts)
	adminSvc := service.NewAdminService(source, connect, eventBus, opts)

	// Load the declared layers; DDL only runs in spatial mode
	applyLayers := func() {
		layers, err := loader.LoadLayers(cfg.Layers.Path)
		if err != nil {
			log.Printf("Failed to load layers from %s: %v", cfg.Layers.Path, err)
			return
		}
		if !mode.Allows(probe.ModeSpatial) {
			layerSvc.RegisterLayers(layers)
			log.Printf("Registered %d layers without DDL (%s mode)", len(layers), mode)
			return
		}
		report, err := layerSvc.ApplyLayers(context.Background(), layers)
		if err != nil {
			log.Printf("Failed to apply layers: %v", err)
			return
		}
		log.Printf("Applied layers: %d created, %d existing, %d failed",
			len(report.Created), len(report.Existing), len(report.Failed))
	}
	applyLayers()

	// Background context for the watcher and workers
	bgCtx, bgCancel := context.WithCancel(context.Background())

	// Reload layer definitions on file change
	if cfg.Layers.Watch {
		layerWatcher := watcher.New(cfg.Layers.Path, applyLayers)
		go func() {
			if err := layerWatcher.Watch(bgCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Layer watcher stopped: %v", err)
			}
		}()
	}

	// Register background workers
	workers := worker.NewRegistry()
	registerSweeper(workers, source, cfg, mode)
	workers.Start(bgCtx)

	// Initialize HTTP handlers
	layerHandler := handler.NewLayerHandler(layerSvc)
	counterHandler := handler.NewCounterHandler(counterSvc)
	adminHandler := handler.NewAdminHandler(adminSvc)
	workerHandler := handler.NewWorkerHandler(workers)
	authorizer := auth.New(cfg.Auth)

	// Setup routes
	mux := http.NewServeMux()

	// Layer endpoints
	mux.HandleFunc("GET /api/layers", layerHandler.ListLayers)
	mux.HandleFunc("POST /api/layers", layerHandler.CreateLayer)
	mux.HandleFunc("POST /api/layers/apply", layerHandler.ApplyLayers)
	mux.HandleFunc("GET /api/layers/{layer}", layerHandler.GetLayer)

	// Record endpoints
	mux.HandleFunc("GET /api/layers/{layer}/records", layerHandler.ListRecords)
	mux.HandleFunc("POST /api/layers/{layer}/records", layerHandler.InsertRecord)
	mux.HandleFunc("PUT /api/layers/{layer}/records", layerHandler.UpdateRecords)
	mux.HandleFunc("DELETE /api/layers/{layer}/records", layerHandler.DeleteRecords)
	mux.HandleFunc("POST /api/layers/{layer}/query", layerHandler.QueryRecords)
	mux.HandleFunc("GET /api/layers/{layer}/records/exists", layerHandler.RecordExists)
	mux.HandleFunc("GET /api/layers/{layer}/columns", layerHandler.ListColumns)
	mux.HandleFunc("GET /api/layers/{layer}/export", layerHandler.Export)

	// Counter endpoints
	mux.HandleFunc("GET /api/counters", counterHandler.ListCounters)
	mux.HandleFunc("POST /api/counters", counterHandler.CreateCounter)
	mux.HandleFunc("GET /api/counters/{name}", counterHandler.GetCounter)
	mux.HandleFunc("DELETE /api/counters/{name}", counterHandler.DeleteCounter)
	mux.HandleFunc("POST /api/counters/{name}/increment", counterHandler.IncrementCounter)

	// Admin endpoints
	mux.HandleFunc("POST /api/admin/databases", adminHandler.CreateDatabase)
	mux.HandleFunc("DELETE /api/admin/databases/{name}", adminHandler.DropDatabase)
	mux.HandleFunc("GET /api/admin/probe", adminHandler.Probe)
	mux.HandleFunc("GET /api/admin/workers", workerHandler.ListWorkers)
	mux.HandleFunc("POST /api/admin/workers/{name}/run", workerHandler.RunWorker)

	// Health and SSE events
	mux.HandleFunc("GET /api/health", handler.Health(mode))
	mux.Handle("GET /api/events", sseHub)

	// Apply middleware; auth sits innermost so CORS preflights pass
	finalHandler := handler.Chain(mux,
		handler.Recover,
		handler.CORS,
		handler.Logger,
		handler.RequireAuth(authorizer, cfg.Server.AppLabel, cfg.Server.Debug),
	)

	// Create server
	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      finalHandler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on %s", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Stop the watcher and background workers
	bgCancel()
	workers.Stop()

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}

func loadConfig(path string) (*config.Config, string, error) {
	if path != "" {
		return config.LoadFromPath(path)
	}
	return config.Load()
}

// resolveMode probes the connected database and picks the operating
// mode: an explicit config mode wins, the probe's recommendation
// applies otherwise. An unreachable database assumes spatial so a
// late-starting database needs no server restart.
func resolveMode(cfg *config.Config, source postgres.SessionSource) probe.Mode {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sess, err := source.Session(ctx)
	if err != nil {
		log.Printf("Failed to probe database: %v", err)
		if cfg.Mode != "" {
			return probe.ParseMode(cfg.Mode)
		}
		return probe.ModeSpatial
	}
	defer sess.Close(ctx)

	result := probe.New(sess).Report(ctx)
	log.Printf("Probe recommends %s mode (confidence %.2f)", result.Mode, result.Confidence)
	for _, reason := range result.Reasons {
		log.Printf("Probe: %s", reason)
	}
	for _, warning := range result.Warnings {
		log.Printf("Probe warning: %s", warning)
	}

	if cfg.Mode != "" {
		mode := probe.ParseMode(cfg.Mode)
		if mode != result.Mode {
			log.Printf("Config mode %s overrides probe recommendation %s", mode, result.Mode)
		}
		return mode
	}
	return result.Mode
}

// registerSweeper wires the orphaned-attachment sweep when configured.
// Misconfiguration disables the sweep rather than blocking startup.
func registerSweeper(workers *worker.Registry, source postgres.SessionSource, cfg *config.Config, mode probe.Mode) {
	if !cfg.Attachments.SweepEnabled() {
		return
	}

	table, err := pgquery.ParseTableName(cfg.Attachments.SweepTable)
	if err != nil {
		log.Printf("Attachment sweep disabled: %v", err)
		return
	}
	if !pgquery.ValidIdentifier(cfg.Attachments.SweepColumn) {
		log.Printf("Attachment sweep disabled: invalid sweep_column %q", cfg.Attachments.SweepColumn)
		return
	}

	// File removal follows write capability
	enabled := mode.Allows(probe.ModeBasic)
	if !enabled {
		log.Println("Attachment sweep disabled in readonly mode")
	}

	sweeper := worker.NewSweeper(source, worker.SweeperOptions{
		Table:      table,
		Column:     cfg.Attachments.SweepColumn,
		BasePath:   cfg.Attachments.BasePath,
		Age:        cfg.Attachments.SweepAge.Duration(),
		LogQueries: cfg.Logging.Queries,
	})
	if err := workers.Register(sweeper, worker.Config{
		Enabled:  enabled,
		Interval: cfg.Attachments.SweepInterval.Duration(),
	}); err != nil {
		log.Printf("Failed to register sweeper: %v", err)
	}
}

// printKeyHash reads a key from stdin and prints the bcrypt hash to
// store as key_hash in the config file.
func printKeyHash() error {
	fmt.Fprint(os.Stderr, "API key: ")
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}
		return errors.New("no key given")
	}

	secret := strings.TrimSpace(scanner.Text())
	if secret == "" {
		return errors.New("no key given")
	}

	hash, err := auth.GenerateKeyHash(secret)
	if err != nil {
		return err
	}
	fmt.Println(hash)
	return nil
}
