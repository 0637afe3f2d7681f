//	@title			Evidence Service API
//	@version		1.0
//	@description	Evidence file management: upload, classification, storage (local or S3-compatible), and case association.
//
//	@host		localhost:8004
//	@BasePath	/api/v1
//
//	@securityDefinitions.apikey	GatewayIdentity
//	@in							header
//	@name						X-User-ID
//	@description				Trusted caller identity injected by the upstream API gateway.

package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/faultmaven/evidence-service/internal/config"
	"github.com/faultmaven/evidence-service/internal/db"
	"github.com/faultmaven/evidence-service/internal/evidence"
	appMiddleware "github.com/faultmaven/evidence-service/internal/middleware"
	"github.com/faultmaven/evidence-service/internal/storage"

	_ "github.com/faultmaven/evidence-service/docs/swagger"
)

func main() {
	cfg := config.Load()

	pool, err := db.Connect(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}
	defer pool.Close()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("database migration failed: %v", err)
	}

	// One provider per process, chosen by configuration and injected below.
	store, err := storage.New(cfg)
	if err != nil {
		log.Fatalf("storage init failed: %v", err)
	}
	log.Printf("storage provider: %s", cfg.StorageProvider)

	// Wire dependencies: repository → service → handler
	evidenceRepo := evidence.NewRepository(pool)
	evidenceSvc := evidence.NewService(evidenceRepo, store, cfg)
	evidenceHandler := evidence.NewHandler(evidenceSvc)

	// Router
	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-User-ID"},
		MaxAge:         300,
	}))

	// Liveness check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	// Swagger UI — available at http://localhost:8004/swagger/
	r.Get("/swagger/*", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))

	// API v1
	r.Route("/api/v1/evidence", func(r chi.Router) {
		// Detailed health stays open for probes.
		r.Get("/health", evidenceHandler.Health)

		r.Group(func(r chi.Router) {
			r.Use(appMiddleware.RequireIdentity(cfg.GatewayJWTSecret))
			r.Post("/", evidenceHandler.Upload)
			r.Get("/", evidenceHandler.List)
			r.Get("/case/{caseID}", evidenceHandler.ListByCase)
			r.Get("/{evidenceID}", evidenceHandler.Get)
			r.Get("/{evidenceID}/download", evidenceHandler.Download)
			r.Delete("/{evidenceID}", evidenceHandler.Delete)
			r.Post("/{evidenceID}/link", evidenceHandler.Relink)
		})
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine; wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("server listening on :%s (env=%s, storage=%s)", cfg.Port, cfg.AppEnv, cfg.StorageProvider)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	<-quit
	log.Println("shutting down gracefully...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalf("forced shutdown: %v", err)
	}

	log.Println("server stopped")
}
