package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"questhunt/internal/auth"
	"questhunt/internal/catalog"
	"questhunt/internal/ledger"
	"questhunt/internal/models"
	"questhunt/internal/progress"
	"questhunt/internal/verify"
	"questhunt/pkg/cache"
	"questhunt/pkg/database"
	"questhunt/pkg/events"
	"questhunt/pkg/review"

	"github.com/gorilla/mux"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Printf("Warning: .env file not found")
	}

	// Initialize database
	dbConfig := &database.Config{
		Host:     os.Getenv("DB_HOST"),
		Port:     os.Getenv("DB_PORT"),
		User:     os.Getenv("DB_USER"),
		Password: os.Getenv("DB_PASSWORD"),
		DBName:   os.Getenv("DB_NAME"),
	}

	db, err := database.NewPostgresDB(dbConfig)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	err = db.AutoMigrate(
		&models.Quest{},
		&models.Step{},
		&models.Progress{},
		&models.Completion{},
	)
	if err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	// Initialize Redis cache
	redisCache := cache.NewRedisCache(os.Getenv("REDIS_ADDR"))

	// Initialize progress events hub
	hub := events.NewHub()
	go hub.Run()

	// Photo-review collaborator
	reviewTimeout := 15 * time.Second
	if raw := os.Getenv("REVIEW_TIMEOUT"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil {
			reviewTimeout = d
		}
	}
	reviewClient := review.NewClient(
		os.Getenv("REVIEW_URL"),
		os.Getenv("REVIEW_API_KEY"),
		reviewTimeout,
	)

	// Initialize repositories
	catalogRepo := catalog.NewRepository(db)
	ledgerRepo := ledger.NewRepository(db)
	progressRepo := progress.NewRepository(db, ledgerRepo)

	// Initialize services
	catalogService := catalog.NewService(catalogRepo, redisCache)
	verifyService := verify.NewService(reviewClient)
	progressService := progress.NewService(progressRepo, catalogService, verifyService, ledgerRepo, hub)

	// Initialize handlers
	catalogHandler := catalog.NewHandler(catalogService)
	progressHandler := progress.NewHandler(progressService)

	// Setup router
	router := mux.NewRouter()

	corsMiddleware := cors.New(cors.Options{
		AllowedOrigins:   []string{os.Getenv("FRONTEND_URL")},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "Authorization", "X-Requested-With"},
		ExposedHeaders:   []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           300,
	})
	handler := corsMiddleware.Handler(router)

	// All API routes require a token from the external issuer
	jwtSecret := os.Getenv("JWT_SECRET")
	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(auth.JWTMiddleware(jwtSecret))

	apiRouter.HandleFunc("/quests", catalogHandler.CreateQuest).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/quests/{questId}", catalogHandler.GetQuest).Methods("GET", "OPTIONS")
	apiRouter.HandleFunc("/quests/{questId}", catalogHandler.DeleteQuest).Methods("DELETE", "OPTIONS")
	apiRouter.HandleFunc("/quests/{questId}/steps", catalogHandler.AddStep).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/quests/{questId}/steps/{stepId}", catalogHandler.UpdateStep).Methods("PUT", "OPTIONS")
	apiRouter.HandleFunc("/quests/{questId}/publish", catalogHandler.PublishQuest).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/quests/{questId}/archive", catalogHandler.ArchiveQuest).Methods("POST", "OPTIONS")

	apiRouter.HandleFunc("/quests/{questId}/start", progressHandler.Start).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/progress/{progressId}/submit", progressHandler.Submit).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/progress/{progressId}/abandon", progressHandler.Abandon).Methods("POST", "OPTIONS")
	apiRouter.HandleFunc("/progress/{progressId}", progressHandler.Get).Methods("GET", "OPTIONS")

	// WebSocket endpoint for live progress events
	router.HandleFunc("/ws/progress/{progressId}", hub.HandleWebSocket)

	srv := &http.Server{
		Addr:         ":8080",
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("Server starting on port 8080")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown setup
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	<-c

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server shutdown gracefully")
}
