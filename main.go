package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"rollcall-picker/config"
	"rollcall-picker/db"
	"rollcall-picker/handlers"
	"rollcall-picker/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize Redis Client
	redisClient, err := db.InitializeRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer redisClient.Close()

	redisService := db.NewRedisService(redisClient)
	if cfg.SeedData {
		if err := redisService.SeedIfEmpty(ctx); err != nil {
			log.Printf("Warning: could not add seed data: %v", err)
		}
	}

	sessions := session.NewManager(redisService, cfg.Session())
	defer sessions.CloseAll()

	apiHandler := handlers.NewAPIHandler(redisService, sessions, handlers.Options{
		PhotoSize:      cfg.PhotoSize,
		PhotoQuality:   cfg.PhotoQuality,
		MaxUploadBytes: cfg.MaxUploadBytes,
	})

	router := gin.Default()
	apiHandler.Register(router)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: router,
	}
	go func() {
		log.Printf("Starting server on %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to run server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
}
