package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"wind-hindcast/internal/api"
	"wind-hindcast/internal/api/handlers"
	"wind-hindcast/internal/config"
	"wind-hindcast/internal/data"
	"wind-hindcast/internal/hindcast"
	"wind-hindcast/internal/powercurve"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	// Get configuration from environment
	port := os.Getenv("API_PORT")
	if port == "" {
		port = "8080"
	}
	curvesPath := os.Getenv(config.EnvPowerCurvesFile)
	if curvesPath == "" {
		curvesPath = "data/power_curves.csv"
	}
	var origins []string
	if raw := os.Getenv("CORS_ALLOWED_ORIGINS"); raw != "" {
		for _, o := range strings.Split(raw, ",") {
			if o = strings.TrimSpace(o); o != "" {
				origins = append(origins, o)
			}
		}
	}

	curves, err := powercurve.LoadCSV(curvesPath)
	if err != nil {
		log.Fatalf("Failed to load power curves from %s: %v", curvesPath, err)
	}
	log.Printf("Loaded power curves from %s: %d turbine classes", curvesPath, len(curves.Classes()))

	opts := data.DefaultRAPOptions()
	if v := os.Getenv(config.EnvRAPBaseURL); v != "" {
		opts.BaseURL = v
	}
	client := data.NewRAPClient(opts)
	log.Printf("RAP source: %s", opts.BaseURL)

	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := hindcast.New(client, curves)
	router := api.NewRouter(
		handlers.NewRunHandler(ctx, engine, curves),
		handlers.NewTurbineHandler(curves),
		origins,
	)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("Starting API server on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
