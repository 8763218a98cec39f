package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"wind-hindcast/internal/config"
	"wind-hindcast/internal/data"
	"wind-hindcast/internal/hindcast"

	"github.com/joho/godotenv"
)

// fetch-grid downloads hourly RAP analyses into a directory laid out for
// data.DirSource, so later runs (cmd/demo) can work offline.
func main() {
	var (
		outputDir = flag.String("output", "data/rap", "Directory to write <key>.nc files into")
		start     = flag.String("start", "", "Start date YYYY-MM-DD")
		end       = flag.String("end", "", "End date YYYY-MM-DD (inclusive, default: start)")
		every     = flag.Int("every", hindcast.DefaultRateLimit.Every, "Pause after this many requests")
		cooldown  = flag.Duration("cooldown", hindcast.DefaultRateLimit.Cooldown, "Pause length")
		skip      = flag.Bool("skip-existing", true, "Skip hours whose file already exists")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Printf("Failed to load .env: %v", err)
	}

	if *start == "" {
		log.Fatal("--start is required")
	}
	if *end == "" {
		*end = *start
	}
	startDate, err := hindcast.ParseDate(*start)
	if err != nil {
		log.Fatal(err)
	}
	endDate, err := hindcast.ParseDate(*end)
	if err != nil {
		log.Fatal(err)
	}
	schedule, err := hindcast.BuildSchedule(startDate, endDate)
	if err != nil {
		log.Fatal(err)
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		log.Fatalf("Failed to create %s: %v", *outputDir, err)
	}

	opts := data.DefaultRAPOptions()
	if v := os.Getenv(config.EnvRAPBaseURL); v != "" {
		opts.BaseURL = v
	}
	client := data.NewRAPClient(opts)
	dir := &data.DirSource{Dir: *outputDir}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Fetching %d hours (%s..%s) into %s", len(schedule), *start, *end, *outputDir)

	var written, skipped, failed, requests int
	for _, slot := range schedule {
		path := dir.Path(slot.Key)
		if *skip {
			if _, err := os.Stat(path); err == nil {
				skipped++
				continue
			}
		}
		if requests > 0 && *every > 0 && requests%*every == 0 {
			log.Printf("%d requests issued, cooling down for %v", requests, *cooldown)
			if err := hindcast.SleepContext(ctx, *cooldown); err != nil {
				log.Fatalf("Interrupted: %v", err)
			}
		}
		requests++

		body, err := client.FetchRaw(ctx, slot.Key)
		if err != nil {
			if ctx.Err() != nil {
				log.Fatalf("Interrupted: %v", ctx.Err())
			}
			log.Printf("Skipping %s: %v", slot.Key, err)
			failed++
			continue
		}
		if err := writeAtomic(path, body); err != nil {
			log.Fatalf("Failed to write %s: %v", path, err)
		}
		written++
	}

	log.Printf("Done at %s: %d written, %d skipped, %d failed", time.Now().UTC().Format(time.RFC3339), written, skipped, failed)
}

// writeAtomic writes via a temp file so an interrupted download never
// leaves a truncated .nc behind.
func writeAtomic(path string, body []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".partial-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(body); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}
