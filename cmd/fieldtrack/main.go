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

	"fieldtrack/internal/api"
	"fieldtrack/internal/attendance"
	"fieldtrack/internal/bot"
	"fieldtrack/internal/config"
	"fieldtrack/internal/db"
	"fieldtrack/internal/drift"
	"fieldtrack/internal/memstore"

	"github.com/joho/godotenv"
)

// store is what both storage backends provide.
type store interface {
	attendance.AttendanceStore
	attendance.InterventionStore
	attendance.SiteLookup
	attendance.SettingsReader
	attendance.AuditRecorder
	bot.AgentDirectory
}

func main() {
	log.Println("Starting fieldtrack...")

	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	var (
		st     store
		health func(ctx context.Context) error
	)
	switch cfg.Storage.Driver {
	case "memory":
		mem := memstore.New()
		if cfg.Storage.SeedFile != "" {
			if err := mem.LoadSeed(cfg.Storage.SeedFile); err != nil {
				log.Fatalf("Failed to load seed: %v", err)
			}
			log.Printf("Loaded seed data from %s", cfg.Storage.SeedFile)
		}
		st = mem
	default:
		database, err := db.New(cfg.Database)
		if err != nil {
			log.Fatalf("Failed to initialize database: %v", err)
		}
		defer database.Close()
		st = database
		health = database.Ping
	}

	opts := []attendance.Option{
		attendance.WithLocation(cfg.Location()),
		attendance.WithWindow(cfg.Window.Early(), cfg.Window.Late()),
		attendance.WithDefaultMaxDistance(cfg.Geofence.DefaultMaxDistanceMeters),
		attendance.WithAuditRecorder(st),
	}

	var discordBot *bot.Bot
	if cfg.Discord.Enabled() {
		discordBot, err = bot.New(cfg.Discord, st)
		if err != nil {
			log.Fatalf("Failed to create bot: %v", err)
		}
		opts = append(opts, attendance.WithNotifier(discordBot), attendance.WithBroadcaster(discordBot))
	} else {
		log.Println("Discord token not set, notifications go to the log")
	}

	svc, err := attendance.New(attendance.Deps{
		Attendances:   st,
		Interventions: st,
		Sites:         st,
		Settings:      st,
	}, opts...)
	if err != nil {
		log.Fatalf("Failed to create attendance service: %v", err)
	}

	// Set up signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM)

	go func() {
		s := <-signals
		log.Printf("Received signal: %v", s)
		cancel()
	}()

	if discordBot != nil {
		discordBot.Attach(svc)
		go func() {
			if err := discordBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("Error running bot: %v", err)
			}
		}()
	}

	var monitor *drift.Monitor
	if cfg.Drift.Enabled {
		var notifier attendance.Notifier = attendance.LogNotifier{}
		if discordBot != nil {
			notifier = discordBot
		}
		monitor = drift.New(svc, notifier, drift.Config{
			Grace:    cfg.Drift.Grace(),
			Interval: cfg.Drift.Interval(),
		})
		if err := monitor.Start(ctx); err != nil {
			log.Fatalf("Failed to start drift monitor: %v", err)
		}
	}

	server := &http.Server{
		Addr:              cfg.HTTP.Addr,
		Handler:           api.NewRouter(&api.Handler{Service: svc, Health: health}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Printf("HTTP server listening on %s", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("HTTP server error: %v", err)
			cancel()
		}
	}()

	// Wait for shutdown
	<-ctx.Done()
	log.Println("Shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error shutting down HTTP server: %v", err)
	}
	if monitor != nil {
		monitor.Stop()
	}
	if discordBot != nil {
		if err := discordBot.Shutdown(); err != nil {
			log.Printf("Error during bot shutdown: %v", err)
		}
	}

	log.Println("Application shutdown complete")
}
