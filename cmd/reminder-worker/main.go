package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/clinova/clinic-scheduling/internal/scheduling"
	"github.com/clinova/clinic-scheduling/pkg/config"
	"github.com/clinova/clinic-scheduling/pkg/database"
	"github.com/clinova/clinic-scheduling/pkg/interfaces"
	"github.com/clinova/clinic-scheduling/pkg/logger"
	"github.com/clinova/clinic-scheduling/pkg/timeutil"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)
	log.Info("Starting reminder worker...")

	loc, err := cfg.Clinic.Location()
	if err != nil {
		log.WithError(err).Fatal("Failed to load clinic timezone")
	}
	timeutil.SetLocation(loc)

	db, err := database.NewConnection(&cfg.Database, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to connect to database")
	}
	defer db.Close()

	repo := scheduling.NewPostgresRepository(db, cfg.Clinic, log)

	var sentStore interfaces.ReminderSentStore
	if cfg.Redis.Enabled {
		client := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(context.Background()).Err(); err != nil {
			log.WithError(err).Fatal("Failed to connect to Redis")
		}
		defer client.Close()
		sentStore = scheduling.NewRedisSentStore(client, 48*time.Hour)
	} else {
		log.Warn("Redis disabled, reminder dedup is process-local")
		sentStore = scheduling.NewMemorySentStore()
	}

	engine := scheduling.NewReminderEngine(repo, sentStore, scheduling.NewLogNotifier(log), log)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		log.WithField("signal", sig.String()).Info("Shutting down reminder worker...")
		cancel()
	}()

	interval := time.Duration(cfg.Reminders.PollInterval) * time.Second
	log.WithField("poll_interval", interval.String()).Info("Reminder worker polling")
	engine.Run(ctx, interval)

	log.Info("Reminder worker stopped")
}
