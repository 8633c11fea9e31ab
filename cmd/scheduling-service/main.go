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
	log.Info("Starting scheduling service...")

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

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.CreateSchema(ctx); err != nil {
		cancel()
		log.WithError(err).Fatal("Failed to create database schema")
	}
	cancel()

	repo := scheduling.NewPostgresRepository(db, cfg.Clinic, log)

	var locker interfaces.ResourceLocker = scheduling.NoopLocker{}
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
		locker = scheduling.NewRedisLocker(client, time.Duration(cfg.Redis.LockTTL)*time.Second, log)
		log.Info("Redis booking lock enabled")
	} else {
		log.Warn("Redis disabled, booking commits are not serialized")
	}

	service := scheduling.NewService(cfg, repo, locker, db.Health, log)

	go func() {
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		if err := service.Start(addr); err != nil {
			log.WithError(err).Fatal("Service failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	log.WithField("signal", sig.String()).Info("Shutting down scheduling service...")

	if err := service.Stop(); err != nil {
		log.WithError(err).Error("Failed to stop service gracefully")
	}
	log.Info("Scheduling service stopped")
}
