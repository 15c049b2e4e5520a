package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"offcampus/internal/api"
	"offcampus/internal/engine"
	"offcampus/internal/ingest"
	"offcampus/internal/scheduler"
	"offcampus/internal/storage"
)

// AppConfig 应用配置。
type AppConfig struct {
	Dataset   ingest.Config    `yaml:"dataset"`
	Engine    engine.Config    `yaml:"engine"`
	Scheduler scheduler.Config `yaml:"scheduler"`
	Events    EventsConfig     `yaml:"events"`
	Server    ServerConfig     `yaml:"server"`
	Database  DatabaseConfig   `yaml:"database"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// EventsConfig 指向埋点事件日志，用于启动时重建画像。
type EventsConfig struct {
	LogPath string `yaml:"log_path"`
}

func main() {
	_ = godotenv.Load()

	cfg, err := loadConfig()
	if err != nil {
		log.Printf("load config error: %v", err)
		return
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath = "offcampus.db"
	}

	store, err := storage.NewStore(dbPath)
	if err != nil {
		log.Printf("init store error: %v", err)
		return
	}
	defer store.Close()

	client := &http.Client{Timeout: 15 * time.Second}
	fetch := ingest.NewDatasetFetcher(cfg.Dataset, client)
	eng := engine.New(store, cfg.Engine)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := eng.LoadArtifacts(ctx); err != nil && !errors.Is(err, sql.ErrNoRows) {
		log.Printf("load artifacts error: %v", err)
	}
	if cfg.Events.LogPath != "" {
		if data, err := os.ReadFile(cfg.Events.LogPath); err == nil {
			if profiles, err := eng.BuildProfiles(ctx, data); err == nil {
				log.Printf("rebuilt %d user profiles", len(profiles))
			} else {
				log.Printf("build profiles error: %v", err)
			}
		} else {
			log.Printf("read event log error: %v", err)
		}
	}

	sched := scheduler.NewScheduler(fetch, store, eng, cfg.Scheduler)
	handler := api.NewHandler(store, eng, sched)

	addr := cfg.Server.Addr
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{Addr: addr, Handler: handler}

	go func() {
		if err := sched.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("scheduler stopped: %v", err)
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("server error: %v", err)
	}
}

func loadConfig() (AppConfig, error) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return AppConfig{}, err
	}
	var cfg AppConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}
