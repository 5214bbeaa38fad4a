package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"recordbase.org/internal/auth"
	"recordbase.org/internal/httpapi"
	"recordbase.org/internal/obs"
	"recordbase.org/internal/policy"
	"recordbase.org/internal/record"
	"recordbase.org/internal/store/pg"
	"recordbase.org/internal/stream"
)

var version = "0.3.1"

func main() {
	// Инициализация observability (регистрация метрик, JSON-логгер и т.п.)
	obs.Init()

	cfg := httpapi.Config{
		Version:    version,
		Stream:     stream.New(),
		RateBurst:  envInt("RECORDBASE_RATE_BURST", 0),
		RatePerSec: envInt("RECORDBASE_RATE_PER_SEC", 0),
	}

	if lvl := os.Getenv("RECORDBASE_DEFAULT_ACCESS"); lvl != "" {
		parsed, err := policy.ParseLevel(lvl)
		if err != nil {
			log.Fatalf("RECORDBASE_DEFAULT_ACCESS: %v", err)
		}
		cfg.DefaultLevel = parsed
	}

	// Подключение к БД (если задан DSN); без DSN работаем на in-memory
	// сторах, чего хватает для локальной разработки и smoke-прогонов.
	var store *pg.Store
	if dsn := os.Getenv("RECORDBASE_PG_DSN"); dsn != "" {
		var err error
		store, err = pg.Open(dsn)
		if err != nil {
			log.Fatalf("open db: %v", err)
		}
		cfg.ReadyProbe = httpapi.ReadyProbe{DB: store.DB()}
		cfg.Records = store.Records()
		cfg.Policies = store.Policies()
		cfg.Users = store.Users()
	} else {
		log.Println("RECORDBASE_PG_DSN not set, using in-memory stores")
		cfg.Records = record.NewInMemory()
		cfg.Policies = policy.NewInMemory()
		cfg.Users = auth.NewInMemoryUsers()
	}

	api := httpapi.New(cfg)

	addr := os.Getenv("RECORDBASE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           api.Handler(), // уже обёрнут метриками в httpapi
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	log.Printf("Starting recordbase-api %s on %s", version, srv.Addr)

	// graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	<-stop
	log.Println("Shutting down...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = srv.Shutdown(ctx)
	if store != nil {
		_ = store.Close()
	}
	log.Println("Stopped")
}

func envInt(name string, def int) int {
	raw := os.Getenv(name)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Fatalf("%s: %v", name, err)
	}
	return n
}
