package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/dustin/go-humanize"

	"backtest-core/internal/api"
	"backtest-core/internal/config"
	"backtest-core/internal/eventbus"
	"backtest-core/internal/store"
	"backtest-core/internal/strategies"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	log.Printf("config loaded: port=%s db=%s", cfg.Port, cfg.DBPath)

	bus := eventbus.NewBus()

	st, err := store.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("store init failed: %v", err)
	}
	defer st.Close()
	if err := store.ApplyMigrations(st); err != nil {
		log.Fatalf("store migrations failed: %v", err)
	}

	presets := loadPresets(cfg.StrategyConfigPath)
	log.Printf("loaded %s strategy presets from %s", humanize.Comma(int64(len(presets))), cfg.StrategyConfigPath)

	server := api.NewServer(st, bus, presets, cfg.JWTSecret, cfg.APIKey, cfg.RateLimitRPS, cfg.RateLimitBurst)

	go func() {
		log.Printf("listening on :%s", cfg.Port)
		if err := server.Start(":" + cfg.Port); err != nil {
			log.Fatalf("api server error: %v", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
	log.Println("shutting down")

	if err := server.Shutdown(context.Background()); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}

// loadPresets reads the strategy preset file if present; a missing
// file is not fatal, it just means no named presets are available and
// run requests must supply explicit signals.
func loadPresets(path string) []strategies.Preset {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	presets, err := strategies.LoadPresets(path)
	if err != nil {
		log.Printf("failed to load strategy presets from %s: %v", path, err)
		return nil
	}
	return presets
}
