package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/victornm/riffle/internal/config"
	"github.com/victornm/riffle/internal/server"
)

func main() {
	path, c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	// The logger is configured by server.Init.
	slog.Info("riffle: config loaded",
		"path", path,
		"postgres", c.Postgres.Addr+"/"+c.Postgres.Name,
		"leaderboard_publish_interval", c.Leaderboard.PublishInterval,
		"redeem_per_second", c.RateLimit.RedeemPerSecond,
		"redeem_burst", c.RateLimit.RedeemBurst,
	)

	go s.Start()

	sig := <-shutdown
	slog.Info("riffle: shutting down", "signal", sig.String())
	s.Shutdown()
}

// loadConfig reads the file named by CONFIG_PATH over the server defaults.
// The database schema in db/schema.sql must be applied beforehand.
func loadConfig() (string, server.Config, error) {
	c := server.DefaultConfig()

	p := os.Getenv("CONFIG_PATH")
	if p == "" {
		return "", c, fmt.Errorf("CONFIG_PATH not set")
	}

	if err := config.Load(p, &c); err != nil {
		return p, c, fmt.Errorf("load config %s: %w", p, err)
	}

	return p, c, nil
}
