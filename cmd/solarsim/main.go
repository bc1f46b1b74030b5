// cmd/solarsim/main.go
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/munozp/solarsim/internal/busmem"
	"github.com/munozp/solarsim/internal/config"
	"github.com/munozp/solarsim/internal/device"
)

func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: solarsim <config.yaml>")
	}

	cfgPath := os.Args[1]

	// --------------------
	// Load + validate config
	// --------------------

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	if err := config.Validate(cfg); err != nil {
		log.Fatalf("config validation failed: %v", err)
	}

	config.Normalize(cfg)

	// --------------------
	// Build device on an in-process memory
	// --------------------

	mem := busmem.NewRAM()

	dev, err := device.New(cfg.Device, mem)
	if err != nil {
		log.Fatalf("device build failed: %v", err)
	}

	if err := dev.Start(); err != nil {
		log.Fatalf("device start failed: %v", err)
	}

	log.Printf("solarsim: device up, MMIO base %#x", cfg.Device.BaseAddress)

	// --------------------
	// Run until interrupted
	// --------------------

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	dev.Stop()
	log.Print("solarsim: stopped")
}
