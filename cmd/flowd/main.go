// Command flowd is the download manager daemon: it wires configuration,
// logging, the job store, the event bus, the executor, the admission
// controller, the D-Bus IPC endpoint, and the optional debug HTTP surface
// together and runs until an OS signal asks it to stop.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/essmehdi/flowd/internal/admission"
	"github.com/essmehdi/flowd/internal/bus"
	"github.com/essmehdi/flowd/internal/config"
	"github.com/essmehdi/flowd/internal/debughttp"
	"github.com/essmehdi/flowd/internal/executor"
	"github.com/essmehdi/flowd/internal/ipc"
	"github.com/essmehdi/flowd/internal/logger"
	"github.com/essmehdi/flowd/internal/store"
)

const shutdownGrace = 10 * time.Second

func main() {
	debugPort := flag.Int("debug-port", 0, "loopback port for the read-only debug HTTP surface (0 disables it)")
	statePath := flag.String("state-dir", defaultStateDir(), "directory for the job database and logs")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "flowd: failed to load configuration:", err)
		os.Exit(1)
	}
	cfgSource := func() (config.Config, error) { return config.Load() }

	// The bus needs a logger for its own overflow warnings before the real
	// fanout logger exists (the fanout logger's bus sink needs the bus's
	// status broadcaster). Bootstrap with a bare stderr logger, then hand
	// the bus to the real logger once built.
	bootstrapLog := slog.New(slog.NewTextHandler(os.Stderr, nil))
	b := bus.New(bootstrapLog)
	defer b.Close()

	log, err := logger.New(os.Stdout, *statePath, b.Status)
	if err != nil {
		fmt.Fprintln(os.Stderr, "flowd: failed to initialize logger:", err)
		os.Exit(1)
	}

	st, err := store.Open(filepath.Join(*statePath, "flowd.db"))
	if err != nil {
		log.Error("failed to open job store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	ex := executor.New(st, b, cfgSource, log)

	admissionController := admission.New(st, ex, cfgSource, log)

	ipcServer, err := ipc.Connect(st, b, cfgSource, log)
	if err != nil {
		log.Error("failed to register D-Bus endpoint", "error", err)
		os.Exit(1)
	}
	defer ipcServer.Close()

	if *debugPort != 0 {
		debughttp.New(st, log).Start(*debugPort)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	controlEvents := b.Control.Subscribe()
	statusEvents := b.Status.Subscribe()

	go ex.RunControlLoop(ctx, controlEvents)
	go admissionController.Run(ctx)
	go ipcServer.RelayStatusEvents(ctx, statusEvents)

	log.Info("flowd started", "state_dir", *statePath, "max_concurrent_downloads", cfg.MaxConcurrentDownloads)

	waitForSignal()
	log.Info("shutdown signal received, draining in-flight transfers")

	cancel()
	ex.Shutdown(shutdownGrace)

	log.Info("flowd stopped")
}

// waitForSignal blocks until SIGINT or SIGTERM arrives.
func waitForSignal() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan
}

func defaultStateDir() string {
	if xdg := os.Getenv("XDG_STATE_HOME"); xdg != "" {
		return filepath.Join(xdg, "flowd")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "/var/lib/flowd"
	}
	return filepath.Join(home, ".local", "state", "flowd")
}
