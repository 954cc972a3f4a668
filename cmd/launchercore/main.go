package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/Minlor/TwintailLauncher/internal/api"
	"github.com/Minlor/TwintailLauncher/internal/bandwidth"
	"github.com/Minlor/TwintailLauncher/internal/congestion"
	"github.com/Minlor/TwintailLauncher/internal/connectivity"
	"github.com/Minlor/TwintailLauncher/internal/filesystem"
	"github.com/Minlor/TwintailLauncher/internal/integrity"
	"github.com/Minlor/TwintailLauncher/internal/logger"
	"github.com/Minlor/TwintailLauncher/internal/progress"
	"github.com/Minlor/TwintailLauncher/internal/queue"
	"github.com/Minlor/TwintailLauncher/internal/schedule"
	"github.com/Minlor/TwintailLauncher/internal/settings"
	"github.com/Minlor/TwintailLauncher/internal/storage"
	"github.com/Minlor/TwintailLauncher/internal/token"
	"github.com/Minlor/TwintailLauncher/internal/uiemit"
)

const (
	defaultControlPort = 4444
	// Install-scoped kinds (download/update/preload/repair) fix the
	// running set at 1 (spec.md §3/§5): only one job per queue may
	// actually be transferring at a time, everything else queues.
	defaultMaxConcurrent = 1
	defaultMinWorkers    = 2
	defaultMaxWorkers    = 16
)

// main wires every package in this module into a running core, the way
// a real launcher's main.go injects its dependencies into the Wails app
// struct. The Wails-specific shell (tray icon, window, menu) lives in
// the UI repository this core is vendored into; headless mode here runs
// the same scheduler/monitor/API stack without a window.
func main() {
	logOutput := io.Writer(os.Stdout)
	log, wailsHandler, err := logger.New(logOutput)
	if err != nil {
		println("error initializing logger:", err.Error())
		os.Exit(1)
	}

	dataDir, err := os.UserConfigDir()
	if err != nil {
		log.Error("resolve user config dir", "error", err)
		os.Exit(1)
	}
	dataDir = filepath.Join(dataDir, "TwintailLauncher")

	db, err := storage.Open(dataDir)
	if err != nil {
		log.Error("open storage", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	settingsStore := settings.NewStore(db)

	tokens := token.NewRegistry()
	verified := token.NewVerifiedSets()
	allocator := filesystem.NewAllocator()
	verifier := integrity.NewFileVerifier()
	congestionCtl := congestion.NewCongestionController(defaultMinWorkers, defaultMaxWorkers)
	bw := bandwidth.NewManager()
	if bwCap, err := settingsStore.GlobalBandwidthCapBytesPerSec(); err == nil && bwCap > 0 {
		bw.SetLimit(bwCap)
	}

	wailsSink := uiemit.NewWailsSink()
	_ = wailsHandler // unused outside a real Wails window; log lines still go to console and the JSON file
	emitter := progress.NewEmitter(wailsSink, 100*time.Millisecond)

	httpClient := &http.Client{Timeout: 60 * time.Second}
	env := buildEnv(httpClient, bw, congestionCtl, allocator, verifier, emitter, verified, "TwintailLauncher/1.0")
	runner := newRunner(log, env)

	sched := queue.NewScheduler(queue.Runner(runner), tokens, emitter, defaultMaxConcurrent)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sched.Run(ctx)

	monitor := connectivity.NewMonitor(log, sched, emitter, nil)
	go monitor.Run(ctx)

	bandwidthSchedule := schedule.New(log, sched)
	bandwidthSchedule.Start()
	defer bandwidthSchedule.Stop()

	controlServer := api.NewServer(log, sched, settingsStore.InstallDir)
	go func() {
		if err := controlServer.Start(defaultControlPort); err != nil && err != http.ErrServerClosed {
			log.Error("control server exited", "error", err)
		}
	}()

	log.Info("launchercore started", "data_dir", dataDir, "control_port", defaultControlPort)

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info("shutdown signal received")
}
