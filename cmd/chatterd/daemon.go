package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"chatterd/internal/capture"
	"chatterd/internal/config"
	"chatterd/internal/engine"
	"chatterd/internal/health"
	"chatterd/internal/ipc"
	"chatterd/internal/logging"
	"chatterd/internal/metrics"
	"chatterd/internal/notify"
	"chatterd/internal/singleinstance"
	"chatterd/internal/stats"
)

func lockPath() string {
	return filepath.Join(config.DataDir(), "chatterd.lock")
}

func listLocalDevices() ([]string, error) {
	return capture.ListDevices()
}

// runDaemon wires everything together and blocks until shutdown.
func runDaemon(configPath string) error {
	loader := config.NewLoader(configPath)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	defer loader.Close()

	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("create directories: %w", err)
	}

	lock, err := singleinstance.Acquire(lockPath())
	if err != nil {
		if errors.Is(err, singleinstance.ErrAlreadyRunning) {
			if pid := singleinstance.RunningPID(lockPath()); pid != 0 {
				return fmt.Errorf("chatterd already running (pid %d)", pid)
			}
			return fmt.Errorf("chatterd already running")
		}
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	defer lock.Release()

	logCfg, err := logging.FromAppConfig(cfg.Logging)
	if err != nil {
		return fmt.Errorf("logging configuration: %w", err)
	}
	log, err := logging.New(logCfg)
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	defer log.Close()
	logging.SetDefault(log)

	log.Info("chatterd starting",
		"version", version,
		"policy", cfg.Filter.Policy,
		"config", loader.Path())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Stats store.
	var store *stats.Store
	if cfg.Stats.Enabled {
		flushEvery := time.Duration(cfg.Stats.FlushIntervalSec) * time.Second
		store, err = stats.Open(cfg.Stats.Path, flushEvery)
		if err != nil {
			return fmt.Errorf("open stats store: %w", err)
		}
		defer store.Close()
	}

	// Metrics and health probes.
	chm := metrics.NewChatterdMetrics(nil)
	checker := health.NewChecker()
	var metricsSrv *http.Server
	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", chm.Registry().HTTPHandler())
		mux.Handle("/healthz", checker.LivenessHandler())
		mux.Handle("/readyz", checker.ReadinessHandler())
		mux.Handle("/health", checker.Handler())
		metricsSrv = &http.Server{
			Addr:         cfg.Metrics.ListenAddr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		}
		go func() {
			log.Info("metrics endpoint listening", "addr", cfg.Metrics.ListenAddr)
			if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error("metrics server failed", "error", err)
			}
		}()
		defer metricsSrv.Shutdown(context.Background())
	}

	// Desktop notifications.
	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notify.Enabled {
		if desktop, err := notify.New(); err == nil {
			notifier = notify.NewThrottled(desktop)
			defer notifier.Close()
		} else {
			log.Warn("desktop notifications unavailable", "error", err)
		}
	}

	// Capture source.
	source := capture.New(capture.Options{
		Devices: cfg.Capture.Devices,
		Grab:    cfg.Capture.Grab,
	})
	if ok, detail := source.Available(); !ok {
		return fmt.Errorf("keyboard capture unavailable: %s", detail)
	}

	eng, err := engine.New(engine.Options{
		Config:   cfg,
		Source:   source,
		Store:    store,
		Metrics:  chm,
		Notifier: notifier,
		Log:      log,
	})
	if err != nil {
		return fmt.Errorf("initialize engine: %w", err)
	}

	// IPC server.
	var server *ipc.Server
	if cfg.IPC.Enabled {
		serverCfg := ipc.DefaultServerConfig(cfg.IPC.SocketPath)
		serverCfg.Version = version
		if cfg.IPC.ListenAddr != "" {
			serverCfg.ListenAddr = cfg.IPC.ListenAddr
		}
		if cfg.IPC.MaxConnections > 0 {
			serverCfg.MaxConnections = cfg.IPC.MaxConnections
		}

		handler := ipc.NewDaemonHandler(eng, loader, version, cancel)
		server = ipc.NewServer(serverCfg, handler)
		if err := server.Start(); err != nil {
			return fmt.Errorf("start IPC server: %w", err)
		}
		defer server.Stop()

		eng.SetBlockedFunc(func(key uint16, deltaMs int64, blockedSeen uint64) {
			server.Broadcast(&ipc.Event{
				Type:      ipc.EventKeyBlocked,
				Timestamp: time.Now(),
				Data: &ipc.KeyBlockedEvent{
					Key:         key,
					KeyName:     engine.KeyName(key),
					DeltaMs:     deltaMs,
					BlockedSeen: blockedSeen,
				},
			})
		})
	}

	// Hot reload on config file changes.
	loader.OnChange(func(next *config.Config) {
		if err := eng.Reload(next); err != nil {
			log.Error("hot reload failed", "error", err)
			return
		}
		if server != nil {
			server.Broadcast(&ipc.Event{
				Type:      ipc.EventConfigChanged,
				Timestamp: time.Now(),
			})
		}
	})
	if err := loader.Watch(); err != nil {
		log.Warn("config watching unavailable", "error", err)
	}

	if err := eng.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer eng.Stop()

	checker.Register("capture", true, func(context.Context) health.CheckResult {
		if !eng.Running() {
			return health.Unhealthy("capture stopped")
		}
		if eng.Paused() {
			return health.CheckResult{Status: health.StatusDegraded, Message: "filtering paused"}
		}
		return health.Healthy("capturing")
	})
	if store != nil {
		checker.Register("stats", false, func(context.Context) health.CheckResult {
			if err := store.Flush(); err != nil {
				return health.Unhealthy(err.Error())
			}
			return health.Healthy("store writable")
		})
	}
	checker.SetReady(true)

	// Periodic uptime gauge refresh.
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				chm.UpdateUptime()
				if server != nil {
					chm.ConnectedClients.Set(int64(server.ClientCount()))
				}
			}
		}
	}()

	log.Info("chatterd running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		log.Info("signal received", "signal", sig.String())
	case <-ctx.Done():
		log.Info("shutdown requested")
	}

	if server != nil {
		server.Broadcast(&ipc.Event{
			Type:      ipc.EventDaemonShutdown,
			Timestamp: time.Now(),
		})
	}

	log.Info("chatterd stopping")
	return nil
}
