package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"i4.energy/across/modemctl/adapter"
	"i4.energy/across/modemctl/datacall"
	"i4.energy/across/modemctl/modem"
	"i4.energy/across/modemctl/netif"
	"i4.energy/across/modemctl/repository"
	"i4.energy/across/modemctl/ril"
	"i4.energy/across/modemctl/silo"
)

func main() {
	configFile := flag.String("config", "", "YAML configuration file")
	flag.String("control-port", "/dev/gsmtty1", "Mux channel carrying network and SIM management")
	flag.String("data-ports", "/dev/gsmtty2", "Comma-separated mux channels carrying data sessions")
	flag.Int("baud-rate", 115200, "Baud rate for serial communication")
	flag.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	flag.String("sim-pin", "", "SIM card PIN code (if required)")
	flag.Duration("at-timeout", 5*time.Second, "Timeout of commands without a configured one")
	flag.String("repository", "/etc/modemctl/repository.yaml", "Settings repository (YAML file or SQLite database)")
	flag.String("nats-url", "", "NATS server to publish events to")
	flag.Parse()

	config, err := LoadConfig(WithDefaults(), WithFile(*configFile), WithEnv(), WithFlags(flag.CommandLine))
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logLevel := slog.LevelInfo
	switch config.LogLevel {
	case "debug":
		logLevel = slog.LevelDebug
	case "info":
		logLevel = slog.LevelInfo
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel}))

	if err := run(config, logger); err != nil {
		logger.Error("modemctl failed", "error", err)
		os.Exit(1)
	}
}

func run(config *Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := openRepository(ctx, config.Repository)
	if err != nil {
		return fmt.Errorf("open repository: %w", err)
	}
	defer closeRepo.Close()
	timeouts := repository.Timeouts{Repo: repo}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	modemMetrics := modem.NewMetrics()
	callMetrics := datacall.NewMetrics()
	if err := modemMetrics.Register(registry); err != nil {
		return err
	}
	if err := callMetrics.Register(registry); err != nil {
		return err
	}

	router := &notifyRouter{}

	builder := modem.NewConfigBuilder().
		WithATTimeout(config.ATTimeout).
		WithInitTimeout(30 * time.Second).
		WithSimPIN(config.SimPIN).
		WithLogger(logger.With("component", "modem")).
		WithMetrics(modemMetrics).
		WithNotify(router.dispatch).
		WithTimeouts(timeouts).
		WithChannel(modem.ChannelConfig{
			ID:     0,
			Name:   "control",
			Dialer: modem.SerialDialer{PortName: config.ControlPort, BaudRate: config.BaudRate},
			Silos:  silo.ControlSet(),
		})
	for i, port := range config.DataPorts {
		builder.WithChannel(modem.ChannelConfig{
			ID:     modem.ID(i + 1),
			Name:   fmt.Sprintf("data%d", i+1),
			Dialer: modem.SerialDialer{PortName: port, BaudRate: config.BaudRate},
			Switcher: &netif.MuxSwitcher{
				Device:  port,
				Control: netif.GSMMux{},
				Logger:  logger.With("component", "mux", "device", port),
			},
			Silos: silo.DataSet(),
			Data:  true,
		})
	}
	modemConfig, err := builder.Build()
	if err != nil {
		return fmt.Errorf("modem config: %w", err)
	}

	m, err := modem.New(ctx, modemConfig)
	if err != nil {
		return fmt.Errorf("create modem: %w", err)
	}
	defer m.Close()

	modemCtx, stopModem := modemContext(ctx)
	defer stopModem()

	router.add(func(n modem.Notification) {
		if st, ok := n.Payload.(silo.SIMState); ok {
			m.SetSIMReady(st.Ready)
		}
	})

	if err := m.Start(modemCtx); err != nil {
		return fmt.Errorf("start modem: %w", err)
	}

	a, err := adapter.Detect(ctx, m.Control(), repo)
	if err != nil {
		return fmt.Errorf("detect modem: %w", err)
	}
	a.WithTimeouts(timeouts)
	logger.Info("modem variant selected", "variant", a.Tag())
	configureRegistration(ctx, m, a, logger)

	calls, err := datacall.New(datacall.Config{
		Modem:      m,
		Adapter:    a,
		Interfaces: netif.Linux{},
		Repository: repo,
		Logger:     logger,
		Metrics:    callMetrics,
		Notify:     router.dispatch,
	})
	if err != nil {
		return err
	}
	router.add(calls.HandleNotification)

	mtu, err := repository.IntOr(repo, repository.GroupNetworking, repository.KeyMTU, repository.DefaultMTU)
	if err != nil {
		return err
	}
	hub := ril.NewHub(logger)
	defer hub.Close()
	svc, err := ril.NewService(ril.Config{
		Radio:     m,
		Adapter:   a,
		DataCalls: calls,
		MTU:       mtu,
		Sinks:     []ril.Sink{hub},
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	if config.NATSURL != "" {
		nc, err := ril.ConnectNATS(config.NATSURL, logger.With("component", "nats"))
		if err != nil {
			return fmt.Errorf("connect nats: %w", err)
		}
		defer nc.Close()
		svc.AddSink(ril.NewNATSSink(nc, config.NATSPrefix))
	}
	router.add(svc.Notify)

	httpServer := &http.Server{
		Addr: config.BindAddress,
		Handler: &Server{
			Logger:        logger.With("component", "server"),
			Requests:      svc,
			Notifications: hub,
			Metrics:       promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		},
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Starting HTTP server", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	modemErr := make(chan error, 1)
	go func() { modemErr <- m.Wait() }()

	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal")
	case err = <-serverErr:
		logger.Error("HTTP server failed", "error", err)
	case err = <-modemErr:
		logger.Error("Modem stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	logger.Info("Closing HTTP server")
	if serr := httpServer.Shutdown(shutdownCtx); serr != nil {
		logger.Error("Failed to gracefully shutdown server", "error", serr)
	}
	shutdown(shutdownCtx, calls, stopModem, logger)
	_ = svc.Close()
	return err
}

// modemContext detaches the channel loops from parent so that sessions can
// still be torn down on the modem after a shutdown signal.
func modemContext(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithCancel(context.WithoutCancel(parent))
}

type sessionCleaner interface {
	CleanupAll(ctx context.Context) error
	Wait() error
}

// shutdown releases every data call while the channel loops still run,
// then stops the loops.
func shutdown(ctx context.Context, calls sessionCleaner, stopModem context.CancelFunc, logger *slog.Logger) {
	if err := calls.CleanupAll(ctx); err != nil {
		logger.Warn("Failed to release data calls", "error", err)
	}
	if err := calls.Wait(); err != nil {
		logger.Debug("Pending teardown failed", "error", err)
	}
	stopModem()
}

// configureRegistration enables the registration reports the network silo
// decodes. Modems that reject it still work with polled state.
func configureRegistration(ctx context.Context, m *modem.Modem, a *adapter.Adapter, logger *slog.Logger) {
	cmd, _, err := a.Build(adapter.KindConfigureRegistration, nil)
	if err != nil || cmd == nil {
		return
	}
	if _, err := m.Control().Exec(ctx, cmd); err != nil {
		logger.Warn("registration reports not enabled", "error", err)
	}
}

// openRepository selects the backend by file extension.
func openRepository(ctx context.Context, path string) (repository.Repository, io.Closer, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		db, err := repository.OpenSQLite(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return db, db, nil
	default:
		f, err := repository.LoadFile(path)
		if err != nil {
			return nil, nil, err
		}
		return f, closerFunc(func() error { return nil }), nil
	}
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// notifyRouter fans modem notifications out to handlers registered after
// the modem was created.
type notifyRouter struct {
	mu       sync.RWMutex
	handlers []modem.NotifyFunc
}

func (r *notifyRouter) add(fn modem.NotifyFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, fn)
}

func (r *notifyRouter) dispatch(n modem.Notification) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, fn := range r.handlers {
		fn(n)
	}
}
