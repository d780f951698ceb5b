package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"mcprox/internal/config"
	"mcprox/internal/control"
	"mcprox/internal/logging"
	"mcprox/internal/manager"
	"mcprox/internal/protocol"
)

func buildHostParser(ctx context.Context, cfg *config.Config) protocol.HostParser {
	parsers := []protocol.HostParser{
		protocol.NewMinecraftHostParser(),
		protocol.NewLegacyPingHostParser(),
	}

	if cfg.RoutingWasmParserPath != "" {
		wp, err := protocol.NewWASMHostParserFromFile(ctx, cfg.RoutingWasmParserPath, protocol.WASMHostParserOptions{})
		if err != nil {
			log.Fatalf("load routing wasm parser %s: %v", cfg.RoutingWasmParserPath, err)
		}
		parsers = append(parsers, wp)
	}

	return protocol.NewChainHostParser(parsers...)
}

func main() {
	var configPath = flag.String("config", "mcprox.toml", "Path to mcprox config file")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	rt, err := logging.NewRuntime(cfg.Logging)
	if err != nil {
		log.Fatalf("init logging: %v", err)
	}
	defer rt.Close()
	logger := rt.Logger()

	parser := buildHostParser(ctx, cfg)

	mgr := manager.New(manager.Options{
		Logger:        logger,
		SweepInterval: cfg.SweepInterval,
		Parser:        parser,
	})
	mgr.StartSweeper()

	for _, addr := range cfg.Listeners {
		msg, err := mgr.MkListener(addr)
		if err != nil {
			log.Fatalf("bind listener %s: %v", addr, err)
		}
		logger.Info("mcprox: listener bound", "msg", msg)
	}

	srv := control.NewServer(cfg.ControlSocketPath, mgr, logger)
	srvErr := make(chan error, 1)
	go func() { srvErr <- srv.ListenAndServe() }()

	select {
	case err := <-srvErr:
		if err != nil {
			logger.Error("mcprox: control socket exited", "err", err)
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	logger.Info("mcprox: shutting down", "signal", ctx.Err())

	if err := srv.Close(); err != nil {
		logger.Error("mcprox: control socket close failed", "err", err)
	}

	for _, addr := range mgr.LsListeners() {
		if _, err := mgr.RmListener(addr); err != nil {
			logger.Warn("mcprox: listener teardown failed", "addr", addr, "err", err)
		}
	}

	// Give in-flight splices a brief window to notice their sockets closing
	// before the process exits.
	time.Sleep(100 * time.Millisecond)
	logger.Info("mcprox: exited")
}
