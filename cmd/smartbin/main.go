package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/LeonardoBeccarini/smartdustbin/internal/clock"
	"github.com/LeonardoBeccarini/smartdustbin/internal/config"
	"github.com/LeonardoBeccarini/smartdustbin/internal/hal"
	"github.com/LeonardoBeccarini/smartdustbin/internal/metrics"
	"github.com/LeonardoBeccarini/smartdustbin/internal/netlink"
	"github.com/LeonardoBeccarini/smartdustbin/internal/node"
	"github.com/LeonardoBeccarini/smartdustbin/internal/peer"
)

func main() {
	cfg, err := config.Embedded()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("node stopped", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	hw, closeHW, err := openHardware(cfg, logger)
	if err != nil {
		return err
	}
	defer closeHW()

	m := metrics.New()
	if cfg.Metrics.Listen != "" {
		go func() {
			if err := m.Serve(ctx, cfg.Metrics.Listen, logger); err != nil {
				logger.Warn("metrics endpoint", "err", err)
			}
		}()
	}

	n := node.New(cfg, hw, clock.NewSystem(), logger, m)
	if err := n.Boot(ctx); err != nil {
		return fmt.Errorf("boot: %w", err)
	}
	return n.Run(ctx)
}

func openHardware(cfg *config.Config, logger *slog.Logger) (node.Hardware, func(), error) {
	if err := hal.Init(); err != nil {
		return node.Hardware{}, nil, err
	}

	var hw node.Hardware
	var err error
	if hw.FillTrigger, err = hal.OpenOutput(cfg.Sensors.Fill.TriggerPin, false); err != nil {
		return hw, nil, err
	}
	if hw.FillEcho, err = hal.OpenEcho(cfg.Sensors.Fill.EchoPin); err != nil {
		return hw, nil, err
	}
	if hw.ProximityTrigger, err = hal.OpenOutput(cfg.Sensors.Proximity.TriggerPin, false); err != nil {
		return hw, nil, err
	}
	if hw.ProximityEcho, err = hal.OpenEcho(cfg.Sensors.Proximity.EchoPin); err != nil {
		return hw, nil, err
	}
	if hw.Indicator, err = hal.OpenOutput(cfg.Indicator.Pin, false); err != nil {
		return hw, nil, err
	}

	port, err := peer.Open(cfg.Peer.Port, cfg.Peer.BaudRate)
	if err != nil {
		return hw, nil, err
	}
	hw.Peer = port
	hw.Station = netlink.NewInterfaceStation(cfg.WiFi.Interface,
		netlink.NewNetworkManager(logger.With("component", "networkmanager")), logger.With("component", "netlink"))

	return hw, func() {
		if err := port.Close(); err != nil {
			logger.Warn("closing peer serial", "err", err)
		}
	}, nil
}
