package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/agent"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/agent/config"
)

const serviceName string = "inventory-agent"

func main() {
	ctx := context.Background()

	configFile := env.GetVariableOrDefault(ctx, "INVENTORY_AGENT_CONFIG", "/etc/inventory/agent.json")
	flag.Func("config", "agent configuration file", func(value string) error {
		configFile = value
		return nil
	})
	flag.Parse()

	serviceVersion := buildinfo.SourceVersion()
	ctx, logger, cleanup := o11y.Init(ctx, serviceName, serviceVersion, "json")
	defer cleanup()

	cfg, err := config.LoadFromFile(configFile)
	exitIf(err, logger, "could not load configuration", "path", configFile)

	svc, err := agent.New(ctx, cfg)
	exitIf(err, logger, "could not initialize agent")
	defer svc.Close()

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("agent started", "device_id", cfg.Device.ID, "sensors", len(cfg.Sensors))

	err = svc.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		exitIf(err, logger, "agent terminated unexpectedly")
	}
}

func exitIf(err error, logger *slog.Logger, msg string, args ...any) {
	if err != nil {
		logger.With(args...).Error(msg, "err", err.Error())
		time.Sleep(2 * time.Second)
		os.Exit(1)
	}
}
