package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/diwise/service-chassis/pkg/infrastructure/buildinfo"
	"github.com/diwise/service-chassis/pkg/infrastructure/env"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/application/alerts"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/application/events"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/application/ingest"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/application/inventory"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/infrastructure/router"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/infrastructure/storage"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/presentation/api"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/presentation/api/auth"
)

const serviceName string = "inventory-server"

const prunePeriod = time.Hour

type flagType int
type flagMap map[flagType]string

const (
	listenAddress flagType = iota
	servicePort

	dbPath
	notificationsFile

	deviceTokens
	uiToken
	allowUnauth

	corsOrigins

	eventQueueSize
	eventRetentionSeconds
	eventMaxRows
	eventReplayLimit
	historyLimit
)

func defaultFlags() flagMap {
	return flagMap{
		listenAddress: "0.0.0.0",
		servicePort:   "8080",

		dbPath:            "./data/inventory.db",
		notificationsFile: "/etc/inventory/notifications.yaml",

		deviceTokens: "",
		uiToken:      "",
		allowUnauth:  "false",

		corsOrigins: "*",

		eventQueueSize:        "100",
		eventRetentionSeconds: "604800",
		eventMaxRows:          "10000",
		eventReplayLimit:      "500",
		historyLimit:          "2000",
	}
}

func main() {
	ctx, flags := parseExternalConfig(context.Background(), defaultFlags())

	serviceVersion := buildinfo.SourceVersion()
	ctx, logger, cleanup := o11y.Init(ctx, serviceName, serviceVersion, "json")
	defer cleanup()

	store, err := storage.New(flags[dbPath])
	exitIf(err, logger, "could not open database", "path", flags[dbPath])
	defer store.Close()

	notifier := events.NewNotifier(loadNotificationConfig(ctx, flags[notificationsFile]))

	broadcaster := events.NewBroadcaster(intFlag(flags, eventQueueSize))
	publisher := events.NewPublisher(store, broadcaster, notifier)

	authCfg := auth.Config{
		UIToken:              flags[uiToken],
		AllowUnauthenticated: flags[allowUnauth] == "true",
	}
	if flags[deviceTokens] != "" {
		authCfg.DeviceTokens = strings.Split(flags[deviceTokens], ",")
	}

	if authCfg.AllowUnauthenticated {
		logger.Warn("authentication is disabled, all requests will be accepted")
	}

	apiCfg := api.Config{
		Auth:             authCfg,
		EventReplayLimit: intFlag(flags, eventReplayLimit),
	}

	var origins []string
	if flags[corsOrigins] != "" {
		origins = strings.Split(flags[corsOrigins], ",")
	}

	mux := api.RegisterHandlers(ctx, router.New(serviceName, origins), apiCfg,
		ingest.New(store, publisher),
		inventory.New(store, intFlag(flags, historyLimit)),
		alerts.New(store, publisher),
		store, broadcaster,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	go pruneEventJournal(ctx, store,
		time.Duration(intFlag(flags, eventRetentionSeconds))*time.Second,
		intFlag(flags, eventMaxRows),
	)

	apiServer := &http.Server{
		Addr:    flags[listenAddress] + ":" + flags[servicePort],
		Handler: mux,
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		apiServer.Shutdown(shutdownCtx)
	}()

	logger.Info("starting to listen for incoming connections", "address", apiServer.Addr)

	err = apiServer.ListenAndServe()
	if !errors.Is(err, http.ErrServerClosed) {
		exitIf(err, logger, "failed to listen for incoming connections")
	}
}

func loadNotificationConfig(ctx context.Context, path string) *events.Config {
	log := logging.GetFromContext(ctx)

	f, err := os.Open(path)
	if err != nil {
		log.Debug("no notification config found", "path", path)
		return nil
	}
	defer f.Close()

	cfg, err := events.LoadConfig(f)
	if err != nil {
		log.Error("could not load notification config", "path", path, "err", err.Error())
		return nil
	}

	return cfg
}

func pruneEventJournal(ctx context.Context, store *storage.Store, retention time.Duration, maxRows int) {
	log := logging.GetFromContext(ctx)

	ticker := time.NewTicker(prunePeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := store.PruneEvents(ctx, retention, maxRows)
			if err != nil {
				log.Error("could not prune event journal", "err", err.Error())
			}
		}
	}
}

func intFlag(flags flagMap, f flagType) int {
	n, _ := strconv.Atoi(flags[f])
	return n
}

func parseExternalConfig(ctx context.Context, flags flagMap) (context.Context, flagMap) {
	// Allow environment variables to override certain defaults
	envOrDef := env.GetVariableOrDefault

	flags[listenAddress] = envOrDef(ctx, "LISTEN_ADDRESS", flags[listenAddress])
	flags[servicePort] = envOrDef(ctx, "SERVICE_PORT", flags[servicePort])

	flags[dbPath] = envOrDef(ctx, "INVENTORY_DB_PATH", flags[dbPath])
	flags[notificationsFile] = envOrDef(ctx, "NOTIFICATIONS_FILE", flags[notificationsFile])

	flags[deviceTokens] = envOrDef(ctx, "INVENTORY_DEVICE_TOKENS", flags[deviceTokens])
	flags[uiToken] = envOrDef(ctx, "INVENTORY_UI_TOKEN", flags[uiToken])
	flags[allowUnauth] = envOrDef(ctx, "INVENTORY_ALLOW_UNAUTH", flags[allowUnauth])

	flags[corsOrigins] = envOrDef(ctx, "INVENTORY_CORS_ORIGINS", flags[corsOrigins])

	flags[eventQueueSize] = envOrDef(ctx, "INVENTORY_EVENT_QUEUE_SIZE", flags[eventQueueSize])
	flags[eventRetentionSeconds] = envOrDef(ctx, "INVENTORY_EVENT_RETENTION_SECONDS", flags[eventRetentionSeconds])
	flags[eventMaxRows] = envOrDef(ctx, "INVENTORY_EVENT_MAX_ROWS", flags[eventMaxRows])
	flags[eventReplayLimit] = envOrDef(ctx, "INVENTORY_EVENT_REPLAY_LIMIT", flags[eventReplayLimit])
	flags[historyLimit] = envOrDef(ctx, "INVENTORY_HISTORY_LIMIT", flags[historyLimit])

	apply := func(f flagType) func(string) error {
		return func(value string) error {
			flags[f] = value
			return nil
		}
	}

	// Allow command line arguments to override defaults and environment variables
	flag.Func("db", "path to the sqlite database file", apply(dbPath))
	flag.Func("notifications", "path to the notification config file", apply(notificationsFile))
	flag.Func("devmode", "run without authentication", apply(allowUnauth))
	flag.Parse()

	return ctx, flags
}

func exitIf(err error, logger *slog.Logger, msg string, args ...any) {
	if err != nil {
		logger.With(args...).Error(msg, "err", err.Error())
		time.Sleep(2 * time.Second)
		os.Exit(1)
	}
}
