package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/application/alerts"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/application/events"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/application/ingest"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/application/inventory"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/infrastructure/storage"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/presentation/api/auth"
	"github.com/esDesler/smart-home-inventory-system/pkg/types"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("smart-home-inventory/api")

// Config carries the presentation level settings that do not belong to any
// single application service.
type Config struct {
	Auth             auth.Config
	EventReplayLimit int
}

func RegisterHandlers(ctx context.Context, router *chi.Mux, cfg Config, ingestSvc ingest.IngestService, inventorySvc inventory.InventoryService, alertSvc alerts.AlertService, store *storage.Store, broadcaster *events.Broadcaster) *chi.Mux {

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	router.Handle("/metrics", promhttp.Handler())

	log := logging.GetFromContext(ctx)

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler())

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireDeviceToken(cfg.Auth))

			r.Post("/readings/batch", ingestBatchHandler(log, ingestSvc))
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireUIToken(cfg.Auth))

			r.Route("/items", func(r chi.Router) {
				r.Get("/", listItemsHandler(log, inventorySvc))
				r.Post("/", createItemHandler(log, inventorySvc))
				r.Get("/{itemID}", getItemHandler(log, inventorySvc))
				r.Put("/{itemID}", updateItemHandler(log, inventorySvc))
				r.Patch("/{itemID}", updateItemHandler(log, inventorySvc))
				r.Post("/{itemID}/thresholds", setThresholdsHandler(log, inventorySvc))
				r.Put("/{itemID}/thresholds", setThresholdsHandler(log, inventorySvc))
				r.Get("/{itemID}/history", itemHistoryHandler(log, inventorySvc))
			})

			r.Get("/alerts", listAlertsHandler(log, alertSvc))
			r.Post("/alerts/{alertID}/ack", acknowledgeAlertHandler(log, alertSvc))

			r.Get("/devices", listDevicesHandler(log, inventorySvc))
			r.Get("/sensors", listSensorsHandler(log, inventorySvc))

			r.Get("/stream", streamHandler(log, store, broadcaster, cfg.EventReplayLimit))
		})
	})

	return router
}

func healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondWithJSON(w, http.StatusOK, map[string]string{
			"status": "ok",
			"time":   time.Now().UTC().Format(time.RFC3339Nano),
		})
	}
}

func respondWithJSON(w http.ResponseWriter, statusCode int, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return err
	}

	w.Header().Add("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	w.Write(b)

	return nil
}

func ingestBatchHandler(log *slog.Logger, svc ingest.IngestService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "ingest-batch")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		body, err := io.ReadAll(r.Body)
		if err != nil {
			requestLogger.Error("unable to read body", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		var batch types.ReadingsBatch
		err = json.Unmarshal(body, &batch)
		if err != nil {
			requestLogger.Error("unable to unmarshal batch", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if batch.DeviceID == "" {
			requestLogger.Error("batch without device id")
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		response, err := svc.IngestBatch(ctx, batch)
		if errors.Is(err, ingest.ErrInvalidTimestamp) {
			requestLogger.Error("rejected batch", "device_id", batch.DeviceID, "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err != nil {
			requestLogger.Error("unable to ingest batch", "device_id", batch.DeviceID, "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		err = respondWithJSON(w, http.StatusOK, response)
		if err != nil {
			requestLogger.Error("unable to marshal response", "err", err.Error())
		}
	}
}

func listItemsHandler(log *slog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "list-items")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		items, err := svc.ListItems(ctx)
		if err != nil {
			requestLogger.Error("unable to list items", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		err = respondWithJSON(w, http.StatusOK, items)
		if err != nil {
			requestLogger.Error("unable to marshal items", "err", err.Error())
		}
	}
}

func createItemHandler(log *slog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "create-item")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		var input inventory.ItemInput
		err = json.NewDecoder(r.Body).Decode(&input)
		if err != nil {
			requestLogger.Error("unable to unmarshal body", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		item, err := svc.CreateItem(ctx, input)
		if err != nil {
			requestLogger.Error("unable to create item", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		err = respondWithJSON(w, http.StatusCreated, item)
		if err != nil {
			requestLogger.Error("unable to marshal item", "err", err.Error())
		}
	}
}

func getItemHandler(log *slog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "get-item")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		itemID := chi.URLParam(r, "itemID")
		if itemID != "" {
			requestLogger = requestLogger.With(slog.String("item_id", itemID))
		}

		details, err := svc.GetItem(ctx, itemID)
		if errors.Is(err, storage.ErrItemNotFound) {
			requestLogger.Debug("item not found")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			requestLogger.Error("unable to fetch item", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		err = respondWithJSON(w, http.StatusOK, details)
		if err != nil {
			requestLogger.Error("unable to marshal item", "err", err.Error())
		}
	}
}

func updateItemHandler(log *slog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "update-item")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		itemID := chi.URLParam(r, "itemID")
		if itemID != "" {
			requestLogger = requestLogger.With(slog.String("item_id", itemID))
		}

		var input inventory.ItemInput
		err = json.NewDecoder(r.Body).Decode(&input)
		if err != nil {
			requestLogger.Error("unable to unmarshal body", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		item, err := svc.UpdateItem(ctx, itemID, input)
		if errors.Is(err, storage.ErrItemNotFound) {
			requestLogger.Debug("item not found")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			requestLogger.Error("unable to update item", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		err = respondWithJSON(w, http.StatusOK, item)
		if err != nil {
			requestLogger.Error("unable to marshal item", "err", err.Error())
		}
	}
}

func setThresholdsHandler(log *slog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "set-thresholds")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		itemID := chi.URLParam(r, "itemID")
		if itemID != "" {
			requestLogger = requestLogger.With(slog.String("item_id", itemID))
		}

		var thresholds types.Thresholds
		err = json.NewDecoder(r.Body).Decode(&thresholds)
		if err != nil {
			requestLogger.Error("unable to unmarshal body", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		item, err := svc.SetThresholds(ctx, itemID, thresholds)
		if errors.Is(err, storage.ErrItemNotFound) {
			requestLogger.Debug("item not found")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			requestLogger.Error("unable to update thresholds", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		err = respondWithJSON(w, http.StatusOK, item)
		if err != nil {
			requestLogger.Error("unable to marshal item", "err", err.Error())
		}
	}
}

func itemHistoryHandler(log *slog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "item-history")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		itemID := chi.URLParam(r, "itemID")
		if itemID != "" {
			requestLogger = requestLogger.With(slog.String("item_id", itemID))
		}

		limit := 0
		if value := r.URL.Query().Get("limit"); value != "" {
			limit, err = strconv.Atoi(value)
			if err != nil || limit <= 0 {
				requestLogger.Debug("invalid history limit", "limit", value)
				w.WriteHeader(http.StatusBadRequest)
				return
			}
		}

		readings, err := svc.History(ctx, itemID, r.URL.Query().Get("range"), limit)
		if errors.Is(err, storage.ErrItemNotFound) {
			requestLogger.Debug("item not found")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if errors.Is(err, inventory.ErrInvalidRange) {
			requestLogger.Debug("invalid history range", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if err != nil {
			requestLogger.Error("unable to fetch history", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		err = respondWithJSON(w, http.StatusOK, readings)
		if err != nil {
			requestLogger.Error("unable to marshal readings", "err", err.Error())
		}
	}
}

func listAlertsHandler(log *slog.Logger, svc alerts.AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "list-alerts")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		result, err := svc.List(ctx, r.URL.Query().Get("status"))
		if err != nil {
			requestLogger.Error("unable to list alerts", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		err = respondWithJSON(w, http.StatusOK, result)
		if err != nil {
			requestLogger.Error("unable to marshal alerts", "err", err.Error())
		}
	}
}

func acknowledgeAlertHandler(log *slog.Logger, svc alerts.AlertService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "acknowledge-alert")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		id := chi.URLParam(r, "alertID")
		if id != "" {
			requestLogger = requestLogger.With(slog.String("alert_id", id))
		}

		alertID, err := strconv.ParseUint(id, 10, 32)
		if err != nil {
			requestLogger.Error("alert id is invalid", "err", err.Error())
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		err = svc.Acknowledge(ctx, uint(alertID))
		if errors.Is(err, storage.ErrAlertNotFound) {
			requestLogger.Debug("alert not found or not active")
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if err != nil {
			requestLogger.Error("unable to acknowledge alert", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listDevicesHandler(log *slog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "list-devices")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		devices, err := svc.ListDevices(ctx)
		if err != nil {
			requestLogger.Error("unable to list devices", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		err = respondWithJSON(w, http.StatusOK, devices)
		if err != nil {
			requestLogger.Error("unable to marshal devices", "err", err.Error())
		}
	}
}

func listSensorsHandler(log *slog.Logger, svc inventory.InventoryService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error
		defer r.Body.Close()

		ctx, span := tracer.Start(r.Context(), "list-sensors")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		sensors, err := svc.ListSensors(ctx)
		if err != nil {
			requestLogger.Error("unable to list sensors", "err", err.Error())
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		err = respondWithJSON(w, http.StatusOK, sensors)
		if err != nil {
			requestLogger.Error("unable to marshal sensors", "err", err.Error())
		}
	}
}
