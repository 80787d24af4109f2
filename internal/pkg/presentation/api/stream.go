package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"log/slog"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y"
	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/tracing"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/application/events"
	"github.com/esDesler/smart-home-inventory-system/internal/pkg/infrastructure/storage"
)

const keepaliveInterval = 15 * time.Second

// streamHandler serves the live event stream over server sent events. A
// reconnecting client presents the id of the last event it saw, either in
// the Last-Event-ID header or as a last_event_id query parameter, and gets
// the journaled events it missed before going live. Replay is bounded by
// replayLimit; clients that fell further behind should refetch current
// state from the query endpoints instead.
func streamHandler(log *slog.Logger, store *storage.Store, broadcaster *events.Broadcaster, replayLimit int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error

		ctx, span := tracer.Start(r.Context(), "event-stream")
		defer func() { tracing.RecordAnyErrorAndEndSpan(err, span) }()
		_, ctx, requestLogger := o11y.AddTraceIDToLoggerAndStoreInContext(span, log, ctx)

		flusher, ok := w.(http.Flusher)
		if !ok {
			requestLogger.Error("response writer does not support streaming")
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)

		lastEventID := parseLastEventID(r)
		if lastEventID > 0 {
			missed, err := store.EventsSince(ctx, lastEventID, replayLimit)
			if err != nil {
				requestLogger.Error("unable to replay journal", "err", err.Error())
			}

			for _, event := range missed {
				writeEvent(w, event.ID, []byte(event.Payload))
			}
		}

		sub := broadcaster.Subscribe()
		defer broadcaster.Unsubscribe(sub)

		requestLogger.Debug("stream subscriber connected", "replay_from", lastEventID)

		flusher.Flush()

		keepalive := time.NewTicker(keepaliveInterval)
		defer keepalive.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case envelope, open := <-sub.Events():
				if !open {
					return
				}
				writeEvent(w, envelope.EventID, envelope.Payload)
				flusher.Flush()
			case <-keepalive.C:
				fmt.Fprint(w, ": keepalive\n\n")
				flusher.Flush()
			}
		}
	}
}

func writeEvent(w http.ResponseWriter, eventID uint, payload []byte) {
	if eventID > 0 {
		fmt.Fprintf(w, "id: %d\n", eventID)
	}
	fmt.Fprintf(w, "data: %s\n\n", payload)
}

func parseLastEventID(r *http.Request) uint {
	value := r.Header.Get("Last-Event-ID")
	if value == "" {
		value = r.URL.Query().Get("last_event_id")
	}
	if value == "" {
		return 0
	}

	id, err := strconv.ParseUint(value, 10, 32)
	if err != nil {
		return 0
	}

	return uint(id)
}
