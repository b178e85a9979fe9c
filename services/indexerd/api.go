package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type apiEvent struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	EntityID   uint64            `json:"entityId,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
	IndexedAt  time.Time         `json:"indexedAt"`
}

type statusResponse struct {
	LastSeq uint64 `json:"lastSeq"`
	Events  int64  `json:"events"`
}

// newRouter exposes the indexed event log plus health and metrics endpoints.
func newRouter(store *Store, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Method(http.MethodGet, "/status", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		lastSeq, err := store.LastSeq()
		if err != nil {
			logger.Error("read last seq", "error", err)
			http.Error(w, "storage unavailable", http.StatusInternalServerError)
			return
		}
		count, err := store.CountEvents()
		if err != nil {
			logger.Error("count events", "error", err)
			http.Error(w, "storage unavailable", http.StatusInternalServerError)
			return
		}
		writeJSON(w, statusResponse{LastSeq: lastSeq, Events: count})
	}), "indexerd.status"))

	r.Method(http.MethodGet, "/events", otelhttp.NewHandler(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		filter, err := filterFromQuery(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		records, err := store.ListEvents(filter)
		if err != nil {
			logger.Error("list events", "error", err)
			http.Error(w, "storage unavailable", http.StatusInternalServerError)
			return
		}
		out := make([]apiEvent, 0, len(records))
		for _, record := range records {
			out = append(out, recordToAPI(record))
		}
		writeJSON(w, out)
	}), "indexerd.events"))

	r.Handle("/metrics", promhttp.Handler())

	return r
}

func filterFromQuery(r *http.Request) (EventFilter, error) {
	filter := EventFilter{Type: strings.TrimSpace(r.URL.Query().Get("type"))}
	if raw := strings.TrimSpace(r.URL.Query().Get("entity")); raw != "" {
		entity, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return EventFilter{}, errBadQuery("entity")
		}
		filter.EntityID = entity
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("after")); raw != "" {
		after, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			return EventFilter{}, errBadQuery("after")
		}
		filter.AfterSeq = after
	}
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			return EventFilter{}, errBadQuery("limit")
		}
		filter.Limit = limit
	}
	return filter, nil
}

type badQueryError string

func errBadQuery(param string) error { return badQueryError(param) }

func (e badQueryError) Error() string { return "invalid query parameter: " + string(e) }

func recordToAPI(record EventRecord) apiEvent {
	event := apiEvent{
		Seq:       record.Seq,
		Type:      record.Type,
		EntityID:  record.EntityID,
		IndexedAt: record.IndexedAt,
	}
	if record.Attributes != "" {
		attributes := make(map[string]string)
		if err := json.Unmarshal([]byte(record.Attributes), &attributes); err == nil {
			event.Attributes = attributes
		}
	}
	return event
}

func writeJSON(w http.ResponseWriter, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
