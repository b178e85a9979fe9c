package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"nhooyr.io/websocket"

	"veritynet/observability/logging"
	telemetry "veritynet/observability/otel"
)

const (
	dialTimeout    = 5 * time.Second
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
)

func main() {
	var (
		nodeURL string
		listen  string
		dbPath  string
	)
	flag.StringVar(&nodeURL, "node", "http://127.0.0.1:8080", "base URL of the veritynet node RPC server")
	flag.StringVar(&listen, "listen", ":8081", "address for the indexer query API")
	flag.StringVar(&dbPath, "db", "indexer.db", "path to the sqlite event database")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("VERITYNET_ENV"))
	logging.Setup("indexerd", env)
	logger := slog.Default()

	otlpEndpoint := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	otlpHeaders := telemetry.ParseHeaders(os.Getenv("OTEL_EXPORTER_OTLP_HEADERS"))
	insecure := true
	if value := strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_INSECURE")); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			insecure = parsed
		}
	}
	shutdownTelemetry, err := telemetry.Init(context.Background(), telemetry.Config{
		ServiceName: "indexerd",
		Environment: env,
		Endpoint:    otlpEndpoint,
		Insecure:    insecure,
		Headers:     otlpHeaders,
		Metrics:     true,
		Traces:      true,
	})
	if err != nil {
		log.Fatalf("indexerd: init telemetry: %v", err)
	}
	defer func() {
		if shutdownTelemetry != nil {
			_ = shutdownTelemetry(context.Background())
		}
	}()

	store, err := OpenStore(dbPath)
	if err != nil {
		log.Fatalf("indexerd: open store: %v", err)
	}
	defer store.Close()

	metrics := NewMetrics()

	httpServer := &http.Server{
		Addr:              listen,
		Handler:           newRouter(store, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go consumeEvents(stopCtx, nodeURL, store, metrics, logger)

	errs := make(chan error, 1)
	go func() {
		logger.Info("indexerd listening", "addr", listen, "node", nodeURL, "db", dbPath)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case <-stopCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			_ = httpServer.Close()
			log.Fatalf("indexerd: shutdown: %v", err)
		}
	case err := <-errs:
		if err != nil && err != http.ErrServerClosed {
			log.Fatalf("indexerd: serve: %v", err)
		}
	}
}

// consumeEvents keeps a websocket subscription against the node alive,
// resuming from the highest persisted sequence after every disconnect.
func consumeEvents(ctx context.Context, nodeURL string, store *Store, metrics *Metrics, logger *slog.Logger) {
	backoff := initialBackoff
	for {
		if ctx.Err() != nil {
			return
		}
		cursor, err := store.LastSeq()
		if err != nil {
			logger.Error("read resume cursor", "error", err)
		}
		indexed, err := streamOnce(ctx, nodeURL, cursor, store, metrics, logger)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			logger.Warn("event stream interrupted", "error", err, "retry_in", backoff)
		}
		if indexed > 0 {
			backoff = initialBackoff
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		metrics.RecordReconnect()
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

type streamEvent struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

// streamOnce dials the node event feed at the supplied cursor and persists
// events until the connection drops. It returns the number of new rows
// written during the session.
func streamOnce(ctx context.Context, nodeURL string, cursor uint64, store *Store, metrics *Metrics, logger *slog.Logger) (int, error) {
	target, err := streamURL(nodeURL, cursor)
	if err != nil {
		return 0, err
	}

	dialCtx, cancel := context.WithTimeout(ctx, dialTimeout)
	conn, _, err := websocket.Dial(dialCtx, target, nil)
	cancel()
	if err != nil {
		return 0, fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "indexer shutdown")

	indexed := 0
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return indexed, err
		}
		var evt streamEvent
		if err := json.Unmarshal(data, &evt); err != nil {
			logger.Warn("decode event", "error", err)
			continue
		}
		stored, err := store.SaveEvent(evt.Seq, evt.Type, evt.Attributes)
		if err != nil {
			return indexed, err
		}
		if !stored {
			metrics.RecordDuplicate()
			continue
		}
		indexed++
		metrics.RecordIndexed(evt.Seq)
		logger.Debug("indexed event", "seq", evt.Seq, "type", evt.Type)
	}
}

// streamURL rewrites the node base URL into the websocket event endpoint,
// carrying the resume cursor as a query parameter.
func streamURL(nodeURL string, cursor uint64) (string, error) {
	parsed, err := url.Parse(strings.TrimSpace(nodeURL))
	if err != nil {
		return "", fmt.Errorf("parse node url: %w", err)
	}
	wsURL := *parsed
	switch strings.ToLower(parsed.Scheme) {
	case "https":
		wsURL.Scheme = "wss"
	default:
		wsURL.Scheme = "ws"
	}
	wsURL.Path = "/ws/events"
	wsURL.RawQuery = ""
	if cursor > 0 {
		wsURL.RawQuery = "cursor=" + strconv.FormatUint(cursor, 10)
	}
	return wsURL.String(), nil
}
