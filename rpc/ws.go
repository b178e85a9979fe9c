package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"nhooyr.io/websocket"

	"veritynet/core"
	"veritynet/core/types"
	"veritynet/observability"
)

const wsWriteTimeout = 10 * time.Second

// eventEnvelope is the wire form of one committed event on the feed.
type eventEnvelope struct {
	Seq        uint64            `json:"seq"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// eventPayloadCarrier is implemented by typed events that expose an attribute
// map for external consumers.
type eventPayloadCarrier interface {
	Event() *types.Event
}

// handleEventsWS upgrades the connection and streams committed events in
// sequence order. The cursor query parameter resumes the feed after the given
// sequence number, bounded by the node's retained history.
func (s *Server) handleEventsWS(w http.ResponseWriter, r *http.Request) {
	if s == nil || s.node == nil {
		http.Error(w, "node unavailable", http.StatusServiceUnavailable)
		return
	}
	cursor := uint64(0)
	if raw := strings.TrimSpace(r.URL.Query().Get("cursor")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			http.Error(w, "invalid cursor", http.StatusBadRequest)
			return
		}
		cursor = parsed
	}
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: []string{"*"}})
	if err != nil {
		return
	}
	defer conn.Close(websocket.StatusNormalClosure, "stream closed")
	if err := s.streamEvents(r.Context(), conn, cursor); err != nil {
		if status := websocket.CloseStatus(err); status == -1 {
			_ = conn.Close(websocket.StatusInternalError, "stream error")
		}
	}
}

func (s *Server) streamEvents(ctx context.Context, conn *websocket.Conn, cursor uint64) error {
	updates, cancel, backlog := s.node.Subscribe(cursor)
	defer cancel()

	metrics := observability.Stream()
	metrics.ClientConnected()
	defer metrics.ClientDisconnected()

	lastSeq := cursor
	for _, evt := range backlog {
		if err := writeSequencedEvent(ctx, conn, evt); err != nil {
			metrics.RecordDrop("write_error")
			return err
		}
		metrics.RecordDelivery()
		lastSeq = evt.Seq
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case evt, ok := <-updates:
			if !ok {
				return nil
			}
			if lastSeq != 0 && evt.Seq > lastSeq+1 {
				// A sequence gap means the subscriber channel overflowed.
				for missed := evt.Seq - lastSeq - 1; missed > 0; missed-- {
					metrics.RecordDrop("subscriber_lag")
				}
			}
			if err := writeSequencedEvent(ctx, conn, evt); err != nil {
				metrics.RecordDrop("write_error")
				return err
			}
			metrics.RecordDelivery()
			lastSeq = evt.Seq
		}
	}
}

func writeSequencedEvent(ctx context.Context, conn *websocket.Conn, evt core.SequencedEvent) error {
	envelope := eventEnvelope{Seq: evt.Seq}
	if evt.Event != nil {
		envelope.Type = evt.Event.EventType()
		if carrier, ok := evt.Event.(eventPayloadCarrier); ok {
			if payload := carrier.Event(); payload != nil {
				envelope.Attributes = payload.Attributes
			}
		}
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}
