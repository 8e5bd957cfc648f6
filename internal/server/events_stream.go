package server

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/aristath/shopkeeper/internal/events"
)

const (
	streamBuffer       = 100
	streamHeartbeat    = 30 * time.Second
	streamWriteTimeout = 5 * time.Second
)

// streamMessage is one websocket frame
type streamMessage struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// JobStreamHandler pushes every finished job run to websocket clients
type JobStreamHandler struct {
	bus *events.Bus
	log zerolog.Logger
}

// NewJobStreamHandler creates a new stream handler
func NewJobStreamHandler(bus *events.Bus, log zerolog.Logger) *JobStreamHandler {
	return &JobStreamHandler{
		bus: bus,
		log: log.With().Str("component", "job_stream").Logger(),
	}
}

// ServeHTTP handles GET /api/jobs/stream
func (h *JobStreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.bus == nil {
		http.Error(w, "Event stream not available", http.StatusServiceUnavailable)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.log.Warn().Err(err).Msg("Failed to accept websocket")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "stream closed")

	// The client only listens; CloseRead handles control frames and
	// cancels ctx once the peer goes away
	ctx := conn.CloseRead(r.Context())

	eventChan := make(chan *events.Event, streamBuffer)
	unsubscribe := h.bus.Subscribe(events.JobRunFinished, func(e *events.Event) {
		// Non-blocking send (drop if channel full)
		select {
		case eventChan <- e:
		default:
			h.log.Warn().
				Str("event_type", string(e.Type)).
				Msg("Stream client too slow, dropping event")
		}
	})
	defer unsubscribe()

	h.log.Info().Str("remote", r.RemoteAddr).Msg("Client connected to job stream")

	if err := h.write(ctx, conn, streamMessage{Type: "connected", Timestamp: time.Now()}); err != nil {
		return
	}

	heartbeat := time.NewTicker(streamHeartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Info().Msg("Client disconnected from job stream")
			conn.Close(websocket.StatusNormalClosure, "")
			return

		case e := <-eventChan:
			msg := streamMessage{Type: string(e.Type), Timestamp: e.Timestamp, Data: e.Data}
			if err := h.write(ctx, conn, msg); err != nil {
				h.log.Debug().Err(err).Msg("Failed to write to job stream")
				return
			}

		case <-heartbeat.C:
			pingCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				h.log.Debug().Err(err).Msg("Job stream heartbeat failed")
				return
			}
		}
	}
}

func (h *JobStreamHandler) write(ctx context.Context, conn *websocket.Conn, msg streamMessage) error {
	writeCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(writeCtx, conn, msg)
}
