package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/hershield/hershield/internal/api/middleware"
	"github.com/hershield/hershield/internal/api/models"
	"github.com/hershield/hershield/internal/journey"
)

const (
	streamPingInterval = 30 * time.Second
	streamWriteTimeout = 5 * time.Second
	streamReadLimit    = 4096
)

// StreamHandler serves the monitoring websocket. The client sends position
// ticks and receives one tick result per message, so a phone keeps a single
// connection open for the length of a journey.
type StreamHandler struct {
	journeys       *journey.Manager
	originPatterns []string
	logger         zerolog.Logger
}

// NewStreamHandler creates a new StreamHandler. originPatterns are passed to
// websocket.AcceptOptions; nil allows only same-origin browser clients.
func NewStreamHandler(journeys *journey.Manager, originPatterns []string, logger zerolog.Logger) *StreamHandler {
	return &StreamHandler{
		journeys:       journeys,
		originPatterns: originPatterns,
		logger:         logger.With().Str("component", "monitoring_stream").Logger(),
	}
}

// ServeWS handles GET /v1/monitoring/stream.
func (h *StreamHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.logger.Warn().Err(err).Msg("websocket accept failed")
		return
	}
	conn.SetReadLimit(streamReadLimit)

	j := userJourney(h.journeys, r)
	logger := h.logger.With().Str("user_id", middleware.GetUserID(r.Context())).Logger()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	logger.Debug().Msg("monitoring stream opened")

	if err := h.write(ctx, conn, models.StreamMessage{
		Type:    models.StreamTypeSnapshot,
		Payload: toMonitoringStatus(j.Monitoring(), j.Monitor()),
	}); err != nil {
		conn.CloseNow()
		return
	}

	go h.keepAlive(ctx, conn)

	status, reason := h.readLoop(ctx, conn, j, logger)
	conn.Close(status, reason)
	logger.Debug().Msg("monitoring stream closed")
}

func (h *StreamHandler) readLoop(ctx context.Context, conn *websocket.Conn, j *journey.Journey, logger zerolog.Logger) (websocket.StatusCode, string) {
	for {
		var msg models.StreamRequest
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			// wsjson closes the connection itself on malformed JSON.
			if websocket.CloseStatus(err) == -1 {
				logger.Debug().Err(err).Msg("websocket read error")
			}
			return websocket.StatusNormalClosure, ""
		}

		var reply models.StreamMessage
		switch msg.Type {
		case models.StreamTypePing:
			reply = models.StreamMessage{Type: models.StreamTypePong}
		case models.StreamTypeTick:
			reply = h.tick(ctx, j, msg.Payload)
		default:
			reply = streamError(http.StatusBadRequest, "unknown message type "+msg.Type)
		}

		if err := h.write(ctx, conn, reply); err != nil {
			return websocket.StatusInternalError, ""
		}
	}
}

func (h *StreamHandler) tick(ctx context.Context, j *journey.Journey, payload json.RawMessage) models.StreamMessage {
	var input models.TickRequest
	if len(payload) == 0 || json.Unmarshal(payload, &input) != nil {
		return streamError(http.StatusBadRequest, "tick payload must be {\"lat\":..,\"lon\":..}")
	}
	pos, fieldErrs := tickPosition(input)
	if len(fieldErrs) > 0 {
		return streamError(http.StatusBadRequest, "lat and lon are required")
	}

	res, err := j.Tick(ctx, pos)
	if err != nil {
		status, detail := errorStatus(err)
		return streamError(status, detail)
	}
	return models.StreamMessage{Type: models.StreamTypeTick, Payload: toTickResponse(res)}
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, msg models.StreamMessage) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}

func (h *StreamHandler) keepAlive(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(streamPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
			err := conn.Ping(pingCtx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

func streamError(status int, detail string) models.StreamMessage {
	return models.StreamMessage{
		Type:    models.StreamTypeError,
		Payload: models.StreamError{Status: status, Detail: detail},
	}
}
