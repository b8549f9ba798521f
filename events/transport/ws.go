// Package transport hosts the websocket surface of the events package: one
// connection per observer, Events flowing out as JSON text frames and
// Commands flowing in the same way (spec §4.5). Grounded on the teacher's
// agent/streaming websocket adapter shape, rewritten against this module's
// declared transport dependency and the Event/Command wire types instead of
// StreamChunk.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/fwornle/kg-orchestrator/events"
)

// Handler serves the events websocket endpoint: on connect it reads the
// Authorization header once, subscribes to the Hub, replays recent history,
// then pumps Events out and Commands in concurrently until the connection
// closes. The connection itself is not authenticated; when an Authenticator
// is set, each inbound Command is authorized against that header value
// before it is dispatched.
type Handler struct {
	hub      *events.Hub
	dispatch func(events.Command) error
	auth     *events.Authenticator
	logger   *zap.Logger
}

// NewHandler constructs a websocket Handler. dispatch is typically
// events.Dispatch bound to a concrete *orchestrator.Orchestrator; it is
// taken as a plain func so this package never imports orchestrator
// directly.
func NewHandler(hub *events.Hub, dispatch func(events.Command) error, auth *events.Authenticator, logger *zap.Logger) *Handler {
	return &Handler{hub: hub, dispatch: dispatch, auth: auth, logger: logger.With(zap.String("component", "events_ws"))}
}

// ServeHTTP upgrades the request to a websocket connection and pumps
// Events/Commands until it closes or the request context is cancelled.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer conn.CloseNow()

	workflowID := r.URL.Query().Get("workflowId")
	subscriberID := fmt.Sprintf("%s-%d", workflowID, time.Now().UnixNano())
	outbound, unsubscribe := h.hub.Subscribe(subscriberID)
	defer unsubscribe()

	ctx := r.Context()

	for _, ev := range h.hub.Replay(ctx, workflowID, 50) {
		if err := h.writeEvent(ctx, conn, ev); err != nil {
			return
		}
	}

	errCh := make(chan error, 2)
	go h.pumpOutbound(ctx, conn, outbound, errCh)
	go h.pumpInbound(ctx, conn, r.Header.Get("Authorization"), errCh)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			h.logger.Debug("events connection closed", zap.Error(err))
		}
	}
}

func (h *Handler) pumpOutbound(ctx context.Context, conn *websocket.Conn, outbound <-chan events.Event, errCh chan<- error) {
	for {
		select {
		case ev, ok := <-outbound:
			if !ok {
				errCh <- nil
				return
			}
			if err := h.writeEvent(ctx, conn, ev); err != nil {
				errCh <- err
				return
			}
		case <-ctx.Done():
			errCh <- ctx.Err()
			return
		}
	}
}

func (h *Handler) pumpInbound(ctx context.Context, conn *websocket.Conn, bearerToken string, errCh chan<- error) {
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			errCh <- err
			return
		}
		var cmd events.Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			h.logger.Warn("dropping malformed command frame", zap.Error(err))
			continue
		}
		if err := cmd.Validate(); err != nil {
			h.logger.Warn("dropping invalid command", zap.Error(err))
			continue
		}
		if h.auth != nil {
			if err := h.auth.Authorize(cmd, bearerToken); err != nil {
				h.logger.Warn("rejecting unauthorized command", zap.String("type", string(cmd.Type)))
				continue
			}
		}
		if err := h.dispatch(cmd); err != nil {
			h.logger.Warn("command dispatch failed", zap.Error(err))
		}
	}
}

func (h *Handler) writeEvent(ctx context.Context, conn *websocket.Conn, ev events.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal outbound event: %w", err)
	}
	return conn.Write(ctx, websocket.MessageText, data)
}
