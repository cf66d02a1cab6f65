package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/Harshitk-cp/verdict/internal/domain"
	"github.com/Harshitk-cp/verdict/internal/events"
	"github.com/Harshitk-cp/verdict/internal/service"
	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"
)

const (
	streamBuffer       = 16
	streamWriteTimeout = 5 * time.Second
)

// StreamHandler pushes a case's turn events to websocket observers.
type StreamHandler struct {
	svc     *service.DeliberationService
	hub     *events.Hub
	origins []string
	logger  *zap.Logger
}

func NewStreamHandler(svc *service.DeliberationService, hub *events.Hub, origins []string, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{svc: svc, hub: hub, origins: origins, logger: logger}
}

func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	id, ok := caseIDParam(w, r)
	if !ok {
		return
	}
	view, err := h.svc.GetCase(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Debug("websocket accept failed", zap.Error(err))
		return
	}
	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	sub := h.hub.Subscribe(id, streamBuffer)
	defer h.hub.Unsubscribe(sub)

	ready := domain.CaseEvent{Type: domain.EventStreamReady, CaseID: id, RemainingTurns: view.RemainingTurns}
	if err := h.write(ctx, conn, ready); err != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
		return
	}

	// Observers never send; reading surfaces client disconnects.
	readErr := make(chan error, 1)
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				readErr <- err
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case <-readErr:
			_ = conn.Close(websocket.StatusNormalClosure, "closed")
			return
		case evt, ok := <-sub.C:
			if !ok {
				_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, conn, evt); err != nil {
				_ = conn.Close(websocket.StatusNormalClosure, "write_failed")
				return
			}
		}
	}
}

func (h *StreamHandler) write(ctx context.Context, conn *websocket.Conn, evt domain.CaseEvent) error {
	ctx, cancel := context.WithTimeout(ctx, streamWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, evt)
}
