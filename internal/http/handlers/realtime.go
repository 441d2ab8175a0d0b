package handlers

import (
	"log/slog"

	"github.com/geocoder89/docman/internal/http/middlewares"
	"github.com/geocoder89/docman/internal/realtime"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type RealtimeHandler struct {
	hub      *realtime.Hub
	upgrader *websocket.Upgrader
	log      *slog.Logger
}

func NewRealtimeHandler(hub *realtime.Hub, upgrader *websocket.Upgrader, log *slog.Logger) *RealtimeHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RealtimeHandler{hub: hub, upgrader: upgrader, log: log}
}

// GET /docman/rtc
func (h *RealtimeHandler) Connect(ctx *gin.Context) {
	viewer := middlewares.ViewerFromContext(ctx)

	// the upgrader has already written an HTTP error on failure
	if err := h.hub.ServeWS(h.upgrader, ctx.Writer, ctx.Request, viewer); err != nil {
		h.log.WarnContext(ctx.Request.Context(), "realtime.upgrade_failed", "err", err)
		return
	}

	h.log.DebugContext(ctx.Request.Context(), "realtime.connected", "anonymous", !viewer.Authenticated())
}
