package handlers

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/walink/walink/internal/pairing"
	"github.com/walink/walink/internal/protocol"
	"github.com/walink/walink/internal/session"
	"github.com/walink/walink/pkg/logger"
	"github.com/walink/walink/pkg/types"
)

type SessionHandler struct {
	controller *session.Controller
	db         *sql.DB
}

func NewSessionHandler(controller *session.Controller, db *sql.DB) *SessionHandler {
	return &SessionHandler{
		controller: controller,
		db:         db,
	}
}

func toStatusResponse(snap session.Snapshot) types.StatusResponse {
	return types.StatusResponse{
		Status:               string(snap.Status),
		HasPairingPayload:    snap.HasPairingPayload,
		RetryCount:           snap.RetryCount,
		AutoReconnectEnabled: snap.AutoReconnectEnabled,
	}
}

// GetStatus handles GET /v1/status
func (h *SessionHandler) GetStatus(c *gin.Context) {
	c.JSON(http.StatusOK, toStatusResponse(h.controller.Status()))
}

// PostInit handles POST /v1/init. The connect procedure runs asynchronously;
// a repeated init while starting or running is a no-op returning the
// current status.
func (h *SessionHandler) PostInit(c *gin.Context) {
	c.JSON(http.StatusAccepted, toStatusResponse(h.controller.Init()))
}

// GetPairing handles GET /v1/pairing
func (h *SessionHandler) GetPairing(c *gin.Context) {
	code, state := h.controller.PairingPayload()

	switch state {
	case session.PairingReady:
		if logger.Enabled(logger.LevelDebug) {
			if art, err := pairing.RenderASCII(code); err == nil {
				logger.Debugf("[api] scan to link:\n%s", art)
			}
		}
		png, err := pairing.RenderPNG(code)
		if err != nil {
			logger.Warnf("[api] failed to render pairing QR: %v", err)
			c.JSON(http.StatusOK, types.PairingResponse{Code: code})
			return
		}
		c.JSON(http.StatusOK, types.PairingResponse{Code: code, QRPNG: png})
	case session.PairingNotNeeded:
		c.JSON(http.StatusOK, types.PairingResponse{Linked: true})
	case session.PairingPending:
		c.JSON(http.StatusAccepted, types.ErrorResponse{Error: "pairing code not ready yet"})
	default:
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "session not initialized; call init first"})
	}
}

// PostSend handles POST /v1/send
func (h *SessionHandler) PostSend(c *gin.Context) {
	var req types.SendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: err.Error()})
		return
	}
	if req.Text == "" && req.MediaURL == "" {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "one of text or mediaUrl is required"})
		return
	}

	payload := protocol.Payload{Text: req.Text, MediaURL: req.MediaURL}
	id, err := h.controller.Send(c.Request.Context(), req.Recipient, payload)
	if err != nil {
		if errors.Is(err, session.ErrNotConnected) {
			c.JSON(http.StatusConflict, types.ErrorResponse{Error: "session is not connected"})
			return
		}
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: err.Error()})
		return
	}

	h.recordDelivery(c, id, req.Recipient, payload.Kind())
	c.JSON(http.StatusOK, types.SendResponse{DeliveryID: id})
}

// PostReconnect handles POST /v1/reconnect
func (h *SessionHandler) PostReconnect(c *gin.Context) {
	snap := h.controller.Reconnect(c.Request.Context())
	c.JSON(http.StatusOK, toStatusResponse(snap))
}

// PostDisconnect handles POST /v1/disconnect
func (h *SessionHandler) PostDisconnect(c *gin.Context) {
	snap, already := h.controller.Disconnect(c.Request.Context())
	if already {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "already disconnected"})
		return
	}
	c.JSON(http.StatusOK, toStatusResponse(snap))
}

// PostAutoReconnect handles POST /v1/auto-reconnect
func (h *SessionHandler) PostAutoReconnect(c *gin.Context) {
	var req types.AutoReconnectRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		c.JSON(http.StatusBadRequest, types.ErrorResponse{Error: "body must be {\"enabled\": true|false}"})
		return
	}
	c.JSON(http.StatusOK, toStatusResponse(h.controller.SetAutoReconnect(*req.Enabled)))
}

// ListDeliveries handles GET /v1/messages
func (h *SessionHandler) ListDeliveries(c *gin.Context) {
	limit := int64(50)
	if limitStr := c.Query("limit"); limitStr != "" {
		if l, err := strconv.ParseInt(limitStr, 10, 64); err == nil && l > 0 && l <= 200 {
			limit = l
		}
	}

	rows, err := h.db.QueryContext(c.Request.Context(), `
		SELECT id, recipient, kind, created_at FROM outbound_deliveries
		ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to list deliveries"})
		return
	}
	defer rows.Close()

	deliveries := make([]types.DeliveryRecord, 0, limit)
	for rows.Next() {
		var d types.DeliveryRecord
		if err := rows.Scan(&d.ID, &d.Recipient, &d.Kind, &d.CreatedAt); err != nil {
			c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to scan delivery"})
			return
		}
		deliveries = append(deliveries, d)
	}
	if err := rows.Err(); err != nil {
		c.JSON(http.StatusInternalServerError, types.ErrorResponse{Error: "failed to list deliveries"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"deliveries": deliveries})
}

// recordDelivery appends to the outbound delivery log. Failures are logged,
// not surfaced: the message already left.
func (h *SessionHandler) recordDelivery(c *gin.Context, id, recipient, kind string) {
	_, err := h.db.ExecContext(c.Request.Context(), `
		INSERT INTO outbound_deliveries (id, recipient, kind, created_at) VALUES (?, ?, ?, ?)`,
		id, recipient, kind, time.Now().UnixMilli())
	if err != nil {
		logger.Warnf("[api] failed to record delivery %s: %v", id, err)
	}
}
