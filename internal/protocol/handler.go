// Package protocol implements the Protocol Handler: one instance per live
// websocket connection, decoding inbound frames, dispatching them to typed
// handlers, and owning the per-session keep-alive.
package protocol

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"waterhub/internal/hub"
	"waterhub/internal/notification"
	"waterhub/internal/router"
	"waterhub/internal/store"
)

// state is the Protocol Handler's per-session state machine.
type state int

const (
	stateUnbound state = iota
	stateDevice
	stateDashboard
	stateClosed
)

// Handler drives a single websocket connection from on_open to close. It
// must be run from exactly one goroutine (its reader loop). Other goroutines
// also write to the connection: the keep-alive ticker (pings) and, through
// the session's Transport, Hub broadcasts, Router sends, and closes from a
// superseding session or the sweeper.
type Handler struct {
	conn      *wsConn
	hub       *hub.Hub
	router    *router.Router
	store     store.Store
	notifier  *notification.WorkerPool
	logger    *log.Logger
	serverTag string

	state      state
	handle     string
	deviceSess *hub.DeviceSession
	dashSess   *hub.DashboardSession
}

// New wraps raw as a Handler. serverTag is echoed in every outbound
// envelope's "server" field.
func New(raw *websocket.Conn, h *hub.Hub, r *router.Router, st store.Store, notifier *notification.WorkerPool, logger *log.Logger, serverTag string) *Handler {
	return &Handler{
		conn:      newWSConn(raw, serverTag),
		hub:       h,
		router:    r,
		store:     st,
		notifier:  notifier,
		logger:    logger,
		serverTag: serverTag,
		state:     stateUnbound,
		handle:    uuid.NewString(),
	}
}

// Serve runs the connection until it closes. It sends the connected hello,
// starts the keep-alive ping, and then reads frames until the underlying
// transport errors; cancelling ctx stops the keep-alive ping but does not
// end the read loop.
func (h *Handler) Serve(ctx context.Context, remoteAddr string) {
	defer h.onClose("closed")

	if err := h.conn.Send("connected", map[string]any{
		"server":  h.serverTag,
		"addr":    remoteAddr,
		"version": 1,
	}); err != nil {
		h.logger.Printf("session %s: hello failed: %v", h.handle, err)
		return
	}

	pingCtx, stopPing := context.WithCancel(ctx)
	defer stopPing()
	go h.keepAlive(pingCtx)

	h.conn.conn.SetPongHandler(func(string) error {
		h.touch()
		return nil
	})

	for {
		_, raw, err := h.conn.conn.ReadMessage()
		if err != nil {
			return
		}
		h.touch()
		h.dispatch(ctx, raw, remoteAddr)
	}
}

func (h *Handler) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.conn.ping(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) touch() {
	now := time.Now()
	switch h.state {
	case stateDevice:
		h.hub.Touch(h.deviceSess, now)
	case stateDashboard:
		h.hub.Touch(h.dashSess, now)
	}
}

// dispatch decodes raw as an InboundFrame and routes it through the
// message-type table. A decode failure or an unknown type yields an error
// frame, never a close — §4.C's protocol-error policy.
func (h *Handler) dispatch(ctx context.Context, raw []byte, remoteAddr string) {
	if len(raw) == 0 || raw[0] != '{' {
		h.sendError("malformed frame: expected a JSON object", nil)
		return
	}

	var frame InboundFrame
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.sendError(fmt.Sprintf("malformed frame: %v", err), nil)
		return
	}

	entry, ok := dispatchTable[frame.Type]
	if !ok {
		h.sendError(fmt.Sprintf("unknown message type %q", frame.Type), supportedTypes())
		return
	}

	if err := entry.handle(ctx, h, frame.Data, remoteAddr); err != nil {
		h.sendError(err.Error(), nil)
	}
}

func (h *Handler) sendError(message string, supported []string) {
	_ = h.conn.Send("error", ErrorPayload{Error: message, Supported: supported})
}

// onClose runs exactly once, when Serve returns for any reason: a failed
// hello or a read error (including a close by the peer or by this process).
// It drops whatever session
// kind was bound and mirrors the disconnect.
func (h *Handler) onClose(reason string) {
	h.state = stateClosed

	switch {
	case h.deviceSess != nil:
		res := h.hub.Drop(h.deviceSess)
		if !res.WasDevice {
			return // already superseded; the superseding session owns the broadcast
		}
		ctx := context.Background()
		idle := "idle"
		offline := false
		_ = h.store.SetDeviceStatus(ctx, res.DeviceID, &offline, &idle, time.Now())
		count := h.router.BroadcastToDashboards("device_disconnected", map[string]any{
			"deviceId": res.DeviceID,
			"reason":   reason,
		})
		if count == 0 && h.notifier != nil {
			h.notifier.Dispatch(notification.Job{DeviceID: res.DeviceID, Kind: "device_disconnected", Message: "Device " + res.DeviceID + " went offline unexpectedly."})
		}
	case h.dashSess != nil:
		h.hub.Drop(h.dashSess)
	}
}
