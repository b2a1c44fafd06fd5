// SPDX-License-Identifier: AGPL-3.0-or-later

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/slugrunner/agent/internal/loghub"
	"github.com/slugrunner/agent/internal/logging"
	"github.com/slugrunner/agent/internal/registry"
)

const (
	attachWriteWait = 10 * time.Second
	attachPongWait  = 60 * time.Second
	attachPingEvery = (attachPongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The attach endpoint carries no session state worth protecting by
	// origin; slugrunner agents are reached by a trusted controller, not
	// directly by browsers.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// AttachConsole handles GET (WS) /attach-console/{slug}: it upgrades the
// connection and streams every subsequently published log line as one text
// frame per line, per spec's no-tail-replay contract.
func (h *Handler) AttachConsole(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	sub, err := h.registry.Subscribe(slug)
	if err != nil {
		if errors.Is(err, registry.ErrNotFound) {
			http.Error(w, "not-found", http.StatusNotFound)
			return
		}
		http.Error(w, "internal-error", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		sub.Close()
		ctx := logging.ContextWithSlug(r.Context(), slug)
		logging.CtxError(ctx).Err(err).Msg("websocket upgrade failed")
		return
	}

	go pumpAttachReads(conn, sub)
	pumpAttachWrites(conn, sub)
}

// pumpAttachReads discards inbound frames but keeps the read deadline
// advancing on pong responses, detaching the subscription once the client
// disconnects.
func pumpAttachReads(conn *websocket.Conn, sub *loghub.Subscription) {
	defer sub.Close()

	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(attachPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(attachPongWait))
	})

	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// pumpAttachWrites relays published lines to the client as text frames
// until the subscription closes or the connection breaks.
func pumpAttachWrites(conn *websocket.Conn, sub *loghub.Subscription) {
	ticker := time.NewTicker(attachPingEvery)
	defer func() {
		ticker.Stop()
		_ = conn.Close()
	}()

	for {
		select {
		case line, ok := <-sub.Lines:
			_ = conn.SetWriteDeadline(time.Now().Add(attachWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, []byte(line.Text)); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(attachWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
