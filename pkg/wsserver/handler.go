// Package wsserver implements the connection handler (C9): it upgrades the
// HTTP request, checks the connecting Origin against an allowlist, and hands
// the resulting socket off to a fresh session.Session.
package wsserver

import (
	"log"
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"

	"asrgateway/pkg/session"
)

// Handler upgrades GET /api/ws requests, the same role
// *persistent.PersistentAudioHandler plays in the wider example pack, here
// with the origin check the spec requires and a fresh session.Session per
// connection rather than a shared connection registry.
type Handler struct {
	upgrader       websocket.Upgrader
	allowedOrigins map[string]bool
	sessionDeps    session.Deps
}

// NewHandler builds a Handler whose origin allowlist is derived from
// CLERK_AUTHORIZED_PARTIES plus localhost/127.0.0.1, per §4.7.
func NewHandler(authorizedOrigins []string, deps session.Deps) *Handler {
	allowed := make(map[string]bool, len(authorizedOrigins)+2)
	for _, o := range authorizedOrigins {
		if h := hostOf(o); h != "" {
			allowed[h] = true
		}
	}
	allowed["localhost"] = true
	allowed["127.0.0.1"] = true

	h := &Handler{
		allowedOrigins: allowed,
		sessionDeps:    deps,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	host := hostOf(origin)
	return h.allowedOrigins[host]
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return strings.ToLower(raw)
	}
	if u.Hostname() != "" {
		return strings.ToLower(u.Hostname())
	}
	return strings.ToLower(raw)
}

// ServeHTTP upgrades the connection and runs a session to completion. It
// blocks for the lifetime of the connection.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("wsserver: upgrade failed: %v", err)
		return
	}

	sess := session.New(conn, h.sessionDeps)
	sess.Run(r.Context())
}
