package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/AgentMesh-Net/salesdesk/internal/core/envelope"
	"github.com/AgentMesh-Net/salesdesk/internal/store"
	"github.com/AgentMesh-Net/salesdesk/internal/util"
)

// Caller identity headers. Authentication happens upstream of this service.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRoles = "X-User-Roles"
)

func (h *handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	util.WriteEnvelope(w, envelope.OK(map[string]any{
		"status":      "ok",
		"name":        h.cfg.ServiceName,
		"store":       h.cfg.Store,
		"serviceTime": time.Now().UTC().Format(time.RFC3339),
	}))
}

type userKey struct{}

// requireUser reads the caller from the identity headers.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uc := store.UserContext{
			UserID: strings.TrimSpace(r.Header.Get(HeaderUserID)),
			Roles:  store.ParseRoles(r.Header.Get(HeaderUserRoles)),
		}
		if !uc.Valid() {
			util.WriteError(w, envelope.PermissionDenied(HeaderUserID+" header is required"))
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, uc)))
	})
}

func userFrom(r *http.Request) store.UserContext {
	uc, _ := r.Context().Value(userKey{}).(store.UserContext)
	return uc
}
