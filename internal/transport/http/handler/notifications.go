package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/quote-api-nosql/internal/application/notification"
	"github.com/quote-api-nosql/internal/domain"
	"github.com/quote-api-nosql/internal/notify"
	"github.com/quote-api-nosql/internal/pkg/validate"
	"github.com/quote-api-nosql/internal/transport/http/middleware"
)

// NotificationHandler handles notification listing and the per-session
// alert engine endpoints.
type NotificationHandler struct {
	svc    notification.Service
	alerts *notify.Manager
}

func NewNotificationHandler(svc notification.Service, alerts *notify.Manager) *NotificationHandler {
	return &NotificationHandler{svc: svc, alerts: alerts}
}

func (h *NotificationHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	notifs, err := h.svc.List(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: notifs})
}

func (h *NotificationHandler) ListUnread(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	notifs, err := h.svc.ListUnread(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: notifs})
}

// Poll returns notifications created after ?since= (RFC 3339). The client
// falls back to this every 30 seconds when the live feed cannot connect.
func (h *NotificationHandler) Poll(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	since := r.URL.Query().Get("since")
	after := time.Time{}
	if since != "" {
		parsed, err := time.Parse(time.RFC3339, since)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC 3339")
			return
		}
		after = parsed
	}
	notifs, err := h.svc.ListSince(r.Context(), claims.UserID, after)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: notifs})
}

func (h *NotificationHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	n, err := h.svc.MarkAsRead(r.Context(), chi.URLParam(r, "id"), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: n})
}

func (h *NotificationHandler) Broadcast(w http.ResponseWriter, r *http.Request) {
	var req domain.BroadcastRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	sent, err := h.svc.Broadcast(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: map[string]int{"sent": sent}})
}

// Setup starts the caller's alert engine: permission check, optional push
// registration, feed subscription with warm-up.
func (h *NotificationHandler) Setup(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req struct {
		DeviceToken string `json:"device_token"`
	}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	enabled, err := h.alerts.Setup(r.Context(), claims.SessionID, claims.UserID, req.DeviceToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: map[string]bool{"enabled": enabled}})
}

func (h *NotificationHandler) Teardown(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	h.alerts.Teardown(r.Context(), claims.SessionID)
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "alerts disabled"})
}

func (h *NotificationHandler) TestAlert(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	engine.ShowTestAlert(r.Context())
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "test alert sent"})
}

// Click marks the clicked notification read and returns where the client
// should navigate.
func (h *NotificationHandler) Click(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	route, err := engine.HandleAlertClick(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: map[string]string{"route": route}})
}

// Toasts drains the session's pending toast alerts.
func (h *NotificationHandler) Toasts(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: engine.Toasts()})
}

// Stream delivers foreground alerts over Server-Sent Events until the
// client disconnects or the engine is torn down.
func (h *NotificationHandler) Stream(w http.ResponseWriter, r *http.Request) {
	engine, ok := h.engine(w, r)
	if !ok {
		return
	}
	flusher, canFlush := w.(http.Flusher)
	if !canFlush {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case alert, open := <-engine.Foreground().Events():
			if !open {
				return
			}
			payload, err := json.Marshal(alert)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		}
	}
}

func (h *NotificationHandler) engine(w http.ResponseWriter, r *http.Request) (*notify.Engine, bool) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return nil, false
	}
	engine, ok := h.alerts.Get(claims.SessionID)
	if !ok {
		writeError(w, http.StatusBadRequest, "alerts are not set up for this session")
		return nil, false
	}
	return engine, true
}
