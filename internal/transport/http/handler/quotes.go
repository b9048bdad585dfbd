package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/quote-api-nosql/internal/application/quote"
	"github.com/quote-api-nosql/internal/domain"
	"github.com/quote-api-nosql/internal/pkg/validate"
	"github.com/quote-api-nosql/internal/transport/http/middleware"
)

const maxDocumentSize = 25 << 20 // 25 MiB

// QuoteHandler handles the quote lifecycle endpoints.
type QuoteHandler struct {
	svc quote.Service
}

func NewQuoteHandler(svc quote.Service) *QuoteHandler { return &QuoteHandler{svc: svc} }

// Create is the public intake endpoint. Logged-in callers get the quote
// attached to their account; anonymous callers submit as guests.
func (h *QuoteHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	userID := ""
	if claims, ok := middleware.ClaimsFromContext(r.Context()); ok {
		userID = claims.UserID
	}
	q, err := h.svc.Submit(r.Context(), userID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, DataEnvelope{Data: q})
}

// List returns the caller's quotes. Admins see everything and may filter by
// display status with ?status=.
func (h *QuoteHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if claims.Role == domain.RoleAdmin {
		status := domain.DisplayStatus(r.URL.Query().Get("status"))
		quotes, err := h.svc.ListAll(r.Context(), status)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, DataEnvelope{Data: quotes})
		return
	}
	quotes, err := h.svc.ListByUser(r.Context(), claims.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: quotes})
}

func (h *QuoteHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	q, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if claims.Role != domain.RoleAdmin && q.UserID != claims.UserID {
		writeError(w, http.StatusForbidden, "not your quote")
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: q})
}

func (h *QuoteHandler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.svc.Counts(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: counts})
}

func (h *QuoteHandler) Respond(w http.ResponseWriter, r *http.Request) {
	var req domain.RespondQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := h.svc.Respond(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: q})
}

func (h *QuoteHandler) Reject(w http.ResponseWriter, r *http.Request) {
	var req domain.RejectQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := h.svc.Reject(r.Context(), chi.URLParam(r, "id"), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: q})
}

func (h *QuoteHandler) CustomerReject(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.RejectQuoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := h.svc.CustomerReject(r.Context(), chi.URLParam(r, "id"), claims.UserID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: q})
}

func (h *QuoteHandler) Payment(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	var req domain.PaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	q, err := h.svc.AcceptAndPay(r.Context(), chi.URLParam(r, "id"), claims.UserID, req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: q})
}

// UploadDocument reads a multipart "document" part and completes the quote.
func (h *QuoteHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxDocumentSize); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	file, header, err := r.FormFile("document")
	if err != nil {
		writeError(w, http.StatusBadRequest, "document file required")
		return
	}
	defer file.Close()
	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	q, err := h.svc.UploadDocument(r.Context(), chi.URLParam(r, "id"), header.Filename, file, contentType)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: q})
}

// Document returns a short-lived download link for the quote's policy
// document. Owners and admins only.
func (h *QuoteHandler) Document(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	quoteID := chi.URLParam(r, "id")
	q, err := h.svc.Get(r.Context(), quoteID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if claims.Role != domain.RoleAdmin && q.UserID != claims.UserID {
		writeError(w, http.StatusForbidden, "not your quote")
		return
	}
	link, err := h.svc.DocumentLink(r.Context(), quoteID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DataEnvelope{Data: link})
}

func (h *QuoteHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, MessageEnvelope{Message: "quote deleted"})
}
