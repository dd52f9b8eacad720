// Package httpapi provides the REST HTTP adapter for the server surfaces.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/manovate/crm/internal/adapters/server/common"
	"github.com/manovate/crm/internal/domain"
)

// maxRequestBodyBytes limits decoded JSON payload size for fail-closed request handling.
const maxRequestBodyBytes int64 = 1 << 20

// defaultHeartbeat spaces SSE keep-alive comments.
const defaultHeartbeat = 15 * time.Second

// Handler serves the versioned API subrouter mounted under `/api/v1`.
type Handler struct {
	pipeline      common.PipelineService
	notifications common.NotificationService
	changes       common.ChangeFeed
	heartbeat     time.Duration
	mux           *http.ServeMux
}

// APIError represents one structured API failure response.
type APIError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Hint    string         `json:"hint,omitempty"`
	Context map[string]any `json:"context,omitempty"`
}

// ErrorEnvelope wraps one structured API error.
type ErrorEnvelope struct {
	Error APIError `json:"error"`
}

// NewHandler constructs one HTTP API adapter. Nil services answer 501.
func NewHandler(pipeline common.PipelineService, notifications common.NotificationService, changes common.ChangeFeed) *Handler {
	h := &Handler{
		pipeline:      pipeline,
		notifications: notifications,
		changes:       changes,
		heartbeat:     defaultHeartbeat,
		mux:           http.NewServeMux(),
	}
	h.routes()
	return h
}

func (h *Handler) routes() {
	h.mux.HandleFunc("GET /deals", h.withPipeline(h.handleListDeals))
	h.mux.HandleFunc("POST /deals", h.withPipeline(h.handleCreateDeal))
	h.mux.HandleFunc("GET /deals/{id}", h.withPipeline(h.handleGetDeal))
	h.mux.HandleFunc("PATCH /deals/{id}", h.withPipeline(h.handleEditDeal))
	h.mux.HandleFunc("DELETE /deals/{id}", h.withPipeline(h.handleDeleteDeal))
	h.mux.HandleFunc("POST /deals/{id}/move", h.withPipeline(h.handleMoveDeal))
	h.mux.HandleFunc("POST /deals/{id}/close", h.withPipeline(h.handleCloseDeal))
	h.mux.HandleFunc("POST /deals/{id}/comments", h.withPipeline(h.handleAddComment))
	h.mux.HandleFunc("POST /deals/{id}/attachments", h.withPipeline(h.handleAddAttachment))
	h.mux.HandleFunc("DELETE /deals/{id}/attachments/{attachment}", h.withPipeline(h.handleDeleteAttachment))
	h.mux.HandleFunc("GET /board", h.withPipeline(h.handleBoard))
	h.mux.HandleFunc("GET /summary", h.withPipeline(h.handleSummary))
	h.mux.HandleFunc("GET /notifications", h.withNotifications(h.handleListNotifications))
	h.mux.HandleFunc("DELETE /notifications", h.withNotifications(h.handleClearNotifications))
	h.mux.HandleFunc("POST /notifications/read", h.withNotifications(h.handleMarkAllRead))
	h.mux.HandleFunc("POST /notifications/{id}/read", h.withNotifications(h.handleMarkRead))
	h.mux.HandleFunc("GET /events", h.handleEvents)
	h.mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: "endpoint not found",
		})
	})
}

// ServeHTTP routes one versioned API request to the matching handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "" {
		r.URL.Path = "/"
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) withPipeline(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.pipeline == nil {
			writeNotImplemented(w, "pipeline APIs are not available")
			return
		}
		next(w, r)
	}
}

func (h *Handler) withNotifications(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.notifications == nil {
			writeNotImplemented(w, "notification APIs are not available")
			return
		}
		next(w, r)
	}
}

// handleListDeals serves GET `/deals?view=&search=`.
func (h *Handler) handleListDeals(w http.ResponseWriter, r *http.Request) {
	deals, err := h.pipeline.ListDeals(r.Context(), listRequest(r))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"deals": deals})
}

// handleCreateDeal serves POST `/deals`.
func (h *Handler) handleCreateDeal(w http.ResponseWriter, r *http.Request) {
	var req common.CreateDealRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	deal, err := h.pipeline.CreateDeal(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deal)
}

// handleGetDeal serves GET `/deals/{id}`.
func (h *Handler) handleGetDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	deal, err := h.pipeline.GetDeal(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// handleEditDeal serves PATCH `/deals/{id}`.
func (h *Handler) handleEditDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req common.EditDealRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.DealID = id
	deal, err := h.pipeline.EditDeal(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// handleDeleteDeal serves DELETE `/deals/{id}`.
func (h *Handler) handleDeleteDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := h.pipeline.DeleteDeal(r.Context(), id); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleMoveDeal serves POST `/deals/{id}/move`.
// Applied moves answer 200, pending closures 202 and rejections 409, each with the move result.
func (h *Handler) handleMoveDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req common.MoveDealRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.DealID = id
	res, err := h.pipeline.MoveDeal(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	status := http.StatusOK
	switch res.Outcome {
	case "pending_closure":
		status = http.StatusAccepted
	case "rejected":
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

// handleCloseDeal serves POST `/deals/{id}/close`.
func (h *Handler) handleCloseDeal(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req common.CloseDealRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.DealID = id
	deal, err := h.pipeline.CloseDeal(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// handleAddComment serves POST `/deals/{id}/comments`.
func (h *Handler) handleAddComment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req common.AddCommentRequest
	if err := decodeJSONBody(r.Context(), w, r, &req); err != nil {
		writeErrorFrom(w, err)
		return
	}
	req.DealID = id
	deal, err := h.pipeline.AddComment(r.Context(), req)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deal)
}

// handleAddAttachment serves POST `/deals/{id}/attachments?name=` with the raw file as body.
func (h *Handler) handleAddAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: "name query parameter is required",
		})
		return
	}
	mimeType := r.Header.Get("Content-Type")
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}
	body := http.MaxBytesReader(w, r.Body, domain.MaxAttachmentBytes+1)
	defer body.Close()
	deal, err := h.pipeline.AddAttachment(r.Context(), common.AddAttachmentRequest{
		DealID:   id,
		Name:     name,
		MimeType: mimeType,
	}, body)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, deal)
}

// handleDeleteAttachment serves DELETE `/deals/{id}/attachments/{attachment}`.
func (h *Handler) handleDeleteAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	attachmentID, ok := pathID(w, r, "attachment")
	if !ok {
		return
	}
	deal, err := h.pipeline.DeleteAttachment(r.Context(), id, attachmentID)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deal)
}

// handleBoard serves GET `/board`.
func (h *Handler) handleBoard(w http.ResponseWriter, r *http.Request) {
	board, err := h.pipeline.Board(r.Context(), listRequest(r))
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, board)
}

// handleSummary serves GET `/summary`.
func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	summary, err := h.pipeline.Summary(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *Handler) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	feed, err := h.notifications.ListNotifications(r.Context())
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, feed)
}

func (h *Handler) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	n, err := h.notifications.MarkNotificationRead(r.Context(), id)
	if err != nil {
		writeErrorFrom(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handler) handleMarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.MarkAllNotificationsRead(r.Context()); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleClearNotifications(w http.ResponseWriter, r *http.Request) {
	if err := h.notifications.ClearNotifications(r.Context()); err != nil {
		writeErrorFrom(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEvents serves GET `/events` as a server-sent event stream of change events.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	if h.changes == nil {
		writeNotImplemented(w, "change stream is not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "streaming unsupported",
		})
		return
	}

	events := make(chan common.ChangeEvent, 32)
	unsubscribe := h.changes.SubscribeChanges(func(ev common.ChangeEvent) {
		// Slow clients drop events rather than stall the publisher.
		select {
		case events <- ev:
		default:
		}
	})
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, ": connected\n\n")
	flusher.Flush()

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case ev := <-events:
			data, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			if _, err := fmt.Fprintf(w, "event: change\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := io.WriteString(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func listRequest(r *http.Request) common.ListDealsRequest {
	return common.ListDealsRequest{
		View:   strings.TrimSpace(r.URL.Query().Get("view")),
		Search: strings.TrimSpace(r.URL.Query().Get("search")),
	}
}

// pathID parses one positive integer path value, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	raw := r.PathValue(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: fmt.Sprintf("%s must be a positive integer", name),
			Context: map[string]any{name: raw},
		})
		return 0, false
	}
	return id, true
}

// writeErrorFrom maps adapter errors into structured HTTP responses.
func writeErrorFrom(w http.ResponseWriter, err error) {
	var maxBytesErr *http.MaxBytesError
	switch {
	case err == nil:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: "unknown error",
		})
	case errors.Is(err, common.ErrNotFound):
		writeJSONError(w, http.StatusNotFound, APIError{
			Code:    "not_found",
			Message: err.Error(),
		})
	case errors.Is(err, common.ErrConflict):
		writeJSONError(w, http.StatusConflict, APIError{
			Code:    "conflict",
			Message: err.Error(),
			Hint:    "Closed deals are locked; only Revenue deals can be closed.",
		})
	case errors.Is(err, common.ErrPayloadTooLarge), errors.As(err, &maxBytesErr):
		writeJSONError(w, http.StatusRequestEntityTooLarge, APIError{
			Code:    "payload_too_large",
			Message: err.Error(),
			Context: map[string]any{"max_bytes": domain.MaxAttachmentBytes},
		})
	case errors.Is(err, common.ErrInvalidRequest):
		writeJSONError(w, http.StatusBadRequest, APIError{
			Code:    "invalid_request",
			Message: err.Error(),
		})
	default:
		writeJSONError(w, http.StatusInternalServerError, APIError{
			Code:    "internal_error",
			Message: err.Error(),
		})
	}
}

func writeNotImplemented(w http.ResponseWriter, message string) {
	writeJSONError(w, http.StatusNotImplemented, APIError{
		Code:    "not_implemented",
		Message: message,
	})
}

// writeJSONError writes one structured error envelope.
func writeJSONError(w http.ResponseWriter, statusCode int, apiErr APIError) {
	writeJSON(w, statusCode, ErrorEnvelope{Error: apiErr})
}

// writeJSON writes one JSON response envelope.
func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, fmt.Sprintf(`{"error":{"code":"encode_error","message":"%s"}}`, err.Error()), http.StatusInternalServerError)
	}
}

// decodeJSONBody decodes one required JSON request body with strict shape checks.
func decodeJSONBody(ctx context.Context, w http.ResponseWriter, r *http.Request, out any) error {
	reader := http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	defer reader.Close()

	decoder := json.NewDecoder(reader)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode request body: %w", errors.Join(common.ErrInvalidRequest, err))
	}
	// Reject trailing payloads so malformed JSON bodies fail closed.
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode request body: trailing content: %w", common.ErrInvalidRequest)
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("request canceled: %w", ctx.Err())
	default:
		return nil
	}
}
