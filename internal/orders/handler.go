package orders

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/joao-fontenele/bookstore-orders/internal/auth"
	"github.com/joao-fontenele/bookstore-orders/internal/domain"
	"github.com/joao-fontenele/bookstore-orders/internal/messaging"
	"github.com/joao-fontenele/bookstore-orders/internal/telemetry"
)

const maxIdempotencyKeyLen = 255

type BrokerStatus interface {
	State() messaging.State
}

type Handler struct {
	svc    *Service
	broker BrokerStatus
	logger *slog.Logger
}

func NewHandler(svc *Service, broker BrokerStatus, logger *slog.Logger) *Handler {
	return &Handler{
		svc:    svc,
		broker: broker,
		logger: logger,
	}
}

// Routes registers the API on mux. requireAuth guards /orders and rateLimit
// applies to client-facing routes only; /healthz stays unlimited so probes
// never see a 429.
func (h *Handler) Routes(mux *http.ServeMux, requireAuth, rateLimit func(http.Handler) http.Handler) {
	api := func(next http.HandlerFunc) http.Handler {
		return rateLimit(telemetry.WithHTTPRoute(requireAuth(next)))
	}

	mux.Handle("POST /orders", api(h.HandleCreate))
	mux.Handle("GET /orders", api(h.HandleList))
	mux.Handle("GET /{$}", rateLimit(http.HandlerFunc(h.HandleWelcome)))
	mux.HandleFunc("GET /healthz", h.HandleHealth)
}

type createOrderRequest struct {
	BookID   int64 `json:"book_id"`
	Quantity int   `json:"quantity"`
}

type response struct {
	Status  string `json:"status"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
}

func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Access denied")
		return
	}

	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Missing fields")
		return
	}

	key := r.Header.Get("Idempotency-Key")
	if len(key) > maxIdempotencyKeyLen {
		h.writeError(w, http.StatusBadRequest, "Idempotency-Key too long")
		return
	}

	result, err := h.svc.CreateOrder(r.Context(), principal, CreateOrderInput{
		BookID:         req.BookID,
		Quantity:       req.Quantity,
		IdempotencyKey: key,
	})
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		h.writeError(w, http.StatusBadRequest, "Missing fields")
		return
	case err != nil:
		h.logger.Error("failed to create order", "error", err, "user_id", principal.UserID)
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	if result.Replayed {
		w.Header().Set("Idempotent-Replayed", "true")
	}
	h.writeJSON(w, http.StatusCreated, response{Status: "success", Data: result.Order})
}

// HandleList answers 200 with an empty list when the caller has no orders.
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	principal, ok := auth.PrincipalFromContext(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "Access denied")
		return
	}

	orders, err := h.svc.ListOrders(r.Context(), principal)
	if err != nil {
		h.logger.Error("failed to list orders", "error", err, "user_id", principal.UserID)
		h.writeError(w, http.StatusInternalServerError, "Server error")
		return
	}

	h.logger.Info("orders listed", "user_id", principal.UserID, "count", len(orders))
	h.writeJSON(w, http.StatusOK, response{Status: "success", Data: orders})
}

func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	state := messaging.StateDisconnected
	if h.broker != nil {
		state = h.broker.State()
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"broker": state.String(),
	})
}

func (h *Handler) HandleWelcome(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("Welcome to the Bookstore API!"))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, response{Status: "error", Message: message})
}
