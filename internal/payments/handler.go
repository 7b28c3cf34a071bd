package payments

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/gamestore-orderflow/internal/auth"
	"github.com/joao-fontenele/gamestore-orderflow/internal/httpx"
)

type Middleware = func(http.Handler) http.Handler

type Handler struct {
	service *Service
	logger  *slog.Logger
}

func NewHandler(service *Service, logger *slog.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// Routes registers the payment endpoints. Customer endpoints run behind
// authenticate; provider callbacks run behind callback instead.
func (h *Handler) Routes(r chi.Router, authenticate, callback Middleware) {
	r.Route("/payments", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(callback)
			r.Post("/confirm/{externalId}", h.HandleConfirm)
			r.Post("/fail/{externalId}", h.HandleFail)
		})

		r.Group(func(r chi.Router) {
			r.Use(authenticate)
			r.Post("/start/{orderId}", h.HandleStart)
			r.Post("/{orderId}/retry", h.HandleRetry)
			r.Get("/history", h.HandleHistory)
			r.Get("/orders/{orderId}", h.HandleOrderPayments)
		})
	})
}

func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	identity, _ := auth.IdentityFrom(r.Context())

	result, err := h.service.StartPayment(r.Context(), orderID, identity.UserID)
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, result)
}

func (h *Handler) HandleConfirm(w http.ResponseWriter, r *http.Request) {
	externalID, ok := h.externalID(w, r)
	if !ok {
		return
	}

	result, err := h.service.ConfirmPayment(r.Context(), externalID)
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, result)
}

func (h *Handler) HandleFail(w http.ResponseWriter, r *http.Request) {
	externalID, ok := h.externalID(w, r)
	if !ok {
		return
	}

	result, err := h.service.FailPayment(r.Context(), externalID, r.URL.Query().Get("reason"))
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, result)
}

func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	identity, _ := auth.IdentityFrom(r.Context())

	result, err := h.service.RetryPayment(r.Context(), orderID, identity.UserID)
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, result)
}

func (h *Handler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())

	payments, err := h.service.GetMyPayments(r.Context(), identity.UserID)
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, payments)
}

func (h *Handler) HandleOrderPayments(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	identity, _ := auth.IdentityFrom(r.Context())

	history, err := h.service.GetOrderPayments(r.Context(), identity.UserID, orderID)
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, history)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "orderId"), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteMessage(r.Context(), w, h.logger, http.StatusBadRequest, "invalid_order_id", "invalid order id")
		return 0, false
	}
	return id, true
}

func (h *Handler) externalID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "externalId"))
	if id == "" {
		httpx.WriteMessage(r.Context(), w, h.logger, http.StatusBadRequest, "invalid_payment_id", "invalid provider payment id")
		return "", false
	}
	return id, true
}
