package orders

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/gamestore-orderflow/internal/auth"
	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
	"github.com/joao-fontenele/gamestore-orderflow/internal/httpx"
)

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

// Routes registers the order endpoints. The router must already
// authenticate callers.
func (h *Handler) Routes(r chi.Router) {
	adminOnly := auth.RequireRole(domain.RoleAdmin, h.logger)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/checkout", h.HandleCheckout)
		r.Get("/my", h.HandleMyOrders)
		r.Get("/{id}", h.HandleGet)
		r.With(adminOnly).Post("/{id}/mark-paid", h.HandleMarkPaid)
		r.Post("/{id}/cancel", h.HandleCancel)
		r.Get("/{id}/timeline", h.HandleTimeline)
	})

	r.Route("/admin/orders", func(r chi.Router) {
		r.Use(adminOnly)
		r.Get("/", h.HandleAdminList)
		r.Get("/{id}", h.HandleAdminDetails)
	})
}

func (h *Handler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())

	order, err := h.service.CreateOrder(r.Context(), identity.UserID)
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusCreated, order)
}

func (h *Handler) HandleMyOrders(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())

	orders, err := h.service.GetMyOrders(r.Context(), identity.UserID)
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	h.logger.Info("orders listed", "user_id", identity.UserID, "count", len(orders))
	httpx.WriteJSON(w, h.logger, http.StatusOK, orders)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	identity, _ := auth.IdentityFrom(r.Context())

	order, err := h.service.GetOrderByID(r.Context(), identity, orderID)
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

type markPaidRequest struct {
	PaymentMethod string `json:"payment_method"`
}

func (h *Handler) HandleMarkPaid(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	// The body is optional.
	var req markPaidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		httpx.WriteMessage(r.Context(), w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	order, err := h.service.MarkPaid(r.Context(), orderID, req.PaymentMethod)
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	identity, _ := auth.IdentityFrom(r.Context())

	order, err := h.service.CancelOrder(r.Context(), identity, orderID)
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, order)
}

func (h *Handler) HandleTimeline(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}
	identity, _ := auth.IdentityFrom(r.Context())

	events, err := h.service.Timeline(r.Context(), identity, orderID)
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, events)
}

func (h *Handler) HandleAdminList(w http.ResponseWriter, r *http.Request) {
	filter, err := parseAdminFilter(r)
	if err != nil {
		httpx.WriteMessage(r.Context(), w, h.logger, http.StatusBadRequest, "invalid_filter", err.Error())
		return
	}

	page, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, page)
}

func (h *Handler) HandleAdminDetails(w http.ResponseWriter, r *http.Request) {
	orderID, ok := h.orderID(w, r)
	if !ok {
		return
	}

	details, err := h.service.GetOrderDetailsForAdmin(r.Context(), orderID)
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, details)
}

func (h *Handler) orderID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.WriteMessage(r.Context(), w, h.logger, http.StatusBadRequest, "invalid_order_id", "invalid order id")
		return 0, false
	}
	return id, true
}

func parseAdminFilter(r *http.Request) (AdminFilter, error) {
	q := r.URL.Query()
	f := AdminFilter{
		UserName: q.Get("userName"),
		Email:    q.Get("email"),
	}

	if v := q.Get("status"); v != "" {
		status, err := domain.ParseOrderStatus(v)
		if err != nil {
			return f, err
		}
		f.Status = &status
	}

	if v := q.Get("userId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return f, errors.New("userId must be an integer")
		}
		f.UserID = &id
	}

	if v := q.Get("from"); v != "" {
		from, err := parseDate(v, false)
		if err != nil {
			return f, errors.New("from must be a date or RFC 3339 timestamp")
		}
		f.From = &from
	}

	if v := q.Get("to"); v != "" {
		to, err := parseDate(v, true)
		if err != nil {
			return f, errors.New("to must be a date or RFC 3339 timestamp")
		}
		f.To = &to
	}

	var err error
	if f.Page, err = intParam(q.Get("page")); err != nil {
		return f, errors.New("page must be an integer")
	}
	if f.Limit, err = intParam(q.Get("limit")); err != nil {
		return f, errors.New("limit must be an integer")
	}

	return f, nil
}

// parseDate accepts RFC 3339 or a bare date. A bare date used as an upper
// bound covers the whole day.
func parseDate(v string, endOfDay bool) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.Atoi(v)
}
