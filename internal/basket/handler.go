package basket

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/joao-fontenele/gamestore-orderflow/internal/auth"
	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
	"github.com/joao-fontenele/gamestore-orderflow/internal/httpx"
)

// Store is the subset of BasketRepository the HTTP layer needs.
type Store interface {
	Get(ctx context.Context, userID int64) (domain.Basket, error)
	Upsert(ctx context.Context, userID, gameID int64, quantity int) error
	Clear(ctx context.Context, userID int64) error
}

type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{
		store:  store,
		logger: logger,
	}
}

func (h *Handler) Routes(r chi.Router) {
	r.Get("/basket", h.HandleGet)
	r.Put("/basket/items/{gameId}", h.HandleSetItem)
	r.Delete("/basket", h.HandleClear)
}

func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())

	basket, err := h.store.Get(r.Context(), identity.UserID)
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	httpx.WriteJSON(w, h.logger, http.StatusOK, basket)
}

type setItemRequest struct {
	Quantity int `json:"quantity"`
}

func (h *Handler) HandleSetItem(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())

	gameID, err := strconv.ParseInt(chi.URLParam(r, "gameId"), 10, 64)
	if err != nil || gameID <= 0 {
		httpx.WriteMessage(r.Context(), w, h.logger, http.StatusBadRequest, "invalid_game_id", "invalid game id")
		return
	}

	var req setItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteMessage(r.Context(), w, h.logger, http.StatusBadRequest, "invalid_body", "invalid request body")
		return
	}

	if err := h.store.Upsert(r.Context(), identity.UserID, gameID, req.Quantity); err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	basket, err := h.store.Get(r.Context(), identity.UserID)
	if err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	h.logger.Info("basket updated", "user_id", identity.UserID, "game_id", gameID, "quantity", req.Quantity)
	httpx.WriteJSON(w, h.logger, http.StatusOK, basket)
}

func (h *Handler) HandleClear(w http.ResponseWriter, r *http.Request) {
	identity, _ := auth.IdentityFrom(r.Context())

	if err := h.store.Clear(r.Context(), identity.UserID); err != nil {
		httpx.WriteError(r.Context(), w, h.logger, err)
		return
	}

	h.logger.Info("basket cleared", "user_id", identity.UserID)
	w.WriteHeader(http.StatusNoContent)
}
