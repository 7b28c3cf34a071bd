package basket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joao-fontenele/gamestore-orderflow/internal/auth"
	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
)

type fakeStore struct {
	catalog map[int64]domain.BasketLine
	lines   map[int64][]domain.BasketLine
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		catalog: map[int64]domain.BasketLine{
			1: {GameID: 1, GameName: "Hollow Knight", UnitPrice: decimal.RequireFromString("39.99")},
			2: {GameID: 2, GameName: "Celeste", UnitPrice: decimal.RequireFromString("20.00")},
		},
		lines: map[int64][]domain.BasketLine{},
	}
}

func (s *fakeStore) Get(_ context.Context, userID int64) (domain.Basket, error) {
	return domain.NewBasket(userID, s.lines[userID]), nil
}

func (s *fakeStore) Upsert(_ context.Context, userID, gameID int64, quantity int) error {
	if quantity < 0 {
		return domain.ErrInvalidQuantity
	}
	game, ok := s.catalog[gameID]
	if !ok {
		return domain.ErrGameNotFound
	}

	kept := s.lines[userID][:0]
	for _, line := range s.lines[userID] {
		if line.GameID != gameID {
			kept = append(kept, line)
		}
	}
	if quantity > 0 {
		game.Quantity = quantity
		kept = append(kept, game)
	}
	s.lines[userID] = kept
	return nil
}

func (s *fakeStore) Clear(_ context.Context, userID int64) error {
	delete(s.lines, userID)
	return nil
}

func newTestRouter(store Store) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := auth.WithIdentity(r.Context(), domain.Identity{UserID: 7, Role: domain.RoleUser})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	})
	NewHandler(store, logger).Routes(r)
	return r
}

func TestHandler_SetItem(t *testing.T) {
	store := newFakeStore()
	router := newTestRouter(store)

	t.Run("adds lines and returns the basket total", func(t *testing.T) {
		for _, body := range []struct {
			path string
			json string
		}{
			{"/basket/items/1", `{"quantity":1}`},
			{"/basket/items/2", `{"quantity":1}`},
		} {
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, body.path, strings.NewReader(body.json)))
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		}

		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/basket", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var basket domain.Basket
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &basket))
		assert.Len(t, basket.Lines, 2)
		assert.True(t, basket.Total.Equal(decimal.RequireFromString("59.99")), "total %s", basket.Total)
	})

	t.Run("unknown game", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/basket/items/99", strings.NewReader(`{"quantity":1}`)))
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("negative quantity", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/basket/items/1", strings.NewReader(`{"quantity":-1}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed game id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPut, "/basket/items/abc", strings.NewReader(`{"quantity":1}`)))
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestHandler_Clear(t *testing.T) {
	store := newFakeStore()
	store.lines[7] = []domain.BasketLine{{GameID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(10)}}
	router := newTestRouter(store)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/basket", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, store.lines[7])
}
