package basket

import (
	"context"
	"database/sql"

	"github.com/joao-fontenele/gamestore-orderflow/internal/domain"
	"github.com/joao-fontenele/gamestore-orderflow/internal/postgres"
)

type BasketRepository struct {
	db *sql.DB
}

func NewBasketRepository(db *sql.DB) *BasketRepository {
	return &BasketRepository{db: db}
}

// Snapshot reads the user's basket and locks its rows until the surrounding
// transaction ends, so two concurrent checkouts cannot both consume it.
func (r *BasketRepository) Snapshot(ctx context.Context, userID int64) ([]domain.BasketLine, error) {
	return r.lines(ctx, `
		SELECT b.game_id, g.name, b.quantity, b.unit_price
		FROM basket_items b
		JOIN games g ON g.id = b.game_id
		WHERE b.user_id = $1
		ORDER BY b.added_at, b.game_id
		FOR UPDATE OF b
	`, userID)
}

func (r *BasketRepository) Get(ctx context.Context, userID int64) (domain.Basket, error) {
	lines, err := r.lines(ctx, `
		SELECT b.game_id, g.name, b.quantity, b.unit_price
		FROM basket_items b
		JOIN games g ON g.id = b.game_id
		WHERE b.user_id = $1
		ORDER BY b.added_at, b.game_id
	`, userID)
	if err != nil {
		return domain.Basket{}, err
	}
	return domain.NewBasket(userID, lines), nil
}

func (r *BasketRepository) lines(ctx context.Context, query string, userID int64) ([]domain.BasketLine, error) {
	rows, err := postgres.Conn(ctx, r.db).QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var lines []domain.BasketLine
	for rows.Next() {
		var line domain.BasketLine
		if err := rows.Scan(&line.GameID, &line.GameName, &line.Quantity, &line.UnitPrice); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return lines, nil
}

// Upsert sets the quantity of a game in the basket. Zero removes the line.
// A new line captures the catalog price; an existing line keeps its price.
func (r *BasketRepository) Upsert(ctx context.Context, userID, gameID int64, quantity int) error {
	if quantity < 0 {
		return domain.ErrInvalidQuantity
	}

	conn := postgres.Conn(ctx, r.db)

	if quantity == 0 {
		_, err := conn.ExecContext(ctx, `
			DELETE FROM basket_items WHERE user_id = $1 AND game_id = $2
		`, userID, gameID)
		return err
	}

	result, err := conn.ExecContext(ctx, `
		INSERT INTO basket_items (user_id, game_id, quantity, unit_price)
		SELECT $1, g.id, $3, g.price
		FROM games g
		WHERE g.id = $2
		ON CONFLICT (user_id, game_id) DO UPDATE SET quantity = EXCLUDED.quantity
	`, userID, gameID, quantity)
	if err != nil {
		return err
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rowsAffected == 0 {
		return domain.ErrGameNotFound
	}

	return nil
}

func (r *BasketRepository) Clear(ctx context.Context, userID int64) error {
	_, err := postgres.Conn(ctx, r.db).ExecContext(ctx, `
		DELETE FROM basket_items WHERE user_id = $1
	`, userID)
	return err
}
