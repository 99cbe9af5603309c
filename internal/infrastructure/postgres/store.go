package postgres

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/inventory"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/order"
	"github.com/Zhima-Mochi/minishop-inventory/app/internal/domain/product"
)

const (
	sqlStateSerializationFailure = "40001"
	sqlStateDeadlockDetected     = "40P01"
	rollbackTimeout              = 2 * time.Second
)

const productColumns = `id, name, price, stock, created_at, updated_at`

type Store struct {
	pool *pgxpool.Pool
}

func Connect(ctx context.Context, url string) (*Store, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("postgres: open pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}
	return New(pool), nil
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("postgres: apply schema: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Create(ctx context.Context, p *product.Product) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO products (`+productColumns+`) VALUES ($1, $2, $3, $4, $5, $6)`,
		p.ID, p.Name, p.Price, p.Stock, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert product: %w", err)
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]*product.Product, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+productColumns+` FROM products ORDER BY created_at DESC, id DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list products: %w", err)
	}
	defer rows.Close()

	out := []*product.Product{}
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan product: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list products: %w", err)
	}
	return out, nil
}

func (s *Store) Get(ctx context.Context, id string) (*product.Product, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, product.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get product: %w", err)
	}
	return p, nil
}

func (s *Store) OrdersForProduct(ctx context.Context, productID string) ([]*order.Order, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, product_id, quantity, price_at_purchase, status, created_at, updated_at
		FROM orders WHERE product_id = $1 ORDER BY created_at, id`, productID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list orders: %w", err)
	}
	defer rows.Close()

	out := []*order.Order{}
	for rows.Next() {
		var (
			o      order.Order
			status string
		)
		if err := rows.Scan(&o.ID, &o.ProductID, &o.Quantity, &o.PriceAtPurchase, &status, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan order: %w", err)
		}
		o.Status = order.Status(status)
		out = append(out, &o)
	}
	return out, rows.Err()
}

// Within runs fn in a READ COMMITTED transaction. The conditional UPDATE takes a row lock,
// so concurrent deductions on one product serialize on it.
func (s *Store) Within(ctx context.Context, fn func(ctx context.Context, tx inventory.Tx) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("postgres: begin: %w", err))
	}
	defer func() {
		rbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rollbackTimeout)
		defer cancel()
		_ = tx.Rollback(rbCtx)
	}()

	if err := fn(ctx, &pgTx{tx: tx}); err != nil {
		return classify(err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("postgres: unit of work expired before commit: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("postgres: commit: %w", err))
	}
	return nil
}

func classify(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == sqlStateSerializationFailure || pgErr.Code == sqlStateDeadlockDetected) {
		return fmt.Errorf("%w: %w", inventory.ErrConflict, err)
	}
	return err
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) DeductStock(ctx context.Context, productID string, quantity int) (*product.Product, error) {
	if quantity <= 0 {
		return nil, inventory.ErrInvalidQuantity
	}
	if quantity > math.MaxInt32 {
		// stock is an INTEGER column, so no row can hold that many units
		return nil, inventory.ErrNoMatch
	}
	row := t.tx.QueryRow(ctx, `
		UPDATE products SET stock = stock - $2, updated_at = $3
		WHERE id = $1 AND stock >= $2
		RETURNING `+productColumns,
		productID, quantity, time.Now().UTC())
	p, err := scanProduct(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, inventory.ErrNoMatch
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: deduct stock: %w", err)
	}
	return p, nil
}

func (t *pgTx) InsertOrder(ctx context.Context, o *order.Order) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO orders (id, product_id, quantity, price_at_purchase, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		o.ID, o.ProductID, o.Quantity, o.PriceAtPurchase, string(o.Status), o.CreatedAt, o.UpdatedAt)
	if err != nil {
		return fmt.Errorf("postgres: insert order: %w", err)
	}
	return nil
}

func scanProduct(row pgx.Row) (*product.Product, error) {
	var p product.Product
	if err := row.Scan(&p.ID, &p.Name, &p.Price, &p.Stock, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return nil, err
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}
