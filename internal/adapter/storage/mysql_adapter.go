package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/import-export/internal/core/domain"
)

const (
	productColumns  = `id, owner_id, name, image, origin_country, price, rating, quantity, created_at`
	transferColumns = `id, product_id, user_id, quantity, name, image, price, rating, origin_country, created_at`
)

type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// OpenMySQL opens a pool for dsn. Time parsing and found-rows reporting are
// forced on because the adapter depends on both.
func OpenMySQL(ctx context.Context, dsn string, pool PoolConfig) (*sql.DB, error) {
	cfg, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	cfg.ParseTime = true
	cfg.ClientFoundRows = true
	if cfg.Loc == nil {
		cfg.Loc = time.UTC
	}

	connector, err := mysql.NewConnector(cfg)
	if err != nil {
		return nil, fmt.Errorf("mysql connector: %w", err)
	}

	db := sql.OpenDB(connector)
	if pool.MaxOpenConns > 0 {
		db.SetMaxOpenConns(pool.MaxOpenConns)
	}
	if pool.MaxIdleConns > 0 {
		db.SetMaxIdleConns(pool.MaxIdleConns)
	}
	if pool.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, storeErr("ping", err)
	}
	return db, nil
}

type MySQLAdapter struct {
	db *sql.DB
}

func NewMySQLAdapter(db *sql.DB) *MySQLAdapter {
	return &MySQLAdapter{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProduct(row rowScanner) (domain.Product, error) {
	var p domain.Product
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.Image, &p.OriginCountry,
		&p.Price, &p.Rating, &p.Quantity, &p.CreatedAt)
	return p, err
}

func scanTransfer(row rowScanner) (domain.Transfer, error) {
	var t domain.Transfer
	err := row.Scan(&t.ID, &t.ProductID, &t.UserID, &t.Quantity,
		&t.Name, &t.Image, &t.Price, &t.Rating, &t.OriginCountry, &t.Timestamp)
	return t, err
}

func (m *MySQLAdapter) queryProducts(ctx context.Context, op, query string, args ...any) ([]domain.Product, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	products := make([]domain.Product, 0)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return products, nil
}

func (m *MySQLAdapter) queryTransfers(ctx context.Context, op, query string, args ...any) ([]domain.Transfer, error) {
	rows, err := m.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr(op, err)
	}
	defer rows.Close()

	transfers := make([]domain.Transfer, 0)
	for rows.Next() {
		t, err := scanTransfer(rows)
		if err != nil {
			return nil, storeErr(op, err)
		}
		transfers = append(transfers, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr(op, err)
	}
	return transfers, nil
}

func (m *MySQLAdapter) ListProducts(ctx context.Context) ([]domain.Product, error) {
	return m.queryProducts(ctx, "list products", `
		SELECT `+productColumns+`
		FROM products ORDER BY seq`)
}

func (m *MySQLAdapter) ListLatestProducts(ctx context.Context, limit int) ([]domain.Product, error) {
	return m.queryProducts(ctx, "list latest products", `
		SELECT `+productColumns+`
		FROM products ORDER BY created_at DESC, seq DESC LIMIT ?`, limit)
}

func (m *MySQLAdapter) SearchProducts(ctx context.Context, text string) ([]domain.Product, error) {
	return m.queryProducts(ctx, "search products", `
		SELECT `+productColumns+`
		FROM products WHERE LOWER(name) LIKE ? ORDER BY seq`,
		"%"+escapeLike(strings.ToLower(text))+"%")
}

func (m *MySQLAdapter) GetProduct(ctx context.Context, id string) (*domain.Product, error) {
	p, err := scanProduct(m.db.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, storeErr("get product", err)
	}
	return &p, nil
}

func (m *MySQLAdapter) ListProductsByOwner(ctx context.Context, ownerID string) ([]domain.Product, error) {
	return m.queryProducts(ctx, "list owner products", `
		SELECT `+productColumns+`
		FROM products WHERE owner_id = ? ORDER BY seq`, ownerID)
}

func (m *MySQLAdapter) CreateProduct(ctx context.Context, p domain.Product) error {
	_, err := m.db.ExecContext(ctx, `
		INSERT INTO products (id, owner_id, name, image, origin_country, price, rating, quantity, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.OwnerID, p.Name, p.Image, p.OriginCountry,
		p.Price, p.Rating, p.Quantity, p.CreatedAt, p.CreatedAt,
	)
	if err != nil {
		return storeErr("insert product", err)
	}
	return nil
}

func (m *MySQLAdapter) UpdateProduct(ctx context.Context, id string, patch domain.ProductPatch) (domain.UpdateResult, error) {
	var (
		sets []string
		args []any
	)
	if patch.Name != nil {
		sets, args = append(sets, "name = ?"), append(args, *patch.Name)
	}
	if patch.Image != nil {
		sets, args = append(sets, "image = ?"), append(args, *patch.Image)
	}
	if patch.OriginCountry != nil {
		sets, args = append(sets, "origin_country = ?"), append(args, *patch.OriginCountry)
	}
	if patch.Price != nil {
		sets, args = append(sets, "price = ?"), append(args, *patch.Price)
	}
	if patch.Rating != nil {
		sets, args = append(sets, "rating = ?"), append(args, *patch.Rating)
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, time.Now().UTC(), id)

	result, err := m.db.ExecContext(ctx,
		`UPDATE products SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return domain.UpdateResult{}, storeErr("update product", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.UpdateResult{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return domain.UpdateResult{MatchedCount: rows, ModifiedCount: rows}, nil
}

func (m *MySQLAdapter) DeleteProduct(ctx context.Context, id string) (domain.DeleteResult, error) {
	result, err := m.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return domain.DeleteResult{}, storeErr("delete product", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.DeleteResult{}, fmt.Errorf("product %s: %w", id, domain.ErrNotFound)
	}
	return domain.DeleteResult{DeletedCount: rows}, nil
}

// CommitTransfer locks the product row, then decrements it with a guarded
// update and appends the ledger entry in the same transaction.
func (m *MySQLAdapter) CommitTransfer(ctx context.Context, t domain.Transfer) (domain.Transfer, int, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Transfer{}, 0, storeErr("begin tx", err)
	}
	defer tx.Rollback()

	p, err := scanProduct(tx.QueryRowContext(ctx, `
		SELECT `+productColumns+`
		FROM products WHERE id = ? FOR UPDATE`, t.ProductID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Transfer{}, 0, fmt.Errorf("product %s: %w", t.ProductID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Transfer{}, 0, storeErr("lock product", err)
	}
	if p.Quantity < t.Quantity {
		return domain.Transfer{}, 0, domain.ErrInsufficientStock
	}

	result, err := tx.ExecContext(ctx, `
		UPDATE products
		SET quantity = quantity - ?, updated_at = ?
		WHERE id = ? AND quantity >= ?`,
		t.Quantity, t.Timestamp, t.ProductID, t.Quantity,
	)
	if err != nil {
		return domain.Transfer{}, 0, storeErr("decrement stock", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.Transfer{}, 0, domain.ErrInsufficientStock
	}

	t.Snapshot(p)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO transfers (`+transferColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.ProductID, t.UserID, t.Quantity,
		t.Name, t.Image, t.Price, t.Rating, t.OriginCountry, t.Timestamp,
	)
	if err != nil {
		return domain.Transfer{}, 0, storeErr("insert transfer", err)
	}

	if err := tx.Commit(); err != nil {
		return domain.Transfer{}, 0, storeErr("commit transfer", err)
	}
	return t, p.Quantity - t.Quantity, nil
}

func (m *MySQLAdapter) ListTransfersByUser(ctx context.Context, userID string) ([]domain.Transfer, error) {
	return m.queryTransfers(ctx, "list user transfers", `
		SELECT `+transferColumns+`
		FROM transfers WHERE user_id = ? ORDER BY seq`, userID)
}

func (m *MySQLAdapter) ListTransfersByProduct(ctx context.Context, productID string) ([]domain.Transfer, error) {
	return m.queryTransfers(ctx, "list product transfers", `
		SELECT `+transferColumns+`
		FROM transfers WHERE product_id = ? ORDER BY seq`, productID)
}

func (m *MySQLAdapter) DeleteTransfer(ctx context.Context, id string, replenish bool) (domain.DeleteResult, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.DeleteResult{}, storeErr("begin tx", err)
	}
	defer tx.Rollback()

	var productID string
	var quantity int
	err = tx.QueryRowContext(ctx, `
		SELECT product_id, quantity FROM transfers WHERE id = ? FOR UPDATE`, id,
	).Scan(&productID, &quantity)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DeleteResult{}, fmt.Errorf("transfer %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return domain.DeleteResult{}, storeErr("lock transfer", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM transfers WHERE id = ?`, id); err != nil {
		return domain.DeleteResult{}, storeErr("delete transfer", err)
	}
	if replenish {
		if err := restock(ctx, tx, productID, quantity); err != nil {
			return domain.DeleteResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.DeleteResult{}, storeErr("commit delete", err)
	}
	return domain.DeleteResult{DeletedCount: 1}, nil
}

func (m *MySQLAdapter) DeleteUserTransfers(ctx context.Context, productID, userID string, replenish bool) (domain.DeleteResult, error) {
	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.DeleteResult{}, storeErr("begin tx", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM products WHERE id = ? FOR UPDATE`, productID).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.DeleteResult{}, fmt.Errorf("product %s: %w", productID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.DeleteResult{}, storeErr("lock product", err)
	}

	var returned int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(quantity), 0) FROM transfers
		WHERE product_id = ? AND user_id = ?`, productID, userID,
	).Scan(&returned)
	if err != nil {
		return domain.DeleteResult{}, storeErr("sum transfers", err)
	}

	result, err := tx.ExecContext(ctx, `
		DELETE FROM transfers WHERE product_id = ? AND user_id = ?`, productID, userID)
	if err != nil {
		return domain.DeleteResult{}, storeErr("delete transfers", err)
	}
	deleted, _ := result.RowsAffected()

	if replenish && returned > 0 {
		if err := restock(ctx, tx, productID, returned); err != nil {
			return domain.DeleteResult{}, err
		}
	}

	if err := tx.Commit(); err != nil {
		return domain.DeleteResult{}, storeErr("commit delete", err)
	}
	return domain.DeleteResult{DeletedCount: deleted}, nil
}

// restock returns quantity to a product. A product removed since the transfer
// matches no row, which is not an error.
func restock(ctx context.Context, tx *sql.Tx, productID string, quantity int) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE products SET quantity = quantity + ?, updated_at = ?
		WHERE id = ?`, quantity, time.Now().UTC(), productID)
	if err != nil {
		return storeErr("restock product", err)
	}
	return nil
}

func (m *MySQLAdapter) Ping(ctx context.Context) error {
	if err := m.db.PingContext(ctx); err != nil {
		return storeErr("ping", err)
	}
	return nil
}

// escapeLike neutralises LIKE wildcards in user input.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// storeErr wraps err with op, tagging connectivity failures with
// domain.ErrStoreUnavailable.
func storeErr(op string, err error) error {
	if isConnError(err) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStoreUnavailable, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

func isConnError(err error) bool {
	if errors.Is(err, driver.ErrBadConn) ||
		errors.Is(err, mysql.ErrInvalidConn) ||
		errors.Is(err, sql.ErrConnDone) ||
		errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr)
}
