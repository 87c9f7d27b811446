package storage

import (
	"context"
	"database/sql"
)

// schema bootstraps an empty database. Statements are idempotent and run one
// at a time since the driver does not enable multi-statements.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS products (
		seq            BIGINT        NOT NULL AUTO_INCREMENT,
		id             CHAR(36)      NOT NULL,
		owner_id       VARCHAR(128)  NOT NULL DEFAULT '',
		name           VARCHAR(255)  NOT NULL,
		image          TEXT          NOT NULL,
		origin_country VARCHAR(128)  NOT NULL,
		price          DECIMAL(18,4) NOT NULL,
		rating         DOUBLE        NOT NULL,
		quantity       INT           NOT NULL,
		created_at     DATETIME(6)   NOT NULL,
		updated_at     DATETIME(6)   NOT NULL,
		PRIMARY KEY (seq),
		UNIQUE KEY uq_products_id (id),
		KEY idx_products_owner (owner_id),
		KEY idx_products_created (created_at, seq),
		CONSTRAINT chk_products_quantity CHECK (quantity >= 0)
	) ENGINE=InnoDB`,
	`CREATE TABLE IF NOT EXISTS transfers (
		seq            BIGINT        NOT NULL AUTO_INCREMENT,
		id             CHAR(36)      NOT NULL,
		product_id     CHAR(36)      NOT NULL,
		user_id        VARCHAR(128)  NOT NULL,
		quantity       INT           NOT NULL,
		name           VARCHAR(255)  NOT NULL,
		image          TEXT          NOT NULL,
		price          DECIMAL(18,4) NOT NULL,
		rating         DOUBLE        NOT NULL,
		origin_country VARCHAR(128)  NOT NULL,
		created_at     DATETIME(6)   NOT NULL,
		PRIMARY KEY (seq),
		UNIQUE KEY uq_transfers_id (id),
		KEY idx_transfers_user (user_id),
		KEY idx_transfers_product_user (product_id, user_id),
		CONSTRAINT chk_transfers_quantity CHECK (quantity > 0)
	) ENGINE=InnoDB`,
}

// EnsureSchema creates the products and transfers tables when missing.
func EnsureSchema(ctx context.Context, db *sql.DB) error {
	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return storeErr("ensure schema", err)
		}
	}
	return nil
}
