package postgres

// Orders keep a plain product_id column rather than a foreign key so products can be
// removed or archived without touching order history.
const schema = `
CREATE TABLE IF NOT EXISTS products (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL CHECK (btrim(name) <> ''),
	price      DOUBLE PRECISION NOT NULL CHECK (price >= 0),
	stock      INTEGER NOT NULL CHECK (stock >= 0),
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS products_created_at_idx ON products (created_at DESC);

CREATE TABLE IF NOT EXISTS orders (
	id                TEXT PRIMARY KEY,
	product_id        TEXT NOT NULL,
	quantity          INTEGER NOT NULL CHECK (quantity >= 1),
	price_at_purchase DOUBLE PRECISION NOT NULL CHECK (price_at_purchase >= 0),
	status            TEXT NOT NULL,
	created_at        TIMESTAMPTZ NOT NULL,
	updated_at        TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS orders_product_id_idx ON orders (product_id);
`
