package db

// schema is the full database schema.
const schema = `
CREATE TABLE IF NOT EXISTS users (
    id            INTEGER PRIMARY KEY,
    name          TEXT NOT NULL,
    email         TEXT NOT NULL UNIQUE,
    password_hash TEXT NOT NULL,
    avatar        TEXT NOT NULL DEFAULT '',
    points        INTEGER NOT NULL DEFAULT 100 CHECK (points >= 0),
    role          TEXT NOT NULL DEFAULT 'user' CHECK (role IN ('admin', 'user')),
    is_banned     INTEGER NOT NULL DEFAULT 0,
    location      TEXT NOT NULL DEFAULT '',
    bio           TEXT NOT NULL DEFAULT '',
    created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS items (
    id           INTEGER PRIMARY KEY,
    owner_id     INTEGER NOT NULL REFERENCES users(id),
    title        TEXT NOT NULL,
    description  TEXT NOT NULL,
    size         TEXT NOT NULL CHECK (size IN ('XS', 'S', 'M', 'L', 'XL', 'XXL', 'One Size')),
    condition    TEXT NOT NULL CHECK (condition IN ('New', 'Like New', 'Good', 'Fair', 'Poor')),
    category     TEXT NOT NULL CHECK (category IN ('Tops', 'Bottoms', 'Dresses', 'Outerwear', 'Shoes', 'Accessories', 'Other')),
    points_value INTEGER NOT NULL CHECK (points_value BETWEEN 10 AND 500),
    is_available INTEGER NOT NULL DEFAULT 1,
    is_approved  INTEGER NOT NULL DEFAULT 0,
    approved_by  INTEGER REFERENCES users(id),
    approved_at  DATETIME,
    brand        TEXT NOT NULL DEFAULT '',
    color        TEXT NOT NULL DEFAULT '',
    material     TEXT NOT NULL DEFAULT '',
    location     TEXT NOT NULL DEFAULT '',
    created_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    updated_at   DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_items_owner ON items(owner_id);
CREATE INDEX IF NOT EXISTS idx_items_listing ON items(is_approved, is_available, created_at);

CREATE TABLE IF NOT EXISTS item_images (
    item_id  INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    position INTEGER NOT NULL,
    url      TEXT NOT NULL,
    PRIMARY KEY (item_id, position)
);

CREATE TABLE IF NOT EXISTS item_tags (
    item_id INTEGER NOT NULL REFERENCES items(id) ON DELETE CASCADE,
    tag     TEXT NOT NULL,
    PRIMARY KEY (item_id, tag)
);

CREATE TABLE IF NOT EXISTS swaps (
    id                  INTEGER PRIMARY KEY,
    requester_id        INTEGER NOT NULL REFERENCES users(id),
    requested_item_id   INTEGER NOT NULL REFERENCES items(id),
    offered_item_id     INTEGER REFERENCES items(id),
    type                TEXT NOT NULL CHECK (type IN ('swap', 'points')),
    points_offered      INTEGER NOT NULL DEFAULT 0 CHECK (points_offered >= 0),
    status              TEXT NOT NULL DEFAULT 'pending'
                        CHECK (status IN ('pending', 'accepted', 'rejected', 'completed', 'cancelled')),
    message             TEXT NOT NULL DEFAULT '',
    response_message    TEXT NOT NULL DEFAULT '',
    responded_at        DATETIME,
    completed_at        DATETIME,
    cancelled_by        INTEGER REFERENCES users(id),
    cancellation_reason TEXT NOT NULL DEFAULT '',
    created_at          DATETIME NOT NULL,
    updated_at          DATETIME NOT NULL,
    CHECK ((type = 'swap' AND offered_item_id IS NOT NULL) OR (type = 'points' AND points_offered > 0))
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_swaps_pending_unique
    ON swaps(requester_id, requested_item_id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_swaps_requester ON swaps(requester_id, status);
CREATE INDEX IF NOT EXISTS idx_swaps_requested_item ON swaps(requested_item_id, status);

CREATE TABLE IF NOT EXISTS settings (
    key   TEXT PRIMARY KEY,
    value TEXT NOT NULL
);
`
