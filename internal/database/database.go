package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/eliesystems/guben-booking-backend-sub000/internal/logging"
	"github.com/eliesystems/guben-booking-backend-sub000/internal/models"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

var (
	// ErrNotFound marks a missing row.
	ErrNotFound = errors.New("not found")
	// ErrConcurrentModification marks a lost optimistic-lock race.
	ErrConcurrentModification = errors.New("concurrent modification")
)

// DB wraps the SQLite store and the in-memory catalog caches. Bookables
// and tenants are declarative config; bookings, events and coupons are
// persisted rows.
type DB struct {
	db  *sql.DB
	log zerolog.Logger

	mu        sync.RWMutex
	bookables map[string]*models.Bookable
	byTenant  map[string][]*models.Bookable
	parents   map[string][]string // bookable id -> ids of bookables referencing it
	tenants   map[string]*models.Tenant
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := createTables(db); err != nil {
		return nil, fmt.Errorf("create tables: %w", err)
	}

	base := logging.Component(logger, "database")
	base.Info().Str("path", path).Msg("database initialized")

	return &DB{
		db:        db,
		log:       base,
		bookables: make(map[string]*models.Bookable),
		byTenant:  make(map[string][]*models.Bookable),
		parents:   make(map[string][]string),
		tenants:   make(map[string]*models.Tenant),
	}, nil
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS bookings (
            id TEXT PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            user_id TEXT NOT NULL,
            time_begin INTEGER NOT NULL DEFAULT 0,
            time_end INTEGER NOT NULL DEFAULT 0,
            is_committed INTEGER NOT NULL DEFAULT 0,
            is_payed INTEGER NOT NULL DEFAULT 0,
            is_rejected INTEGER NOT NULL DEFAULT 0,
            coupon_code TEXT,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS booking_items (
            booking_id TEXT NOT NULL,
            bookable_id TEXT NOT NULL,
            amount INTEGER NOT NULL,
            user_price_eur REAL NOT NULL DEFAULT 0
        )`,
		`CREATE TABLE IF NOT EXISTS locker_assignments (
            booking_id TEXT NOT NULL,
            bookable_id TEXT NOT NULL,
            unit_id TEXT NOT NULL,
            locker_system TEXT NOT NULL,
            reservation_id TEXT NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS events (
            id TEXT PRIMARY KEY,
            tenant_id TEXT NOT NULL,
            title TEXT NOT NULL,
            time_begin INTEGER NOT NULL DEFAULT 0,
            time_end INTEGER NOT NULL DEFAULT 0,
            max_attendees INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
        )`,
		`CREATE TABLE IF NOT EXISTS coupons (
            code TEXT NOT NULL,
            tenant_id TEXT NOT NULL,
            type TEXT NOT NULL,
            value REAL NOT NULL,
            usage_count INTEGER NOT NULL DEFAULT 0,
            created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            updated_at DATETIME DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (code, tenant_id)
        )`,

		`CREATE INDEX IF NOT EXISTS idx_bookings_tenant ON bookings(tenant_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_window ON bookings(time_begin, time_end)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_items_booking ON booking_items(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_booking_items_bookable ON booking_items(bookable_id)`,
		`CREATE INDEX IF NOT EXISTS idx_locker_assignments_booking ON locker_assignments(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_locker_assignments_unit ON locker_assignments(bookable_id, unit_id)`,
		`CREATE INDEX IF NOT EXISTS idx_events_tenant ON events(tenant_id)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("execute %q: %w", query, err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	return d.db.Close()
}
