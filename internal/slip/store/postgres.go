package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"marketslip/internal/slip/models"
	"marketslip/pkg/platform/sentinel"
)

// DefaultTable holds slip records unless configured otherwise.
const DefaultTable = "slips"

// PostgresStore persists slip records in PostgreSQL.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// NewPostgres constructs a PostgreSQL-backed slip store on table.
func NewPostgres(db *sql.DB, table string) *PostgresStore {
	if table == "" {
		table = DefaultTable
	}
	return &PostgresStore{db: db, table: pq.QuoteIdentifier(table)}
}

// EnsureSchema creates the table and its reservation index if missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE EXTENSION IF NOT EXISTS pgcrypto`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
			storage_key VARCHAR(%d) NOT NULL UNIQUE,
			market_id VARCHAR(%d) NOT NULL,
			reservation_id VARCHAR(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, s.table, models.MaxStorageKeyLen, models.MaxMarketIDLen, models.MaxReservationIDLen),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (reservation_id)`,
			pq.QuoteIdentifier(indexName(s.table)), s.table),
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure slip schema: %w", err)
		}
	}
	return nil
}

// Create inserts a record and reads it back inside one transaction, so the
// returned record carries the store-assigned id and timestamp.
func (s *PostgresStore) Create(ctx context.Context, storageKey, marketID, reservationID string) (*models.SlipRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin create slip: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var id string
	insert := fmt.Sprintf(`INSERT INTO %s (storage_key, market_id, reservation_id) VALUES ($1, $2, $3) RETURNING id`, s.table)
	if err := tx.QueryRowContext(ctx, insert, storageKey, marketID, reservationID).Scan(&id); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("insert slip %q: %w", storageKey, sentinel.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("insert slip: %w", err)
	}

	record, err := scanRecord(tx.QueryRowContext(ctx, s.selectByID(), id))
	if err != nil {
		return nil, fmt.Errorf("read back slip: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create slip: %w", err)
	}
	return record, nil
}

// Get returns the record with id. Malformed ids are reported as not found.
func (s *PostgresStore) Get(ctx context.Context, id string) (*models.SlipRecord, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, sentinel.ErrNotFound
	}
	record, err := scanRecord(s.db.QueryRowContext(ctx, s.selectByID(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("get slip: %w", err)
	}
	return record, nil
}

// ListByReservation returns every record for reservationID. No records is an
// empty slice.
func (s *PostgresStore) ListByReservation(ctx context.Context, reservationID string) ([]*models.SlipRecord, error) {
	query := fmt.Sprintf(`SELECT id, storage_key, market_id, reservation_id, created_at FROM %s WHERE reservation_id = $1 ORDER BY created_at`, s.table)
	rows, err := s.db.QueryContext(ctx, query, reservationID)
	if err != nil {
		return nil, fmt.Errorf("list slips: %w", err)
	}
	defer rows.Close()

	records := make([]*models.SlipRecord, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan slip: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate slips: %w", err)
	}
	return records, nil
}

// Delete removes the record with id and reports whether one existed.
func (s *PostgresStore) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	res, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = $1`, s.table), id)
	if err != nil {
		return false, fmt.Errorf("delete slip: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete slip rows: %w", err)
	}
	return n > 0, nil
}

// ExistsByStorageKey reports whether any record references key.
func (s *PostgresStore) ExistsByStorageKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE storage_key = $1)`, s.table)
	if err := s.db.QueryRowContext(ctx, query, key).Scan(&exists); err != nil {
		return false, fmt.Errorf("check storage key: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) selectByID() string {
	return fmt.Sprintf(`SELECT id, storage_key, market_id, reservation_id, created_at FROM %s WHERE id = $1`, s.table)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.SlipRecord, error) {
	var r models.SlipRecord
	if err := row.Scan(&r.ID, &r.StorageKey, &r.MarketID, &r.ReservationID, &r.CreatedAt); err != nil {
		return nil, err
	}
	return &r, nil
}

func indexName(quotedTable string) string {
	name := quotedTable
	if len(name) >= 2 && name[0] == '"' {
		name = name[1 : len(name)-1]
	}
	return name + "_reservation_id_idx"
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
