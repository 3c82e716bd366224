package revenue

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// identifierPattern restricts schema names to plain identifiers so they can
// be interpolated into DDL safely.
var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// PostgresLedger stores transactions in a Postgres table via the pgx stdlib
// driver. Selected by setting the ledger backend to "postgres" or by the
// LEDGER_DSN environment variable.
type PostgresLedger struct {
	db     *sql.DB
	schema string
}

// NewPostgresLedger opens the database, verifies connectivity and ensures the
// transactions table exists.
func NewPostgresLedger(ctx context.Context, dsn, schema string) (*PostgresLedger, error) {
	schema = strings.TrimSpace(schema)
	if schema != "" && !identifierPattern.MatchString(schema) {
		return nil, fmt.Errorf("ledger: invalid schema name %q", schema)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("ledger: open database connection: %w", err)
	}
	if err = db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ledger: ping database: %w", err)
	}

	l := &PostgresLedger{db: db, schema: schema}
	if err = l.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return l, nil
}

func (l *PostgresLedger) tableName() string {
	if l.schema != "" {
		return fmt.Sprintf("%q.transactions", l.schema)
	}
	return "transactions"
}

func (l *PostgresLedger) ensureSchema(ctx context.Context) error {
	if l.schema != "" {
		if _, err := l.db.ExecContext(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %q", l.schema)); err != nil {
			return fmt.Errorf("ledger: create schema: %w", err)
		}
	}
	if _, err := l.db.ExecContext(ctx, fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			id TEXT PRIMARY KEY,
			service TEXT NOT NULL,
			amount DOUBLE PRECISION NOT NULL,
			tokens BIGINT NOT NULL DEFAULT 0,
			metadata JSONB,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`, l.tableName())); err != nil {
		return fmt.Errorf("ledger: create transactions table: %w", err)
	}
	return nil
}

// Log inserts a transaction row.
func (l *PostgresLedger) Log(ctx context.Context, tx Transaction) (Transaction, error) {
	if err := normalize(&tx); err != nil {
		return Transaction{}, err
	}

	var metadata []byte
	if len(tx.Metadata) > 0 {
		raw, err := json.Marshal(tx.Metadata)
		if err != nil {
			return Transaction{}, fmt.Errorf("ledger: marshal metadata failed: %w", err)
		}
		metadata = raw
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (id, service, amount, tokens, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, l.tableName())
	if _, err := l.db.ExecContext(ctx, query, tx.ID, tx.Service, tx.Amount, tx.Tokens, metadata, tx.CreatedAt); err != nil {
		return Transaction{}, fmt.Errorf("ledger: insert transaction: %w", err)
	}
	return tx, nil
}

// List returns all transactions, oldest first.
func (l *PostgresLedger) List(ctx context.Context) ([]Transaction, error) {
	query := fmt.Sprintf(`
		SELECT id, service, amount, tokens, metadata, created_at
		FROM %s ORDER BY created_at ASC
	`, l.tableName())
	rows, err := l.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ledger: query transactions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var transactions []Transaction
	for rows.Next() {
		var tx Transaction
		var metadata sql.NullString
		if err = rows.Scan(&tx.ID, &tx.Service, &tx.Amount, &tx.Tokens, &metadata, &tx.CreatedAt); err != nil {
			return nil, fmt.Errorf("ledger: scan transaction: %w", err)
		}
		if metadata.Valid && metadata.String != "" {
			if errMeta := json.Unmarshal([]byte(metadata.String), &tx.Metadata); errMeta != nil {
				tx.Metadata = nil
			}
		}
		transactions = append(transactions, tx)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("ledger: iterate transactions: %w", err)
	}
	return transactions, nil
}

// Total sums all recorded amounts in the database.
func (l *PostgresLedger) Total(ctx context.Context) (float64, error) {
	query := fmt.Sprintf("SELECT COALESCE(SUM(amount), 0) FROM %s", l.tableName())
	var total float64
	if err := l.db.QueryRowContext(ctx, query).Scan(&total); err != nil {
		return 0, fmt.Errorf("ledger: sum transactions: %w", err)
	}
	return total, nil
}

// Close releases the underlying database connection.
func (l *PostgresLedger) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
