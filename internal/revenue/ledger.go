package revenue

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Transaction is one recorded sale or billable event.
type Transaction struct {
	ID        string            `json:"id"`
	Service   string            `json:"service"`
	Amount    float64           `json:"amount"`
	Tokens    int64             `json:"tokens,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt time.Time         `json:"created_at"`
}

// Ledger persists transactions.
type Ledger interface {
	// Log records a transaction and returns it with ID and timestamp filled in.
	Log(ctx context.Context, tx Transaction) (Transaction, error)

	// List returns every recorded transaction, oldest first.
	List(ctx context.Context) ([]Transaction, error)

	// Total sums the amounts of all recorded transactions.
	Total(ctx context.Context) (float64, error)

	// Close releases any backing resources.
	Close() error
}

// FileLedger appends transactions to a JSON-lines file under the data
// directory. It is the default backend for local use.
type FileLedger struct {
	mu   sync.Mutex
	path string
}

// NewFileLedger creates the ledger file's directory when needed and returns a
// ledger writing to dataDir/transactions.jsonl.
func NewFileLedger(dataDir string) (*FileLedger, error) {
	if strings.TrimSpace(dataDir) == "" {
		return nil, fmt.Errorf("ledger: data directory is empty")
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("ledger: create data directory failed: %w", err)
	}
	return &FileLedger{path: filepath.Join(dataDir, "transactions.jsonl")}, nil
}

// Log appends a transaction as a single JSON line.
func (l *FileLedger) Log(_ context.Context, tx Transaction) (Transaction, error) {
	if err := normalize(&tx); err != nil {
		return Transaction{}, err
	}

	raw, err := json.Marshal(tx)
	if err != nil {
		return Transaction{}, fmt.Errorf("ledger: marshal transaction failed: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return Transaction{}, fmt.Errorf("ledger: open %s failed: %w", l.path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	if _, err = file.Write(append(raw, '\n')); err != nil {
		return Transaction{}, fmt.Errorf("ledger: write transaction failed: %w", err)
	}
	return tx, nil
}

// List reads back every transaction line. Corrupt lines are skipped.
func (l *FileLedger) List(_ context.Context) ([]Transaction, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	file, err := os.Open(l.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("ledger: open %s failed: %w", l.path, err)
	}
	defer func() {
		_ = file.Close()
	}()

	var transactions []Transaction
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var tx Transaction
		if err = json.Unmarshal([]byte(line), &tx); err != nil {
			continue
		}
		transactions = append(transactions, tx)
	}
	if err = scanner.Err(); err != nil {
		return nil, fmt.Errorf("ledger: scan %s failed: %w", l.path, err)
	}
	return transactions, nil
}

// Total sums all recorded amounts.
func (l *FileLedger) Total(ctx context.Context) (float64, error) {
	transactions, err := l.List(ctx)
	if err != nil {
		return 0, err
	}
	var total float64
	for _, tx := range transactions {
		total += tx.Amount
	}
	return total, nil
}

// Close is a no-op for the file ledger.
func (l *FileLedger) Close() error { return nil }

// normalize validates a transaction and fills in its ID and timestamp.
func normalize(tx *Transaction) error {
	if strings.TrimSpace(tx.Service) == "" {
		return fmt.Errorf("ledger: transaction service is empty")
	}
	if tx.Amount < 0 {
		return fmt.Errorf("ledger: transaction amount must not be negative")
	}
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now().UTC()
	}
	return nil
}
